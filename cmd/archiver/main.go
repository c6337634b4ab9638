// Command archiver harvests camera recordings into daily buckets and
// publishes each day as one merged video.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/config"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// A .env file is optional; the environment wins over it.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	opts, err := parseFlags(args, cfg.Scheduler.Enabled, os.Stderr)
	if err != nil {
		if isHelp(err) {
			return 0
		}
		logger.Log.Error("Invalid arguments", zap.Error(err))
		return 1
	}

	if err := cfg.Validate(); err != nil {
		logger.Log.Error("Configuration error", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg)
	defer a.Close()

	logger.Log.Info("Archiver starting",
		zap.String("mode", string(opts.Mode)),
		zap.String("camera", cfg.Camera.BaseURL),
		zap.String("dataDir", cfg.Storage.DataDir),
	)

	switch opts.Mode {
	case ModeScrape:
		a.sync.SyncToday(ctx)
	case ModeDaily:
		ok, report := a.daily.ProcessDay(ctx, opts.Date)
		if !ok {
			logger.Log.Error("Daily processing failed",
				zap.String("date", report.Date),
				zap.String("state", string(report.State)),
			)
			return 1
		}
	case ModeScheduler:
		if err := a.runScheduler(ctx); err != nil {
			logger.Log.Error("Scheduler exited with error", zap.Error(err))
			return 1
		}
	}

	return 0
}
