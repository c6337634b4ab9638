package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/camera"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/catalog"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/clock"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/config"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/handler"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/merge"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/middleware"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/publish"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/retry"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/scheduler"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/service"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/storage"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// app holds the wired pipeline for one process.
type app struct {
	cfg      *config.Config
	clock    clock.Clock
	sync     *service.SyncService
	daily    *service.DailyPipeline
	notifier service.Notifier
}

func newApp(cfg *config.Config) *app {
	clk := clock.New()
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxRetries,
		BaseDelay:   cfg.Retry.BaseDelay,
		Clock:       clk,
	}
	store := storage.New(cfg.Storage.DataDir)

	cam := camera.NewClient(cfg, nil)
	fetcher := catalog.NewFetcher(cam, policy)
	syncSvc := service.NewSyncService(fetcher, cam, store, policy, clk)

	merger := merge.NewMerger(store, merge.NewFFmpeg(cfg.Merge.FFmpegPath, cfg.Merge.Timeout), policy)

	session := publish.NewSession(publish.OAuthConnector(
		cfg.YouTube.ClientSecrets,
		cfg.YouTube.TokenPath,
		publish.ConsoleConsent(os.Stdin, os.Stderr),
	))
	publisher := publish.NewPublisher(publish.NewYouTubeInserter(session), policy, cfg)

	notifier, err := service.NewNotifier(&cfg.RabbitMQ)
	if err != nil {
		logger.Log.Warn("Failed to connect publication notifier, notifications disabled", zap.Error(err))
		notifier = service.NopNotifier{}
	}

	return &app{
		cfg:      cfg,
		clock:    clk,
		sync:     syncSvc,
		daily:    service.NewDailyPipeline(store, merger, publisher, notifier, cfg.YouTube.TitlePrefix, clk),
		notifier: notifier,
	}
}

func (a *app) Close() {
	if err := a.notifier.Close(); err != nil {
		logger.Log.Warn("Failed to close notifier", zap.Error(err))
	}
}

// runScheduler blocks until ctx is cancelled, then waits for the running
// stage and the admin server to finish.
func (a *app) runScheduler(ctx context.Context) error {
	hour, minute := a.cfg.DailyTime()
	sched := scheduler.New(a.sync, a.daily, scheduler.Options{
		ScrapeInterval: a.cfg.ScrapeInterval(),
		DailyHour:      hour,
		DailyMinute:    minute,
		Clock:          a.clock,
	})
	sched.Start(ctx)
	defer sched.Stop()

	if !a.cfg.Server.Enabled {
		<-ctx.Done()
		logger.Log.Info("Shutdown signal received")
		return nil
	}

	server := a.adminServer(sched)
	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Admin server starting", zap.String("addr", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
		if err := server.Close(); err != nil {
			logger.Log.Error("Failed to close server", zap.Error(err))
		}
		return err
	}

	logger.Log.Info("Admin server stopped gracefully")
	return nil
}

func (a *app) adminServer(sched *scheduler.Scheduler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	var broker handler.HealthChecker
	if mp, ok := a.notifier.(*service.MessagePublisher); ok {
		broker = mp
	}

	keys := a.cfg.APIKeys()
	if len(keys) == 0 {
		logger.Log.Warn("No admin API keys configured, status and trigger endpoints will reject all requests",
			zap.String("envVar", "RPICAM_ADMIN_API_KEYS"),
		)
	}

	router := handler.NewRouter(
		handler.NewHealthHandler(sched, broker),
		handler.NewTriggerHandler(sched),
		middleware.NewAPIKeyAuth(keys),
	)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
