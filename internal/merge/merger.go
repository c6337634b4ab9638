package merge

import (
	"context"
	"errors"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/metrics"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/retry"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/storage"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// Merger writes a bucket's manifest and runs the concat under the retry
// policy.
type Merger struct {
	store  *storage.Store
	runner Runner
	policy retry.Policy
}

// NewMerger creates a Merger.
func NewMerger(store *storage.Store, runner Runner, policy retry.Policy) *Merger {
	return &Merger{store: store, runner: runner, policy: policy}
}

// Concatenate merges files from the bucket for date, in the given order, into
// outputName inside the same bucket. On failure the inputs and manifest are
// left in place.
func (m *Merger) Concatenate(ctx context.Context, date string, files []string, outputName string) bool {
	start := time.Now()
	defer metrics.ObserveStage(metrics.StageMerge, start)

	manifest, err := m.store.WriteManifest(date, files)
	if err != nil {
		logger.Log.Error("Failed to write merge manifest", zap.String("date", date), zap.Error(err))
		metrics.MergesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return false
	}

	output := m.store.FilePath(date, outputName)
	logger.Log.Info("Concatenating videos",
		zap.String("date", date),
		zap.Int("files", len(files)),
		zap.String("output", output),
	)

	err = m.policy.Do(ctx, "merge "+date, func(ctx context.Context, _ int) error {
		err := m.runner.Run(ctx, manifest, output)
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Stderr != "" {
			logger.Log.Warn("ffmpeg failed",
				zap.String("date", date),
				zap.Int("exitCode", exitErr.Code),
				zap.Bool("timedOut", exitErr.TimedOut),
				zap.String("stderr", exitErr.Stderr),
			)
		}
		return err
	})

	metrics.MergesTotal.WithLabelValues(metrics.Outcome(err == nil)).Inc()
	if err != nil {
		logger.Log.Error("Failed to concatenate videos", zap.String("date", date), zap.Error(err))
		return false
	}

	logger.Log.Info("Concatenated video saved", zap.String("output", output))
	return true
}
