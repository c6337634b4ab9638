// Package catalog lists the videos currently available on the camera.
package catalog

import (
	"context"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/metrics"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/retry"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// Source fetches one listing from the camera. *camera.Client implements it.
type Source interface {
	FetchListing(ctx context.Context) ([]models.VideoRecord, error)
}

// Fetcher retries listings and hides failures from callers.
type Fetcher struct {
	source Source
	policy retry.Policy
}

// NewFetcher creates a Fetcher.
func NewFetcher(source Source, policy retry.Policy) *Fetcher {
	return &Fetcher{source: source, policy: policy}
}

// ListAvailable returns the camera's current videos in listing order. When
// every attempt fails, or ctx is cancelled, it returns an empty slice.
func (f *Fetcher) ListAvailable(ctx context.Context) []models.VideoRecord {
	start := time.Now()
	defer metrics.ObserveStage(metrics.StageList, start)

	var records []models.VideoRecord
	err := f.policy.Do(ctx, "list videos", func(ctx context.Context, _ int) error {
		r, err := f.source.FetchListing(ctx)
		if err != nil {
			return err
		}
		records = r
		return nil
	})
	if err != nil {
		metrics.ListingsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		logger.Log.Error("Failed to list videos", zap.Error(err))
		return []models.VideoRecord{}
	}

	metrics.ListingsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.ListedVideosTotal.Add(float64(len(records)))
	logger.Log.Info("Listed videos", zap.Int("count", len(records)))

	if records == nil {
		return []models.VideoRecord{}
	}
	return records
}
