// Package service contains the archiving stages: fetch-and-purge and the
// daily merge, publish and cleanup pipeline.
package service

import (
	"context"
	"io"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/clock"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/metrics"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/retry"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/storage"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// Lister returns the videos currently on the camera. *catalog.Fetcher
// implements it.
type Lister interface {
	ListAvailable(ctx context.Context) []models.VideoRecord
}

// Camera downloads and deletes videos. *camera.Client implements it.
type Camera interface {
	Download(ctx context.Context, assetPath string, w io.Writer) (int64, error)
	Delete(ctx context.Context, handle string) error
}

// SyncService moves videos from the camera into today's bucket and deletes
// each one on the camera once it is safely stored.
type SyncService struct {
	lister Lister
	camera Camera
	store  *storage.Store
	policy retry.Policy
	clock  clock.Clock
}

// NewSyncService creates a SyncService.
func NewSyncService(lister Lister, cam Camera, store *storage.Store, policy retry.Policy, clk clock.Clock) *SyncService {
	if clk == nil {
		clk = clock.New()
	}
	return &SyncService{
		lister: lister,
		camera: cam,
		store:  store,
		policy: policy,
		clock:  clk,
	}
}

// SyncToday downloads every listed video into today's bucket. A video is
// deleted on the camera only after its download succeeded and only when the
// listing gave it a server handle. Records are processed independently;
// cancellation stops the run between records.
func (s *SyncService) SyncToday(ctx context.Context) models.SyncReport {
	start := time.Now()
	defer metrics.ObserveStage(metrics.StageSync, start)

	var report models.SyncReport

	records := s.lister.ListAvailable(ctx)
	report.Listed = len(records)
	if len(records) == 0 {
		logger.Log.Info("No videos found to download")
		return report
	}

	date := models.DayKey(s.clock.Now())
	if _, err := s.store.EnsureBucket(date); err != nil {
		logger.Log.Error("Failed to prepare day bucket", zap.String("date", date), zap.Error(err))
		return report
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			logger.Log.Info("Sync interrupted", zap.Int("remaining", len(records)-report.Downloaded-report.DownloadFailed))
			break
		}

		if !s.download(ctx, date, rec) {
			report.DownloadFailed++
			continue
		}
		report.Downloaded++

		if !rec.HasServerHandle() {
			logger.Log.Warn("No server handle, skipping server delete", zap.String("video", rec.AssetPath))
			metrics.ServerDeletesTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
			report.DeleteSkipped++
			continue
		}

		if s.deleteRemote(ctx, rec) {
			report.Deleted++
		} else {
			report.DeleteFailed++
		}
	}

	logger.Log.Info("Sync finished",
		zap.String("date", date),
		zap.Int("listed", report.Listed),
		zap.Int("downloaded", report.Downloaded),
		zap.Int("downloadFailed", report.DownloadFailed),
		zap.Int("deleted", report.Deleted),
		zap.Int("deleteFailed", report.DeleteFailed),
		zap.Int("deleteSkipped", report.DeleteSkipped),
	)
	return report
}

func (s *SyncService) download(ctx context.Context, date string, rec models.VideoRecord) bool {
	name := rec.FileName()
	logger.Log.Info("Downloading video", zap.String("video", rec.AssetPath), zap.String("title", rec.Title))

	var size int64
	err := s.policy.Do(ctx, "download "+name, func(ctx context.Context, _ int) error {
		return s.store.WriteFile(date, name, func(w io.Writer) error {
			n, err := s.camera.Download(ctx, rec.AssetPath, w)
			size = n
			return err
		})
	})

	metrics.DownloadsTotal.WithLabelValues(metrics.Outcome(err == nil)).Inc()
	if err != nil {
		logger.Log.Error("Failed to download video", zap.String("video", rec.AssetPath), zap.Error(err))
		return false
	}

	logger.Log.Info("Downloaded video",
		zap.String("video", rec.AssetPath),
		zap.String("path", s.store.FilePath(date, name)),
		zap.Int64("bytes", size),
	)
	return true
}

func (s *SyncService) deleteRemote(ctx context.Context, rec models.VideoRecord) bool {
	err := s.policy.Do(ctx, "delete "+rec.ServerHandle, func(ctx context.Context, _ int) error {
		return s.camera.Delete(ctx, rec.ServerHandle)
	})

	metrics.ServerDeletesTotal.WithLabelValues(metrics.Outcome(err == nil)).Inc()
	if err != nil {
		logger.Log.Error("Failed to delete video on camera", zap.String("handle", rec.ServerHandle), zap.Error(err))
		return false
	}

	logger.Log.Info("Server delete request sent", zap.String("handle", rec.ServerHandle))
	return true
}
