package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/clock"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/metrics"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/storage"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// Merger concatenates a bucket's files. *merge.Merger implements it.
type Merger interface {
	Concatenate(ctx context.Context, date string, files []string, outputName string) bool
}

// Publisher uploads a file. *publish.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, path, title, description string) (videoID string, ok bool)
}

// Title is the published title for a day.
func Title(prefix, date string) string {
	return prefix + " " + date
}

// DailyPipeline merges, publishes and cleans up one day bucket.
type DailyPipeline struct {
	store       *storage.Store
	merger      Merger
	publisher   Publisher
	notifier    Notifier
	titlePrefix string
	clock       clock.Clock
}

// NewDailyPipeline creates a DailyPipeline. A nil notifier disables
// notifications.
func NewDailyPipeline(store *storage.Store, merger Merger, publisher Publisher, notifier Notifier, titlePrefix string, clk clock.Clock) *DailyPipeline {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &DailyPipeline{
		store:       store,
		merger:      merger,
		publisher:   publisher,
		notifier:    notifier,
		titlePrefix: titlePrefix,
		clock:       clk,
	}
}

// ProcessDay runs the pipeline for date, or today when date is empty. Local
// files are removed only after a successful publish; any earlier failure
// leaves the bucket untouched apart from the merge manifest and artifact.
func (p *DailyPipeline) ProcessDay(ctx context.Context, date string) (bool, models.DayReport) {
	start := time.Now()
	defer metrics.ObserveStage(metrics.StageDaily, start)

	if date == "" {
		date = models.DayKey(p.clock.Now())
	}
	artifact := storage.ArtifactName(date)
	report := models.DayReport{
		Date:         date,
		Title:        Title(p.titlePrefix, date),
		ArtifactPath: p.store.FilePath(date, artifact),
	}

	ok := p.run(ctx, &report, artifact)
	metrics.DailyRunsTotal.WithLabelValues(string(report.State)).Inc()
	return ok, report
}

func (p *DailyPipeline) run(ctx context.Context, report *models.DayReport, artifact string) bool {
	date := report.Date

	if !p.store.Exists(date) {
		logger.Log.Info("No videos found for day", zap.String("date", date))
		report.State = models.DayStateNoBucket
		return false
	}

	files, err := p.store.MediaFiles(date)
	if err != nil {
		logger.Log.Error("Failed to list day bucket", zap.String("date", date), zap.Error(err))
	}
	if len(files) == 0 {
		logger.Log.Info("No mp4 files to concatenate", zap.String("date", date))
		report.State = models.DayStateNoFiles
		return false
	}
	report.Files = files
	logger.Log.Info("Found video files", zap.String("date", date), zap.Int("count", len(files)))

	if !p.merger.Concatenate(ctx, date, files, artifact) {
		report.State = models.DayStateMergeFailed
		return false
	}

	videoID, ok := p.publisher.Publish(ctx, report.ArtifactPath, report.Title, "")
	if !ok {
		logger.Log.Warn("Upload failed, keeping local files", zap.String("date", date))
		report.State = models.DayStatePublishFailed
		return false
	}
	report.VideoID = videoID

	logger.Log.Info("Upload successful, cleaning up local files", zap.String("date", date))
	p.cleanup(report, artifact)
	report.State = models.DayStateDone
	metrics.LastDailySuccess.Set(float64(p.clock.Now().Unix()))

	p.notify(ctx, report)
	return true
}

// cleanup removes the merged inputs, the manifest and the artifact, then the
// bucket directory. Failures are logged and counted, never returned.
func (p *DailyPipeline) cleanup(report *models.DayReport, artifact string) {
	date := report.Date
	names := make([]string, 0, len(report.Files)+2)
	names = append(names, report.Files...)
	names = append(names, storage.ManifestName, artifact)

	for _, name := range names {
		if err := p.store.RemoveFile(date, name); err != nil {
			logger.Log.Error("Failed to delete file", zap.String("file", name), zap.Error(err))
			metrics.CleanupFailuresTotal.Inc()
			report.CleanupErrors++
			continue
		}
		logger.Log.Debug("Deleted file", zap.String("file", name))
	}

	err := p.store.RemoveBucket(date)
	switch {
	case err == nil:
		report.BucketRemoved = true
		logger.Log.Info("Removed empty directory", zap.String("path", p.store.BucketPath(date)))
	case errors.Is(err, storage.ErrNotEmpty):
		logger.Log.Info("Directory not empty, keeping it", zap.String("path", p.store.BucketPath(date)))
	default:
		logger.Log.Error("Failed to remove day directory", zap.String("date", date), zap.Error(err))
		metrics.CleanupFailuresTotal.Inc()
		report.CleanupErrors++
	}
}

func (p *DailyPipeline) notify(ctx context.Context, report *models.DayReport) {
	event := &models.DayPublishedEvent{
		ID:          uuid.New(),
		Date:        report.Date,
		VideoID:     report.VideoID,
		Title:       report.Title,
		FileCount:   len(report.Files),
		PublishedAt: p.clock.Now(),
	}
	if err := p.notifier.NotifyDayPublished(ctx, event); err != nil {
		logger.Log.Warn("Failed to send publication notice", zap.String("date", report.Date), zap.Error(err))
	}
}
