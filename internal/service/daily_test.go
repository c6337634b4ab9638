package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/clock"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/config"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/storage"
)

const testDay = "2025-08-12"

type pipelineFixture struct {
	store     *storage.Store
	root      string
	merger    *mockMerger
	publisher *mockPublisher
	notifier  *mockNotifier
	pipeline  *DailyPipeline
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	root := t.TempDir()
	f := &pipelineFixture{
		store:     storage.New(root),
		root:      root,
		merger:    new(mockMerger),
		publisher: new(mockPublisher),
		notifier:  new(mockNotifier),
	}
	clk := clock.NewFake(time.Date(2025, 8, 12, 23, 59, 0, 0, time.Local))
	f.pipeline = NewDailyPipeline(f.store, f.merger, f.publisher, f.notifier, "RPiCam", clk)
	return f
}

func (f *pipelineFixture) bucket(t *testing.T, names ...string) string {
	t.Helper()
	dir, err := f.store.EnsureBucket(testDay)
	require.NoError(t, err)
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
	return dir
}

// mergeWritesOutputs simulates ffmpeg by creating the manifest and artifact.
func (f *pipelineFixture) mergeWritesOutputs(t *testing.T) func(mock.Arguments) {
	return func(args mock.Arguments) {
		date := args.String(1)
		_, err := f.store.WriteManifest(date, args.Get(2).([]string))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(f.store.FilePath(date, args.String(3)), []byte("merged"), 0o644))
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "RPiCam 2025-08-12", Title("RPiCam", "2025-08-12"))
}

func TestDailyPipeline_NoBucket(t *testing.T) {
	f := newPipeline(t)

	ok, report := f.pipeline.ProcessDay(context.Background(), testDay)

	assert.False(t, ok)
	assert.Equal(t, models.DayStateNoBucket, report.State)
	f.merger.AssertNotCalled(t, "Concatenate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, f.store.Exists(testDay), "no bucket is created")
}

func TestDailyPipeline_NoFiles(t *testing.T) {
	f := newPipeline(t)
	dir := f.bucket(t, "notes.txt")

	ok, report := f.pipeline.ProcessDay(context.Background(), testDay)

	assert.False(t, ok)
	assert.Equal(t, models.DayStateNoFiles, report.State)
	f.merger.AssertNotCalled(t, "Concatenate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, storage.ManifestName))
}

func TestDailyPipeline_MergeFailureKeepsFiles(t *testing.T) {
	f := newPipeline(t)
	dir := f.bucket(t, "video002.mp4", "video001.mp4")
	f.merger.On("Concatenate", mock.Anything, testDay, []string{"video001.mp4", "video002.mp4"}, "2025-08-12_combined.mp4").
		Return(false)

	ok, report := f.pipeline.ProcessDay(context.Background(), testDay)

	assert.False(t, ok)
	assert.Equal(t, models.DayStateMergeFailed, report.State)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.FileExists(t, filepath.Join(dir, "video001.mp4"))
	assert.FileExists(t, filepath.Join(dir, "video002.mp4"))
}

func TestDailyPipeline_PublishFailureKeepsFiles(t *testing.T) {
	f := newPipeline(t)
	dir := f.bucket(t, "video001.mp4")
	f.merger.On("Concatenate", mock.Anything, testDay, mock.Anything, mock.Anything).
		Run(f.mergeWritesOutputs(t)).Return(true)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, "").Return("", false)

	ok, report := f.pipeline.ProcessDay(context.Background(), testDay)

	assert.False(t, ok)
	assert.Equal(t, models.DayStatePublishFailed, report.State)
	assert.FileExists(t, filepath.Join(dir, "video001.mp4"))
	assert.FileExists(t, filepath.Join(dir, storage.ManifestName))
	assert.FileExists(t, filepath.Join(dir, "2025-08-12_combined.mp4"))
	f.notifier.AssertNotCalled(t, "NotifyDayPublished", mock.Anything, mock.Anything)
}

func TestDailyPipeline_PublishAndCleanup(t *testing.T) {
	f := newPipeline(t)
	dir := f.bucket(t, "video001.mp4", "video002.mp4")
	wantPath := filepath.Join(f.root, testDay, "2025-08-12_combined.mp4")

	f.merger.On("Concatenate", mock.Anything, testDay, []string{"video001.mp4", "video002.mp4"}, "2025-08-12_combined.mp4").
		Run(f.mergeWritesOutputs(t)).Return(true)
	f.publisher.On("Publish", mock.Anything, wantPath, "RPiCam 2025-08-12", "").Return("vid123", true)
	f.notifier.On("NotifyDayPublished", mock.Anything, mock.MatchedBy(func(e *models.DayPublishedEvent) bool {
		return e.Date == testDay && e.VideoID == "vid123" && e.FileCount == 2 && e.Title == "RPiCam 2025-08-12"
	})).Return(nil)

	ok, report := f.pipeline.ProcessDay(context.Background(), testDay)

	require.True(t, ok)
	assert.Equal(t, models.DayStateDone, report.State)
	assert.True(t, report.Succeeded())
	assert.Equal(t, "vid123", report.VideoID)
	assert.Equal(t, wantPath, report.ArtifactPath)
	assert.Zero(t, report.CleanupErrors)
	assert.True(t, report.BucketRemoved)
	assert.NoDirExists(t, dir)
	f.publisher.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestDailyPipeline_CleanupToleratesNonEmptyBucket(t *testing.T) {
	f := newPipeline(t)
	dir := f.bucket(t, "video001.mp4", "notes.txt")

	f.merger.On("Concatenate", mock.Anything, testDay, []string{"video001.mp4"}, mock.Anything).
		Run(f.mergeWritesOutputs(t)).Return(true)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("vid", true)
	f.notifier.On("NotifyDayPublished", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	ok, report := f.pipeline.ProcessDay(context.Background(), testDay)

	assert.True(t, ok, "notifier and leftover files do not change the result")
	assert.False(t, report.BucketRemoved)
	assert.Zero(t, report.CleanupErrors)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name())
}

func TestDailyPipeline_DefaultsToToday(t *testing.T) {
	f := newPipeline(t)

	_, report := f.pipeline.ProcessDay(context.Background(), "")

	assert.Equal(t, testDay, report.Date)
	assert.Equal(t, "RPiCam 2025-08-12", report.Title)
}

func TestDailyPipeline_IgnoresStaleArtifact(t *testing.T) {
	f := newPipeline(t)
	f.bucket(t, "video001.mp4", "2025-08-12_combined.mp4")
	f.merger.On("Concatenate", mock.Anything, testDay, []string{"video001.mp4"}, "2025-08-12_combined.mp4").Return(false)

	f.pipeline.ProcessDay(context.Background(), testDay)

	f.merger.AssertExpectations(t)
}

func TestNewNotifier_DisabledWithoutURL(t *testing.T) {
	n, err := NewNotifier(&config.RabbitMQConfig{})
	require.NoError(t, err)
	assert.IsType(t, NopNotifier{}, n)
	assert.NoError(t, n.NotifyDayPublished(context.Background(), &models.DayPublishedEvent{}))
	assert.NoError(t, n.Close())
}
