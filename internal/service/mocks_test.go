package service

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListAvailable(ctx context.Context) []models.VideoRecord {
	args := m.Called(ctx)
	return args.Get(0).([]models.VideoRecord)
}

type mockCamera struct {
	mock.Mock
}

func (m *mockCamera) Download(ctx context.Context, assetPath string, w io.Writer) (int64, error) {
	args := m.Called(ctx, assetPath, w)
	return int64(args.Int(0)), args.Error(1)
}

func (m *mockCamera) Delete(ctx context.Context, handle string) error {
	return m.Called(ctx, handle).Error(0)
}

type mockMerger struct {
	mock.Mock
}

func (m *mockMerger) Concatenate(ctx context.Context, date string, files []string, outputName string) bool {
	return m.Called(ctx, date, files, outputName).Bool(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, path, title, description string) (string, bool) {
	args := m.Called(ctx, path, title, description)
	return args.String(0), args.Bool(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyDayPublished(ctx context.Context, event *models.DayPublishedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockNotifier) Close() error {
	return m.Called().Error(0)
}
