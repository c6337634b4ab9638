package publish

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/clock"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/config"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/retry"
)

type mockInserter struct {
	mock.Mock
}

func (m *mockInserter) Insert(ctx context.Context, path string, meta Metadata, progress ProgressFunc) (string, error) {
	args := m.Called(ctx, path, meta, progress)
	return args.String(0), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		YouTube: config.YouTubeConfig{
			Description:       "Uploaded by RPI-Cam-Web-Interface-Scraper",
			Tags:              "RPiCam, AutoUpload",
			Category:          "22",
			Privacy:           "unlisted",
			RateLimitCooldown: time.Hour,
		},
	}
}

func testPolicy(clk clock.Clock) retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Clock: clk}
}

func TestPublisher_Publish(t *testing.T) {
	ins := new(mockInserter)
	ins.On("Insert", mock.Anything, "/data/2025-08-12/2025-08-12_combined.mp4", Metadata{
		Title:       "RPiCam 2025-08-12",
		Description: "Uploaded by RPI-Cam-Web-Interface-Scraper",
		Tags:        []string{"RPiCam", "AutoUpload"},
		Category:    "22",
		Privacy:     "unlisted",
	}, mock.Anything).Return("abc123", nil).Once()

	clk := clock.NewFake(time.Now())
	p := NewPublisher(ins, testPolicy(clk), testConfig())

	id, ok := p.Publish(context.Background(), "/data/2025-08-12/2025-08-12_combined.mp4", "RPiCam 2025-08-12", "")

	assert.True(t, ok)
	assert.Equal(t, "abc123", id)
	assert.Empty(t, clk.Sleeps())
	ins.AssertExpectations(t)
}

func TestPublisher_Publish_CustomDescription(t *testing.T) {
	ins := new(mockInserter)
	ins.On("Insert", mock.Anything, mock.Anything, mock.MatchedBy(func(m Metadata) bool {
		return m.Description == "garden cam"
	}), mock.Anything).Return("abc123", nil)

	p := NewPublisher(ins, testPolicy(clock.NewFake(time.Now())), testConfig())

	_, ok := p.Publish(context.Background(), "/tmp/x.mp4", "t", "garden cam")
	assert.True(t, ok)
}

func TestPublisher_Publish_RateLimitCooldown(t *testing.T) {
	forbidden := &googleapi.Error{Code: http.StatusForbidden, Message: "quotaExceeded"}

	ins := new(mockInserter)
	ins.On("Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", forbidden).Once()
	ins.On("Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection reset")).Once()
	ins.On("Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("vid", nil).Once()

	clk := clock.NewFake(time.Now())
	p := NewPublisher(ins, testPolicy(clk), testConfig())

	id, ok := p.Publish(context.Background(), "/tmp/x.mp4", "t", "")

	assert.True(t, ok)
	assert.Equal(t, "vid", id)
	// the rate limit waits the cooldown, the generic failure waits 2^1 * base
	assert.Equal(t, []time.Duration{time.Hour, 2 * time.Second}, clk.Sleeps())
}

func TestPublisher_Publish_Exhausted(t *testing.T) {
	ins := new(mockInserter)
	ins.On("Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("boom"))

	clk := clock.NewFake(time.Now())
	p := NewPublisher(ins, testPolicy(clk), testConfig())

	id, ok := p.Publish(context.Background(), "/tmp/x.mp4", "t", "")

	assert.False(t, ok)
	assert.Empty(t, id)
	ins.AssertNumberOfCalls(t, "Insert", 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Sleeps())
}

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "403", err: &googleapi.Error{Code: 403}, want: true},
		{name: "wrapped 403", err: errors.Join(errors.New("ctx"), &googleapi.Error{Code: 403}), want: true},
		{name: "400", err: &googleapi.Error{Code: 400}},
		{name: "plain", err: errors.New("403")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimit(tt.err))
		})
	}
}

func fakeYouTube(t *testing.T, handler http.HandlerFunc) *Session {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewSession(func(ctx context.Context) (*youtube.Service, error) {
		return youtube.NewService(ctx,
			option.WithEndpoint(srv.URL+"/"),
			option.WithHTTPClient(srv.Client()),
		)
	})
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2025-08-12_combined.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really an mp4"), 0o644))
	return path
}

func TestYouTubeInserter_Insert(t *testing.T) {
	var body string
	session := fakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/youtube/v3/videos"), r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"vid123"}`)
	})

	id, err := NewYouTubeInserter(session).Insert(context.Background(), writeVideo(t), Metadata{
		Title:   "RPiCam 2025-08-12",
		Privacy: "unlisted",
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "vid123", id)
	assert.Contains(t, body, "RPiCam 2025-08-12")
	assert.Contains(t, body, "not really an mp4")
}

func TestYouTubeInserter_Insert_Forbidden(t *testing.T) {
	session := fakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"quotaExceeded"}}`)
	})

	_, err := NewYouTubeInserter(session).Insert(context.Background(), writeVideo(t), Metadata{Title: "t"}, nil)

	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
}

func TestYouTubeInserter_Insert_MissingFile(t *testing.T) {
	session := fakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := NewYouTubeInserter(session).Insert(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), Metadata{}, nil)

	require.Error(t, err)
}
