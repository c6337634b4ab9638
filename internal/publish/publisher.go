// Package publish uploads merged day videos to YouTube.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/config"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/metrics"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/retry"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

// ErrRateLimited marks an upload the collaborator refused with HTTP 403.
var ErrRateLimited = errors.New("youtube rate limit")

// Metadata describes the video being published.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Category    string
	Privacy     string
}

// ProgressFunc receives the bytes sent so far and the file size.
type ProgressFunc func(sent, total int64)

// Inserter performs a single upload attempt and returns the new video ID.
type Inserter interface {
	Insert(ctx context.Context, path string, meta Metadata, progress ProgressFunc) (string, error)
}

// YouTubeInserter uploads through videos.insert on the session's service.
type YouTubeInserter struct {
	session *Session
	// ChunkSize is the resumable upload chunk size. Zero uses the library default.
	ChunkSize int
}

// NewYouTubeInserter creates an inserter bound to session.
func NewYouTubeInserter(session *Session) *YouTubeInserter {
	return &YouTubeInserter{session: session}
}

// Insert uploads the file at path.
func (y *YouTubeInserter) Insert(ctx context.Context, path string, meta Metadata, progress ProgressFunc) (string, error) {
	svc, err := y.session.Service(ctx)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to open %s: %w", path, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	size := info.Size()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.Category,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: meta.Privacy,
		},
	}

	var opts []googleapi.MediaOption
	if y.ChunkSize > 0 {
		opts = append(opts, googleapi.ChunkSize(y.ChunkSize))
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, opts...).
		Context(ctx)
	if progress != nil {
		call = call.ProgressUpdater(func(current, _ int64) {
			progress(current, size)
		})
	}

	resp, err := call.Do()
	if err != nil {
		return "", err
	}
	return resp.Id, nil
}

// Publisher uploads files under the retry policy. A rate-limit response
// waits the configured cooldown instead of the exponential backoff.
type Publisher struct {
	inserter Inserter
	policy   retry.Policy
	defaults Metadata
	cooldown time.Duration
}

// NewPublisher creates a Publisher using the YouTube section of cfg for
// description, tags, category, privacy and cooldown.
func NewPublisher(inserter Inserter, policy retry.Policy, cfg *config.Config) *Publisher {
	return &Publisher{
		inserter: inserter,
		policy:   policy,
		defaults: Metadata{
			Description: cfg.YouTube.Description,
			Tags:        cfg.Tags(),
			Category:    cfg.YouTube.Category,
			Privacy:     cfg.YouTube.Privacy,
		},
		cooldown: cfg.YouTube.RateLimitCooldown,
	}
}

// Publish uploads the file at path with title. An empty description uses
// the configured default. It returns the video ID and whether the upload
// succeeded; it never returns an error.
func (p *Publisher) Publish(ctx context.Context, path, title, description string) (string, bool) {
	start := time.Now()
	defer metrics.ObserveStage(metrics.StagePublish, start)

	meta := p.defaults
	meta.Title = title
	if description != "" {
		meta.Description = description
	}

	var videoID string
	err := p.policy.Do(ctx, "upload "+title, func(ctx context.Context, attempt int) error {
		logger.Log.Info("Uploading video",
			zap.String("path", path),
			zap.String("title", title),
			zap.Int("attempt", attempt+1),
		)

		last := -1
		id, err := p.inserter.Insert(ctx, path, meta, func(sent, total int64) {
			if total <= 0 {
				return
			}
			if pct := int(sent * 100 / total); pct != last {
				last = pct
				logger.Log.Info("Upload progress", zap.String("title", title), zap.Int("percent", pct))
			}
		})
		if err != nil {
			err = p.classify(err)
			if errors.Is(err, ErrRateLimited) {
				metrics.UploadAttemptsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
				logger.Log.Warn("YouTube rate limit hit, cooling down", zap.Duration("cooldown", p.cooldown))
			} else {
				metrics.UploadAttemptsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
			}
			return err
		}

		metrics.UploadAttemptsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		videoID = id
		return nil
	})
	if err != nil {
		logger.Log.Error("Upload failed", zap.String("path", path), zap.Error(err))
		return "", false
	}

	logger.Log.Info("Upload complete",
		zap.String("videoId", videoID),
		zap.String("url", "https://youtu.be/"+videoID),
	)
	return videoID, true
}

// classify wraps a 403 response as a rate limit carrying the cooldown.
func (p *Publisher) classify(err error) error {
	if IsRateLimit(err) {
		return retry.WithCooldown(fmt.Errorf("%w: %v", ErrRateLimited, err), p.cooldown)
	}
	return err
}

// IsRateLimit reports whether err is an HTTP 403 from the YouTube API.
func IsRateLimit(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusForbidden
}
