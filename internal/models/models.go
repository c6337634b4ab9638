// Package models contains the data models shared by the archiving pipeline.
package models

import (
	"path"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the layout of a day-bucket key (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// UnknownDateTime is the title of a record whose listing text lacked a date or
// time token.
const UnknownDateTime = "Unknown DateTime"

// VideoRecord is one remote video observed in a camera listing. Records are
// built fresh on every listing and never persisted.
type VideoRecord struct {
	// AssetPath is the server-relative media path, e.g. media/video001.mp4.
	AssetPath string `json:"video"`
	// ServerHandle identifies the video for server-side deletion. Empty when
	// the listing entry had no delete control.
	ServerHandle string `json:"thumbnail,omitempty"`
	Title        string `json:"title"`
	Size         string `json:"size"`
	Duration     string `json:"duration"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// FileName is the local file name the asset is stored under.
func (v VideoRecord) FileName() string {
	return path.Base(v.AssetPath)
}

// HasServerHandle reports whether a deletion request can be issued.
func (v VideoRecord) HasServerHandle() bool {
	return v.ServerHandle != ""
}

// DayKey formats t as a day-bucket key.
func DayKey(t time.Time) string {
	return t.Format(DateLayout)
}

// SyncReport summarizes one Fetch-and-Purge run.
type SyncReport struct {
	Listed         int `json:"listed"`
	Downloaded     int `json:"downloaded"`
	DownloadFailed int `json:"download_failed"`
	Deleted        int `json:"deleted"`
	DeleteFailed   int `json:"delete_failed"`
	DeleteSkipped  int `json:"delete_skipped"`
}

// DayState is the terminal state of a Daily Pipeline run.
type DayState string

// DayState constants, in pipeline order.
const (
	DayStateNoBucket      DayState = "NO_BUCKET"
	DayStateNoFiles       DayState = "NO_FILES"
	DayStateMergeFailed   DayState = "MERGE_FAILED"
	DayStatePublishFailed DayState = "PUBLISH_FAILED"
	DayStateDone          DayState = "DONE"
)

// DayReport describes the outcome of one Daily Pipeline run.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DayReport struct {
	Date          string   `json:"date"`
	State         DayState `json:"state"`
	Files         []string `json:"files"`
	ArtifactPath  string   `json:"artifact_path"`
	Title         string   `json:"title"`
	VideoID       string   `json:"video_id,omitempty"`
	CleanupErrors int      `json:"cleanup_errors"`
	BucketRemoved bool     `json:"bucket_removed"`
}

// Succeeded reports whether the day was published.
func (r DayReport) Succeeded() bool {
	return r.State == DayStateDone
}

// DayPublishedEvent is emitted after a day's merged artifact was published.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DayPublishedEvent struct {
	ID          uuid.UUID `json:"id"`
	Date        string    `json:"date"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	FileCount   int       `json:"file_count"`
	PublishedAt time.Time `json:"published_at"`
}

// ErrorResponse represents an error response.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}
