// Package metrics exposes prometheus collectors for every pipeline stage.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rpicam"

// Outcome label values.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeSkipped     = "skipped"
	OutcomeRateLimited = "rate_limited"
)

// Stage label values.
const (
	StageList    = "list"
	StageSync    = "sync"
	StageMerge   = "merge"
	StagePublish = "publish"
	StageDaily   = "daily"
)

var (
	ListingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listings_total",
		Help:      "Catalog listings by outcome, after retries.",
	}, []string{"outcome"})

	ListedVideosTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listed_videos_total",
		Help:      "Video records returned by successful listings.",
	})

	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloads_total",
		Help:      "Video downloads by outcome, after retries.",
	}, []string{"outcome"})

	ServerDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "server_deletes_total",
		Help:      "Camera-side deletions by outcome.",
	}, []string{"outcome"})

	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merges_total",
		Help:      "Day merges by outcome, after retries.",
	}, []string{"outcome"})

	UploadAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_attempts_total",
		Help:      "Individual upload attempts by outcome.",
	}, []string{"outcome"})

	CleanupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_failures_total",
		Help:      "Local files or directories that could not be removed after publishing.",
	})

	DailyRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "daily_runs_total",
		Help:      "Daily pipeline runs by terminal state.",
	}, []string{"state"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of pipeline stages.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"stage"})

	LastDailySuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_daily_success_timestamp_seconds",
		Help:      "Unix time of the last daily run that published successfully.",
	})
)

// ObserveStage records the time elapsed since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Outcome maps a success flag to an outcome label.
func Outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
