// Package scheduler drives the scrape and daily stages from one control loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/clock"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/validation"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// TickInterval is how often the loop re-evaluates its conditions.
const TickInterval = 60 * time.Second

const triggerQueueSize = 8

var (
	// ErrNotRunning is returned by Trigger when the loop is stopped.
	ErrNotRunning = errors.New("scheduler is not running")
	// ErrQueueFull is returned by Trigger when too many runs are pending.
	ErrQueueFull = errors.New("trigger queue is full")
	// ErrInvalidDate is returned by Trigger for a malformed daily date.
	ErrInvalidDate = errors.New("invalid date")
)

// Syncer runs the fetch-and-purge stage.
type Syncer interface {
	SyncToday(ctx context.Context) models.SyncReport
}

// DayProcessor runs the daily pipeline.
type DayProcessor interface {
	ProcessDay(ctx context.Context, date string) (bool, models.DayReport)
}

// Kind is the stage a trigger asks for.
type Kind string

const (
	KindScrape Kind = "scrape"
	KindDaily  Kind = "daily"
)

// Request is an on-demand run queued into the loop.
type Request struct {
	ID          uuid.UUID `json:"id"`
	Kind        Kind      `json:"kind"`
	Date        string    `json:"date,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// State is the loop's in-memory state. It is never persisted.
type State struct {
	Running          bool
	LastDailyRunDate string
	LastScrape       time.Time
}

// Status is a point-in-time view of the scheduler for the admin API.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Status struct {
	Running          bool               `json:"running"`
	LastDailyRunDate string             `json:"last_daily_run_date,omitempty"`
	LastScrape       *time.Time         `json:"last_scrape,omitempty"`
	PendingTriggers  int                `json:"pending_triggers"`
	LastSync         *models.SyncReport `json:"last_sync,omitempty"`
	LastDay          *models.DayReport  `json:"last_day,omitempty"`
}

// Options configures a Scheduler.
type Options struct {
	ScrapeInterval time.Duration
	DailyHour      int
	DailyMinute    int
	Clock          clock.Clock
}

// Scheduler runs scrapes on an interval and the daily pipeline once per
// calendar date after the configured time. Stages never overlap.
type Scheduler struct {
	syncer Syncer
	daily  DayProcessor
	opts   Options
	clock  clock.Clock

	triggers chan Request

	mu       sync.Mutex
	state    State
	lastSync *models.SyncReport
	lastDay  *models.DayReport
	stop     chan struct{}
	done     chan struct{}
}

// New creates a stopped Scheduler.
func New(syncer Syncer, daily DayProcessor, opts Options) *Scheduler {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		syncer:   syncer,
		daily:    daily,
		opts:     opts,
		clock:    clk,
		triggers: make(chan Request, triggerQueueSize),
	}
}

// Start launches the control loop. Calling Start on a running scheduler is a
// no-op. Stages run with ctx; cancelling it is the process-exit path and
// reaches in-flight stage work, while Stop does not.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Running {
		logger.Log.Info("Scheduler is already running")
		return
	}

	s.state.Running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	logger.Log.Info("Scheduler started",
		zap.Duration("scrapeInterval", s.opts.ScrapeInterval),
		zap.String("dailyProcessTime", fmt.Sprintf("%02d:%02d", s.opts.DailyHour, s.opts.DailyMinute)),
	)

	go s.loop(ctx, s.stop, s.done)
}

// Stop asks the loop to exit at the next iteration boundary and waits for
// the current stage to finish. The running stage is not interrupted.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.state.Running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	<-done
}

// Done is closed when the current loop exits. It is nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	ticker := s.clock.NewTicker(TickInterval)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		s.state.Running = false
		s.mu.Unlock()
		logger.Log.Info("Scheduler stopped")
		close(done)
	}()

	s.Tick(ctx)
	for {
		// Stop wins over pending ticks and triggers.
		select {
		case <-stop:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C():
			s.Tick(ctx)
		case req := <-s.triggers:
			s.handle(ctx, req)
		}
	}
}

// Tick evaluates both schedule conditions once: scrape when the interval has
// elapsed, then the daily pipeline when the target time has passed and today
// has not been processed successfully yet.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	if s.scrapeDue(now) {
		s.runScrape(ctx, now)
	}

	if ctx.Err() != nil {
		return
	}

	if today, due := s.dailyDue(now); due {
		s.runDaily(ctx, today, true)
	}
}

func (s *Scheduler) scrapeDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastScrape.IsZero() || now.Sub(s.state.LastScrape) >= s.opts.ScrapeInterval
}

func (s *Scheduler) dailyDue(now time.Time) (string, bool) {
	today := models.DayKey(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	return today, s.pastTarget(now) && s.state.LastDailyRunDate != today
}

// pastTarget reports whether now is at or after today's daily process time.
func (s *Scheduler) pastTarget(now time.Time) bool {
	target := time.Date(now.Year(), now.Month(), now.Day(), s.opts.DailyHour, s.opts.DailyMinute, 0, 0, now.Location())
	return !now.Before(target)
}

func (s *Scheduler) runScrape(ctx context.Context, now time.Time) {
	logger.Log.Info("Starting scheduled video scraping")
	report := s.syncer.SyncToday(ctx)

	s.mu.Lock()
	s.state.LastScrape = now
	s.lastSync = &report
	s.mu.Unlock()

	logger.Log.Info("Video scraping completed")
}

// runDaily processes date. With markDone, a success records date as the
// last daily run so the schedule skips it for the rest of the day.
func (s *Scheduler) runDaily(ctx context.Context, date string, markDone bool) {
	logger.Log.Info("Starting daily processing", zap.String("date", date))
	ok, report := s.daily.ProcessDay(ctx, date)

	s.mu.Lock()
	s.lastDay = &report
	if ok && markDone {
		s.state.LastDailyRunDate = date
	}
	s.mu.Unlock()

	if ok {
		logger.Log.Info("Daily processing completed successfully", zap.String("date", date))
	} else {
		logger.Log.Warn("Daily processing failed",
			zap.String("date", date),
			zap.String("state", string(report.State)),
		)
	}
}

func (s *Scheduler) handle(ctx context.Context, req Request) {
	logger.Log.Info("Running triggered stage",
		zap.String("id", req.ID.String()),
		zap.String("kind", string(req.Kind)),
		zap.String("date", req.Date),
	)

	now := s.clock.Now()
	switch req.Kind {
	case KindScrape:
		s.runScrape(ctx, now)
	case KindDaily:
		today := models.DayKey(now)
		date := req.Date
		if date == "" {
			date = today
		}
		// Before the target time clips keep arriving for today, so the
		// scheduled run must still happen.
		s.runDaily(ctx, date, date == today && s.pastTarget(now))
	}
}

// Trigger queues an on-demand run. Date applies to daily runs only and
// defaults to today.
func (s *Scheduler) Trigger(kind Kind, date string) (Request, error) {
	switch kind {
	case KindScrape:
		date = ""
	case KindDaily:
		if date != "" {
			if err := validation.ValidateDateKey(date); err != nil {
				return Request{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
			}
		}
	default:
		return Request{}, fmt.Errorf("unknown trigger kind %q", kind)
	}

	s.mu.Lock()
	running := s.state.Running
	s.mu.Unlock()
	if !running {
		return Request{}, ErrNotRunning
	}

	req := Request{
		ID:          uuid.New(),
		Kind:        kind,
		Date:        date,
		RequestedAt: s.clock.Now(),
	}

	select {
	case s.triggers <- req:
		return req, nil
	default:
		return Request{}, ErrQueueFull
	}
}

// Snapshot returns the current state.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the admin view of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:          s.state.Running,
		LastDailyRunDate: s.state.LastDailyRunDate,
		PendingTriggers:  len(s.triggers),
	}
	if !s.state.LastScrape.IsZero() {
		t := s.state.LastScrape
		st.LastScrape = &t
	}
	if s.lastSync != nil {
		r := *s.lastSync
		st.LastSync = &r
	}
	if s.lastDay != nil {
		r := *s.lastDay
		st.LastDay = &r
	}
	return st
}
