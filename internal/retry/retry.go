// Package retry runs fallible pipeline steps with bounded attempts and
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/clock"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt; attempt i waits
	// BaseDelay * 2^i.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff wait. Zero means uncapped.
	MaxDelay time.Duration
	// Clock drives the waits between attempts. Nil means the real clock.
	Clock clock.Clock
}

// DefaultPolicy returns five attempts with a one second base delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		Clock:       clock.New(),
	}
}

// Func is one attempt of a retried operation. attempt is zero-based.
type Func func(ctx context.Context, attempt int) error

// Backoff returns the wait after the zero-based attempt i.
func (p Policy) Backoff(i int) time.Duration {
	d := p.BaseDelay
	for n := 0; n < i; n++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do executes fn up to MaxAttempts times. Attempts receive a context that is
// detached from ctx cancellation so an attempt in flight always runs to
// completion; cancellation is observed only before an attempt starts and
// during the wait between attempts.
//
// An error returned by fn that carries a Cooldown replaces the backoff wait
// for that attempt. A Permanent error stops retrying immediately.
func (p Policy) Do(ctx context.Context, op string, fn Func) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(context.WithoutCancel(ctx), i)
		if err == nil {
			if i > 0 {
				logger.Log.Info("Operation succeeded after retry",
					zap.String("op", op),
					zap.Int("attempt", i+1),
				)
			}
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			logger.Log.Error("Operation failed permanently",
				zap.String("op", op),
				zap.Int("attempt", i+1),
				zap.Error(perm.err),
			)
			return perm.err
		}

		if i == attempts-1 {
			logger.Log.Warn("Operation attempt failed",
				zap.String("op", op),
				zap.Int("attempt", i+1),
				zap.Int("maxAttempts", attempts),
				zap.Error(err),
			)
			break
		}

		wait := p.Backoff(i)
		var cd *Cooldown
		if errors.As(err, &cd) {
			wait = cd.Wait
		}

		logger.Log.Warn("Operation attempt failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Int("maxAttempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		if err := clk.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	logger.Log.Error("Operation failed after retries",
		zap.String("op", op),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

// Cooldown marks a failure that must wait a fixed duration before the next
// attempt instead of the exponential backoff.
type Cooldown struct {
	Err  error
	Wait time.Duration
}

// WithCooldown wraps err so that Do waits d before the next attempt.
func WithCooldown(err error, d time.Duration) error {
	return &Cooldown{Err: err, Wait: d}
}

func (c *Cooldown) Error() string {
	return fmt.Sprintf("%v (cooldown %s)", c.Err, c.Wait)
}

func (c *Cooldown) Unwrap() error {
	return c.Err
}

type permanentError struct {
	err error
}

// Permanent wraps err so that Do stops retrying and returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
