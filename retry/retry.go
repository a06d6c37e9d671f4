// Package retry runs one unit of work under a bounded attempt budget,
// recreating the automation session on fatal faults.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Fatal is implemented by errors that leave the automation session
// unusable. The session is recreated before the next attempt.
type Fatal interface {
	Fatal() bool
}

// IsFatal reports whether any error in err's chain is a fatal session fault.
func IsFatal(err error) bool {
	var f Fatal
	return errors.As(err, &f) && f.Fatal()
}

// ExhaustedError is returned once every attempt for a unit failed.
type ExhaustedError struct {
	Unit     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Unit, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Policy bounds attempts and sets the pause after each kind of failure.
type Policy struct {
	MaxAttempts  int
	SessionDelay time.Duration
	ErrorDelay   time.Duration
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier applies a Policy. Restart is called after a fatal fault and
// before the next attempt; a failing Restart is logged and counted as a
// regular failed attempt.
type Retrier struct {
	Policy  Policy
	Restart func(ctx context.Context) error
	Sleep   Sleeper
	OnRetry func(unit string, attempt int, err error)

	retries  int
	restarts int
}

// New returns a Retrier for policy with the default sleeper.
func New(policy Policy, restart func(ctx context.Context) error) *Retrier {
	return &Retrier{Policy: policy, Restart: restart, Sleep: Sleep}
}

// Do runs fn until it succeeds, the context ends, or the attempt budget is
// spent. It returns the number of attempts made.
func (r *Retrier) Do(ctx context.Context, unit string, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := r.Policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return attempt, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		r.retries++
		if r.OnRetry != nil {
			r.OnRetry(unit, attempt, err)
		}

		delay := r.Policy.ErrorDelay
		if IsFatal(err) {
			slog.Warn("session fault, recreating",
				slog.String("unit", unit),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			delay = r.Policy.SessionDelay
			if r.Restart != nil {
				r.restarts++
				if rerr := r.Restart(ctx); rerr != nil {
					slog.Error("session restart failed", slog.String("unit", unit), slog.Any("error", rerr))
				}
			}
		} else {
			slog.Warn("attempt failed",
				slog.String("unit", unit),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
				slog.Any("error", err),
			)
		}

		if err := sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, &ExhaustedError{Unit: unit, Attempts: maxAttempts, Err: lastErr}
}

// Value is Do for functions that produce a result.
func Value[T any](ctx context.Context, r *Retrier, unit string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	_, err := r.Do(ctx, unit, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Retries returns how many retries were scheduled so far.
func (r *Retrier) Retries() int { return r.retries }

// Restarts returns how many session recreations were requested so far.
func (r *Retrier) Restarts() int { return r.restarts }

// Backoff returns base * 2^attempt for a zero-based attempt, capped at max
// when max is positive.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<attempt)
	if max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}
