package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fatalErr struct{}

func (fatalErr) Error() string { return "session lost" }
func (fatalErr) Fatal() bool   { return true }

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestRetrier(max int) (*Retrier, *recordingSleeper, *int) {
	restarts := 0
	sleeper := &recordingSleeper{}
	r := New(Policy{MaxAttempts: max, SessionDelay: 3 * time.Second, ErrorDelay: 2 * time.Second},
		func(context.Context) error {
			restarts++
			return nil
		})
	r.Sleep = sleeper.sleep
	return r, sleeper, &restarts
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	r, sleeper, _ := newTestRetrier(3)

	attempts, err := r.Do(context.Background(), "page 1", func(context.Context) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeper.delays)
	assert.Zero(t, r.Retries())
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	r, sleeper, restarts := newTestRetrier(5)
	calls := 0

	attempts, err := r.Do(context.Background(), "page 2", func(context.Context) error {
		calls++
		switch calls {
		case 1:
			return errors.New("timeout")
		case 2:
			return fatalErr{}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, sleeper.delays)
	assert.Equal(t, 1, *restarts)
	assert.Equal(t, 2, r.Retries())
	assert.Equal(t, 1, r.Restarts())
}

func TestDoExhausted(t *testing.T) {
	r, sleeper, _ := newTestRetrier(3)
	sentinel := errors.New("empty page")
	var seen []int
	r.OnRetry = func(_ string, attempt int, _ error) { seen = append(seen, attempt) }

	attempts, err := r.Do(context.Background(), "page 3", func(context.Context) error { return sentinel })

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "page 3", exhausted.Unit)
	assert.Len(t, sleeper.delays, 2)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDoStopsOnCancel(t *testing.T) {
	r, _, _ := newTestRetrier(5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := r.Do(ctx, "page 4", func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	r, _, _ := newTestRetrier(2)
	calls := 0

	got, err := Value(context.Background(), r, "item", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fatalErr{}))
	assert.True(t, IsFatal(errors.Join(errors.New("navigate"), fatalErr{})))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		base     time.Duration
		max      time.Duration
		expected time.Duration
	}{
		{attempt: 0, base: 2 * time.Second, expected: 2 * time.Second},
		{attempt: 1, base: 2 * time.Second, expected: 4 * time.Second},
		{attempt: 4, base: 2 * time.Second, expected: 32 * time.Second},
		{attempt: 2, base: time.Second, expected: 4 * time.Second},
		{attempt: 6, base: time.Second, max: 10 * time.Second, expected: 10 * time.Second},
		{attempt: -1, base: time.Second, expected: time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, tt.base, tt.max); got != tt.expected {
			t.Errorf("Backoff(%d, %v, %v) = %v, want %v", tt.attempt, tt.base, tt.max, got, tt.expected)
		}
	}
}
