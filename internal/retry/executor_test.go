package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/surge-forecast/internal/observability"
)

func testExecutor(policy Policy, clock clockwork.Clock) *Executor {
	e := NewExecutor(policy, clock, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	e.jitter = func() time.Duration { return 0 }
	return e
}

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SucceedsAfterNFailures(t *testing.T) {
	e := testExecutor(fastPolicy(3), clockwork.NewRealClock())

	calls := 0
	result, err := Do(context.Background(), e, "test", func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", ServerError(errors.New("boom"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls, "N failures then success means N+1 calls")
}

func TestDo_ExhaustsRetries(t *testing.T) {
	e := testExecutor(fastPolicy(2), clockwork.NewRealClock())

	calls := 0
	final := errors.New("still down")
	err := e.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return ServerError(final)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, final, "last failure is re-raised")
	assert.Equal(t, 3, calls, "initial attempt plus MaxRetries")
}

func TestDo_PermanentFailureNoRetry(t *testing.T) {
	e := testExecutor(fastPolicy(3), clockwork.NewRealClock())

	calls := 0
	err := e.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return errors.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable failures fail immediately")
}

func TestDo_HonorsRetryAfterHint(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := testExecutor(Policy{
		MaxRetries:   1,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
	}, clock)

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- e.Do(context.Background(), "test", func(context.Context) error {
			calls++
			if calls == 1 {
				return RateLimited(errors.New("429"), 5*time.Second)
			}
			return nil
		})
	}()

	clock.BlockUntil(1)
	// Advancing less than the hint must not wake the executor.
	clock.Advance(4 * time.Second)
	select {
	case <-done:
		t.Fatal("executor woke before the provider hint elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, 2, calls)
}

func TestDo_RateLimitMultipliesDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := testExecutor(Policy{
		MaxRetries:   1,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
	}, clock)

	done := make(chan error, 1)
	calls := 0
	go func() {
		done <- e.Do(context.Background(), "test", func(context.Context) error {
			calls++
			if calls == 1 {
				return RateLimited(errors.New("429"), 0) // no hint
			}
			return nil
		})
	}()

	clock.BlockUntil(1)
	// Rate limits double the current delay: 2s * 2 = 4s.
	clock.Advance(3 * time.Second)
	select {
	case <-done:
		t.Fatal("executor woke before the rate-limit delay elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)
	require.NoError(t, <-done)
}

func TestDo_DelayClampedToMax(t *testing.T) {
	e := testExecutor(Policy{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}, clockwork.NewRealClock())

	// A huge provider hint must be clamped rather than honored verbatim.
	calls := 0
	start := time.Now()
	err := e.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls == 1 {
			return RateLimited(errors.New("429"), time.Hour)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_ContextCancelsBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := testExecutor(Policy{
		MaxRetries:   3,
		InitialDelay: time.Minute,
		MaxDelay:     time.Hour,
		Multiplier:   2,
	}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Do(ctx, "test", func(context.Context) error {
			return ServerError(errors.New("down"))
		})
	}()

	clock.BlockUntil(1)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_NetworkTimeoutIsRetryable(t *testing.T) {
	e := testExecutor(fastPolicy(1), clockwork.NewRealClock())

	calls := 0
	err := e.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls == 1 {
			return context.DeadlineExceeded
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
