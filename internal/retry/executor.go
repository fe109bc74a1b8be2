// Package retry implements the resilient external-call executor: bounded
// retries with exponential backoff, jitter, and provider-supplied retry
// hints. It carries no knowledge of what the wrapped closure does.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/surge-forecast/internal/observability"
)

// Policy bounds the retry behaviour of an Executor.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy returns the service-wide retry defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
	}
}

const maxJitter = 2 * time.Second

// Executor retries transient failures with exponential backoff. Sleeps run
// on an injected clock so backoff is testable without wall time, and are
// cancelled by context.
type Executor struct {
	policy  Policy
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	// jitter returns the random delay added to each backoff; replaced in
	// tests for determinism.
	jitter func() time.Duration
}

// NewExecutor creates an Executor with the given policy.
func NewExecutor(policy Policy, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{
		policy:  policy,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		jitter: func() time.Duration {
			return rand.N(maxJitter)
		},
	}
}

// Do runs fn, retrying transient failures until the policy is exhausted.
// The last failure is returned unchanged so callers can classify it.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	delay := e.policy.InitialDelay

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		te, retryable := classify(err)
		if !retryable || attempt >= e.policy.MaxRetries {
			return err
		}

		wait := e.nextDelay(delay, te)
		e.logger.Warn("transient failure, backing off",
			"operation", operation,
			"attempt", attempt+1,
			"max_retries", e.policy.MaxRetries,
			"delay", wait,
			"error", err,
		)
		e.metrics.RetryAttempts.WithLabelValues(operation).Inc()

		if !e.sleep(ctx, wait) {
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * e.policy.Multiplier)
		if delay > e.policy.MaxDelay {
			delay = e.policy.MaxDelay
		}
	}
}

// Do runs fn through the executor and returns its value. Package-level
// because methods cannot introduce type parameters.
func Do[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, operation, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// classify decides whether err is retryable. Explicitly tagged transient
// errors and network timeouts retry; everything else is permanent.
func classify(err error) (*TransientError, bool) {
	var te *TransientError
	if errors.As(err, &te) {
		return te, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Reason: ReasonTimeout, Err: err}, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Reason: ReasonTimeout, Err: err}, true
	}
	return nil, false
}

// nextDelay computes the wait before the next attempt: a provider hint
// wins outright; otherwise the current exponential delay, multiplied
// further for rate-limit failures, plus jitter, clamped to MaxDelay.
func (e *Executor) nextDelay(current time.Duration, te *TransientError) time.Duration {
	wait := current
	if te.RetryAfter > 0 {
		wait = te.RetryAfter
	} else if te.Reason == ReasonRateLimited {
		wait = time.Duration(float64(wait) * e.policy.Multiplier)
	}
	wait += e.jitter()
	if wait > e.policy.MaxDelay {
		wait = e.policy.MaxDelay
	}
	return wait
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := e.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
