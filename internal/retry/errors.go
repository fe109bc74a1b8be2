package retry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Reason classifies why a failure is considered transient.
type Reason string

const (
	ReasonRateLimited Reason = "rate_limited"
	ReasonServerError Reason = "server_error"
	ReasonTimeout     Reason = "timeout"
	ReasonTransport   Reason = "transport"
)

// TransientError marks a failure as retryable. Adapters wrap provider
// failures in it; everything else fails immediately with no retry.
type TransientError struct {
	Reason Reason

	// RetryAfter is the provider-supplied retry hint (e.g. a Retry-After
	// header), zero when absent. A hint takes precedence over the computed
	// exponential delay.
	RetryAfter time.Duration

	Err error
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s): %v", e.Reason, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimited wraps err as a rate-limit failure with an optional provider
// retry hint.
func RateLimited(err error, retryAfter time.Duration) error {
	return &TransientError{Reason: ReasonRateLimited, RetryAfter: retryAfter, Err: err}
}

// ServerError wraps err as a 5xx-equivalent server failure.
func ServerError(err error) error {
	return &TransientError{Reason: ReasonServerError, Err: err}
}

// Timeout wraps err as a timeout failure.
func Timeout(err error) error {
	return &TransientError{Reason: ReasonTimeout, Err: err}
}

// Transport wraps err as a transient transport failure.
func Transport(err error) error {
	return &TransientError{Reason: ReasonTransport, Err: err}
}

// RetryAfterHint extracts the retry delay a provider suggested via the
// Retry-After header, in either delta-seconds or HTTP-date form. Returns
// zero when the header is absent or unparseable.
func RetryAfterHint(resp *http.Response, now time.Time) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
