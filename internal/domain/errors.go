package domain

import "errors"

// Typed error kinds surfaced through the read/predict API. Callers match
// with errors.Is; messages wrap these sentinels with %w.
var (
	// ErrInvalidLocation means the location name failed validation. Raised
	// before any network call.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrMissingCredentials means a provider or reasoning-service API key
	// required for the requested operation is not configured.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrProviderFailure means an external provider could not be reached or
	// returned an unusable response after retries were exhausted.
	ErrProviderFailure = errors.New("provider failure")

	// ErrMissingMandatorySignal means no weather reading could be obtained,
	// cached or fetched. Fatal to the current predict invocation; weather
	// data is never fabricated.
	ErrMissingMandatorySignal = errors.New("missing mandatory signal")

	// ErrSynthesisFailure means the prediction pipeline failed for a reason
	// other than a missing mandatory signal.
	ErrSynthesisFailure = errors.New("synthesis failure")

	// ErrNotFound means no stored record exists for the requested key.
	ErrNotFound = errors.New("not found")
)
