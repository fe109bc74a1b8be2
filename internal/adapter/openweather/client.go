// Package openweather adapts the OpenWeatherMap current-weather API to
// the reading store's schema. Weather is the mandatory signal: fetch
// failures here ultimately surface as missing-mandatory-signal errors.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

const providerName = "openweathermap"

// Client fetches weather readings from OpenWeatherMap.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client.
func NewClient(apiKey string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.openweathermap.org/data/2.5/weather",
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerName,
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
		clock:  clock,
		logger: logger,
	}
}

// Signal identifies the reading variant this adapter produces.
func (c *Client) Signal() domain.SignalType { return domain.SignalWeather }

// Fetch retrieves the current weather for a location and normalizes it
// into a Reading. Transient failures are tagged for the retry executor.
func (c *Client) Fetch(ctx context.Context, location string) (domain.Reading, error) {
	if c.apiKey == "" {
		return domain.Reading{}, fmt.Errorf("%w: OPENWEATHER_API_KEY is not configured", domain.ErrMissingCredentials)
	}

	params := url.Values{
		"q":     {location},
		"appid": {c.apiKey},
		"units": {"metric"},
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, c.baseURL+"?"+params.Encode(), location)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.Reading{}, fmt.Errorf("%w: %s circuit open: %v", domain.ErrProviderFailure, providerName, err)
		}
		return domain.Reading{}, err
	}
	return result.(domain.Reading), nil
}

func (c *Client) doRequest(ctx context.Context, fullURL, location string) (domain.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Reading{}, retry.Transport(fmt.Errorf("weather request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Reading{}, retry.Transport(fmt.Errorf("read weather response: %w", err))
	}

	if err := classifyStatus(resp, location, c.clock.Now()); err != nil {
		return domain.Reading{}, err
	}

	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Reading{}, fmt.Errorf("%w: decode weather response: %v", domain.ErrProviderFailure, err)
	}

	capturedAt := c.clock.Now().UTC()
	if payload.Dt > 0 {
		capturedAt = time.Unix(payload.Dt, 0).UTC()
	}

	return domain.Reading{
		Location:     location,
		Signal:       domain.SignalWeather,
		CapturedAt:   capturedAt,
		TemperatureC: payload.Main.Temp,
		HumidityPct:  payload.Main.Humidity,
		PressureHPa:  payload.Main.Pressure,
		WindSpeedMS:  payload.Wind.Speed,
		PrecipMM:     payload.Rain.OneH + payload.Snow.OneH,
		Source:       providerName,
		RawPayload:   body,
	}, nil
}

func classifyStatus(resp *http.Response, location string, now time.Time) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected API key (status %d)", domain.ErrMissingCredentials, providerName, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s does not know %q", domain.ErrInvalidLocation, providerName, location)
	case resp.StatusCode == http.StatusTooManyRequests:
		return retry.RateLimited(
			fmt.Errorf("%s rate limited (status %d)", providerName, resp.StatusCode),
			retry.RetryAfterHint(resp, now),
		)
	case resp.StatusCode >= 500:
		return retry.ServerError(fmt.Errorf("%s server error (status %d)", providerName, resp.StatusCode))
	default:
		return fmt.Errorf("%w: %s unexpected status %d", domain.ErrProviderFailure, providerName, resp.StatusCode)
	}
}

// OpenWeatherMap current-weather response, metric units.
type response struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneH float64 `json:"1h"`
	} `json:"rain"`
	Snow struct {
		OneH float64 `json:"1h"`
	} `json:"snow"`
}
