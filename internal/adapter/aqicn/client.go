// Package aqicn adapts the World Air Quality Index (WAQI) city feed to
// the reading store's schema. Air quality is the optional signal: callers
// fall back to a heuristic estimate when this adapter cannot deliver.
package aqicn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

const providerName = "aqicn"

// Client fetches air-quality readings from the WAQI city feed.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a WAQI client.
func NewClient(token string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.waqi.info/feed",
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
func (c *Client) Signal() domain.SignalType { return domain.SignalAirQuality }

// Fetch retrieves the current air quality for a location and normalizes
// it into a Reading.
func (c *Client) Fetch(ctx context.Context, location string) (domain.Reading, error) {
	if c.token == "" {
		return domain.Reading{}, fmt.Errorf("%w: AQICN_TOKEN is not configured", domain.ErrMissingCredentials)
	}

	u := fmt.Sprintf("%s/%s/?token=%s", c.baseURL, url.PathEscape(location), url.QueryEscape(c.token))

	result, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, u, location)
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
		return domain.Reading{}, retry.Transport(fmt.Errorf("air-quality request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Reading{}, retry.Transport(fmt.Errorf("read air-quality response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Reading{}, retry.RateLimited(
			fmt.Errorf("%s rate limited (status %d)", providerName, resp.StatusCode),
			retry.RetryAfterHint(resp, c.clock.Now()),
		)
	case resp.StatusCode >= 500:
		return domain.Reading{}, retry.ServerError(fmt.Errorf("%s server error (status %d)", providerName, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return domain.Reading{}, fmt.Errorf("%w: %s unexpected status %d", domain.ErrProviderFailure, providerName, resp.StatusCode)
	}

	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Reading{}, fmt.Errorf("%w: decode air-quality response: %v", domain.ErrProviderFailure, err)
	}

	// WAQI reports application errors inside a 200 response.
	if payload.Status != "ok" {
		return domain.Reading{}, classifyFeedError(payload.Data.message(), location)
	}

	capturedAt := c.clock.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, payload.Data.Time.ISO); err == nil {
		capturedAt = ts.UTC()
	}

	return domain.Reading{
		Location:   location,
		Signal:     domain.SignalAirQuality,
		CapturedAt: capturedAt,
		AQI:        payload.Data.AQI,
		PM25:       payload.Data.IAQI.PM25.V,
		PM10:       payload.Data.IAQI.PM10.V,
		NO2:        payload.Data.IAQI.NO2.V,
		O3:         payload.Data.IAQI.O3.V,
		Source:     providerName,
		RawPayload: body,
	}, nil
}

func classifyFeedError(msg, location string) error {
	switch {
	case strings.Contains(msg, "Unknown station"):
		return fmt.Errorf("%w: %s has no station for %q", domain.ErrInvalidLocation, providerName, location)
	case strings.Contains(msg, "Invalid key"):
		return fmt.Errorf("%w: %s rejected token", domain.ErrMissingCredentials, providerName)
	case strings.Contains(msg, "Over quota"):
		return retry.RateLimited(fmt.Errorf("%s over quota", providerName), 0)
	default:
		return fmt.Errorf("%w: %s feed error: %s", domain.ErrProviderFailure, providerName, msg)
	}
}

// WAQI city feed response. The data field is a string on error and an
// object on success, so it gets a custom unmarshaller.
type response struct {
	Status string `json:"status"`
	Data   data   `json:"data"`
}

type data struct {
	AQI  float64 `json:"aqi"`
	IAQI struct {
		PM25 value `json:"pm25"`
		PM10 value `json:"pm10"`
		NO2  value `json:"no2"`
		O3   value `json:"o3"`
	} `json:"iaqi"`
	Time struct {
		ISO string `json:"iso"`
	} `json:"time"`

	errMessage string
}

type value struct {
	V float64 `json:"v"`
}

func (d *data) UnmarshalJSON(b []byte) error {
	var msg string
	if err := json.Unmarshal(b, &msg); err == nil {
		d.errMessage = msg
		return nil
	}
	type alias data
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*d = data(a)
	return nil
}

func (d data) message() string { return d.errMessage }
