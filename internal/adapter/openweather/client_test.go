package openweather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

const testKey = "test-api-key"

func testClient(baseURL string, clock clockwork.Clock) *Client {
	return &Client{
		apiKey:     testKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: providerName,
		}),
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Delhi", r.URL.Query().Get("q"))
		assert.Equal(t, testKey, r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"dt": 1787896800,
			"main": {"temp": 38.2, "humidity": 41, "pressure": 1002},
			"wind": {"speed": 3.4},
			"rain": {"1h": 0.6}
		}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL, clockwork.NewFakeClock())
	reading, err := c.Fetch(context.Background(), "Delhi")
	require.NoError(t, err)

	assert.Equal(t, domain.SignalWeather, reading.Signal)
	assert.Equal(t, "Delhi", reading.Location)
	assert.InDelta(t, 38.2, reading.TemperatureC, 1e-9)
	assert.InDelta(t, 41.0, reading.HumidityPct, 1e-9)
	assert.InDelta(t, 0.6, reading.PrecipMM, 1e-9)
	assert.Equal(t, providerName, reading.Source)
	assert.Equal(t, time.Unix(1787896800, 0).UTC(), reading.CapturedAt)
	assert.NotEmpty(t, reading.RawPayload, "raw payload kept for audit")
}

func TestFetch_MissingKey(t *testing.T) {
	c := testClient("http://unused", clockwork.NewFakeClock())
	c.apiKey = ""

	_, err := c.Fetch(context.Background(), "Delhi")
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestFetch_StatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantIs     error
		wantReason retry.Reason
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantIs: domain.ErrMissingCredentials},
		{name: "unknown city", status: http.StatusNotFound, wantIs: domain.ErrInvalidLocation},
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "7", wantReason: retry.ReasonRateLimited},
		{name: "server error", status: http.StatusBadGateway, wantReason: retry.ReasonServerError},
		{name: "teapot", status: http.StatusTeapot, wantIs: domain.ErrProviderFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := testClient(srv.URL, clockwork.NewFakeClock())
			_, err := c.Fetch(context.Background(), "Delhi")
			require.Error(t, err)

			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
				var te *retry.TransientError
				assert.False(t, errors.As(err, &te), "must not be retryable")
				return
			}

			var te *retry.TransientError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantReason, te.Reason)
			if tt.retryAfter != "" {
				assert.Equal(t, 7*time.Second, te.RetryAfter)
			}
		})
	}
}

func TestFetch_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused

	c := testClient(srv.URL, clockwork.NewFakeClock())
	_, err := c.Fetch(context.Background(), "Delhi")

	var te *retry.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, retry.ReasonTransport, te.Reason)
}

func TestFetch_MissingTimestampUsesClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"main": {"temp": 20}}`)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	c := testClient(srv.URL, clock)

	reading, err := c.Fetch(context.Background(), "Delhi")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UTC(), reading.CapturedAt)
}
