package reasoning

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     "test-key",
		model:      "test-model",
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		clock:      clockwork.NewFakeClock(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func chatReply(t *testing.T, content string) string {
	t.Helper()
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, err := json.Marshal(reply)
	require.NoError(t, err)
	return string(b)
}

const conformingPayload = `{
	"summary": "Elevated respiratory load expected",
	"staffing_plan": "Add two pulmonology shifts",
	"supply_plan": "Stock nebulizers and oxygen",
	"suggested_actions": ["issue smog advisory"],
	"suggested_medicines": ["salbutamol"],
	"suggested_diseases": ["asthma exacerbation"],
	"weather_impact": "Heat compounds dehydration risk",
	"air_quality_impact": "PM2.5 drives respiratory admissions",
	"confidence": "medium",
	"outbreaks": [{"disease": "Influenza", "active_cases": 50, "severity": "moderate", "medicines": ["oseltamivir"]}]
}`

func TestSynthesize_Structured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, `"risk_score":45`)

		io.WriteString(w, chatReply(t, conformingPayload))
	}))
	defer srv.Close()

	adv, err := testClient(srv.URL).Synthesize(context.Background(), Request{
		Features:  domain.FeatureRecord{Location: "Delhi", AQI: 180},
		RiskScore: 45,
	})
	require.NoError(t, err)

	structured, ok := adv.(Structured)
	require.True(t, ok, "conforming response must be Structured")
	assert.Equal(t, "Elevated respiratory load expected", structured.Payload.Summary)
	assert.Equal(t, []string{"salbutamol"}, structured.Payload.SuggestedMedicines)
	require.Len(t, structured.Payload.Outbreaks, 1)
	assert.Equal(t, "Influenza", structured.Payload.Outbreaks[0].Disease)
}

func TestSynthesize_FencedJSONStillStructured(t *testing.T) {
	fenced := "```json\n" + conformingPayload + "\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, chatReply(t, fenced))
	}))
	defer srv.Close()

	adv, err := testClient(srv.URL).Synthesize(context.Background(), Request{RiskScore: 45})
	require.NoError(t, err)
	_, ok := adv.(Structured)
	assert.True(t, ok)
}

func TestSynthesize_MalformedBecomesDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, chatReply(t, "Expect a mild uptick in respiratory cases this week."))
	}))
	defer srv.Close()

	adv, err := testClient(srv.URL).Synthesize(context.Background(), Request{RiskScore: 45})
	require.NoError(t, err, "a parse failure is not a hard error")

	degraded, ok := adv.(Degraded)
	require.True(t, ok)
	assert.Equal(t, "Expect a mild uptick in respiratory cases this week.", degraded.RawText)
}

func TestSynthesize_MissingSummaryBecomesDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, chatReply(t, `{"staffing_plan": "add staff"}`))
	}))
	defer srv.Close()

	adv, err := testClient(srv.URL).Synthesize(context.Background(), Request{})
	require.NoError(t, err)
	_, ok := adv.(Degraded)
	assert.True(t, ok, "valid JSON without the required summary is still non-conforming")
}

func TestSynthesize_MissingKey(t *testing.T) {
	c := testClient("http://unused")
	c.apiKey = ""

	_, err := c.Synthesize(context.Background(), Request{})
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestSynthesize_RateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Synthesize(context.Background(), Request{})

	var te *retry.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, retry.ReasonRateLimited, te.Reason)
	assert.Equal(t, 12*time.Second, te.RetryAfter)
}

func TestSynthesize_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Synthesize(context.Background(), Request{})

	var te *retry.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, retry.ReasonServerError, te.Reason)
}
