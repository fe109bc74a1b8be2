// Package reasoning adapts an OpenAI-compatible chat-completions endpoint
// into the advisory synthesizer's fixed-schema contract.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

const systemPrompt = `You are a hospital surge-planning assistant. Given a JSON ` +
	`feature snapshot (environmental signals, admission statistics, calendar ` +
	`events) and a precomputed risk score from 0 to 100, respond with a single ` +
	`JSON object with exactly these keys: summary, staffing_plan, supply_plan, ` +
	`suggested_actions (array), suggested_medicines (array), suggested_diseases ` +
	`(array), weather_impact, air_quality_impact, confidence (low|medium|high), ` +
	`outbreaks (array of {disease, active_cases, new_cases, severity, ` +
	`transmission_rate, affected_groups, medicines, rationale}). Use generic ` +
	`medicine names. Report only outbreaks the signals plausibly support; an ` +
	`empty array is a valid answer.`

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a reasoning-service client.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock,
		logger:     logger,
	}
}

// Synthesize sends the feature context and returns the advisory variant.
// A non-conforming response yields Degraded, never an error; errors mean
// the service itself could not be reached or refused the call.
func (c *Client) Synthesize(ctx context.Context, req Request) (Advisory, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: REASONING_API_KEY is not configured", domain.ErrMissingCredentials)
	}

	userContext, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal reasoning context: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userContext)},
		},
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, retry.Transport(fmt.Errorf("reasoning request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transport(fmt.Errorf("read reasoning response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: reasoning service rejected API key (status %d)", domain.ErrMissingCredentials, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.RateLimited(
			fmt.Errorf("reasoning service rate limited (status %d)", resp.StatusCode),
			retry.RetryAfterHint(resp, c.clock.Now()),
		)
	case resp.StatusCode >= 500:
		return nil, retry.ServerError(fmt.Errorf("reasoning service error (status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: reasoning service status %d: %s", domain.ErrProviderFailure, resp.StatusCode, respBody)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("%w: decode chat response: %v", domain.ErrProviderFailure, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: chat response has no choices", domain.ErrProviderFailure)
	}

	return parseAdvisory(chat.Choices[0].Message.Content), nil
}

// parseAdvisory attempts to read the model output as the fixed schema.
// Anything that does not conform becomes a Degraded advisory carrying the
// raw text.
func parseAdvisory(content string) Advisory {
	text := stripFences(content)

	var p Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil || p.Summary == "" {
		return Degraded{RawText: strings.TrimSpace(content)}
	}
	return Structured{Payload: p}
}

// stripFences removes a markdown code fence the model may wrap the JSON
// in despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
