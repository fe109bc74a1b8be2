package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/surge-forecast/internal/adapter/reasoning"
	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/observability"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

// ReasoningClient produces an advisory from the feature context.
type ReasoningClient interface {
	Synthesize(ctx context.Context, req reasoning.Request) (reasoning.Advisory, error)
}

// AdvisoryResult is the normalized advisory, structured or degraded,
// that flows into the assembled prediction.
type AdvisoryResult struct {
	Summary          string
	StaffingAdvice   string
	SupplyAdvice     string
	Actions          []string
	Medicines        []string
	Diseases         []string
	WeatherImpact    string
	AirQualityImpact string
	Confidence       string
	Degraded         bool

	// Detections carries the structured outbreak observations for the
	// reconciler; empty on a degraded advisory.
	Detections []reasoning.OutbreakDetection
}

// Synthesizer calls the reasoning service through the retry executor and
// normalizes whatever comes back. It never fails the prediction: a hard
// service failure degrades the advisory instead.
type Synthesizer struct {
	client  ReasoningClient
	exec    *retry.Executor
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(client ReasoningClient, exec *retry.Executor, logger *slog.Logger, metrics *observability.Metrics) *Synthesizer {
	return &Synthesizer{client: client, exec: exec, logger: logger, metrics: metrics}
}

// Advise produces an advisory for the scored feature snapshot.
func (s *Synthesizer) Advise(ctx context.Context, features domain.FeatureRecord, score int, active []domain.OutbreakRecord) AdvisoryResult {
	advisory, err := retry.Do(ctx, s.exec, "synthesize_advisory", func(ctx context.Context) (reasoning.Advisory, error) {
		return s.client.Synthesize(ctx, reasoning.Request{
			Features:        features,
			RiskScore:       score,
			ActiveOutbreaks: active,
		})
	})
	if err != nil {
		s.logger.Error("advisory synthesis failed, degrading",
			"location", features.Location,
			"error", err,
		)
		return s.degraded(fmt.Sprintf(
			"Risk score %d for %s. Advisory service unavailable; apply standard surge protocols.",
			score, features.Location,
		))
	}

	switch adv := advisory.(type) {
	case reasoning.Structured:
		return AdvisoryResult{
			Summary:          adv.Payload.Summary,
			StaffingAdvice:   adv.Payload.StaffingPlan,
			SupplyAdvice:     adv.Payload.SupplyPlan,
			Actions:          adv.Payload.SuggestedActions,
			Medicines:        adv.Payload.SuggestedMedicines,
			Diseases:         adv.Payload.SuggestedDiseases,
			WeatherImpact:    adv.Payload.WeatherImpact,
			AirQualityImpact: adv.Payload.AirQualityImpact,
			Confidence:       normalizeConfidence(adv.Payload.Confidence),
			Detections:       adv.Payload.Outbreaks,
		}
	case reasoning.Degraded:
		s.logger.Warn("advisory response did not conform, degrading", "location", features.Location)
		return s.degraded(adv.RawText)
	default:
		return s.degraded("")
	}
}

func (s *Synthesizer) degraded(summary string) AdvisoryResult {
	s.metrics.AdvisoryDegradations.Inc()
	if summary == "" {
		summary = "Advisory unavailable; apply standard surge protocols."
	}
	return AdvisoryResult{
		Summary:    summary,
		Confidence: domain.ConfidenceLow,
		Degraded:   true,
	}
}

// normalizeConfidence maps free-form confidence text to a known tier,
// defaulting to medium.
func normalizeConfidence(c string) string {
	switch c {
	case domain.ConfidenceLow, domain.ConfidenceMedium, domain.ConfidenceHigh:
		return c
	default:
		return domain.ConfidenceMedium
	}
}
