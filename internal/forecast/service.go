// Package forecast turns stored signals into surge predictions: feature
// assembly, deterministic risk scoring, advisory synthesis, and outbreak
// reconciliation.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/observability"
)

// Affected-count model: the configured baseline inflated by the risk
// score, plus a share of the active outbreak caseload.
const (
	affectedScoreFactor    = 0.5
	affectedOutbreakWeight = 0.3
)

// PredictionStore is the persistence surface the service needs.
type PredictionStore interface {
	InsertPrediction(ctx context.Context, p domain.Prediction) (domain.Prediction, error)
	LatestPrediction(ctx context.Context, location string) (domain.Prediction, error)
	PredictionHistory(ctx context.Context, location string, since time.Time) ([]domain.Prediction, error)
}

// PredictionPublisher announces persisted predictions.
type PredictionPublisher interface {
	PredictionCreated(ctx context.Context, prediction domain.Prediction) error
}

// Service is the prediction surface: it assembles features, scores them,
// synthesizes the advisory, reconciles outbreaks, and persists the
// result.
type Service struct {
	features   *FeatureBuilder
	synth      *Synthesizer
	reconciler *Reconciler
	store      PredictionStore
	publisher  PredictionPublisher
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	maxAge   time.Duration
	baseline float64
}

// NewService creates the prediction service.
func NewService(
	features *FeatureBuilder,
	synth *Synthesizer,
	reconciler *Reconciler,
	store PredictionStore,
	publisher PredictionPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	maxAge time.Duration,
	baseline float64,
) *Service {
	return &Service{
		features:   features,
		synth:      synth,
		reconciler: reconciler,
		store:      store,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		maxAge:     maxAge,
		baseline:   baseline,
	}
}

// Predict runs one full synthesis for a location and persists the
// result. A degraded advisory still yields a persisted prediction; only
// a missing mandatory signal or a storage failure aborts.
func (s *Service) Predict(ctx context.Context, location string) (domain.Prediction, error) {
	loc, err := domain.NormalizeLocation(location)
	if err != nil {
		return domain.Prediction{}, err
	}

	start := s.clock.Now()
	defer func() {
		s.metrics.SynthesisDuration.Observe(s.clock.Since(start).Seconds())
	}()

	features, err := s.features.Build(ctx, loc)
	if err != nil {
		return domain.Prediction{}, err
	}

	score, factors := Score(features)

	active, err := s.reconciler.Active(ctx, loc)
	if err != nil {
		return domain.Prediction{}, err
	}

	adv := s.synth.Advise(ctx, features, score, active)

	outbreaks, err := s.reconciler.Reconcile(ctx, loc, score, features, adv)
	if err != nil {
		return domain.Prediction{}, err
	}

	prediction := assemble(loc, features, score, factors, adv, outbreaks, s.baseline)

	stored, err := s.store.InsertPrediction(ctx, prediction)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("persist prediction for %s: %w", loc, err)
	}
	s.metrics.PredictionsCreated.Inc()

	if err := s.publisher.PredictionCreated(ctx, stored); err != nil {
		s.logger.Error("prediction event publish failed", "location", loc, "error", err)
	}

	s.logger.Info("prediction created",
		"location", loc,
		"risk_score", stored.RiskScore,
		"confidence", stored.Confidence,
		"degraded", stored.AdvisoryDegraded,
		"active_outbreaks", len(stored.ActiveOutbreaks),
	)
	return stored, nil
}

// Latest returns the newest prediction for a location, regenerating it
// when none exists or the stored one has aged past the limit.
func (s *Service) Latest(ctx context.Context, location string) (domain.Prediction, error) {
	loc, err := domain.NormalizeLocation(location)
	if err != nil {
		return domain.Prediction{}, err
	}

	p, err := s.store.LatestPrediction(ctx, loc)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.Predict(ctx, loc)
	case err != nil:
		return domain.Prediction{}, err
	}

	if s.clock.Now().Sub(p.GeneratedAt) > s.maxAge {
		s.logger.Info("stored prediction expired, regenerating",
			"location", loc,
			"generated_at", p.GeneratedAt,
		)
		return s.Predict(ctx, loc)
	}
	return p, nil
}

// History returns stored predictions generated at or after since,
// ascending.
func (s *Service) History(ctx context.Context, location string, since time.Time) ([]domain.Prediction, error) {
	loc, err := domain.NormalizeLocation(location)
	if err != nil {
		return nil, err
	}
	return s.store.PredictionHistory(ctx, loc, since)
}

// assemble folds the pipeline outputs into one immutable prediction.
func assemble(
	loc string,
	features domain.FeatureRecord,
	score int,
	factors []domain.Factor,
	adv AdvisoryResult,
	outbreaks []domain.OutbreakRecord,
	baseline float64,
) domain.Prediction {
	confidence := adv.Confidence
	if adv.Degraded {
		confidence = domain.ConfidenceLow
	}

	return domain.Prediction{
		Location:          loc,
		GeneratedAt:       features.GeneratedAt,
		RiskScore:         score,
		EstimatedAffected: estimateAffected(baseline, score, outbreaks),
		EngineVersion:     EngineVersion,
		Features:          features,
		Summary:           adv.Summary,
		StaffingAdvice:    adv.StaffingAdvice,
		SupplyAdvice:      adv.SupplyAdvice,
		Actions:           adv.Actions,
		TopFactors:        factors,
		WeatherImpact:     adv.WeatherImpact,
		AirQualityImpact:  adv.AirQualityImpact,
		Diseases:          adv.Diseases,
		Medicines:         collectMedicines(adv.Medicines, outbreaks),
		Confidence:        confidence,
		AdvisoryDegraded:  adv.Degraded,
		ActiveOutbreaks:   outbreaks,
	}
}

// estimateAffected sizes the expected additional caseload. It never
// drops below the configured baseline.
func estimateAffected(baseline float64, score int, outbreaks []domain.OutbreakRecord) int {
	totalActive := 0
	for _, o := range outbreaks {
		totalActive += o.ActiveCases
	}
	estimated := baseline*(1+float64(score)/100*affectedScoreFactor) + affectedOutbreakWeight*float64(totalActive)
	if estimated < baseline {
		estimated = baseline
	}
	return int(estimated)
}

// collectMedicines unions advisory and outbreak medicine lists, sorted
// and deduplicated.
func collectMedicines(advisory []string, outbreaks []domain.OutbreakRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if n == "" {
				continue
			}
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	add(advisory)
	for _, o := range outbreaks {
		add(o.Medicines)
	}
	sort.Strings(out)
	return out
}
