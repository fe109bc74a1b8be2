package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/surge-forecast/internal/adapter/reasoning"
	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/observability"
)

// Case-count scaling for observations that arrive without counts.
const (
	activeCasesPerPoint = 10
	newCasesPerPoint    = 2
)

// OutbreakStore is the persistence surface the reconciler needs.
type OutbreakStore interface {
	UpsertOutbreak(ctx context.Context, rec domain.OutbreakRecord, dedupWindow time.Duration) (domain.OutbreakRecord, bool, error)
	ActiveOutbreaks(ctx context.Context, location string, since time.Time) ([]domain.OutbreakRecord, error)
	PurgeStaleFallbackOutbreaks(ctx context.Context, location string, before time.Time) (int64, error)
}

// Reconciler folds advisory outbreak observations into the outbreak
// ledger. Below the risk threshold it only reports what is already
// active; above it, structured detections merge in and a degraded
// advisory yields one heuristic fallback record so high-risk periods are
// never silently outbreak-free.
type Reconciler struct {
	store   OutbreakStore
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	threshold    int
	dedupWindow  time.Duration
	activeWindow time.Duration
	purgeHorizon time.Duration
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	store OutbreakStore,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	threshold int,
	dedupWindow, activeWindow, purgeHorizon time.Duration,
) *Reconciler {
	return &Reconciler{
		store:        store,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
		threshold:    threshold,
		dedupWindow:  dedupWindow,
		activeWindow: activeWindow,
		purgeHorizon: purgeHorizon,
	}
}

// Active returns the outbreaks currently inside the active window.
func (r *Reconciler) Active(ctx context.Context, location string) ([]domain.OutbreakRecord, error) {
	since := r.clock.Now().UTC().Add(-r.activeWindow)
	return r.store.ActiveOutbreaks(ctx, location, since)
}

// Reconcile applies the advisory's outbreak view for one location and
// returns the resulting active set.
func (r *Reconciler) Reconcile(ctx context.Context, location string, score int, features domain.FeatureRecord, adv AdvisoryResult) ([]domain.OutbreakRecord, error) {
	now := r.clock.Now().UTC()

	if score >= r.threshold {
		if err := r.apply(ctx, location, score, now, features, adv); err != nil {
			return nil, err
		}
	}

	return r.store.ActiveOutbreaks(ctx, location, now.Add(-r.activeWindow))
}

func (r *Reconciler) apply(ctx context.Context, location string, score int, now time.Time, features domain.FeatureRecord, adv AdvisoryResult) error {
	if adv.Degraded {
		return r.upsert(ctx, fallbackRecord(location, score, now, features))
	}

	if len(adv.Detections) == 0 {
		// The advisory saw no outbreaks; drop fallback records that were
		// never corroborated once they age past the horizon.
		purged, err := r.store.PurgeStaleFallbackOutbreaks(ctx, location, now.Add(-r.purgeHorizon))
		if err != nil {
			return fmt.Errorf("purge stale outbreaks for %s: %w", location, err)
		}
		if purged > 0 {
			r.metrics.OutbreakMerges.WithLabelValues("purged").Add(float64(purged))
			r.logger.Info("purged uncorroborated fallback outbreaks", "location", location, "count", purged)
		}
		return nil
	}

	for _, det := range adv.Detections {
		if det.Disease == "" {
			continue
		}
		if err := r.upsert(ctx, detectionRecord(location, score, now, det)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) upsert(ctx context.Context, rec domain.OutbreakRecord) error {
	stored, merged, err := r.store.UpsertOutbreak(ctx, rec, r.dedupWindow)
	if err != nil {
		return fmt.Errorf("upsert outbreak %s/%s: %w", rec.Location, rec.Disease, err)
	}

	action := "created"
	if merged {
		action = "merged"
	}
	r.metrics.OutbreakMerges.WithLabelValues(action).Inc()
	r.logger.Info("outbreak reconciled",
		"location", stored.Location,
		"disease", stored.Disease,
		"action", action,
		"active_cases", stored.ActiveCases,
		"severity", stored.Severity,
	)
	return nil
}

// detectionRecord converts a structured advisory detection into an
// outbreak record, scaling missing counts from the risk score.
func detectionRecord(location string, score int, now time.Time, det reasoning.OutbreakDetection) domain.OutbreakRecord {
	active := det.ActiveCases
	if active <= 0 {
		active = score * activeCasesPerPoint
	}
	newCases := det.NewCases
	if newCases < 0 {
		newCases = 0
	}
	return domain.OutbreakRecord{
		Location:         location,
		Disease:          det.Disease,
		ObservedAt:       now,
		ActiveCases:      active,
		NewCases:         newCases,
		Severity:         domain.ParseSeverity(det.Severity),
		TransmissionRate: det.TransmissionRate,
		AffectedGroups:   det.AffectedGroups,
		Medicines:        det.Medicines,
		Rationale:        det.Rationale,
		Source:           domain.OutbreakSourceReasoning,
	}
}

// fallbackRecord derives a heuristic outbreak from the dominant
// environmental driver when the advisory degraded above threshold.
func fallbackRecord(location string, score int, now time.Time, features domain.FeatureRecord) domain.OutbreakRecord {
	disease := "Seasonal Influenza"
	medicines := []string{"antipyretics", "oral rehydration salts"}
	groups := []string{"children", "elderly"}
	rationale := "heuristic fallback: elevated risk score without a structured advisory"

	switch {
	case features.AQI > aqiHighThreshold:
		disease = "Respiratory Illness"
		medicines = []string{"bronchodilators", "antihistamines"}
		groups = []string{"children", "elderly", "asthmatic patients"}
		rationale = "heuristic fallback: sustained poor air quality"
	case features.TemperatureC > heatThresholdC:
		disease = "Heat-Related Illness"
		medicines = []string{"oral rehydration salts", "intravenous fluids"}
		groups = []string{"outdoor workers", "elderly"}
		rationale = "heuristic fallback: extreme heat"
	case features.PrecipMM > precipThresholdMM:
		disease = "Water-Borne Illness"
		medicines = []string{"oral rehydration salts", "antibiotics"}
		groups = []string{"children"}
		rationale = "heuristic fallback: heavy precipitation"
	}

	severity := domain.SeverityLow
	switch {
	case score >= 70:
		severity = domain.SeverityHigh
	case score >= 40:
		severity = domain.SeverityModerate
	}

	return domain.OutbreakRecord{
		Location:       location,
		Disease:        disease,
		ObservedAt:     now,
		ActiveCases:    score * activeCasesPerPoint,
		NewCases:       score * newCasesPerPoint,
		Severity:       severity,
		AffectedGroups: groups,
		Medicines:      medicines,
		Rationale:      rationale,
		Source:         domain.OutbreakSourceFallback,
	}
}
