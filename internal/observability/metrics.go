package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// surge forecast pipeline.
type Metrics struct {
	// Provider fetch metrics.
	ProviderFetches    *prometheus.CounterVec   // labels: signal, outcome={success,error}
	ProviderDuration   *prometheus.HistogramVec // labels: signal
	RetryAttempts      *prometheus.CounterVec   // labels: operation
	EstimatedReadings  prometheus.Counter
	CacheLookups       *prometheus.CounterVec // labels: signal, result={hit,miss,stale}
	ReadingsPersisted  *prometheus.CounterVec // labels: signal, source

	// Scheduler metrics.
	SchedulerRuns     prometheus.Counter
	SchedulerFailures prometheus.Counter

	// Synthesis metrics.
	PredictionsCreated   prometheus.Counter
	SynthesisDuration    prometheus.Histogram
	AdvisoryDegradations prometheus.Counter
	OutbreakMerges       *prometheus.CounterVec // labels: action={created,merged,purged}

	// Event publishing.
	EventsPublished *prometheus.CounterVec // labels: topic, outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := build()
	prometheus.MustRegister(
		m.ProviderFetches,
		m.ProviderDuration,
		m.RetryAttempts,
		m.EstimatedReadings,
		m.CacheLookups,
		m.ReadingsPersisted,
		m.SchedulerRuns,
		m.SchedulerFailures,
		m.PredictionsCreated,
		m.SynthesisDuration,
		m.AdvisoryDegradations,
		m.OutbreakMerges,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return build()
}

func build() *Metrics {
	return &Metrics{
		ProviderFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "provider_fetches_total",
			Help:      "External provider fetches by signal and outcome.",
		}, []string{"signal", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "surge",
			Name:      "provider_fetch_duration_seconds",
			Help:      "Provider fetch duration including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"signal"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "retry_attempts_total",
			Help:      "Retries performed by the resilient call executor.",
		}, []string{"operation"}),
		EstimatedReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "estimated_readings_total",
			Help:      "Air-quality readings synthesized by the heuristic estimator.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "reading_cache_lookups_total",
			Help:      "Freshness cache lookups by signal and result.",
		}, []string{"signal", "result"}),
		ReadingsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "readings_persisted_total",
			Help:      "Readings appended to the store by signal and source.",
		}, []string{"signal", "source"}),
		SchedulerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "scheduler_runs_total",
			Help:      "Completed scheduled refresh sweeps.",
		}),
		SchedulerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "scheduler_branch_failures_total",
			Help:      "Failed (location, signal) branches across scheduled sweeps.",
		}),
		PredictionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "predictions_created_total",
			Help:      "Predictions persisted by the assembler.",
		}),
		SynthesisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "surge",
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of a complete prediction synthesis run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		AdvisoryDegradations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "advisory_degradations_total",
			Help:      "Advisory responses that fell back to the degraded form.",
		}),
		OutbreakMerges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "outbreak_reconciliations_total",
			Help:      "Outbreak reconciliation outcomes by action.",
		}, []string{"action"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "surge",
			Name:      "events_published_total",
			Help:      "Kafka event publications by topic and outcome.",
		}, []string{"topic", "outcome"}),
	}
}
