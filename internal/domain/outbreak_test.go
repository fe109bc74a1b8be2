package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func baseOutbreak() OutbreakRecord {
	return OutbreakRecord{
		ID:          "ob-1",
		Location:    "Mumbai",
		Disease:     "Influenza",
		ObservedAt:  time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		ActiveCases: 50,
		NewCases:    12,
		Severity:    SeverityModerate,
		Medicines:   []string{"oseltamivir", "paracetamol"},
		Source:      OutbreakSourceReasoning,
	}
}

func TestMerge_CountsTakeMax(t *testing.T) {
	existing := baseOutbreak()
	update := OutbreakRecord{
		Location:    "Mumbai",
		Disease:     "Influenza",
		ObservedAt:  existing.ObservedAt.Add(3 * time.Hour),
		ActiveCases: 80,
		NewCases:    5,
		Source:      OutbreakSourceReasoning,
	}

	merged := existing.Merge(update)

	assert.Equal(t, 80, merged.ActiveCases, "max, not sum")
	assert.Equal(t, 12, merged.NewCases, "existing higher value kept")
	assert.Equal(t, update.ObservedAt, merged.ObservedAt)
}

func TestMerge_Idempotent(t *testing.T) {
	existing := baseOutbreak()
	update := OutbreakRecord{
		Disease:     "Influenza",
		ActiveCases: 80,
		Severity:    SeverityHigh,
		Medicines:   []string{"oseltamivir", "ibuprofen"},
	}

	once := existing.Merge(update)
	twice := once.Merge(update)

	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"ibuprofen", "oseltamivir", "paracetamol"}, once.Medicines)
}

func TestMerge_SeverityAndRateTakeNewWhenProvided(t *testing.T) {
	existing := baseOutbreak()
	existing.TransmissionRate = 1.2

	merged := existing.Merge(OutbreakRecord{Severity: SeverityCritical, TransmissionRate: 1.8})
	assert.Equal(t, SeverityCritical, merged.Severity)
	assert.InDelta(t, 1.8, merged.TransmissionRate, 1e-9)

	// An update that provides neither leaves both untouched.
	merged = merged.Merge(OutbreakRecord{ActiveCases: 90})
	assert.Equal(t, SeverityCritical, merged.Severity)
	assert.InDelta(t, 1.8, merged.TransmissionRate, 1e-9)
}

func TestMerge_ReasoningUpgradesFallback(t *testing.T) {
	existing := baseOutbreak()
	existing.Source = OutbreakSourceFallback

	merged := existing.Merge(OutbreakRecord{Source: OutbreakSourceReasoning})
	assert.Equal(t, OutbreakSourceReasoning, merged.Source)

	// A later fallback observation does not downgrade it.
	merged = merged.Merge(OutbreakRecord{Source: OutbreakSourceFallback})
	assert.Equal(t, OutbreakSourceReasoning, merged.Source)
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, ParseSeverity("high"))
	assert.Equal(t, SeverityLow, ParseSeverity("catastrophic"))
	assert.Equal(t, SeverityLow, ParseSeverity(""))
}
