package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "nested", "surge.db"))
	require.NoError(t, err, "Open must create the parent directory itself")
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)

func weatherReading(loc string, at time.Time) domain.Reading {
	return domain.Reading{
		Location:     loc,
		Signal:       domain.SignalWeather,
		CapturedAt:   at,
		TemperatureC: 31.5,
		HumidityPct:  72,
		PrecipMM:     1.2,
		Source:       "openweathermap",
		RawPayload:   []byte(`{"main":{"temp":31.5}}`),
	}
}

func TestReadings_LatestIsMaxTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Insert out of order: latest must be resolved by timestamp, not by
	// write order.
	_, err := s.InsertReading(ctx, weatherReading("Delhi", baseTime.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = s.InsertReading(ctx, weatherReading("Delhi", baseTime))
	require.NoError(t, err)

	got, err := s.LatestReading(ctx, "Delhi", domain.SignalWeather)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(2*time.Hour), got.CapturedAt)
	assert.Equal(t, []byte(`{"main":{"temp":31.5}}`), got.RawPayload)
}

func TestReadings_LatestNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LatestReading(context.Background(), "Delhi", domain.SignalAirQuality)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReadings_SignalsIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertReading(ctx, weatherReading("Delhi", baseTime))
	require.NoError(t, err)

	_, err = s.LatestReading(ctx, "Delhi", domain.SignalAirQuality)
	assert.ErrorIs(t, err, domain.ErrNotFound, "weather reading must not satisfy an air-quality lookup")
}

func TestReadings_HistoryAscendingSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, offset := range []time.Duration{48 * time.Hour, 0, 24 * time.Hour} {
		_, err := s.InsertReading(ctx, weatherReading("Delhi", baseTime.Add(-offset)))
		require.NoError(t, err)
	}

	history, err := s.ReadingHistory(ctx, "Delhi", domain.SignalWeather, baseTime.Add(-30*time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].CapturedAt.Before(history[1].CapturedAt), "ascending order")
}

func TestPredictions_LatestAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := domain.Prediction{
		Location:      "Mumbai",
		GeneratedAt:   baseTime,
		RiskScore:     45,
		EngineVersion: "surge-engine/1.2",
		Features:      domain.FeatureRecord{Location: "Mumbai", AQI: 180},
		Medicines:     []string{"salbutamol"},
	}
	newer := older
	newer.GeneratedAt = baseTime.Add(6 * time.Hour)
	newer.RiskScore = 60

	stored, err := s.InsertPrediction(ctx, older)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	_, err = s.InsertPrediction(ctx, newer)
	require.NoError(t, err)

	latest, err := s.LatestPrediction(ctx, "Mumbai")
	require.NoError(t, err)
	assert.Equal(t, 60, latest.RiskScore)
	assert.Equal(t, "Mumbai", latest.Features.Location)
	assert.InDelta(t, 180.0, latest.Features.AQI, 1e-9, "feature snapshot round-trips")

	history, err := s.PredictionHistory(ctx, "Mumbai", baseTime.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 45, history[0].RiskScore)
	assert.Equal(t, 60, history[1].RiskScore)

	_, err = s.LatestPrediction(ctx, "Delhi")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOutbreaks_UpsertMergesWithinWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := domain.OutbreakRecord{
		Location:    "Mumbai",
		Disease:     "Influenza",
		ObservedAt:  baseTime,
		ActiveCases: 50,
		Severity:    domain.SeverityModerate,
		Medicines:   []string{"oseltamivir"},
		Source:      domain.OutbreakSourceReasoning,
	}
	stored, merged, err := s.UpsertOutbreak(ctx, first, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.NotEmpty(t, stored.ID)

	second := first
	second.ObservedAt = baseTime.Add(3 * time.Hour)
	second.ActiveCases = 80
	second.Medicines = []string{"paracetamol"}

	stored2, merged, err := s.UpsertOutbreak(ctx, second, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, stored.ID, stored2.ID, "one current record per (location, disease)")
	assert.Equal(t, 80, stored2.ActiveCases, "max, not 130")
	assert.Equal(t, []string{"oseltamivir", "paracetamol"}, stored2.Medicines)

	active, err := s.ActiveOutbreaks(ctx, "Mumbai", baseTime.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 80, active[0].ActiveCases)
}

func TestOutbreaks_NewRecordOutsideWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := domain.OutbreakRecord{
		Location: "Mumbai", Disease: "Dengue", ObservedAt: baseTime,
		ActiveCases: 20, Severity: domain.SeverityLow, Source: domain.OutbreakSourceReasoning,
	}
	_, _, err := s.UpsertOutbreak(ctx, first, 24*time.Hour)
	require.NoError(t, err)

	later := first
	later.ObservedAt = baseTime.Add(48 * time.Hour)
	later.ActiveCases = 5

	_, merged, err := s.UpsertOutbreak(ctx, later, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, merged, "observation outside the dedup window starts a new record")

	// The newer record wins the active lookup even with fewer cases.
	active, err := s.ActiveOutbreaks(ctx, "Mumbai", baseTime.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 5, active[0].ActiveCases)
}

func TestOutbreaks_PurgeOnlyStaleFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	oldFallback := domain.OutbreakRecord{
		Location: "Delhi", Disease: "Heat Stress", ObservedAt: baseTime.Add(-10 * 24 * time.Hour),
		Severity: domain.SeverityLow, Source: domain.OutbreakSourceFallback,
	}
	oldAuthoritative := domain.OutbreakRecord{
		Location: "Delhi", Disease: "Cholera", ObservedAt: baseTime.Add(-10 * 24 * time.Hour),
		Severity: domain.SeverityHigh, Source: domain.OutbreakSourceReasoning,
	}
	_, _, err := s.UpsertOutbreak(ctx, oldFallback, 24*time.Hour)
	require.NoError(t, err)
	_, _, err = s.UpsertOutbreak(ctx, oldAuthoritative, 24*time.Hour)
	require.NoError(t, err)

	purged, err := s.PurgeStaleFallbackOutbreaks(ctx, "Delhi", baseTime.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	remaining, err := s.ActiveOutbreaks(ctx, "Delhi", baseTime.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Cholera", remaining[0].Disease)
}

func TestAdmissions_Average(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, count := range []int{100, 110, 120} {
		day := baseTime.AddDate(0, 0, -i)
		require.NoError(t, s.RecordAdmissions(ctx, "Delhi", day, count))
	}

	avg, ok, err := s.AdmissionAverage(ctx, "Delhi", baseTime.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 110.0, avg, 1e-9)

	_, ok, err = s.AdmissionAverage(ctx, "Mumbai", baseTime.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.False(t, ok, "no history means ok=false, not zero average")
}

func TestAdmissions_UpsertReplacesDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAdmissions(ctx, "Delhi", baseTime, 100))
	require.NoError(t, s.RecordAdmissions(ctx, "Delhi", baseTime, 140))

	avg, ok, err := s.AdmissionAverage(ctx, "Delhi", baseTime.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 140.0, avg, 1e-9)
}
