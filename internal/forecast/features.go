package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/surge-forecast/internal/domain"
)

// admissionWindow is the lookback for the rolling admission average.
const admissionWindow = 7 * 24 * time.Hour

// AirQualityUnavailable marks feature records built without any
// air-quality reading, real or estimated.
const AirQualityUnavailable = "unavailable"

// ReadingProvider supplies cached-or-refreshed readings.
type ReadingProvider interface {
	GetOrRefresh(ctx context.Context, location string, signal domain.SignalType, force bool) (domain.Reading, error)
}

// AdmissionSource supplies the rolling admission average.
type AdmissionSource interface {
	AdmissionAverage(ctx context.Context, location string, since time.Time) (float64, bool, error)
}

// FeatureBuilder flattens readings, admission statistics, and calendar
// events into the scorer's input. Weather is mandatory; everything else
// degrades to a default.
type FeatureBuilder struct {
	readings   ReadingProvider
	admissions AdmissionSource
	calendar   *Calendar
	clock      clockwork.Clock
	logger     *slog.Logger
	baseline   float64
}

// NewFeatureBuilder creates a FeatureBuilder.
func NewFeatureBuilder(
	readings ReadingProvider,
	admissions AdmissionSource,
	calendar *Calendar,
	clock clockwork.Clock,
	logger *slog.Logger,
	baseline float64,
) *FeatureBuilder {
	return &FeatureBuilder{
		readings:   readings,
		admissions: admissions,
		calendar:   calendar,
		clock:      clock,
		logger:     logger,
		baseline:   baseline,
	}
}

// Build assembles the feature snapshot for a location. The location must
// already be normalized by the reading provider; Build passes it through.
func (b *FeatureBuilder) Build(ctx context.Context, location string) (domain.FeatureRecord, error) {
	now := b.clock.Now().UTC()

	weather, err := b.readings.GetOrRefresh(ctx, location, domain.SignalWeather, false)
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("%w: weather for %s: %v", domain.ErrMissingMandatorySignal, location, err)
	}

	f := domain.FeatureRecord{
		Location:          weather.Location,
		GeneratedAt:       now,
		TemperatureC:      weather.TemperatureC,
		HumidityPct:       weather.HumidityPct,
		PrecipMM:          weather.PrecipMM,
		AdmissionBaseline: b.baseline,
		AirQualitySource:  AirQualityUnavailable,
	}

	// Air quality degrades to absent rather than failing the build; the
	// provider already falls back to stale or estimated values first.
	air, err := b.readings.GetOrRefresh(ctx, location, domain.SignalAirQuality, false)
	if err != nil {
		b.logger.Warn("building features without air quality", "location", location, "error", err)
	} else {
		f.AQI = air.AQI
		f.PM25 = air.PM25
		f.AirQualitySource = air.Source
	}

	avg, ok, err := b.admissions.AdmissionAverage(ctx, f.Location, now.Add(-admissionWindow))
	if err != nil {
		return domain.FeatureRecord{}, fmt.Errorf("admission average for %s: %w", f.Location, err)
	}
	if ok {
		f.AdmissionAvg7d = avg
	} else {
		f.AdmissionAvg7d = b.baseline
	}

	if ev, active := b.calendar.Active(now); active {
		f.FestivalActive = true
		f.FestivalName = ev.Name
		f.FestivalWeight = ev.Weight
	}

	return f, nil
}
