package ingest

import (
	"time"

	"github.com/couchcryptid/surge-forecast/internal/domain"
)

// Estimator tuning. The model is a coarse linear heuristic anchored at a
// moderate urban baseline: heat raises particulate load, rain washes it
// out, stagnant humid air traps it.
const (
	estimateBaselineAQI = 80.0
	estimateMinAQI      = 20.0
	estimateMaxAQI      = 300.0

	aqiPerDegreeAbove20 = 2.0
	aqiPerMMPrecip      = 4.0
	aqiPerHumidityPct   = 0.5
	humidityFloor       = 70.0
)

// estimateAirQuality synthesizes an air-quality reading from a weather
// reading. The result is a stand-in, not a measurement; its Source marks
// it so downstream consumers can weight it accordingly.
func estimateAirQuality(weather domain.Reading, now time.Time) domain.Reading {
	aqi := estimateBaselineAQI
	if weather.TemperatureC > 20 {
		aqi += (weather.TemperatureC - 20) * aqiPerDegreeAbove20
	}
	if weather.HumidityPct > humidityFloor {
		aqi += (weather.HumidityPct - humidityFloor) * aqiPerHumidityPct
	}
	aqi -= weather.PrecipMM * aqiPerMMPrecip

	if aqi < estimateMinAQI {
		aqi = estimateMinAQI
	}
	if aqi > estimateMaxAQI {
		aqi = estimateMaxAQI
	}

	return domain.Reading{
		Location:   weather.Location,
		Signal:     domain.SignalAirQuality,
		CapturedAt: now,
		AQI:        aqi,
		PM25:       aqi * 0.6,
		PM10:       aqi * 0.8,
		Source:     domain.SourceEstimated,
	}
}
