package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// SignalType identifies one of the two independent external signals.
type SignalType string

const (
	SignalWeather    SignalType = "weather"
	SignalAirQuality SignalType = "air_quality"
)

// Signals lists all signal types in refresh order.
var Signals = []SignalType{SignalWeather, SignalAirQuality}

// Valid reports whether s is a known signal type.
func (s SignalType) Valid() bool {
	return s == SignalWeather || s == SignalAirQuality
}

// SourceEstimated tags readings produced by the heuristic estimator rather
// than a provider.
const SourceEstimated = "estimated"

// Reading is one immutable timestamped observation of an external signal.
// Weather and air-quality readings share the struct; the Signal field
// selects which group of value fields is meaningful.
type Reading struct {
	ID         string     `json:"id"`
	Location   string     `json:"location"`
	Signal     SignalType `json:"signal"`
	CapturedAt time.Time  `json:"captured_at"`

	// Air-quality values.
	AQI  float64 `json:"aqi,omitempty"`
	PM25 float64 `json:"pm25,omitempty"`
	PM10 float64 `json:"pm10,omitempty"`
	NO2  float64 `json:"no2,omitempty"`
	O3   float64 `json:"o3,omitempty"`

	// Weather values.
	TemperatureC float64 `json:"temperature_c,omitempty"`
	HumidityPct  float64 `json:"humidity_pct,omitempty"`
	PrecipMM     float64 `json:"precip_mm,omitempty"`
	WindSpeedMS  float64 `json:"wind_speed_ms,omitempty"`
	PressureHPa  float64 `json:"pressure_hpa,omitempty"`

	// Source is the provider name, or SourceEstimated for fallback values.
	Source string `json:"source"`

	// RawPayload is the unmodified provider response, kept for audit.
	RawPayload []byte `json:"-"`
}

// Age returns how old the reading is relative to now.
func (r Reading) Age(now time.Time) time.Duration {
	return now.Sub(r.CapturedAt)
}

// Fresh reports whether the reading is younger than the given threshold.
func (r Reading) Fresh(now time.Time, threshold time.Duration) bool {
	return r.Age(now) < threshold
}

const maxLocationLen = 85 // longest real city name plus margin

// NormalizeLocation canonicalizes a user-supplied location name and
// validates it before any network call is made. The canonical form is
// trimmed, internally single-spaced, and title-cased per word so that
// "new delhi" and "New  Delhi" key the same records.
func NormalizeLocation(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty location", ErrInvalidLocation)
	}
	name := strings.Join(fields, " ")
	if len(name) > maxLocationLen {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidLocation, name, maxLocationLen)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' && r != '.' {
			return "", fmt.Errorf("%w: %q contains invalid character %q", ErrInvalidLocation, name, r)
		}
	}
	return titleCase(name), nil
}

// titleCase upper-cases the first letter of each space- or hyphen-separated
// word. strings.Title is deprecated and Unicode-caser semantics are more
// than city keys need.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		if startOfWord {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		startOfWord = r == ' ' || r == '-'
	}
	return b.String()
}
