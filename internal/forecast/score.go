package forecast

import (
	"sort"

	"github.com/couchcryptid/surge-forecast/internal/domain"
)

// EngineVersion tags every prediction with the scoring rules that
// produced it. Bump when the rule table changes.
const EngineVersion = "surge-engine/1.2"

// Scoring rule table. Contributions are additive over a seasonal
// baseline and the total clamps to [0, 100].
const (
	baseContribution = 20

	aqiSevereThreshold   = 150.0
	aqiHighThreshold     = 100.0
	aqiModerateThreshold = 50.0
	aqiSeverePoints      = 25
	aqiHighPoints        = 15
	aqiModeratePoints    = 5

	heatThresholdC = 35.0
	heatPoints     = 15

	humidityThresholdPct = 80.0
	humidityPoints       = 10

	precipThresholdMM = 5.0
	precipPoints      = 5

	admissionSurgeRatio = 1.2
	admissionPoints     = 20

	festivalPointsPerWeight = 10
)

// Score computes the deterministic risk score for a feature snapshot and
// the ranked factors behind it. It is a pure function: the same features
// always yield the same score, with no clock, store, or network access.
func Score(f domain.FeatureRecord) (int, []domain.Factor) {
	factors := []domain.Factor{{Name: "seasonal baseline", Contribution: baseContribution}}

	switch {
	case f.AQI > aqiSevereThreshold:
		factors = append(factors, domain.Factor{Name: "severe air quality", Contribution: aqiSeverePoints})
	case f.AQI > aqiHighThreshold:
		factors = append(factors, domain.Factor{Name: "poor air quality", Contribution: aqiHighPoints})
	case f.AQI > aqiModerateThreshold:
		factors = append(factors, domain.Factor{Name: "moderate air quality", Contribution: aqiModeratePoints})
	}

	if f.TemperatureC > heatThresholdC {
		factors = append(factors, domain.Factor{Name: "extreme heat", Contribution: heatPoints})
	}
	if f.HumidityPct > humidityThresholdPct {
		factors = append(factors, domain.Factor{Name: "high humidity", Contribution: humidityPoints})
	}
	if f.PrecipMM > precipThresholdMM {
		factors = append(factors, domain.Factor{Name: "heavy precipitation", Contribution: precipPoints})
	}
	if f.AdmissionBaseline > 0 && f.AdmissionAvg7d > f.AdmissionBaseline*admissionSurgeRatio {
		factors = append(factors, domain.Factor{Name: "admissions trending up", Contribution: admissionPoints})
	}
	if f.FestivalActive {
		factors = append(factors, domain.Factor{
			Name:         "festival crowding",
			Contribution: int(f.FestivalWeight * festivalPointsPerWeight),
		})
	}

	score := 0
	for _, factor := range factors {
		score += factor.Contribution
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Contribution > factors[j].Contribution
	})
	return score, factors
}
