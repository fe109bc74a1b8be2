package reasoning

import "github.com/couchcryptid/surge-forecast/internal/domain"

// Request is the structured context sent to the reasoning service.
type Request struct {
	Features        domain.FeatureRecord    `json:"features"`
	RiskScore       int                     `json:"risk_score"`
	ActiveOutbreaks []domain.OutbreakRecord `json:"active_outbreaks,omitempty"`
}

// Payload is the fixed response schema requested from the reasoning
// service.
type Payload struct {
	Summary            string              `json:"summary"`
	StaffingPlan       string              `json:"staffing_plan"`
	SupplyPlan         string              `json:"supply_plan"`
	SuggestedActions   []string            `json:"suggested_actions"`
	SuggestedMedicines []string            `json:"suggested_medicines"`
	SuggestedDiseases  []string            `json:"suggested_diseases"`
	WeatherImpact      string              `json:"weather_impact"`
	AirQualityImpact   string              `json:"air_quality_impact"`
	Confidence         string              `json:"confidence"`
	Outbreaks          []OutbreakDetection `json:"outbreaks"`
}

// OutbreakDetection is one disease observation proposed by the reasoning
// service, fed into the outbreak reconciler.
type OutbreakDetection struct {
	Disease          string   `json:"disease"`
	ActiveCases      int      `json:"active_cases"`
	NewCases         int      `json:"new_cases"`
	Severity         string   `json:"severity"`
	TransmissionRate float64  `json:"transmission_rate"`
	AffectedGroups   []string `json:"affected_groups"`
	Medicines        []string `json:"medicines"`
	Rationale        string   `json:"rationale"`
}

// Advisory is the outcome of one synthesis call: either a conforming
// Structured payload or a Degraded raw-text fallback. Callers type-switch
// over the two forms; a degraded result is not an error.
type Advisory interface {
	advisory()
}

// Structured is a response that conformed to the requested schema.
type Structured struct {
	Payload Payload
}

// Degraded is a response that could not be parsed into the schema; the
// raw text is preserved so it can serve as the prediction summary.
type Degraded struct {
	RawText string
}

func (Structured) advisory() {}
func (Degraded) advisory()   {}
