package domain

import "time"

// FeatureRecord is the flattened, ephemeral input to the risk scorer.
// It is never persisted on its own; the prediction that results from it
// embeds a snapshot for audit.
type FeatureRecord struct {
	Location    string    `json:"location"`
	GeneratedAt time.Time `json:"generated_at"`

	AQI  float64 `json:"aqi"`
	PM25 float64 `json:"pm25"`

	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	PrecipMM     float64 `json:"precip_mm"`

	// AdmissionAvg7d is the 7-day rolling average of daily admissions;
	// AdmissionBaseline is the configured expected daily load.
	AdmissionAvg7d    float64 `json:"admission_avg_7d"`
	AdmissionBaseline float64 `json:"admission_baseline"`

	// Calendar-event flags. FestivalWeight is the event multiplier used by
	// the scorer; zero when no event is active.
	FestivalActive bool    `json:"festival_active"`
	FestivalName   string  `json:"festival_name,omitempty"`
	FestivalWeight float64 `json:"festival_weight,omitempty"`

	// AirQualitySource records whether the AQI came from a provider or the
	// estimator.
	AirQualitySource string `json:"air_quality_source"`
}

// Factor is one named contribution to a risk score, used for ranked
// top-factor reporting.
type Factor struct {
	Name         string `json:"name"`
	Contribution int    `json:"contribution"`
}

// Advisory confidence tiers, lowest first.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Prediction is the immutable output of one synthesis run.
type Prediction struct {
	ID          string    `json:"id"`
	Location    string    `json:"location"`
	GeneratedAt time.Time `json:"generated_at"`

	RiskScore         int    `json:"risk_score"` // 0-100
	EstimatedAffected int    `json:"estimated_affected"`
	EngineVersion     string `json:"engine_version"`

	Features FeatureRecord `json:"features"`

	Summary        string   `json:"summary"`
	StaffingAdvice string   `json:"staffing_advice"`
	SupplyAdvice   string   `json:"supply_advice"`
	Actions        []string `json:"actions,omitempty"`
	TopFactors     []Factor `json:"top_factors,omitempty"`

	WeatherImpact    string `json:"weather_impact,omitempty"`
	AirQualityImpact string `json:"air_quality_impact,omitempty"`

	Diseases  []string `json:"diseases,omitempty"`
	Medicines []string `json:"medicines,omitempty"`

	// Confidence is the advisory confidence tier; forced to ConfidenceLow
	// when the advisory degraded.
	Confidence       string `json:"confidence"`
	AdvisoryDegraded bool   `json:"advisory_degraded,omitempty"`

	// ActiveOutbreaks is a denormalized snapshot of the outbreak records
	// current at generation time.
	ActiveOutbreaks []OutbreakRecord `json:"active_outbreaks,omitempty"`
}
