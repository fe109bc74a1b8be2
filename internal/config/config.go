package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/surge-forecast/internal/domain"
)

// Config holds all service settings, populated once from environment
// variables at process start. It is immutable after Load returns; no
// component reads ambient process state directly.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// DBPath is the SQLite database file; the parent directory is created
	// on open.
	DBPath string

	// Locations is the normalized set of cities the scheduler refreshes.
	Locations []string

	// Provider credentials. The weather key is mandatory for fetches; the
	// air-quality token is optional (estimated fallback); the reasoning key
	// is mandatory for advisory synthesis.
	OpenWeatherAPIKey string
	AQICNToken        string
	ReasoningAPIKey   string

	ReasoningBaseURL string
	ReasoningModel   string

	ProviderTimeout  time.Duration
	ReasoningTimeout time.Duration

	// Freshness and refresh cadence.
	FreshnessThreshold time.Duration
	RefreshInterval    time.Duration
	PredictionMaxAge   time.Duration

	// Retry tunables for the resilient call executor.
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64

	// Synthesis tunables.
	AdmissionBaseline    float64
	OutbreakThreshold    int
	OutbreakDedupWindow  time.Duration
	OutbreakActiveWindow time.Duration
	OutbreakPurgeHorizon time.Duration

	// FestivalDates is a comma-separated list of MM-DD[:weight] calendar
	// events, e.g. "10-20:1.5,12-25:1.0". Empty means no events.
	FestivalDates string

	// Kafka event publishing (feature-flagged: disabled when no brokers).
	KafkaBrokers     []string
	KafkaEnabled     bool
	ReadingsTopic    string
	PredictionsTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	providerTimeout, err := parseDurationEnv("PROVIDER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	reasoningTimeout, err := parseDurationEnv("REASONING_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	freshness, err := parseDurationEnv("FRESHNESS_THRESHOLD", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDurationEnv("REFRESH_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	predictionMaxAge, err := parseDurationEnv("PREDICTION_MAX_AGE", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	retryInitial, err := parseDurationEnv("RETRY_INITIAL_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}
	retryMaxDelay, err := parseDurationEnv("RETRY_MAX_DELAY", 60*time.Second)
	if err != nil {
		return nil, err
	}
	dedupWindow, err := parseDurationEnv("OUTBREAK_DEDUP_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	activeWindow, err := parseDurationEnv("OUTBREAK_ACTIVE_WINDOW", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	purgeHorizon, err := parseDurationEnv("OUTBREAK_PURGE_HORIZON", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	locations, err := parseLocations(envOrDefault("LOCATIONS", "Delhi,Mumbai"))
	if err != nil {
		return nil, err
	}

	brokers := parseList(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBPath:    envOrDefault("DB_PATH", "data/surge.db"),
		Locations: locations,

		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		AQICNToken:        os.Getenv("AQICN_TOKEN"),
		ReasoningAPIKey:   os.Getenv("REASONING_API_KEY"),
		ReasoningBaseURL:  envOrDefault("REASONING_BASE_URL", "https://api.openai.com/v1"),
		ReasoningModel:    envOrDefault("REASONING_MODEL", "gpt-4o-mini"),

		ProviderTimeout:  providerTimeout,
		ReasoningTimeout: reasoningTimeout,

		FreshnessThreshold: freshness,
		RefreshInterval:    refreshInterval,
		PredictionMaxAge:   predictionMaxAge,

		RetryMaxAttempts:  envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: retryInitial,
		RetryMaxDelay:     retryMaxDelay,
		RetryMultiplier:   envFloat("RETRY_MULTIPLIER", 2.0),

		AdmissionBaseline:    envFloat("ADMISSION_BASELINE", 100),
		OutbreakThreshold:    envInt("OUTBREAK_THRESHOLD", 40),
		OutbreakDedupWindow:  dedupWindow,
		OutbreakActiveWindow: activeWindow,
		OutbreakPurgeHorizon: purgeHorizon,

		FestivalDates: os.Getenv("FESTIVAL_DATES"),

		KafkaBrokers:     brokers,
		KafkaEnabled:     kafkaEnabled,
		ReadingsTopic:    envOrDefault("KAFKA_READINGS_TOPIC", "surge-readings"),
		PredictionsTopic: envOrDefault("KAFKA_PREDICTIONS_TOPIC", "surge-predictions"),
	}

	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if len(cfg.Locations) == 0 {
		return nil, errors.New("LOCATIONS is required")
	}
	if cfg.RetryMaxAttempts < 0 {
		return nil, errors.New("RETRY_MAX_ATTEMPTS must not be negative")
	}
	if cfg.RetryMultiplier < 1 {
		return nil, errors.New("RETRY_MULTIPLIER must be at least 1")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func parseLocations(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		loc, err := domain.NormalizeLocation(part)
		if err != nil {
			return nil, fmt.Errorf("invalid LOCATIONS entry %q: %w", part, err)
		}
		out = append(out, loc)
	}
	return out, nil
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return def
}
