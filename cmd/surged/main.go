package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/surge-forecast/internal/adapter/aqicn"
	httpadapter "github.com/couchcryptid/surge-forecast/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/surge-forecast/internal/adapter/kafka"
	"github.com/couchcryptid/surge-forecast/internal/adapter/openweather"
	"github.com/couchcryptid/surge-forecast/internal/adapter/reasoning"
	"github.com/couchcryptid/surge-forecast/internal/config"
	"github.com/couchcryptid/surge-forecast/internal/forecast"
	"github.com/couchcryptid/surge-forecast/internal/ingest"
	"github.com/couchcryptid/surge-forecast/internal/observability"
	"github.com/couchcryptid/surge-forecast/internal/retry"
	"github.com/couchcryptid/surge-forecast/internal/scheduler"
	"github.com/couchcryptid/surge-forecast/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	calendar, err := forecast.ParseCalendar(cfg.FestivalDates)
	if err != nil {
		logger.Error("failed to parse festival calendar", "error", err)
		os.Exit(1)
	}

	exec := retry.NewExecutor(retry.Policy{
		MaxRetries:   cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		MaxDelay:     cfg.RetryMaxDelay,
		Multiplier:   cfg.RetryMultiplier,
	}, clock, logger, metrics)

	// Event publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var (
		readingEvents    ingest.EventPublisher        = kafkaadapter.Noop{}
		predictionEvents forecast.PredictionPublisher = kafkaadapter.Noop{}
	)
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg, logger, metrics)
		defer publisher.Close()
		readingEvents, predictionEvents = publisher, publisher
		logger.Info("kafka event publishing enabled", "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka event publishing disabled")
	}

	providers := []ingest.ProviderAdapter{
		openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.ProviderTimeout, clock, logger),
		aqicn.NewClient(cfg.AQICNToken, cfg.ProviderTimeout, clock, logger),
	}
	controller := ingest.NewController(st, providers, exec, readingEvents,
		clock, logger, metrics, cfg.FreshnessThreshold)

	reasoner := reasoning.NewClient(cfg.ReasoningAPIKey, cfg.ReasoningBaseURL,
		cfg.ReasoningModel, cfg.ReasoningTimeout, clock, logger)

	builder := forecast.NewFeatureBuilder(controller, st, calendar, clock, logger, cfg.AdmissionBaseline)
	synth := forecast.NewSynthesizer(reasoner, exec, logger, metrics)
	reconciler := forecast.NewReconciler(st, clock, logger, metrics,
		cfg.OutbreakThreshold, cfg.OutbreakDedupWindow, cfg.OutbreakActiveWindow, cfg.OutbreakPurgeHorizon)
	service := forecast.NewService(builder, synth, reconciler, st, predictionEvents,
		clock, logger, metrics, cfg.PredictionMaxAge, cfg.AdmissionBaseline)

	sched := scheduler.New(cfg.Locations, cfg.RefreshInterval, controller, logger, metrics)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	srv := httpadapter.NewServer(cfg.HTTPAddr, st, controller, service, clock, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
