// Package http exposes the service API: health, readiness, metrics, and
// the versioned readings and prediction routes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 90
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// ReadingService serves cached-or-refreshed signal readings.
type ReadingService interface {
	GetOrRefresh(ctx context.Context, location string, signal domain.SignalType, force bool) (domain.Reading, error)
	Latest(ctx context.Context, location string, signal domain.SignalType) (domain.Reading, error)
	History(ctx context.Context, location string, signal domain.SignalType, since time.Time) ([]domain.Reading, error)
}

// PredictionService serves surge predictions.
type PredictionService interface {
	Predict(ctx context.Context, location string) (domain.Prediction, error)
	Latest(ctx context.Context, location string) (domain.Prediction, error)
	History(ctx context.Context, location string, since time.Time) ([]domain.Prediction, error)
}

// Server exposes the HTTP API.
type Server struct {
	httpServer  *http.Server
	readings    ReadingService
	predictions PredictionService
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, ready ReadinessChecker, readings ReadingService, predictions PredictionService, clock clockwork.Clock, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		readings:    readings,
		predictions: predictions,
		clock:       clock,
		logger:      logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/locations/{location}/readings/{signal}/latest", s.handleReadingLatest)
	mux.HandleFunc("GET /v1/locations/{location}/readings/{signal}/history", s.handleReadingHistory)
	mux.HandleFunc("POST /v1/locations/{location}/readings/{signal}/refresh", s.handleReadingRefresh)

	mux.HandleFunc("GET /v1/locations/{location}/prediction", s.handlePredictionLatest)
	mux.HandleFunc("POST /v1/locations/{location}/prediction", s.handlePredictionCreate)
	mux.HandleFunc("GET /v1/locations/{location}/prediction/history", s.handlePredictionHistory)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleReadingLatest(w http.ResponseWriter, r *http.Request) {
	signal, ok := pathSignal(w, r)
	if !ok {
		return
	}
	// The latest route serves whatever is stored, fresh or not, and only
	// reaches a provider when nothing is stored yet.
	reading, err := s.readings.Latest(r.Context(), r.PathValue("location"), signal)
	if errors.Is(err, domain.ErrNotFound) {
		reading, err = s.readings.GetOrRefresh(r.Context(), r.PathValue("location"), signal, false)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	signal, ok := pathSignal(w, r)
	if !ok {
		return
	}
	history, err := s.readings.History(r.Context(), r.PathValue("location"), signal, s.sinceParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(history))
}

func (s *Server) handleReadingRefresh(w http.ResponseWriter, r *http.Request) {
	signal, ok := pathSignal(w, r)
	if !ok {
		return
	}
	reading, err := s.readings.GetOrRefresh(r.Context(), r.PathValue("location"), signal, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handlePredictionLatest(w http.ResponseWriter, r *http.Request) {
	prediction, err := s.predictions.Latest(r.Context(), r.PathValue("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) handlePredictionCreate(w http.ResponseWriter, r *http.Request) {
	prediction, err := s.predictions.Predict(r.Context(), r.PathValue("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, prediction)
}

func (s *Server) handlePredictionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.predictions.History(r.Context(), r.PathValue("location"), s.sinceParam(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(history))
}

func pathSignal(w http.ResponseWriter, r *http.Request) (domain.SignalType, bool) {
	signal := domain.SignalType(r.PathValue("signal"))
	if !signal.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown signal, want weather or air_quality",
		})
		return "", false
	}
	return signal, true
}

// sinceParam resolves the days query parameter into a lower time bound.
func (s *Server) sinceParam(r *http.Request) time.Time {
	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= maxHistoryDays {
			days = n
		}
	}
	return s.clock.Now().UTC().AddDate(0, 0, -days)
}

// listResponse keeps empty histories as [] instead of null.
func listResponse[T any](items []T) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{"items": items, "count": len(items)}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain error kinds onto HTTP statuses.
func statusFor(err error) int {
	var te *retry.TransientError
	switch {
	case errors.Is(err, domain.ErrInvalidLocation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMissingCredentials):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMissingMandatorySignal),
		errors.Is(err, domain.ErrProviderFailure),
		errors.Is(err, domain.ErrSynthesisFailure):
		return http.StatusBadGateway
	case errors.As(err, &te):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
