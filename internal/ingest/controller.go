// Package ingest coordinates external signal acquisition: freshness-cached
// reads, retried provider fetches, stale fallback, and the estimated
// air-quality path when no provider can deliver.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/observability"
	"github.com/couchcryptid/surge-forecast/internal/retry"
)

// ProviderAdapter fetches one signal type from an external provider.
type ProviderAdapter interface {
	Signal() domain.SignalType
	Fetch(ctx context.Context, location string) (domain.Reading, error)
}

// ReadingStore is the persistence surface the controller needs.
type ReadingStore interface {
	InsertReading(ctx context.Context, r domain.Reading) (domain.Reading, error)
	LatestReading(ctx context.Context, location string, signal domain.SignalType) (domain.Reading, error)
	ReadingHistory(ctx context.Context, location string, signal domain.SignalType, since time.Time) ([]domain.Reading, error)
}

// EventPublisher announces successfully persisted readings.
type EventPublisher interface {
	ReadingRefreshed(ctx context.Context, reading domain.Reading) error
}

// Controller serves readings from the store while they are fresh and
// refreshes them from providers when they are not.
type Controller struct {
	store     ReadingStore
	providers map[domain.SignalType]ProviderAdapter
	exec      *retry.Executor
	publisher EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	freshness time.Duration
}

// NewController creates a Controller over the given provider adapters.
func NewController(
	store ReadingStore,
	providers []ProviderAdapter,
	exec *retry.Executor,
	publisher EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	freshness time.Duration,
) *Controller {
	byType := make(map[domain.SignalType]ProviderAdapter, len(providers))
	for _, p := range providers {
		byType[p.Signal()] = p
	}
	return &Controller{
		store:     store,
		providers: byType,
		exec:      exec,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		freshness: freshness,
	}
}

// GetOrRefresh returns a reading for (location, signal). A fresh stored
// reading is served without any external call unless force is set. On a
// refresh failure the most recent stale reading is served when one
// exists; for the air-quality signal with no stored reading at all, an
// estimate derived from the latest weather reading stands in.
func (c *Controller) GetOrRefresh(ctx context.Context, location string, signal domain.SignalType, force bool) (domain.Reading, error) {
	loc, err := domain.NormalizeLocation(location)
	if err != nil {
		return domain.Reading{}, err
	}
	if _, ok := c.providers[signal]; !ok {
		return domain.Reading{}, fmt.Errorf("no provider for signal %q", signal)
	}

	cached, cacheErr := c.store.LatestReading(ctx, loc, signal)
	haveCached := cacheErr == nil
	if cacheErr != nil && !errors.Is(cacheErr, domain.ErrNotFound) {
		return domain.Reading{}, cacheErr
	}

	now := c.clock.Now()
	if !force && haveCached && cached.Fresh(now, c.freshness) {
		c.metrics.CacheLookups.WithLabelValues(string(signal), "hit").Inc()
		return cached, nil
	}
	if haveCached {
		c.metrics.CacheLookups.WithLabelValues(string(signal), "stale").Inc()
	} else {
		c.metrics.CacheLookups.WithLabelValues(string(signal), "miss").Inc()
	}

	reading, fetchErr := c.fetch(ctx, loc, signal)
	if fetchErr == nil {
		return c.persist(ctx, reading)
	}

	// A stale reading beats no reading.
	if haveCached {
		c.logger.Warn("refresh failed, serving stale reading",
			"location", loc,
			"signal", signal,
			"age", cached.Age(now),
			"error", fetchErr,
		)
		return cached, nil
	}

	// Air quality is the optional signal: estimate it from weather rather
	// than fail the caller. An invalid location is the caller's mistake
	// and never estimated around.
	if signal == domain.SignalAirQuality && !errors.Is(fetchErr, domain.ErrInvalidLocation) {
		if estimated, ok := c.estimate(ctx, loc, fetchErr); ok {
			return estimated, nil
		}
	}

	return domain.Reading{}, fmt.Errorf("refresh %s for %s: %w", signal, loc, fetchErr)
}

// Latest returns the stored reading for (location, signal) without
// touching any provider.
func (c *Controller) Latest(ctx context.Context, location string, signal domain.SignalType) (domain.Reading, error) {
	loc, err := domain.NormalizeLocation(location)
	if err != nil {
		return domain.Reading{}, err
	}
	return c.store.LatestReading(ctx, loc, signal)
}

// History returns stored readings captured at or after since, ascending.
func (c *Controller) History(ctx context.Context, location string, signal domain.SignalType, since time.Time) ([]domain.Reading, error) {
	loc, err := domain.NormalizeLocation(location)
	if err != nil {
		return nil, err
	}
	return c.store.ReadingHistory(ctx, loc, signal, since)
}

func (c *Controller) fetch(ctx context.Context, loc string, signal domain.SignalType) (domain.Reading, error) {
	provider := c.providers[signal]
	start := c.clock.Now()

	reading, err := retry.Do(ctx, c.exec, "fetch_"+string(signal), func(ctx context.Context) (domain.Reading, error) {
		return provider.Fetch(ctx, loc)
	})

	c.metrics.ProviderDuration.WithLabelValues(string(signal)).Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderFetches.WithLabelValues(string(signal), "error").Inc()
		return domain.Reading{}, err
	}
	c.metrics.ProviderFetches.WithLabelValues(string(signal), "success").Inc()

	reading.Location = loc
	return reading, nil
}

// persist appends the reading and announces it. A publish failure is
// logged but never fails the refresh.
func (c *Controller) persist(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	stored, err := c.store.InsertReading(ctx, reading)
	if err != nil {
		return domain.Reading{}, err
	}
	c.metrics.ReadingsPersisted.WithLabelValues(string(stored.Signal), stored.Source).Inc()

	if err := c.publisher.ReadingRefreshed(ctx, stored); err != nil {
		c.logger.Error("reading event publish failed",
			"location", stored.Location,
			"signal", stored.Signal,
			"error", err,
		)
	}
	return stored, nil
}

// estimate derives an air-quality reading from the latest weather reading
// and persists it tagged with the estimated source.
func (c *Controller) estimate(ctx context.Context, loc string, cause error) (domain.Reading, bool) {
	weather, err := c.store.LatestReading(ctx, loc, domain.SignalWeather)
	if err != nil {
		return domain.Reading{}, false
	}

	c.logger.Warn("air-quality provider unavailable, estimating from weather",
		"location", loc,
		"error", cause,
	)
	c.metrics.EstimatedReadings.Inc()

	stored, err := c.persist(ctx, estimateAirQuality(weather, c.clock.Now().UTC()))
	if err != nil {
		c.logger.Error("persist estimated reading failed", "location", loc, "error", err)
		return domain.Reading{}, false
	}
	return stored, true
}
