// Package scheduler drives the periodic refresh sweep across all
// configured locations and signals.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/observability"
)

// Refresher forces a reading refresh for one (location, signal) pair.
type Refresher interface {
	GetOrRefresh(ctx context.Context, location string, signal domain.SignalType, force bool) (domain.Reading, error)
}

// branchTimeout bounds one (location, signal) refresh including retries.
const branchTimeout = 5 * time.Minute

// Scheduler sweeps every configured location on a fixed cadence, forcing
// a refresh of both signals. Branches are isolated: one failing pair
// never stops the others. Nothing runs at startup; the first sweep fires
// after one full interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	locations []string
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Scheduler for the given locations.
func New(locations []string, interval time.Duration, refresher Refresher, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		locations: locations,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the sweep and starts the underlying scheduler. Cadences
// that divide a day evenly run as a cron job on fixed hours so restarts
// do not drift the sweep schedule; anything else runs on a plain interval.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Warn("no locations configured, scheduler idle")
		return nil
	}

	var job *gocron.Scheduler
	if expr, ok := cronExpression(s.interval); ok {
		job = s.scheduler.Cron(expr)
	} else {
		// Duration jobs fire immediately on start by default; the first
		// sweep must wait one full interval instead.
		job = s.scheduler.Every(s.interval).WaitForSchedule()
	}

	if _, err := job.Do(s.sweep); err != nil {
		return fmt.Errorf("schedule refresh sweep: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("refresh scheduler started",
		"interval", s.interval,
		"locations", len(s.locations),
	)
	return nil
}

// Stop stops the scheduler and cancels future sweeps. Running branches
// finish on their own timeout.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunOnce executes a single sweep synchronously.
func (s *Scheduler) RunOnce() {
	s.sweep()
}

func (s *Scheduler) sweep() {
	start := time.Now()
	var succeeded, failed atomic.Int64

	var wg sync.WaitGroup
	for _, location := range s.locations {
		for _, signal := range domain.Signals {
			wg.Add(1)
			go func(location string, signal domain.SignalType) {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), branchTimeout)
				defer cancel()

				if _, err := s.refresher.GetOrRefresh(ctx, location, signal, true); err != nil {
					failed.Add(1)
					s.metrics.SchedulerFailures.Inc()
					s.logger.Error("scheduled refresh failed",
						"location", location,
						"signal", signal,
						"error", err,
					)
					return
				}
				succeeded.Add(1)
			}(location, signal)
		}
	}
	wg.Wait()

	s.metrics.SchedulerRuns.Inc()
	s.logger.Info("refresh sweep completed",
		"succeeded", succeeded.Load(),
		"failed", failed.Load(),
		"duration", time.Since(start),
	)
}

// cronExpression maps a whole-hour cadence that divides 24h onto a cron
// schedule, e.g. 6h becomes "0 */6 * * *".
func cronExpression(interval time.Duration) (string, bool) {
	hours := int(interval.Hours())
	if hours < 1 || time.Duration(hours)*time.Hour != interval {
		return "", false
	}
	if 24%hours != 0 {
		return "", false
	}
	return fmt.Sprintf("0 */%d * * *", hours), true
}
