// Package scheduler runs the locator's background jobs: refreshing the
// directory totals, sweeping idle sessions and warning when the totals go
// stale.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const refreshTimeout = 30 * time.Second

// Options sets the job intervals. Zero values take the defaults.
type Options struct {
	RefreshInterval time.Duration
	SweepInterval   time.Duration
	HealthInterval  time.Duration
	IdleTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 15 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = time.Hour
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Minute
	}
	return o
}

// Scheduler owns the gocron scheduler and the jobs registered on it.
type Scheduler struct {
	catalog   interfaces.CatalogStore
	directory interfaces.DirectoryStore
	sessions  interfaces.SessionRegistry
	opts      Options
	scheduler *gocron.Scheduler
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(catalog interfaces.CatalogStore, directory interfaces.DirectoryStore,
	sessions interfaces.SessionRegistry, opts Options) *Scheduler {
	return &Scheduler{
		catalog:   catalog,
		directory: directory,
		sessions:  sessions,
		opts:      opts.withDefaults(),
		scheduler: gocron.NewScheduler(time.Local),
	}
}

// Start loads the directory totals once and schedules the recurring jobs.
func (s *Scheduler) Start() error {
	if err := s.refreshStats(); err != nil {
		logging.Error("Failed to perform initial stats load", "error", err)
		return fmt.Errorf("initial stats load failed: %w", err)
	}

	jobs := []struct {
		name     string
		interval time.Duration
		fn       func()
	}{
		{"refresh directory stats", s.opts.RefreshInterval, func() {
			if err := s.refreshStats(); err != nil {
				logging.Error("Failed to refresh directory stats", "error", err)
			}
		}},
		{"sweep idle sessions", s.opts.SweepInterval, s.sweepSessions},
		{"check stats freshness", s.opts.HealthInterval, s.checkFreshness},
	}

	for _, job := range jobs {
		_, err := s.scheduler.Every(job.interval).WaitForSchedule().SingletonMode().Do(job.fn)
		if err != nil {
			logging.Error("Failed to schedule job", "job", job.name, "error", err)
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started",
		"refresh_interval", s.opts.RefreshInterval.String(),
		"sweep_interval", s.opts.SweepInterval.String(),
		"idle_timeout", s.opts.IdleTimeout.String(),
	)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// refreshStats recounts the directory and swaps the totals into the catalog.
func (s *Scheduler) refreshStats() error {
	// Prevent concurrent updates
	if !s.catalog.BeginUpdate() {
		logging.Info("Stats refresh already in progress, skipping...")
		return nil
	}
	defer s.catalog.EndUpdate()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	stats, err := s.directory.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pharmacies: %w", err)
	}

	s.catalog.UpdateStats(stats)
	logging.Info("Directory stats refreshed",
		"duration", time.Since(start).String(),
		"total", stats.Total,
		"with_coords", stats.WithCoords,
	)
	return nil
}

func (s *Scheduler) sweepSessions() {
	s.sessions.SweepIdle(s.opts.IdleTimeout)
}

// checkFreshness warns when the totals have not been refreshed for four intervals.
func (s *Scheduler) checkFreshness() {
	lastUpdate := s.catalog.GetLastUpdated()
	if age := time.Since(lastUpdate); age > 4*s.opts.RefreshInterval {
		logging.Warn("Directory stats are stale", "age", age.Round(time.Second).String())
	}
}
