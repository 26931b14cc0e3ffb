package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// SessionReaper force-finishes quiz sessions that stopped making progress.
type SessionReaper interface {
	AbandonStale(ctx context.Context, maxAge time.Duration) int
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	reaper    SessionReaper
	interval  time.Duration
	maxAge    time.Duration
	logger    zerolog.Logger
}

// New creates a new scheduler instance
func New(reaper SessionReaper, interval, maxAge time.Duration, logger zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		reaper:    reaper,
		interval:  interval,
		maxAge:    maxAge,
		logger:    logger,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() {
	s.scheduler.Every(s.interval).Do(s.sweepStaleSessions)
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// sweepStaleSessions commits and removes sessions older than the
// configured maximum age.
func (s *Scheduler) sweepStaleSessions() {
	if swept := s.reaper.AbandonStale(context.Background(), s.maxAge); swept > 0 {
		s.logger.Info().Int("sessions", swept).Msg("swept stale sessions")
	}
}

// RunManualCheck forces an immediate sweep.
func (s *Scheduler) RunManualCheck() int {
	return s.reaper.AbandonStale(context.Background(), s.maxAge)
}
