// Package maintenance runs periodic housekeeping: purging expired refresh
// tokens and sweeping expired in-memory rate limit windows.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/uhoapp/authkit/internal/logging"
)

// Job is one housekeeping task. Run returns how many items it removed.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Scheduler runs every job on a cron schedule such as "@every 10m" or
// "0 3 * * *".
type Scheduler struct {
	schedule string
	jobs     []Job
	cron     *cron.Cron
	logger   logging.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(schedule string, logger logging.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		jobs:     jobs,
		cron:     cron.New(),
		logger:   logger.With("module", "maintenance"),
	}
}

// Start schedules the jobs and stops them when ctx is done. An empty schedule
// disables the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info(ctx, "cleanup schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info(ctx, "maintenance scheduler started", "schedule", s.schedule, "jobs", len(s.jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce runs every job in order. A failing job is logged and does not stop
// the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range s.jobs {
		removed, err := job.Run(ctx)
		if err != nil {
			s.logger.Error(ctx, "maintenance job failed", "job", job.Name, "error", err)
			continue
		}
		if removed > 0 {
			s.logger.Info(ctx, "maintenance job completed", "job", job.Name, "removed", removed)
		} else {
			s.logger.Debug(ctx, "maintenance job completed, nothing removed", "job", job.Name)
		}
	}
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info(context.Background(), "maintenance scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pass, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
