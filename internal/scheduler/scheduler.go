// Package scheduler runs the recurring reconciliation pass on a fixed
// interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// Scheduler manages the background pass job.
type Scheduler struct {
	gocron  gocron.Scheduler
	logger  zerolog.Logger
	mu      sync.Mutex
	jobs    map[string]gocron.Job
	running map[string]bool
}

// New creates a new scheduler.
func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		gocron:  gs,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		jobs:    map[string]gocron.Job{},
		running: map[string]bool{},
	}, nil
}

// RegisterInterval schedules fn to run every interval. Overlapping runs are
// skipped: a pass that outlasts its interval delays the next one.
func (s *Scheduler) RegisterInterval(id string, interval time.Duration, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("task %q already registered", id)
	}

	job, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.execute(id, fn) }),
		gocron.WithName(id),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %q: %w", id, err)
	}

	s.jobs[id] = job
	s.logger.Info().Str("id", id).Dur("interval", interval).Msg("Registered task")
	return nil
}

func (s *Scheduler) execute(id string, fn TaskFunc) {
	s.mu.Lock()
	if s.running[id] {
		s.mu.Unlock()
		return
	}
	s.running[id] = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info().Str("id", id).Msg("Starting task")

	err := fn(context.Background())

	s.mu.Lock()
	s.running[id] = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Dur("duration", time.Since(start)).Msg("Task failed")
		return
	}
	s.logger.Info().Str("id", id).Dur("duration", time.Since(start)).Msg("Task completed")
}

// NextRun reports when the task is scheduled to run next.
func (s *Scheduler) NextRun(id string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return time.Time{}, fmt.Errorf("task %q not found", id)
	}
	return job.NextRun()
}

// RunNow triggers the task outside its schedule.
func (s *Scheduler) RunNow(id string) error {
	s.mu.Lock()
	job, exists := s.jobs[id]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("task %q not found", id)
	}
	return job.RunNow()
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info().Msg("Starting scheduler")
	s.gocron.Start()
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	return s.gocron.Shutdown()
}
