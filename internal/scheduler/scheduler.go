// Package scheduler runs the periodic sweeps (daily generation and the
// stuck-job reconciler) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultRunTimeout bounds a single run of a job.
const DefaultRunTimeout = 30 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

type entry struct {
	id       cron.EntryID
	schedule string
	job      Job
}

// Scheduler manages periodic tasks
type Scheduler struct {
	cron       *cron.Cron
	mu         sync.Mutex
	jobs       map[string]entry
	location   *time.Location
	runTimeout time.Duration
	logger     zerolog.Logger
}

// New creates a scheduler evaluating schedules in the given timezone.
func New(timezone string, logger *zerolog.Logger) (*Scheduler, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	return &Scheduler{
		// Overlapping runs of the same job are skipped.
		cron:       cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:       make(map[string]entry),
		location:   loc,
		runTimeout: DefaultRunTimeout,
		logger:     logging.OrNop(logger).With().Str("component", "scheduler").Logger(),
	}, nil
}

// Location is the timezone schedules are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// AddJob adds a job with a cron schedule. Standard five-field specs and
// descriptors such as "@every 5m" are accepted.
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entry{id: id, schedule: schedule, job: job}
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("added job")
	return nil
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	log := s.logger.With().Str("job", name).Logger()
	log.Info().Msg("starting job")
	start := time.Now()

	if err := job(ctx); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return err
	}
	log.Info().Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
		s.logger.Info().Str("job", name).Msg("removed job")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.logger.Info().Msg("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow immediately executes a registered job.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.run(name, e.job)
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{
			Name:     name,
			Schedule: e.schedule,
			NextRun:  ce.Next,
			LastRun:  ce.Prev,
		})
	}
	return infos
}
