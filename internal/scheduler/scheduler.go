// Package scheduler drives the recurring jobs of daemon mode: the
// scheduled synchronization run and history maintenance.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// JobFunc is a scheduled job body.
type JobFunc func(ctx context.Context) error

// JobConfig describes one recurring job.
type JobConfig struct {
	ID         string
	Name       string
	Cron       string // standard five-field cron expression
	Func       JobFunc
	RunOnStart bool
}

// JobInfo is the state of a job as exposed over the status API.
type JobInfo struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Cron    string     `json:"cron"`
	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
	Running bool       `json:"running"`
}

type jobEntry struct {
	config  JobConfig
	job     gocron.Job
	lastRun *time.Time
	running bool
}

// Scheduler wraps gocron with job state tracking.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

// New creates a scheduler.
func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		gocron: gs,
		logger: logger.With().Str("component", "scheduler").Logger(),
		jobs:   make(map[string]*jobEntry),
	}, nil
}

// Register adds a recurring job.
func (s *Scheduler) Register(config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[config.ID]; exists {
		return fmt.Errorf("job %q already registered", config.ID)
	}

	job, err := s.gocron.NewJob(
		gocron.CronJob(config.Cron, false),
		gocron.NewTask(func() { s.execute(config.ID) }),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %q: %w", config.ID, err)
	}

	s.jobs[config.ID] = &jobEntry{config: config, job: job}
	s.logger.Info().
		Str("job", config.ID).
		Str("cron", config.Cron).
		Msg("job registered")
	return nil
}

func (s *Scheduler) execute(jobID string) {
	s.mu.Lock()
	entry, exists := s.jobs[jobID]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info().Str("job", jobID).Msg("job started")

	err := entry.config.Func(context.Background())

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &start
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("job", jobID).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	s.logger.Info().Str("job", jobID).Dur("duration", time.Since(start)).Msg("job completed")
}

// Start begins cron evaluation and launches any run-on-start jobs.
func (s *Scheduler) Start() {
	s.gocron.Start()

	s.mu.RLock()
	var startup []string
	for id, entry := range s.jobs {
		if entry.config.RunOnStart {
			startup = append(startup, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range startup {
		go s.execute(id)
	}
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	return s.gocron.Shutdown()
}

// RunNow triggers a job outside its schedule.
func (s *Scheduler) RunNow(jobID string) error {
	s.mu.RLock()
	entry, exists := s.jobs[jobID]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %q not found", jobID)
	}
	if running {
		return fmt.Errorf("job %q is already running", jobID)
	}

	go s.execute(jobID)
	return nil
}

// Jobs lists every registered job with its run state.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, entry := range s.jobs {
		info := JobInfo{
			ID:      entry.config.ID,
			Name:    entry.config.Name,
			Cron:    entry.config.Cron,
			LastRun: entry.lastRun,
			Running: entry.running,
		}
		if next, err := entry.job.NextRun(); err == nil {
			info.NextRun = &next
		}
		infos = append(infos, info)
	}
	return infos
}
