package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobScheduler runs named jobs on fixed intervals.
type JobScheduler interface {
	Schedule(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) error
	Stop(name string)
	StopAll()
}

type jobScheduler struct {
	jobs   map[string]*scheduledJob
	logger *slog.Logger
	mutex  sync.Mutex
}

type scheduledJob struct {
	name       string
	interval   time.Duration
	fn         func(ctx context.Context) error
	ticker     *time.Ticker
	cancel     context.CancelFunc
	errorCount int
}

// NewJobScheduler creates an interval-based job scheduler.
func NewJobScheduler(logger *slog.Logger) JobScheduler {
	return &jobScheduler{
		jobs:   make(map[string]*scheduledJob),
		logger: logger,
	}
}

// Schedule registers and starts a job. Scheduling a name twice replaces
// the earlier job.
func (s *jobScheduler) Schedule(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.jobs[name]; ok {
		s.stopLocked(existing)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &scheduledJob{
		name:     name,
		interval: interval,
		fn:       fn,
		ticker:   time.NewTicker(interval),
		cancel:   cancel,
	}
	s.jobs[name] = job

	go s.run(jobCtx, job)

	s.logger.Info("job scheduled", "name", name, "interval", interval.String())
	return nil
}

func (s *jobScheduler) run(ctx context.Context, job *scheduledJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-job.ticker.C:
			if err := job.fn(ctx); err != nil {
				job.errorCount++
				s.logger.Error("scheduled job failed",
					"name", job.name,
					"error", err,
					"error_count", job.errorCount)
				continue
			}
			s.logger.Info("scheduled job completed", "name", job.name)
		}
	}
}

// Stop cancels one job.
func (s *jobScheduler) Stop(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if job, ok := s.jobs[name]; ok {
		s.stopLocked(job)
		delete(s.jobs, name)
	}
}

// StopAll cancels every job.
func (s *jobScheduler) StopAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for name, job := range s.jobs {
		s.stopLocked(job)
		delete(s.jobs, name)
	}
}

func (s *jobScheduler) stopLocked(job *scheduledJob) {
	job.ticker.Stop()
	job.cancel()
}
