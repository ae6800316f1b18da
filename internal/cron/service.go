package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/marcvilanova/raceday-backend/pkg/logger"
	"github.com/marcvilanova/raceday-backend/pkg/metrics"
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.JobMetrics
}

// Service schedules registered jobs on their individual cron cadences. Each
// run takes a per-job Redis lock so worker replicas never double-run a job.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockFactory
	metrics  *metrics.JobMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
	}, nil
}

// Run schedules every registered job and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	scheduler := robfig.New()
	for _, job := range s.registry.Jobs() {
		job := job
		if _, err := scheduler.AddFunc(job.Schedule(), func() {
			s.runJob(ctx, job)
		}); err != nil {
			return fmt.Errorf("scheduling %s (%q): %w", job.Name(), job.Schedule(), err)
		}
		scheduleCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "schedule": job.Schedule()})
		s.logg.Info(scheduleCtx, "job scheduled")
	}

	scheduler.Start()
	<-ctx.Done()
	s.logg.Info(ctx, "cron service context canceled")

	// Let in-flight runs finish before returning.
	<-scheduler.Stop().Done()
	return ctx.Err()
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")

	lock, err := s.locks(job.Name())
	if err != nil {
		s.logg.Error(jobCtx, "building job lock failed", err)
		s.recordFailure(job.Name())
		return
	}
	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "acquiring job lock failed", err)
		s.recordFailure(job.Name())
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "another worker holds the lock; skipping run")
		return
	}
	defer func() {
		if relErr := lock.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err = job.Run(jobCtx)
	duration := time.Since(start)
	s.observeDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.recordFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.recordSuccess(job.Name())
}

func (s *Service) observeDuration(job string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
}

func (s *Service) recordSuccess(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSuccess(job)
}

func (s *Service) recordFailure(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncFailure(job)
}
