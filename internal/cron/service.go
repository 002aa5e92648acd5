package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/internal/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logging.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval while it holds the lock.
type Service struct {
	logg     *logging.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Lock == nil {
		return nil, errors.New("lock is required")
	}

	logg := params.Logger
	if logg == nil {
		logg = logging.Nop()
	}

	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Service{
		logg:     logg,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run blocks until ctx is cancelled. The first cycle runs immediately.
func (s *Service) Run(ctx context.Context) error {
	err := s.runCycle(ctx)
	if err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopped")
			return ctx.Err()
		case <-ticker.C:
			err := s.runCycle(ctx)
			if err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}

	if !locked {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}

	defer func() {
		// release even when the run context is already cancelled
		relErr := s.lock.Release(context.WithoutCancel(ctx))
		if relErr != nil {
			s.logg.Error(ctx, "release cron lock", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		s.runJob(ctx, job)
	}

	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()

	err := job.Run(ctx)
	elapsed := time.Since(start)

	s.metrics.ObserveDuration(job.Name(), elapsed)
	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())

	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		s.metrics.IncFailure(job.Name())

		return
	}

	s.logg.Info(ctx, "cron job completed")
	s.metrics.IncSuccess(job.Name())
}
