package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"booking/internal/logger"
	"booking/internal/metrics"
)

const defaultInterval = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     CycleLock
	Metrics  *metrics.SchedulerMetrics
	// NewRelic is optional; when set each job runs in a background transaction.
	NewRelic *newrelic.Application
	Interval time.Duration
}

// Service executes registered cron jobs on a fixed cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     CycleLock
	metrics  *metrics.SchedulerMetrics
	nrApp    *newrelic.Application
	interval time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
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
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		nrApp:    params.NewRelic,
		interval: interval,
	}, nil
}

// Run starts the cron loop until the context is canceled. The first cycle
// runs immediately.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"sweeps":   s.registry.Names(),
		"interval": s.interval.String(),
	}), "cron service started")
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single cycle of every registered job.
func (s *Service) RunOnce(ctx context.Context) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		// Every job is idempotent per row, so an unreachable lock only risks
		// duplicate work.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron lock unavailable; running cycle unlocked")
		s.metrics.IncCycle(metrics.CycleUnlocked)
	} else if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		s.metrics.IncCycle(metrics.CycleSkipped)
		return
	} else {
		s.metrics.IncCycle(metrics.CycleLocked)
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if relErr := s.lock.Release(releaseCtx); relErr != nil {
				s.logg.Error(ctx, "failed to release cron lock", relErr)
			}
		}()
	}

	s.logg.Debug(ctx, "scheduled run starting")
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
	s.logg.Debug(ctx, "scheduled run complete")
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})

	var txn *newrelic.Transaction
	if s.nrApp != nil {
		txn = s.nrApp.StartTransaction("cron/" + job.Name())
		defer txn.End()
		jobCtx = newrelic.NewContext(jobCtx, txn)
	}

	start := time.Now()
	err := s.safeRun(jobCtx, job)
	duration := time.Since(start)
	s.metrics.ObserveSweep(job.Name(), duration, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		if txn != nil {
			txn.NoticeError(err)
		}
		return
	}
	s.logg.Debug(jobCtx, "job completed")
}

func (s *Service) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
