package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/metrics"
)

const defaultCycleInterval = 24 * time.Hour

type RunnerParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Runner executes the registered jobs once per interval, holding the lease
// for the whole cycle. A job that fails or panics is logged and counted;
// the rest of the cycle still runs.
type Runner struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewRunner(params RunnerParams) (*Runner, error) {
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
		interval = defaultCycleInterval
	}
	return &Runner{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes one cycle immediately, then one per interval until the
// context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.cycle(ctx); err != nil {
			r.logg.Error(ctx, "maintenance cycle failed", err)
		}
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "cron runner stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) cycle(ctx context.Context) error {
	held, err := r.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !held {
		r.logg.Info(ctx, "lease held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if releaseErr := r.lock.Release(ctx); releaseErr != nil {
			r.logg.Error(ctx, "failed to release lease", releaseErr)
		}
	}()

	r.logg.Info(ctx, "maintenance cycle starting")
	for _, job := range r.registry.Jobs() {
		r.runJob(ctx, job)
	}
	r.logg.Info(ctx, "maintenance cycle complete")
	return nil
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := r.logg.WithFields(ctx, map[string]any{
		"job":   name,
		"event": "cron.job",
	})
	r.logg.Info(jobCtx, "job starting")

	start := time.Now()
	err := invoke(jobCtx, job)
	elapsed := time.Since(start)
	r.record(name, elapsed, err)

	jobCtx = r.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		r.logg.Error(jobCtx, "job failed", err)
		return
	}
	r.logg.Info(jobCtx, "job finished")
}

// invoke shields the cycle from a panicking job.
func invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panic: %v", rec)
		}
	}()
	return job.Run(ctx)
}

func (r *Runner) record(job string, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveDuration(job, elapsed)
	if err != nil {
		r.metrics.IncFailure(job)
		return
	}
	r.metrics.IncSuccess(job)
}
