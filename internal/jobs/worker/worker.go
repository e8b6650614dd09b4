// Package worker runs the per-job-type polling pools. Each job type gets its
// own pool of claim loops so a burst of slow prediction jobs cannot starve
// settlement.
package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/data/repos/jobs"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/jobs/runtime"
	"github.com/khchop/kickscore/internal/observability"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type Options struct {
	// Pool sizes per job type; zero means the type is not polled.
	Concurrency map[string]int

	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
	PollInterval time.Duration
	// SweepInterval paces the dead-letter promotion pass.
	SweepInterval time.Duration
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 30 * time.Second
	}
	if o.StaleRunning <= 0 {
		o.StaleRunning = 30 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobs.JobRunRepo
	registry *runtime.Registry
	opts     Options
}

func New(db *gorm.DB, baseLog *logger.Logger, repo jobs.JobRunRepo, registry *runtime.Registry, opts Options) *Worker {
	opts.defaults()
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		opts:     opts,
	}
}

// Start launches the claim loops and the dead-letter sweep. All goroutines
// exit when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for jobType, n := range w.opts.Concurrency {
		for i := 0; i < n; i++ {
			go w.claimLoop(ctx, jobType)
		}
		w.log.Info("worker pool started", "job_type", jobType, "concurrency", n)
	}
	go w.deadLetterSweep(ctx)
}

func (w *Worker) claimLoop(ctx context.Context, jobType string) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.claimOnce(ctx, jobType)
		}
	}
}

func (w *Worker) claimOnce(ctx context.Context, jobType string) {
	job, err := w.repo.ClaimNextRunnable(ctx, nil, jobType, w.opts.MaxAttempts, w.opts.RetryDelay, w.opts.StaleRunning)
	if err != nil {
		w.log.Warn("claim failed", "job_type", jobType, "error", err)
		return
	}
	if job == nil {
		return
	}
	w.execute(ctx, job)
}

func (w *Worker) execute(ctx context.Context, job *domain.JobRun) {
	jc := runtime.NewContext(ctx, w.db, job, w.repo)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("no handler registered", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	// Background heartbeat keeps long provider calls from being reclaimed
	// as stale.
	hbCtx, stopHB := context.WithCancel(ctx)
	go func() {
		interval := w.opts.StaleRunning / 3
		if interval < 5*time.Second {
			interval = 5 * time.Second
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()

	func() {
		defer stopHB()
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", fmt.Errorf("panic: %v", r))
			}
		}()
		if err := h.Run(jc); err != nil {
			// Handlers that returned an error without calling Fail still
			// land in the failed state.
			if job.Status == domain.JobStatusRunning {
				jc.Fail("run", err)
			}
		}
	}()

	observability.ObserveJobCompleted(ctx, job.JobType, job.Status)
	if job.Status == domain.JobStatusFailed {
		w.log.Warn("job failed",
			"job_id", job.ID,
			"job_type", job.JobType,
			"attempts", job.Attempts,
			"error", job.Error,
		)
	}
}

func (w *Worker) deadLetterSweep(ctx context.Context) {
	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.PromoteExhaustedToDead(ctx, nil, w.opts.MaxAttempts)
			if err != nil {
				w.log.Warn("dead-letter sweep failed", "error", err)
				continue
			}
			if n > 0 {
				w.log.Warn("jobs moved to dead letter", "count", n)
			}
		}
	}
}
