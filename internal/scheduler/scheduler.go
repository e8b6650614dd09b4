// Package scheduler computes and enqueues the pipeline jobs for each match
// at fixed offsets from kickoff. Every job id derives deterministically from
// the match, job type and kickoff, so scheduling is safe to re-run on every
// pass and after every restart, and a rescheduled kickoff yields a fresh set.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

// Enqueuer is the job-queue write interface, also consumed by fixtures
// ingestion and by handlers chaining follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, matchID uuid.UUID, executeAt time.Time, idempotencyKey string, payload map[string]any) (bool, error)
}

// JobKey derives the idempotent id for a job. Same inputs, same key, on
// every process and every restart.
func JobKey(jobType string, matchID uuid.UUID, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("%s:%s", jobType, matchID)
	}
	return fmt.Sprintf("%s:%s:%s", jobType, matchID, suffix)
}

type Offsets struct {
	Analysis        time.Duration // before kickoff
	Predictions     time.Duration
	PredictionRetry time.Duration
}

func DefaultOffsets() Offsets {
	return Offsets{
		Analysis:        6 * time.Hour,
		Predictions:     30 * time.Minute,
		PredictionRetry: 5 * time.Minute,
	}
}

type Scheduler struct {
	log     *logger.Logger
	enq     Enqueuer
	offsets Offsets
	now     func() time.Time
}

func New(log *logger.Logger, enq Enqueuer, offsets Offsets) *Scheduler {
	return &Scheduler{
		log:     log.With("component", "Scheduler"),
		enq:     enq,
		offsets: offsets,
		now:     time.Now,
	}
}

type plannedJob struct {
	jobType   string
	suffix    string
	executeAt time.Time
}

// ScheduleForMatch enqueues the deterministic job set for one match. The
// only gate is match status: finished and cancelled matches get nothing.
// A computed execution time already in the past schedules for immediate
// execution instead of being dropped, so a catch-up pass after downtime
// still enqueues everything the match is owed.
//
// Keys carry the kickoff time: when a postponed match comes back with a new
// date, the old jobs' keys no longer match and the match gets a fresh set
// instead of colliding with rows that already ran.
func (s *Scheduler) ScheduleForMatch(ctx context.Context, m *domain.Match) error {
	if m == nil {
		return nil
	}
	if !m.SchedulableStatus() {
		return nil
	}

	now := s.now()
	kick := m.KickoffAt.UTC().Format("200601021504")
	planned := []plannedJob{
		{jobType: domain.JobTypeAnalysis, suffix: kick, executeAt: m.KickoffAt.Add(-s.offsets.Analysis)},
		{jobType: domain.JobTypePredictions, suffix: kick, executeAt: m.KickoffAt.Add(-s.offsets.Predictions)},
		{jobType: domain.JobTypePredictionRetry, suffix: kick, executeAt: m.KickoffAt.Add(-s.offsets.PredictionRetry)},
		{jobType: domain.JobTypeLiveMonitor, suffix: kick, executeAt: m.KickoffAt},
	}

	for _, p := range planned {
		executeAt := p.executeAt
		if executeAt.Before(now) {
			executeAt = now
		}
		key := JobKey(p.jobType, m.ID, p.suffix)
		if err := s.enqueueWithRetry(ctx, p.jobType, m.ID, executeAt, key, nil); err != nil {
			// A missed schedule call means a match never gets predictions;
			// the caller retries the whole pass.
			return fmt.Errorf("schedule %s for match %s: %w", p.jobType, m.ID, err)
		}
	}
	return nil
}

// ScheduleSettlement is called the moment finish is detected. Settlement is
// due immediately.
func (s *Scheduler) ScheduleSettlement(ctx context.Context, matchID uuid.UUID) error {
	key := JobKey(domain.JobTypeSettlement, matchID, "")
	return s.enqueueWithRetry(ctx, domain.JobTypeSettlement, matchID, s.now(), key, nil)
}

// ScheduleLiveMonitorTick chains the next live-monitor poll while a match is
// in play. The tick suffix keeps each poll's id distinct and idempotent.
func (s *Scheduler) ScheduleLiveMonitorTick(ctx context.Context, matchID uuid.UUID, at time.Time) error {
	key := JobKey(domain.JobTypeLiveMonitor, matchID, at.UTC().Format("200601021504"))
	return s.enqueueWithRetry(ctx, domain.JobTypeLiveMonitor, matchID, at, key, nil)
}

// ScheduleBackfill enqueues a historical re-run of predictions for a match.
func (s *Scheduler) ScheduleBackfill(ctx context.Context, matchID uuid.UUID) error {
	key := JobKey(domain.JobTypeBackfill, matchID, "")
	return s.enqueueWithRetry(ctx, domain.JobTypeBackfill, matchID, s.now(), key, nil)
}

func (s *Scheduler) enqueueWithRetry(ctx context.Context, jobType string, matchID uuid.UUID, executeAt time.Time, key string, payload map[string]any) error {
	operation := func() (bool, error) {
		return s.enq.Enqueue(ctx, jobType, matchID, executeAt, key, payload)
	}
	created, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
	if err != nil {
		s.log.Error("enqueue retries exhausted",
			"job_type", jobType,
			"match_id", matchID,
			"idempotency_key", key,
			"error", err,
		)
		return err
	}
	if created {
		s.log.Info("job scheduled",
			"job_type", jobType,
			"match_id", matchID,
			"execute_at", executeAt,
			"idempotency_key", key,
		)
	}
	return nil
}
