// Package queue adapts the job_run repository to the scheduler's Enqueuer
// interface.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/khchop/kickscore/internal/data/repos/jobs"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type Queue struct {
	log  *logger.Logger
	repo jobs.JobRunRepo
}

func New(log *logger.Logger, repo jobs.JobRunRepo) *Queue {
	return &Queue{log: log.With("component", "JobQueue"), repo: repo}
}

// Enqueue inserts the job if its idempotency key is new. Returns whether a
// row was created; false means the job already existed in some state, which
// is the normal outcome of a repeated scheduling pass.
func (q *Queue) Enqueue(ctx context.Context, jobType string, matchID uuid.UUID, executeAt time.Time, idempotencyKey string, payload map[string]any) (bool, error) {
	var raw datatypes.JSON
	if len(payload) > 0 {
		b, err := json.Marshal(payload)
		if err != nil {
			return false, err
		}
		raw = datatypes.JSON(b)
	}
	job := &domain.JobRun{
		IdempotencyKey: idempotencyKey,
		JobType:        jobType,
		Status:         domain.JobStatusQueued,
		ExecuteAt:      executeAt,
		Payload:        raw,
	}
	if matchID != uuid.Nil {
		job.MatchID = &matchID
	}
	_, created, err := q.repo.Enqueue(ctx, nil, job)
	if err != nil {
		return false, err
	}
	return created, nil
}
