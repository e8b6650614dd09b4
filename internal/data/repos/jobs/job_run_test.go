package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/khchop/kickscore/internal/data/repos/testutil"
	"github.com/khchop/kickscore/internal/domain"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	matchID := uuid.New()

	queued := &domain.JobRun{
		ID:             uuid.New(),
		IdempotencyKey: "predictions:" + matchID.String(),
		JobType:        domain.JobTypePredictions,
		MatchID:        &matchID,
		Status:         domain.JobStatusQueued,
		Stage:          "queued",
		ExecuteAt:      now.Add(-time.Minute),
		Payload:        datatypes.JSON([]byte("{}")),
		CreatedAt:      now.Add(-time.Hour),
		UpdatedAt:      now.Add(-time.Hour),
	}

	created, wasNew, err := repo.Enqueue(ctx, tx, queued)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !wasNew {
		t.Fatalf("Enqueue: expected new row")
	}

	// Same idempotency key: no-op returning the existing row.
	dup := &domain.JobRun{
		ID:             uuid.New(),
		IdempotencyKey: queued.IdempotencyKey,
		JobType:        domain.JobTypePredictions,
		MatchID:        &matchID,
		Status:         domain.JobStatusQueued,
		ExecuteAt:      now,
	}
	existing, wasNew, err := repo.Enqueue(ctx, tx, dup)
	if err != nil {
		t.Fatalf("Enqueue duplicate: %v", err)
	}
	if wasNew {
		t.Fatalf("Enqueue duplicate: expected no-op")
	}
	if existing.ID != created.ID {
		t.Fatalf("Enqueue duplicate: expected original row, got %s", existing.ID)
	}

	// Claim picks the due queued job and moves it to running.
	claimed, err := repo.ClaimNextRunnable(ctx, tx, domain.JobTypePredictions, 5, 30*time.Second, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != created.ID {
		t.Fatalf("ClaimNextRunnable: expected %s, got %+v", created.ID, claimed)
	}

	reloaded, err := repo.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != domain.JobStatusRunning || reloaded.Attempts != 1 {
		t.Fatalf("claim must set running/attempts=1, got %s/%d", reloaded.Status, reloaded.Attempts)
	}

	// Nothing else is due.
	if extra, err := repo.ClaimNextRunnable(ctx, tx, domain.JobTypePredictions, 5, 30*time.Second, 30*time.Minute); err != nil || extra != nil {
		t.Fatalf("expected no claimable job, got %+v err=%v", extra, err)
	}

	// Fail it; within the retry delay it stays unclaimed, past it it is
	// claimable again.
	errAt := now.Add(-time.Minute)
	if err := repo.UpdateFields(ctx, tx, created.ID, map[string]interface{}{
		"status":        domain.JobStatusFailed,
		"last_error_at": errAt,
		"error":         "provider timeout",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got, err := repo.ClaimNextRunnable(ctx, tx, domain.JobTypePredictions, 5, 10*time.Minute, 30*time.Minute); err != nil || got != nil {
		t.Fatalf("failed job inside retry delay must not be claimed, got %+v err=%v", got, err)
	}
	retried, err := repo.ClaimNextRunnable(ctx, tx, domain.JobTypePredictions, 5, 30*time.Second, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable retry: %v", err)
	}
	if retried == nil || retried.ID != created.ID {
		t.Fatalf("expected failed job reclaimed after delay")
	}

	// Exhausted failed jobs move to the dead letter set.
	if err := repo.UpdateFields(ctx, tx, created.ID, map[string]interface{}{
		"status":   domain.JobStatusFailed,
		"attempts": 5,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	moved, err := repo.PromoteExhaustedToDead(ctx, tx, 5)
	if err != nil {
		t.Fatalf("PromoteExhaustedToDead: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 job promoted, got %d", moved)
	}
	if got, err := repo.ClaimNextRunnable(ctx, tx, domain.JobTypePredictions, 5, 0, 30*time.Minute); err != nil || got != nil {
		t.Fatalf("dead job must never be claimed, got %+v err=%v", got, err)
	}

	// Admin retry resurrects it regardless of which set it is in.
	requeued, err := repo.RequeueForRetry(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("RequeueForRetry: %v", err)
	}
	if !requeued {
		t.Fatalf("expected dead job requeued")
	}
	back, err := repo.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if back.Status != domain.JobStatusQueued || back.Attempts != 0 {
		t.Fatalf("requeue must reset to queued/0 attempts, got %s/%d", back.Status, back.Attempts)
	}
}

func TestJobRunRepo_StaleRunningReclaim(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	matchID := uuid.New()
	stale := now.Add(-2 * time.Hour)
	job := &domain.JobRun{
		ID:             uuid.New(),
		IdempotencyKey: "settlement:" + matchID.String(),
		JobType:        domain.JobTypeSettlement,
		MatchID:        &matchID,
		Status:         domain.JobStatusRunning,
		ExecuteAt:      now.Add(-3 * time.Hour),
		HeartbeatAt:    &stale,
	}
	if _, _, err := repo.Enqueue(ctx, tx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(ctx, tx, domain.JobTypeSettlement, 5, 30*time.Second, 30*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected stale running job reclaimed, got %+v", claimed)
	}
}
