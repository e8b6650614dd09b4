package models

import (
	"context"
	"testing"
	"time"

	"github.com/khchop/kickscore/internal/data/repos/testutil"
	"github.com/khchop/kickscore/internal/domain"
)

func TestModelRepo_FailureTracking(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewModelRepo(db, testutil.Logger(t))

	seeded, err := repo.Create(ctx, tx, []*domain.Model{{
		Name:          "flaky-" + time.Now().Format("150405.000000"),
		Backend:       domain.BackendDeepSeek,
		UpstreamModel: "deepseek-chat",
		Active:        true,
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := seeded[0]

	// Two failures below the threshold: counted, still active.
	for i := 0; i < 2; i++ {
		disabled, err := repo.RecordFailure(ctx, tx, m.ID, 3)
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
		if disabled {
			t.Fatalf("failure %d must not disable below threshold", i)
		}
	}

	// A success resets the streak.
	if err := repo.RecordSuccess(ctx, tx, m.ID); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	got, err := repo.GetByID(ctx, tx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ConsecutiveFailures != 0 || !got.Active {
		t.Fatalf("success must reset streak, got %+v", got)
	}

	// Three consecutive failures disable exactly on the third.
	for i := 0; i < 2; i++ {
		if _, err := repo.RecordFailure(ctx, tx, m.ID, 3); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	disabled, err := repo.RecordFailure(ctx, tx, m.ID, 3)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !disabled {
		t.Fatalf("third consecutive failure must disable the model")
	}

	// Further failures on a disabled model report disabled=false so callers
	// log the transition exactly once.
	disabled, err = repo.RecordFailure(ctx, tx, m.ID, 3)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if disabled {
		t.Fatalf("already-disabled model must not report a second transition")
	}

	got, err = repo.GetByID(ctx, tx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Active || got.DisabledAt == nil {
		t.Fatalf("expected inactive with disabled_at set, got %+v", got)
	}
}

func TestModelRepo_ProbeEligibility(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewModelRepo(db, testutil.Logger(t))

	seeded, err := repo.Create(ctx, tx, []*domain.Model{
		{Name: "cooled-" + time.Now().Format("150405.000000"), Backend: domain.BackendOpenAI, UpstreamModel: "gpt-4o", Active: true},
		{Name: "recent-" + time.Now().Format("150405.000001"), Backend: domain.BackendOpenAI, UpstreamModel: "gpt-4o", Active: true},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cooled := seeded[0]

	for _, m := range seeded {
		if err := repo.SetActive(ctx, tx, m.ID, false); err != nil {
			t.Fatalf("SetActive: %v", err)
		}
	}
	// Backdate the first model past the cooldown window.
	old := time.Now().Add(-2 * time.Hour)
	if err := tx.Model(&domain.Model{}).Where("id = ?", cooled.ID).
		Update("disabled_at", old).Error; err != nil {
		t.Fatalf("backdate disabled_at: %v", err)
	}

	eligible, err := repo.ListProbeEligible(ctx, tx, time.Hour)
	if err != nil {
		t.Fatalf("ListProbeEligible: %v", err)
	}
	ids := map[string]bool{}
	for _, m := range eligible {
		ids[m.Name] = true
	}
	if !ids[cooled.Name] {
		t.Fatalf("model past cooldown must be probe eligible")
	}
	if ids[seeded[1].Name] {
		t.Fatalf("model inside cooldown must not be probe eligible")
	}

	// Re-enabling clears the failure bookkeeping.
	if err := repo.SetActive(ctx, tx, cooled.ID, true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	got, err := repo.GetByID(ctx, tx, cooled.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Active || got.DisabledAt != nil || got.ConsecutiveFailures != 0 {
		t.Fatalf("re-enable must clear disabled state, got %+v", got)
	}
}
