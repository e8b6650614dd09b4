package predictions

import (
	"context"
	"testing"
	"time"

	"github.com/khchop/kickscore/internal/data/repos/testutil"
	"github.com/khchop/kickscore/internal/domain"
)

func TestPredictionRepo_UpsertUniqueness(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewPredictionRepo(db, testutil.Logger(t))

	suffix := time.Now().Format("150405.000000")
	match := &domain.Match{
		ExternalID:    "pred-" + suffix,
		HomeTeam:      "Leipzig",
		AwayTeam:      "Freiburg",
		CompetitionID: "bl1",
		KickoffAt:     time.Now().Add(24 * time.Hour),
		Status:        domain.MatchStatusScheduled,
	}
	if err := tx.Create(match).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}
	modelA := &domain.Model{Name: "pred-a-" + suffix, Backend: domain.BackendOpenAI, UpstreamModel: "gpt-4o", Active: true}
	modelB := &domain.Model{Name: "pred-b-" + suffix, Backend: domain.BackendOpenAI, UpstreamModel: "gpt-4o-mini", Active: true}
	for _, m := range []*domain.Model{modelA, modelB} {
		if err := tx.Create(m).Error; err != nil {
			t.Fatalf("seed model: %v", err)
		}
	}

	first := &domain.Prediction{
		MatchID:   match.ID,
		ModelID:   modelA.ID,
		HomeScore: 2,
		AwayScore: 1,
	}
	if err := repo.Upsert(ctx, tx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// A repeated job execution for the same (match, model) pair updates in
	// place, never duplicates.
	second := &domain.Prediction{
		MatchID:      match.ID,
		ModelID:      modelA.ID,
		HomeScore:    1,
		AwayScore:    1,
		UsedFallback: true,
	}
	if err := repo.Upsert(ctx, tx, second); err != nil {
		t.Fatalf("Upsert repeat: %v", err)
	}

	rows, err := repo.ListByMatch(ctx, tx, match.ID)
	if err != nil {
		t.Fatalf("ListByMatch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after repeated upsert, got %d", len(rows))
	}
	if rows[0].HomeScore != 1 || rows[0].AwayScore != 1 || !rows[0].UsedFallback {
		t.Fatalf("expected updated scores, got %+v", rows[0])
	}

	if err := repo.Upsert(ctx, tx, &domain.Prediction{
		MatchID:   match.ID,
		ModelID:   modelB.ID,
		HomeScore: 0,
		AwayScore: 0,
	}); err != nil {
		t.Fatalf("Upsert second model: %v", err)
	}
	count, err := repo.CountByMatch(ctx, tx, match.ID)
	if err != nil {
		t.Fatalf("CountByMatch: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 predictions, got %d", count)
	}
}

func TestPredictionRepo_UpsertPreservesPoints(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewPredictionRepo(db, testutil.Logger(t))

	suffix := time.Now().Format("150405.000001")
	match := &domain.Match{
		ExternalID:    "pts-" + suffix,
		HomeTeam:      "Mainz",
		AwayTeam:      "Bochum",
		CompetitionID: "bl1",
		KickoffAt:     time.Now().Add(-2 * time.Hour),
		Status:        domain.MatchStatusFinished,
	}
	if err := tx.Create(match).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}
	model := &domain.Model{Name: "pts-" + suffix, Backend: domain.BackendMistral, UpstreamModel: "mistral-large-latest", Active: true}
	if err := tx.Create(model).Error; err != nil {
		t.Fatalf("seed model: %v", err)
	}

	p := &domain.Prediction{MatchID: match.ID, ModelID: model.ID, HomeScore: 2, AwayScore: 0}
	if err := repo.Upsert(ctx, tx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	rows, err := repo.ListByMatch(ctx, tx, match.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByMatch: err=%v len=%d", err, len(rows))
	}
	if err := repo.UpdatePoints(ctx, tx, rows[0].ID, 7); err != nil {
		t.Fatalf("UpdatePoints: %v", err)
	}

	// A late re-run of the predictions job must not wipe settled points.
	if err := repo.Upsert(ctx, tx, &domain.Prediction{
		MatchID:   match.ID,
		ModelID:   model.ID,
		HomeScore: 3,
		AwayScore: 1,
	}); err != nil {
		t.Fatalf("Upsert after settle: %v", err)
	}
	rows, err = repo.ListByMatch(ctx, tx, match.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByMatch: err=%v len=%d", err, len(rows))
	}
	if rows[0].Points == nil || *rows[0].Points != 7 {
		t.Fatalf("expected points preserved across upsert, got %+v", rows[0].Points)
	}
}
