package matches

import (
	"context"
	"testing"
	"time"

	"github.com/khchop/kickscore/internal/data/repos/testutil"
	"github.com/khchop/kickscore/internal/domain"
)

func TestMatchRepo_UpsertFromFixture(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewMatchRepo(db, testutil.Logger(t))

	kickoff := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	first, err := repo.UpsertFromFixture(ctx, tx, &domain.Match{
		ExternalID:    "feed-1001",
		HomeTeam:      "Bayern",
		AwayTeam:      "Dortmund",
		CompetitionID: "bundesliga",
		KickoffAt:     kickoff,
		Status:        domain.MatchStatusScheduled,
	})
	if err != nil {
		t.Fatalf("UpsertFromFixture: %v", err)
	}

	// Feed moved the kickoff: same external id must update in place.
	moved := kickoff.Add(2 * time.Hour)
	second, err := repo.UpsertFromFixture(ctx, tx, &domain.Match{
		ExternalID:    "feed-1001",
		HomeTeam:      "Bayern",
		AwayTeam:      "Dortmund",
		CompetitionID: "bundesliga",
		KickoffAt:     moved,
		Status:        domain.MatchStatusScheduled,
	})
	if err != nil {
		t.Fatalf("UpsertFromFixture update: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert must keep the canonical row, got new id %s", second.ID)
	}
	if !second.KickoffAt.Equal(moved) {
		t.Fatalf("kickoff not updated: %v", second.KickoffAt)
	}
}

func TestMatchRepo_ListUnscheduledIncludesPastKickoffs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewMatchRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	seed := []*domain.Match{
		{ExternalID: "feed-past", HomeTeam: "A", AwayTeam: "B", CompetitionID: "c", KickoffAt: now.Add(-2 * time.Hour), Status: domain.MatchStatusScheduled},
		{ExternalID: "feed-soon", HomeTeam: "C", AwayTeam: "D", CompetitionID: "c", KickoffAt: now.Add(3 * time.Hour), Status: domain.MatchStatusScheduled},
		{ExternalID: "feed-far", HomeTeam: "E", AwayTeam: "F", CompetitionID: "c", KickoffAt: now.Add(90 * time.Hour), Status: domain.MatchStatusScheduled},
		{ExternalID: "feed-done", HomeTeam: "G", AwayTeam: "H", CompetitionID: "c", KickoffAt: now.Add(-1 * time.Hour), Status: domain.MatchStatusFinished},
	}
	for _, m := range seed {
		if _, err := repo.UpsertFromFixture(ctx, tx, m); err != nil {
			t.Fatalf("seed %s: %v", m.ExternalID, err)
		}
	}

	out, err := repo.ListUnscheduled(ctx, tx, now.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("ListUnscheduled: %v", err)
	}
	got := map[string]bool{}
	for _, m := range out {
		got[m.ExternalID] = true
	}
	if !got["feed-past"] {
		t.Fatalf("past kickoff must be included for catch-up scheduling")
	}
	if !got["feed-soon"] {
		t.Fatalf("upcoming match inside horizon missing")
	}
	if got["feed-far"] {
		t.Fatalf("match beyond horizon must be excluded")
	}
	if got["feed-done"] {
		t.Fatalf("finished match must be excluded")
	}
}

func TestMatchRepo_MarkSettledOnce(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewMatchRepo(db, testutil.Logger(t))

	m, err := repo.UpsertFromFixture(ctx, tx, &domain.Match{
		ExternalID:    "feed-settle",
		HomeTeam:      "A",
		AwayTeam:      "B",
		CompetitionID: "c",
		KickoffAt:     time.Now().UTC().Add(-3 * time.Hour),
		Status:        domain.MatchStatusFinished,
	})
	if err != nil {
		t.Fatalf("UpsertFromFixture: %v", err)
	}

	now := time.Now().UTC()
	settled, err := repo.MarkSettled(ctx, tx, m.ID, now)
	if err != nil {
		t.Fatalf("MarkSettled: %v", err)
	}
	if !settled {
		t.Fatalf("first MarkSettled must win")
	}

	again, err := repo.MarkSettled(ctx, tx, m.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkSettled repeat: %v", err)
	}
	if again {
		t.Fatalf("second MarkSettled must be a no-op")
	}
}

func TestMatchRepo_UpdateStatusAndScore(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewMatchRepo(db, testutil.Logger(t))

	m, err := repo.UpsertFromFixture(ctx, tx, &domain.Match{
		ExternalID:    "feed-live",
		HomeTeam:      "A",
		AwayTeam:      "B",
		CompetitionID: "c",
		KickoffAt:     time.Now().UTC(),
		Status:        domain.MatchStatusScheduled,
	})
	if err != nil {
		t.Fatalf("UpsertFromFixture: %v", err)
	}

	home, away := 2, 1
	if err := repo.UpdateStatusAndScore(ctx, tx, m.ID, domain.MatchStatusLive, &home, &away); err != nil {
		t.Fatalf("UpdateStatusAndScore: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.MatchStatusLive || got.HomeScore == nil || *got.HomeScore != 2 || got.AwayScore == nil || *got.AwayScore != 1 {
		t.Fatalf("status/score not applied: %+v", got)
	}
}
