package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/data/repos/matches"
	"github.com/khchop/kickscore/internal/data/repos/predictions"
	"github.com/khchop/kickscore/internal/platform/logger"
)

// ErrResultMissing means the match is finished but carries no final score
// yet. The settlement job fails and retries until live monitoring has
// written the result.
var ErrResultMissing = errors.New("settlement: final score not recorded")

// Invalidator is notified once per completed settlement so downstream
// caches can drop stale aggregates.
type Invalidator interface {
	MatchSettled(ctx context.Context, matchID uuid.UUID, modelIDs []uuid.UUID)
}

type Engine struct {
	log         *logger.Logger
	db          *gorm.DB
	matches     matches.MatchRepo
	predictions predictions.PredictionRepo
	invalidator Invalidator
	now         func() time.Time
}

func NewEngine(log *logger.Logger, db *gorm.DB, m matches.MatchRepo, p predictions.PredictionRepo, inv Invalidator) *Engine {
	return &Engine{
		log:         log.With("component", "SettlementEngine"),
		db:          db,
		matches:     m,
		predictions: p,
		invalidator: inv,
		now:         time.Now,
	}
}

// Settle scores every prediction for a finished match, in one transaction
// holding a row lock on the match. Concurrent settlement of the same match
// serializes on the lock; whichever transaction commits second sees
// settled_at set and does nothing. A match without predictions still gets
// settled so it is never revisited.
func (e *Engine) Settle(ctx context.Context, matchID uuid.UUID) error {
	var settledModels []uuid.UUID
	var settled bool

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := e.matches.GetByIDForUpdate(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if match == nil {
			return fmt.Errorf("settlement: match %s not found", matchID)
		}
		if match.SettledAt != nil {
			e.log.Info("match already settled", "match_id", matchID)
			return nil
		}
		if match.HomeScore == nil || match.AwayScore == nil {
			return fmt.Errorf("%w: match %s", ErrResultMissing, matchID)
		}

		preds, err := e.predictions.ListByMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}

		quotas := TendencyQuotas(preds)
		for _, p := range preds {
			points := Score(p, *match.HomeScore, *match.AwayScore, quotas)
			if err := e.predictions.UpdatePoints(ctx, tx, p.ID, points); err != nil {
				return err
			}
			settledModels = append(settledModels, p.ModelID)
		}

		marked, err := e.matches.MarkSettled(ctx, tx, matchID, e.now())
		if err != nil {
			return err
		}
		settled = marked
		if marked {
			e.log.Info("match settled",
				"match_id", matchID,
				"predictions", len(preds),
				"home", *match.HomeScore,
				"away", *match.AwayScore,
			)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Invalidation fires after commit, and only for the run that actually
	// settled the match.
	if settled && e.invalidator != nil {
		e.invalidator.MatchSettled(ctx, matchID, settledModels)
	}
	return nil
}
