package predictions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type PredictionRepo interface {
	// Upsert writes the (match, model) prediction. Repeated job executions
	// update the same row; they never create duplicates. Settled points are
	// never touched by an upsert.
	Upsert(ctx context.Context, tx *gorm.DB, p *domain.Prediction) error
	ListByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) ([]*domain.Prediction, error)
	CountByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) (int64, error)
	UpdatePoints(ctx context.Context, tx *gorm.DB, id uuid.UUID, points int) error
}

type predictionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredictionRepo(db *gorm.DB, baseLog *logger.Logger) PredictionRepo {
	return &predictionRepo{db: db, log: baseLog.With("repo", "PredictionRepo")}
}

func (r *predictionRepo) Upsert(ctx context.Context, tx *gorm.DB, p *domain.Prediction) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if p == nil || p.MatchID == uuid.Nil || p.ModelID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "match_id"}, {Name: "model_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"home_score", "away_score", "used_fallback", "fallback_model_id",
				"cost_usd", "raw_response", "updated_at",
			}),
		}).
		Create(p).Error
}

func (r *predictionRepo) ListByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) ([]*domain.Prediction, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Prediction
	if matchID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *predictionRepo) CountByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if matchID == uuid.Nil {
		return 0, nil
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("match_id = ?", matchID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *predictionRepo) UpdatePoints(ctx context.Context, tx *gorm.DB, id uuid.UUID, points int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.Prediction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"points":     points,
			"updated_at": time.Now(),
		}).Error
}
