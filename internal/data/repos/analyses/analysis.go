package analyses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type AnalysisRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, a *domain.MatchAnalysis) error
	GetByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) (*domain.MatchAnalysis, error)
}

type analysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRepo {
	return &analysisRepo{db: db, log: baseLog.With("repo", "AnalysisRepo")}
}

func (r *analysisRepo) Upsert(ctx context.Context, tx *gorm.DB, a *domain.MatchAnalysis) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if a == nil || a.MatchID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "match_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"summary", "home_form", "away_form", "updated_at",
			}),
		}).
		Create(a).Error
}

func (r *analysisRepo) GetByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) (*domain.MatchAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if matchID == uuid.Nil {
		return nil, nil
	}
	var a domain.MatchAnalysis
	err := transaction.WithContext(ctx).Where("match_id = ?", matchID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
