package matches

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type MatchRepo interface {
	UpsertFromFixture(ctx context.Context, tx *gorm.DB, m *domain.Match) (*domain.Match, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Match, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Match, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, statuses []string) ([]*domain.Match, error)
	ListUnscheduled(ctx context.Context, tx *gorm.DB, kickoffBefore time.Time) ([]*domain.Match, error)
	UpdateStatusAndScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, home, away *int) error
	MarkSettled(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error)
}

type matchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMatchRepo(db *gorm.DB, baseLog *logger.Logger) MatchRepo {
	return &matchRepo{db: db, log: baseLog.With("repo", "MatchRepo")}
}

func (r *matchRepo) UpsertFromFixture(ctx context.Context, tx *gorm.DB, m *domain.Match) (*domain.Match, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if m == nil || m.ExternalID == "" {
		return nil, errors.New("match requires external_id")
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"home_team", "away_team", "competition_id", "kickoff_at", "status", "updated_at",
			}),
		}).
		Create(m).Error
	if err != nil {
		return nil, err
	}
	// Re-read so callers always see the canonical row id on conflict.
	var out domain.Match
	if err := transaction.WithContext(ctx).Where("external_id = ?", m.ExternalID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *matchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Match, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var m domain.Match
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByIDForUpdate takes a row lock on the match. Settlement serializes on
// this lock so a retry racing the original cannot double-score.
func (r *matchRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Match, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var m domain.Match
	err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepo) ListByStatus(ctx context.Context, tx *gorm.DB, statuses []string) ([]*domain.Match, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Match
	if len(statuses) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("kickoff_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnscheduled returns matches in a schedulable status with kickoff before
// the horizon. Kickoffs already in the past are included on purpose: after an
// outage the catch-up pass must still see them.
func (r *matchRepo) ListUnscheduled(ctx context.Context, tx *gorm.DB, kickoffBefore time.Time) ([]*domain.Match, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Match
	err := transaction.WithContext(ctx).
		Where("status NOT IN ? AND kickoff_at < ?",
			[]string{domain.MatchStatusFinished, domain.MatchStatusCancelled}, kickoffBefore).
		Order("kickoff_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *matchRepo) UpdateStatusAndScore(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, home, away *int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if home != nil {
		updates["home_score"] = *home
	}
	if away != nil {
		updates["away_score"] = *away
	}
	return transaction.WithContext(ctx).
		Model(&domain.Match{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkSettled flips settled_at once. Returns false when the match was already
// settled, which callers treat as the idempotent no-op signal.
func (r *matchRepo) MarkSettled(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(ctx).
		Model(&domain.Match{}).
		Where("id = ? AND settled_at IS NULL", id).
		Updates(map[string]interface{}{
			"settled_at": at,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
