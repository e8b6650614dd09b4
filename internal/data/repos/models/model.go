package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type ModelRepo interface {
	Create(ctx context.Context, tx *gorm.DB, models []*domain.Model) ([]*domain.Model, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Model, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*domain.Model, error)
	ListActive(ctx context.Context, tx *gorm.DB) ([]*domain.Model, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.Model, error)
	// RecordFailure increments the consecutive-failure counter and disables
	// the model once it crosses disableAfter. Returns true when this call is
	// the one that disabled it.
	RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, disableAfter int) (bool, error)
	RecordSuccess(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	// ListProbeEligible returns disabled models whose cooldown has elapsed,
	// candidates for a single re-enable probe.
	ListProbeEligible(ctx context.Context, tx *gorm.DB, cooldown time.Duration) ([]*domain.Model, error)
	SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, active bool) error
}

type modelRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewModelRepo(db *gorm.DB, baseLog *logger.Logger) ModelRepo {
	return &modelRepo{db: db, log: baseLog.With("repo", "ModelRepo")}
}

func (r *modelRepo) Create(ctx context.Context, tx *gorm.DB, models []*domain.Model) ([]*domain.Model, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(models) == 0 {
		return []*domain.Model{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

func (r *modelRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Model, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var m domain.Model
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *modelRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*domain.Model, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" {
		return nil, nil
	}
	var m domain.Model
	err := transaction.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *modelRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*domain.Model, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Model
	if err := transaction.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *modelRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.Model, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Model
	if err := transaction.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *modelRepo) RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, disableAfter int) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	now := time.Now()
	disabled := false
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&domain.Model{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
				"last_failure_at":      now,
				"updated_at":           now,
			}).Error; err != nil {
			return err
		}
		if disableAfter <= 0 {
			return nil
		}
		res := txx.Model(&domain.Model{}).
			Where("id = ? AND active = ? AND consecutive_failures >= ?", id, true, disableAfter).
			Updates(map[string]interface{}{
				"active":      false,
				"disabled_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		disabled = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return disabled, nil
}

func (r *modelRepo) RecordSuccess(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.Model{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"consecutive_failures": 0,
			"updated_at":           time.Now(),
		}).Error
}

func (r *modelRepo) ListProbeEligible(ctx context.Context, tx *gorm.DB, cooldown time.Duration) ([]*domain.Model, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	cutoff := time.Now().Add(-cooldown)
	var out []*domain.Model
	err := transaction.WithContext(ctx).
		Where("active = ? AND disabled_at IS NOT NULL AND disabled_at < ?", false, cutoff).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *modelRepo) SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, active bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	updates := map[string]interface{}{
		"active":     active,
		"updated_at": time.Now(),
	}
	if active {
		updates["consecutive_failures"] = 0
		updates["disabled_at"] = nil
	} else {
		updates["disabled_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&domain.Model{}).
		Where("id = ?", id).
		Updates(updates).Error
}
