package circuits

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type CircuitStateRepo interface {
	Get(ctx context.Context, tx *gorm.DB, service string) (*domain.CircuitState, error)
	Upsert(ctx context.Context, tx *gorm.DB, s *domain.CircuitState) error
	ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.CircuitState, error)
}

type circuitStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCircuitStateRepo(db *gorm.DB, baseLog *logger.Logger) CircuitStateRepo {
	return &circuitStateRepo{db: db, log: baseLog.With("repo", "CircuitStateRepo")}
}

func (r *circuitStateRepo) Get(ctx context.Context, tx *gorm.DB, service string) (*domain.CircuitState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if service == "" {
		return nil, nil
	}
	var s domain.CircuitState
	err := transaction.WithContext(ctx).Where("service = ?", service).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *circuitStateRepo) Upsert(ctx context.Context, tx *gorm.DB, s *domain.CircuitState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if s == nil || s.Service == "" {
		return nil
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "service"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "failures", "successes", "last_transition_at", "updated_at",
			}),
		}).
		Create(s).Error
}

func (r *circuitStateRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.CircuitState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.CircuitState
	if err := transaction.WithContext(ctx).Order("service ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
