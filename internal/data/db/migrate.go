package db

import (
	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/domain"
)

func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&domain.Match{},
		&domain.Model{},
		&domain.Prediction{},
		&domain.MatchAnalysis{},
		&domain.JobRun{},
		&domain.CircuitState{},
	)
}
