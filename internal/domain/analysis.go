package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MatchAnalysis is produced by the analysis job ahead of predictions. The
// predictions prompt embeds it; settlement treats predictions without an
// analysis row as an upstream pipeline fault.
type MatchAnalysis struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MatchID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"match_id"`
	Summary   string         `gorm:"column:summary;not null" json:"summary"`
	HomeForm  datatypes.JSON `gorm:"column:home_form;type:jsonb" json:"home_form"`
	AwayForm  datatypes.JSON `gorm:"column:away_form;type:jsonb" json:"away_form"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (MatchAnalysis) TableName() string { return "match_analysis" }
