package domain

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is the one row per (match, model) pair. The predictions job
// upserts it; settlement writes Points exactly once per finished match.
type Prediction struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MatchID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_prediction_match_model" json:"match_id"`
	ModelID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_prediction_match_model" json:"model_id"`
	HomeScore       int        `gorm:"column:home_score;not null" json:"home_score"`
	AwayScore       int        `gorm:"column:away_score;not null" json:"away_score"`
	Points          *int       `gorm:"column:points" json:"points,omitempty"`
	UsedFallback    bool       `gorm:"column:used_fallback;not null;default:false" json:"used_fallback"`
	FallbackModelID *uuid.UUID `gorm:"type:uuid;column:fallback_model_id" json:"fallback_model_id,omitempty"`
	CostUSD         float64    `gorm:"column:cost_usd;not null;default:0" json:"cost_usd"`
	RawResponse     string     `gorm:"column:raw_response" json:"raw_response,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Prediction) TableName() string { return "prediction" }

// Tendency collapses an exact score to home-win / draw / away-win.
func Tendency(home, away int) string {
	switch {
	case home > away:
		return "home"
	case home < away:
		return "away"
	default:
		return "draw"
	}
}
