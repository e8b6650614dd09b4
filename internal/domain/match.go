package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MatchStatusScheduled = "scheduled"
	MatchStatusLive      = "live"
	MatchStatusFinished  = "finished"
	MatchStatusPostponed = "postponed"
	MatchStatusCancelled = "cancelled"
)

type Match struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ExternalID    string     `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	HomeTeam      string     `gorm:"column:home_team;not null" json:"home_team"`
	AwayTeam      string     `gorm:"column:away_team;not null" json:"away_team"`
	CompetitionID string     `gorm:"column:competition_id;not null;index" json:"competition_id"`
	KickoffAt     time.Time  `gorm:"column:kickoff_at;not null;index" json:"kickoff_at"`
	Status        string     `gorm:"column:status;not null;index;default:scheduled" json:"status"`
	HomeScore     *int       `gorm:"column:home_score" json:"home_score,omitempty"`
	AwayScore     *int       `gorm:"column:away_score" json:"away_score,omitempty"`
	SettledAt     *time.Time `gorm:"column:settled_at" json:"settled_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Match) TableName() string { return "match" }

// SchedulableStatus reports whether pipeline jobs may still be scheduled for
// this match. Gating is on status only; a kickoff in the past must not block
// catch-up scheduling after downtime.
func (m *Match) SchedulableStatus() bool {
	switch m.Status {
	case MatchStatusFinished, MatchStatusCancelled:
		return false
	default:
		return true
	}
}
