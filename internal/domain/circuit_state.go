package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// CircuitState is the durable mirror of per-service breaker state. Redis is
// authoritative while fresh; this row is the source of truth across cache
// restarts.
type CircuitState struct {
	ID               uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Service          string    `gorm:"column:service;not null;uniqueIndex" json:"service"`
	State            string    `gorm:"column:state;not null;default:closed" json:"state"`
	Failures         int       `gorm:"column:failures;not null;default:0" json:"failures"`
	Successes        int       `gorm:"column:successes;not null;default:0" json:"successes"`
	LastTransitionAt time.Time `gorm:"column:last_transition_at;not null;default:now()" json:"last_transition_at"`
	UpdatedAt        time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CircuitState) TableName() string { return "circuit_state" }
