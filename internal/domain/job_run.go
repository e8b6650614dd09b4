package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobTypeAnalysis        = "analysis"
	JobTypePredictions     = "predictions"
	JobTypePredictionRetry = "prediction_retry"
	JobTypeLiveMonitor     = "live_monitor"
	JobTypeSettlement      = "settlement"
	JobTypeBackfill        = "backfill"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	// JobStatusDead is the dead-letter state: attempts exhausted, only an
	// explicit admin retry puts the job back in the queue.
	JobStatusDead = "dead"
)

type JobRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	IdempotencyKey string         `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	JobType        string         `gorm:"column:job_type;not null;index" json:"job_type"`
	MatchID        *uuid.UUID     `gorm:"type:uuid;column:match_id;index" json:"match_id,omitempty"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	Stage          string         `gorm:"column:stage;not null" json:"stage"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	ExecuteAt      time.Time      `gorm:"column:execute_at;not null;index" json:"execute_at"`
	Error          string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt       *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt    *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result         datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
