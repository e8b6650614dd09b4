// Package runtime is the execution contract between the job worker and the
// pipeline handlers. A Context wraps one claimed job_run row; handlers report
// lifecycle transitions only through it.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/data/repos/jobs"
	"github.com/khchop/kickscore/internal/domain"
)

type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *domain.JobRun
	Repo    jobs.JobRunRepo
	payload map[string]any
}

// NewContext builds the execution handle for a claimed job. Payload decode
// failure is non-fatal; handlers validate the fields they need.
func NewContext(ctx context.Context, db *gorm.DB, job *domain.JobRun, repo jobs.JobRunRepo) *Context {
	c := &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// MatchID returns the job's match reference. Most handlers need exactly this
// and nothing else from the row.
func (c *Context) MatchID() (uuid.UUID, bool) {
	if c.Job == nil || c.Job.MatchID == nil || *c.Job.MatchID == uuid.Nil {
		return uuid.Nil, false
	}
	return *c.Job.MatchID, true
}

func (c *Context) PayloadString(key string) (string, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

// Progress persists a non-terminal stage update plus a heartbeat.
func (c *Context) Progress(stage string) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.Ctx, c.DB, c.Job.ID,
		[]string{domain.JobStatusSucceeded, domain.JobStatusDead},
		map[string]interface{}{
			"stage":        stage,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if !ok {
		return
	}
	c.Job.Stage = stage
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now
}

// Fail marks the run failed. The worker's retry query picks it up again once
// the retry delay passes, until attempts are exhausted.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.Ctx, c.DB, c.Job.ID,
		[]string{domain.JobStatusSucceeded, domain.JobStatusDead},
		map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
	if !ok {
		return
	}
	c.Job.Status = domain.JobStatusFailed
	c.Job.Stage = stage
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
}

// Succeed marks the run done and stores its result payload.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.Ctx, c.DB, c.Job.ID,
		[]string{domain.JobStatusDead},
		map[string]interface{}{
			"status":       domain.JobStatusSucceeded,
			"stage":        finalStage,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if !ok {
		return
	}
	c.Job.Status = domain.JobStatusSucceeded
	c.Job.Stage = finalStage
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.LockedAt = nil
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now
}

// Heartbeat refreshes the liveness timestamp without changing stage. Long
// provider calls run this on a ticker so the stale-running reclaim does not
// steal the job.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Repo.Heartbeat(c.Ctx, c.DB, c.Job.ID)
}
