// Package services holds the small cross-cutting services that sit between
// the pipeline and the outside world.
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/khchop/kickscore/internal/platform/logger"
)

const invalidateChannel = "cache.invalidate"

// CacheInvalidator publishes invalidation events for downstream read caches.
// Settlement and model enable/disable each fire exactly one event; consumers
// drop the named namespaces.
type CacheInvalidator struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewCacheInvalidator(log *logger.Logger, rdb *goredis.Client) *CacheInvalidator {
	return &CacheInvalidator{
		log: log.With("component", "CacheInvalidator"),
		rdb: rdb,
	}
}

type invalidateEvent struct {
	Namespaces []string  `json:"namespaces"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// MatchSettled invalidates the settled match's stats plus every model that
// had a prediction on it. Publish failure is logged, not retried: caches
// expire on TTL anyway.
func (c *CacheInvalidator) MatchSettled(ctx context.Context, matchID uuid.UUID, modelIDs []uuid.UUID) {
	namespaces := []string{"stats:match:" + matchID.String()}
	seen := map[uuid.UUID]bool{}
	for _, id := range modelIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		namespaces = append(namespaces, "stats:model:"+id.String())
	}
	c.publish(ctx, namespaces, "settlement")
}

// ModelActivationChanged invalidates a model's stats when it is enabled or
// disabled.
func (c *CacheInvalidator) ModelActivationChanged(ctx context.Context, modelID uuid.UUID) {
	c.publish(ctx, []string{"stats:model:" + modelID.String()}, "model_activation")
}

func (c *CacheInvalidator) publish(ctx context.Context, namespaces []string, reason string) {
	if c.rdb == nil {
		return
	}
	payload, err := json.Marshal(invalidateEvent{
		Namespaces: namespaces,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rdb.Publish(pctx, invalidateChannel, payload).Err(); err != nil {
		c.log.Warn("cache invalidation publish failed",
			"reason", reason,
			"namespaces", len(namespaces),
			"error", err,
		)
		return
	}
	c.log.Debug("cache invalidation published", "reason", reason, "namespaces", namespaces)
}
