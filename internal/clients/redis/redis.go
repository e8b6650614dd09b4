// Package redis builds the shared redis client used by the circuit-breaker
// cache, the budget counters and cache invalidation publishing.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/khchop/kickscore/internal/platform/envutil"
	"github.com/khchop/kickscore/internal/platform/logger"
)

func New(ctx context.Context, log *logger.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         envutil.String("REDIS_ADDR", "localhost:6379"),
		Password:     envutil.String("REDIS_PASSWORD", ""),
		DB:           envutil.Int("REDIS_DB", 0),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis connected", "addr", client.Options().Addr)
	return client, nil
}
