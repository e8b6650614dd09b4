package budget

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type redisCounter struct {
	rdb *goredis.Client
}

func NewRedisCounter(rdb *goredis.Client) Counter {
	return &redisCounter{rdb: rdb}
}

// IncrWithExpiry is the atomic post-increment. The expiry is attached only
// when INCR created the key, so the counter disappears at the next UTC
// midnight on its own.
func (c *redisCounter) IncrWithExpiry(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.rdb.ExpireAt(ctx, key, expireAt).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}
