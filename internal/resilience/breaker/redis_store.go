package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// redisCacheStore keeps breaker snapshots under circuit:{service} with a
// freshness TTL. An expired or missing key reads as cold and triggers
// durable recovery.
type redisCacheStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisCacheStore(rdb *goredis.Client, ttl time.Duration) CacheStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisCacheStore{rdb: rdb, ttl: ttl}
}

func (s *redisCacheStore) key(service string) string { return "circuit:" + service }

func (s *redisCacheStore) Get(ctx context.Context, service string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key(service)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *redisCacheStore) Set(ctx context.Context, service string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(service), raw, s.ttl).Err()
}
