// Package budget enforces per-provider daily request quotas. Counters live
// only in redis, keyed by provider and UTC date; the expiry set on the first
// increment of the day is the reset mechanism. There is no reset job.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khchop/kickscore/internal/observability"
	"github.com/khchop/kickscore/internal/platform/logger"
)

// ErrExceeded is the distinguishable budget-exceeded condition.
var ErrExceeded = errors.New("daily request budget exceeded")

// Counter is the atomic store operation the enforcer needs. expireAt is only
// applied when this increment created the key.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expireAt time.Time) (int64, error)
}

type Decision struct {
	Allowed  bool      `json:"allowed"`
	Used     int64     `json:"used"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resets_at"`
}

type Enforcer struct {
	log          *logger.Logger
	counter      Counter
	limits       map[string]int
	defaultLimit int
	storeTimeout time.Duration
	now          func() time.Time
}

func NewEnforcer(log *logger.Logger, counter Counter, limits map[string]int, defaultLimit int) *Enforcer {
	if defaultLimit <= 0 {
		defaultLimit = 500
	}
	return &Enforcer{
		log:          log.With("component", "BudgetEnforcer"),
		counter:      counter,
		limits:       limits,
		defaultLimit: defaultLimit,
		storeTimeout: 500 * time.Millisecond,
		now:          time.Now,
	}
}

// CheckAndIncrement counts this call against the provider's daily quota and
// returns ErrExceeded when the post-increment count is over the limit. A
// store outage fails open: availability of the prediction flow outweighs
// strict budget enforcement while infrastructure is degraded.
func (e *Enforcer) CheckAndIncrement(ctx context.Context, provider string) (Decision, error) {
	now := e.now().UTC()
	day := now.Format("2006-01-02")
	resetsAt := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	limit := e.limitFor(provider)

	cctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	used, err := e.counter.IncrWithExpiry(cctx, fmt.Sprintf("budget:%s:%s", provider, day), resetsAt)
	if err != nil {
		e.log.Warn("budget counter unavailable, failing open",
			"provider", provider,
			"error", err,
		)
		return Decision{Allowed: true, Limit: limit, ResetsAt: resetsAt}, nil
	}

	d := Decision{
		Allowed:  used <= int64(limit),
		Used:     used,
		Limit:    limit,
		ResetsAt: resetsAt,
	}
	if !d.Allowed {
		observability.ObserveBudgetRejection(ctx, provider)
		return d, fmt.Errorf("%w: provider=%s used=%d limit=%d", ErrExceeded, provider, used, limit)
	}
	return d, nil
}

func (e *Enforcer) limitFor(provider string) int {
	if l, ok := e.limits[provider]; ok && l > 0 {
		return l
	}
	return e.defaultLimit
}

// Limits returns a copy of the configured per-provider limits for the status
// surface.
func (e *Enforcer) Limits() map[string]int {
	out := make(map[string]int, len(e.limits))
	for k, v := range e.limits {
		out[k] = v
	}
	return out
}
