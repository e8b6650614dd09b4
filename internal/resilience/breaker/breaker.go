// Package breaker implements the per-service circuit breaker with dual
// persistence: redis as the fast authoritative cache, postgres as the source
// of truth across cache restarts. If neither store is reachable the breaker
// reports open so a degraded dependency is not flooded.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/observability"
	"github.com/khchop/kickscore/internal/platform/logger"
)

// Snapshot is the store-independent breaker state for one service.
type Snapshot struct {
	State            string    `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// CacheStore is the fast path. A nil snapshot with nil error means the key
// is cold (e.g. after a cache restart), which triggers durable recovery.
type CacheStore interface {
	Get(ctx context.Context, service string) (*Snapshot, error)
	Set(ctx context.Context, service string, s *Snapshot) error
}

// DurableStore survives cache restarts.
type DurableStore interface {
	Load(ctx context.Context, service string) (*Snapshot, error)
	Save(ctx context.Context, service string, s *Snapshot) error
}

type Options struct {
	FailureThreshold int
	OpenTimeout      time.Duration
	// StoreTimeout bounds every cache/durable round trip so a degraded
	// store never blocks pipeline execution.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 60 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 500 * time.Millisecond
	}
	return o
}

type Breaker struct {
	log     *logger.Logger
	cache   CacheStore
	durable DurableStore
	opts    Options
	now     func() time.Time

	mu sync.Mutex
	// probeInFlight tracks the single half-open probe per service within
	// this process, by claim time.
	probeInFlight map[string]time.Time
}

func New(log *logger.Logger, cache CacheStore, durable DurableStore, opts Options) *Breaker {
	return &Breaker{
		log:           log.With("component", "CircuitBreaker"),
		cache:         cache,
		durable:       durable,
		opts:          opts.withDefaults(),
		now:           time.Now,
		probeInFlight: map[string]time.Time{},
	}
}

// Allow reports whether a call to the service may proceed. The second return
// is a reason string for logging and typed denials.
func (b *Breaker) Allow(ctx context.Context, service string) (bool, string) {
	snap, ok := b.load(ctx, service)
	if !ok {
		// Both stores unreachable. Fail safe: assume the worst for this
		// service rather than hammering a possibly-degraded dependency.
		b.log.Warn("breaker stores unreachable, failing safe to open", "service", service)
		return false, "stores unreachable"
	}
	if snap == nil {
		return true, ""
	}

	switch snap.State {
	case domain.CircuitOpen:
		if b.now().Sub(snap.LastTransitionAt) >= b.opts.OpenTimeout {
			b.transition(ctx, service, snap, domain.CircuitHalfOpen)
			if b.takeProbe(service) {
				return true, "half-open probe"
			}
			return false, "half-open, probe in flight"
		}
		return false, "circuit open"
	case domain.CircuitHalfOpen:
		if b.takeProbe(service) {
			return true, "half-open probe"
		}
		return false, "half-open, probe in flight"
	default:
		return true, ""
	}
}

func (b *Breaker) RecordSuccess(ctx context.Context, service string) {
	snap, ok := b.load(ctx, service)
	if !ok || snap == nil {
		snap = &Snapshot{State: domain.CircuitClosed}
	}
	snap.Successes++
	snap.Failures = 0
	if snap.State != domain.CircuitClosed {
		snap.State = domain.CircuitClosed
		snap.LastTransitionAt = b.now()
		b.clearProbe(service)
		b.log.Info("circuit closed", "service", service)
		observability.ObserveCircuitTransition(ctx, service, domain.CircuitClosed)
	}
	b.persist(ctx, service, snap)
}

func (b *Breaker) RecordFailure(ctx context.Context, service string, err error) {
	snap, ok := b.load(ctx, service)
	if !ok || snap == nil {
		snap = &Snapshot{State: domain.CircuitClosed}
	}
	snap.Failures++

	switch snap.State {
	case domain.CircuitHalfOpen:
		// Probe failed: straight back to open.
		snap.State = domain.CircuitOpen
		snap.LastTransitionAt = b.now()
		b.clearProbe(service)
		b.log.Warn("half-open probe failed, circuit reopened", "service", service, "error", err)
		observability.ObserveCircuitTransition(ctx, service, domain.CircuitOpen)
	case domain.CircuitClosed:
		if snap.Failures >= b.opts.FailureThreshold {
			snap.State = domain.CircuitOpen
			snap.LastTransitionAt = b.now()
			b.log.Warn("failure threshold reached, circuit opened",
				"service", service,
				"failures", snap.Failures,
				"error", err,
			)
			observability.ObserveCircuitTransition(ctx, service, domain.CircuitOpen)
		}
	}
	b.persist(ctx, service, snap)
}

// IsOpen is the short-circuit check used by status surfaces.
func (b *Breaker) IsOpen(ctx context.Context, service string) bool {
	allowed, _ := b.Allow(ctx, service)
	return !allowed
}

// load consults the fast cache first, then the durable store. ok=false means
// neither store answered.
func (b *Breaker) load(ctx context.Context, service string) (*Snapshot, bool) {
	cctx, cancel := context.WithTimeout(ctx, b.opts.StoreTimeout)
	snap, cacheErr := b.cache.Get(cctx, service)
	cancel()
	if cacheErr == nil && snap != nil {
		return snap, true
	}

	dctx, cancel := context.WithTimeout(ctx, b.opts.StoreTimeout)
	durable, durableErr := b.durable.Load(dctx, service)
	cancel()
	if durableErr != nil {
		if cacheErr != nil {
			return nil, false
		}
		// Cache answered "cold", durable is down: treat as no state.
		return nil, true
	}
	if durable != nil {
		b.log.Info("circuit state recovered from durable store",
			"service", service,
			"state", durable.State,
		)
		sctx, cancel := context.WithTimeout(ctx, b.opts.StoreTimeout)
		if err := b.cache.Set(sctx, service, durable); err != nil {
			b.log.Warn("failed to rehydrate breaker cache", "service", service, "error", err)
		}
		cancel()
	}
	return durable, true
}

func (b *Breaker) persist(ctx context.Context, service string, snap *Snapshot) {
	cctx, cancel := context.WithTimeout(ctx, b.opts.StoreTimeout)
	if err := b.cache.Set(cctx, service, snap); err != nil {
		b.log.Warn("breaker cache write failed", "service", service, "error", err)
	}
	cancel()

	dctx, cancel := context.WithTimeout(ctx, b.opts.StoreTimeout)
	if err := b.durable.Save(dctx, service, snap); err != nil {
		b.log.Warn("breaker durable write failed", "service", service, "error", err)
	}
	cancel()
}

func (b *Breaker) transition(ctx context.Context, service string, snap *Snapshot, state string) {
	snap.State = state
	snap.LastTransitionAt = b.now()
	b.persist(ctx, service, snap)
	b.log.Info("circuit transition", "service", service, "state", state)
	observability.ObserveCircuitTransition(ctx, service, state)
}

// takeProbe claims the single in-flight half-open probe for a service. A
// claim whose outcome never arrived within the open timeout is abandoned
// (caller crashed or never reported) and handed to the next caller.
func (b *Breaker) takeProbe(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if claimedAt, ok := b.probeInFlight[service]; ok {
		if b.now().Sub(claimedAt) < b.opts.OpenTimeout {
			return false
		}
		b.log.Warn("abandoned half-open probe claim expired", "service", service)
	}
	b.probeInFlight[service] = b.now()
	return true
}

func (b *Breaker) clearProbe(service string) {
	b.mu.Lock()
	delete(b.probeInFlight, service)
	b.mu.Unlock()
}
