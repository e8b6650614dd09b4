package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type memCache struct {
	data map[string]*Snapshot
	err  error
}

func (m *memCache) Get(ctx context.Context, service string) (*Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.data[service]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memCache) Set(ctx context.Context, service string, s *Snapshot) error {
	if m.err != nil {
		return m.err
	}
	cp := *s
	m.data[service] = &cp
	return nil
}

type memDurable struct {
	data map[string]*Snapshot
	err  error
}

func (m *memDurable) Load(ctx context.Context, service string) (*Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.data[service]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memDurable) Save(ctx context.Context, service string, s *Snapshot) error {
	if m.err != nil {
		return m.err
	}
	cp := *s
	m.data[service] = &cp
	return nil
}

func newTestBreaker(t *testing.T) (*Breaker, *memCache, *memDurable, *time.Time) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	cache := &memCache{data: map[string]*Snapshot{}}
	durable := &memDurable{data: map[string]*Snapshot{}}
	b := New(log, cache, durable, Options{FailureThreshold: 3, OpenTimeout: time.Minute})
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, cache, durable, &now
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _, durable, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b.RecordFailure(ctx, "openai", errors.New("boom"))
		if allowed, _ := b.Allow(ctx, "openai"); !allowed {
			t.Fatalf("breaker must stay closed below threshold (failure %d)", i+1)
		}
	}
	b.RecordFailure(ctx, "openai", errors.New("boom"))

	if allowed, reason := b.Allow(ctx, "openai"); allowed {
		t.Fatalf("expected open circuit, got allowed (%s)", reason)
	}
	if durable.data["openai"].State != domain.CircuitOpen {
		t.Fatalf("expected durable mirror open, got %s", durable.data["openai"].State)
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	b, _, _, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "openai", errors.New("boom"))
	}
	*now = now.Add(2 * time.Minute)

	allowed, reason := b.Allow(ctx, "openai")
	if !allowed {
		t.Fatalf("expected probe after open timeout, got denied (%s)", reason)
	}
	if allowed, _ := b.Allow(ctx, "openai"); allowed {
		t.Fatalf("expected second caller denied while probe in flight")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b, _, _, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "openai", errors.New("boom"))
	}
	*now = now.Add(2 * time.Minute)
	if allowed, _ := b.Allow(ctx, "openai"); !allowed {
		t.Fatalf("expected probe allowed")
	}
	b.RecordSuccess(ctx, "openai")

	if allowed, _ := b.Allow(ctx, "openai"); !allowed {
		t.Fatalf("expected closed circuit after probe success")
	}
	if allowed, _ := b.Allow(ctx, "openai"); !allowed {
		t.Fatalf("closed circuit must allow repeated calls")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, _, _, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "openai", errors.New("boom"))
	}
	*now = now.Add(2 * time.Minute)
	if allowed, _ := b.Allow(ctx, "openai"); !allowed {
		t.Fatalf("expected probe allowed")
	}
	b.RecordFailure(ctx, "openai", errors.New("still down"))

	if allowed, _ := b.Allow(ctx, "openai"); allowed {
		t.Fatalf("expected reopened circuit after probe failure")
	}
}

func TestBreaker_AbandonedProbeClaimExpires(t *testing.T) {
	b, _, _, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "openai", errors.New("boom"))
	}
	*now = now.Add(2 * time.Minute)
	if allowed, _ := b.Allow(ctx, "openai"); !allowed {
		t.Fatalf("expected probe allowed")
	}
	// The probe holder never reports an outcome. Once the claim ages past
	// the open timeout the next caller must get a fresh probe instead of
	// being locked out until restart.
	if allowed, _ := b.Allow(ctx, "openai"); allowed {
		t.Fatalf("expected denial while the claim is fresh")
	}
	*now = now.Add(2 * time.Minute)
	if allowed, reason := b.Allow(ctx, "openai"); !allowed {
		t.Fatalf("expected expired claim to yield a new probe, got denied (%s)", reason)
	}
}

func TestBreaker_RecoversFromDurableAfterCacheCold(t *testing.T) {
	b, cache, durable, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "openai", errors.New("boom"))
	}
	// Simulate a cache restart: redis is empty, postgres still has state.
	cache.data = map[string]*Snapshot{}

	if allowed, _ := b.Allow(ctx, "openai"); allowed {
		t.Fatalf("expected open state recovered from durable store")
	}
	if _, ok := cache.data["openai"]; !ok {
		t.Fatalf("expected cache rehydrated from durable store")
	}
	_ = durable
}

func TestBreaker_FailsSafeWhenStoresUnreachable(t *testing.T) {
	b, cache, durable, _ := newTestBreaker(t)
	ctx := context.Background()

	cache.err = errors.New("redis down")
	durable.err = errors.New("postgres down")

	if allowed, reason := b.Allow(ctx, "openai"); allowed {
		t.Fatalf("expected fail-safe denial, got allowed (%s)", reason)
	}
}

func TestBreaker_CacheColdDurableDownTreatedAsNoState(t *testing.T) {
	b, _, durable, _ := newTestBreaker(t)
	ctx := context.Background()

	durable.err = errors.New("postgres down")
	if allowed, _ := b.Allow(ctx, "unknown"); !allowed {
		t.Fatalf("cold cache with durable down must read as no state (closed)")
	}
}
