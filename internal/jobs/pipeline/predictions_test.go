package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/config"
	"github.com/khchop/kickscore/internal/data/repos"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/llm"
	"github.com/khchop/kickscore/internal/platform/logger"
	"github.com/khchop/kickscore/internal/resilience/breaker"
)

type fakeModelRepo struct {
	mu        sync.Mutex
	byName    map[string]*domain.Model
	failures  map[uuid.UUID]int
	successes map[uuid.UUID]int
}

func newFakeModelRepo(models ...*domain.Model) *fakeModelRepo {
	r := &fakeModelRepo{
		byName:    map[string]*domain.Model{},
		failures:  map[uuid.UUID]int{},
		successes: map[uuid.UUID]int{},
	}
	for _, m := range models {
		r.byName[m.Name] = m
	}
	return r
}

func (r *fakeModelRepo) Create(ctx context.Context, tx *gorm.DB, models []*domain.Model) ([]*domain.Model, error) {
	return models, nil
}

func (r *fakeModelRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byName {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeModelRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*domain.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[name], nil
}

func (r *fakeModelRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*domain.Model, error) {
	return nil, nil
}

func (r *fakeModelRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*domain.Model, error) {
	return nil, nil
}

func (r *fakeModelRepo) RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, disableAfter int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[id]++
	return false, nil
}

func (r *fakeModelRepo) RecordSuccess(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes[id]++
	return nil
}

func (r *fakeModelRepo) ListProbeEligible(ctx context.Context, tx *gorm.DB, cooldown time.Duration) ([]*domain.Model, error) {
	return nil, nil
}

func (r *fakeModelRepo) SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, active bool) error {
	return nil
}

type fakePredictionRepo struct {
	mu   sync.Mutex
	last *domain.Prediction
}

func (r *fakePredictionRepo) Upsert(ctx context.Context, tx *gorm.DB, p *domain.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.last = &cp
	return nil
}

func (r *fakePredictionRepo) ListByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) ([]*domain.Prediction, error) {
	return nil, nil
}

func (r *fakePredictionRepo) CountByMatch(ctx context.Context, tx *gorm.DB, matchID uuid.UUID) (int64, error) {
	return 0, nil
}

func (r *fakePredictionRepo) UpdatePoints(ctx context.Context, tx *gorm.DB, id uuid.UUID, points int) error {
	return nil
}

type memCircuitCache struct {
	mu    sync.Mutex
	snaps map[string]*breaker.Snapshot
}

func (s *memCircuitCache) Get(ctx context.Context, service string) (*breaker.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snaps[service]; ok {
		cp := *snap
		return &cp, nil
	}
	return nil, nil
}

func (s *memCircuitCache) Set(ctx context.Context, service string, snap *breaker.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.snaps[service] = &cp
	return nil
}

type memCircuitDurable struct {
	mu    sync.Mutex
	snaps map[string]*breaker.Snapshot
}

func (s *memCircuitDurable) Load(ctx context.Context, service string) (*breaker.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snaps[service]; ok {
		cp := *snap
		return &cp, nil
	}
	return nil, nil
}

func (s *memCircuitDurable) Save(ctx context.Context, service string, snap *breaker.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.snaps[service] = &cp
	return nil
}

func (s *memCircuitDurable) get(service string) *breaker.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[service]
}

type scriptedProvider struct {
	name string
	err  error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Predict(ctx context.Context, req llm.PredictRequest) (*llm.PredictResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	preds := map[string]llm.Score{}
	for _, id := range req.MatchIDs {
		preds[id] = llm.Score{Home: 2, Away: 1}
	}
	return &llm.PredictResult{
		Predictions: preds,
		RawResponse: `[{"home": 2, "away": 1}]`,
		Model:       p.name,
		Strategy:    "direct_json",
	}, nil
}

type predictionsFixture struct {
	handler *PredictionsHandler
	models  *fakeModelRepo
	preds   *fakePredictionRepo
	durable *memCircuitDurable
	match   *domain.Match
	primary *domain.Model
	backup  *domain.Model
}

func newPredictionsFixture(t *testing.T, primaryErr error, registerBackupRow bool) *predictionsFixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	primary := &domain.Model{ID: uuid.New(), Name: "flaky", Backend: domain.BackendOpenAI, CostPerCallUSD: 0.01, Active: true}
	backup := &domain.Model{ID: uuid.New(), Name: "steady", Backend: domain.BackendMistral, CostPerCallUSD: 0.002, Active: true}

	rows := []*domain.Model{primary}
	if registerBackupRow {
		rows = append(rows, backup)
	}
	modelRepo := newFakeModelRepo(rows...)
	predRepo := &fakePredictionRepo{}

	reg := llm.NewRegistry()
	if err := reg.Register(&scriptedProvider{name: "flaky", err: primaryErr}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(&scriptedProvider{name: "steady"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	graph, err := llm.ValidateFallbackGraph(
		map[string]string{"flaky": "steady"},
		map[string]bool{"flaky": true, "steady": true},
		1,
	)
	if err != nil {
		t.Fatalf("ValidateFallbackGraph: %v", err)
	}
	costOf := func(model string) float64 {
		if model == "steady" {
			return backup.CostPerCallUSD
		}
		return primary.CostPerCallUSD
	}

	cache := &memCircuitCache{snaps: map[string]*breaker.Snapshot{}}
	durable := &memCircuitDurable{snaps: map[string]*breaker.Snapshot{}}

	deps := Deps{
		Log:          log,
		Repos:        &repos.Bundle{Models: modelRepo, Predictions: predRepo},
		Cfg:          &config.Config{ModelDisableAfter: 3, ProviderCallConcurrency: 2},
		Orchestrator: llm.NewOrchestrator(log, reg, graph, nil, costOf),
		Breaker:      breaker.New(log, cache, durable, breaker.Options{}),
	}

	return &predictionsFixture{
		handler: NewPredictionsHandler(deps),
		models:  modelRepo,
		preds:   predRepo,
		durable: durable,
		match: &domain.Match{
			ID:        uuid.New(),
			HomeTeam:  "Leverkusen",
			AwayTeam:  "Stuttgart",
			KickoffAt: time.Now().Add(time.Hour),
			Status:    domain.MatchStatusScheduled,
		},
		primary: primary,
		backup:  backup,
	}
}

func TestPredictOne_FallbackRescueStillCountsPrimaryFailure(t *testing.T) {
	primaryErr := llm.NewCallError(llm.FailureTimeout, "flaky", errors.New("deadline exceeded"))
	fx := newPredictionsFixture(t, primaryErr, true)

	if err := fx.handler.predictOne(context.Background(), fx.match, fx.primary, ""); err != nil {
		t.Fatalf("predictOne: %v", err)
	}

	// The rescue saved the prediction, not the primary's record.
	if got := fx.models.failures[fx.primary.ID]; got != 1 {
		t.Fatalf("expected 1 failure recorded for the primary, got %d", got)
	}
	if got := fx.models.successes[fx.primary.ID]; got != 0 {
		t.Fatalf("failed primary must not have its streak reset, got %d successes", got)
	}
	if got := fx.models.successes[fx.backup.ID]; got != 1 {
		t.Fatalf("expected 1 success for the fallback model, got %d", got)
	}

	// Circuit bookkeeping follows the same split: the timed-out backend
	// takes the failure, the serving backend takes the success.
	if snap := fx.durable.get(domain.BackendOpenAI); snap == nil || snap.Failures != 1 {
		t.Fatalf("expected 1 circuit failure on the primary backend, got %+v", snap)
	}
	if snap := fx.durable.get(domain.BackendMistral); snap == nil || snap.Successes != 1 {
		t.Fatalf("expected 1 circuit success on the fallback backend, got %+v", snap)
	}

	p := fx.preds.last
	if p == nil || !p.UsedFallback {
		t.Fatalf("expected a prediction marked as fallback, got %+v", p)
	}
	if p.FallbackModelID == nil || *p.FallbackModelID != fx.backup.ID {
		t.Fatalf("expected fallback model id recorded, got %+v", p.FallbackModelID)
	}
	if p.CostUSD != fx.backup.CostPerCallUSD {
		t.Fatalf("expected the substitute's cost %v, got %v", fx.backup.CostPerCallUSD, p.CostUSD)
	}
}

func TestPredictOne_FallbackRowMissingKeepsAttemptData(t *testing.T) {
	primaryErr := llm.NewCallError(llm.FailureTimeout, "flaky", errors.New("deadline exceeded"))
	fx := newPredictionsFixture(t, primaryErr, false)

	if err := fx.handler.predictOne(context.Background(), fx.match, fx.primary, ""); err != nil {
		t.Fatalf("predictOne: %v", err)
	}

	p := fx.preds.last
	if p == nil || !p.UsedFallback {
		t.Fatalf("expected a prediction marked as fallback, got %+v", p)
	}
	if p.FallbackModelID != nil {
		t.Fatalf("missing row must leave the id nil, got %v", p.FallbackModelID)
	}
	if p.CostUSD != fx.backup.CostPerCallUSD {
		t.Fatalf("cost must come from the substitution, got %v", p.CostUSD)
	}
	// With no row to credit, nobody gets a success; the primary keeps its
	// failure.
	if got := fx.models.failures[fx.primary.ID]; got != 1 {
		t.Fatalf("expected 1 failure for the primary, got %d", got)
	}
	if len(fx.models.successes) != 0 {
		t.Fatalf("expected no success records, got %v", fx.models.successes)
	}
}

func TestRecordFailure_PayloadKindCountsAsCircuitSuccess(t *testing.T) {
	fx := newPredictionsFixture(t, nil, true)

	parseErr := llm.NewCallError(llm.FailureParse, "flaky", errors.New("no json found"))
	fx.handler.recordFailure(context.Background(), fx.primary, parseErr)

	// The backend answered with HTTP 200; only the model's streak moves.
	if got := fx.models.failures[fx.primary.ID]; got != 1 {
		t.Fatalf("expected 1 model failure, got %d", got)
	}
	snap := fx.durable.get(domain.BackendOpenAI)
	if snap == nil || snap.Failures != 0 || snap.Successes != 1 {
		t.Fatalf("expected circuit success for a payload failure, got %+v", snap)
	}
}

func TestRecordFailure_GateDenialRecordsNothing(t *testing.T) {
	fx := newPredictionsFixture(t, nil, true)

	denial := llm.NewCallError(llm.FailureCircuitOpen, "flaky", errors.New("circuit open"))
	fx.handler.recordFailure(context.Background(), fx.primary, denial)

	if len(fx.models.failures) != 0 {
		t.Fatalf("gate denial must not count as a model failure, got %v", fx.models.failures)
	}
	if snap := fx.durable.get(domain.BackendOpenAI); snap != nil {
		t.Fatalf("gate denial must not touch the circuit, got %+v", snap)
	}
}
