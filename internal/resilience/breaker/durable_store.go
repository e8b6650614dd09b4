package breaker

import (
	"context"

	"github.com/khchop/kickscore/internal/data/repos/circuits"
	"github.com/khchop/kickscore/internal/domain"
)

// repoDurableStore mirrors snapshots into the circuit_state table.
type repoDurableStore struct {
	repo circuits.CircuitStateRepo
}

func NewRepoDurableStore(repo circuits.CircuitStateRepo) DurableStore {
	return &repoDurableStore{repo: repo}
}

func (s *repoDurableStore) Load(ctx context.Context, service string) (*Snapshot, error) {
	row, err := s.repo.Get(ctx, nil, service)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &Snapshot{
		State:            row.State,
		Failures:         row.Failures,
		Successes:        row.Successes,
		LastTransitionAt: row.LastTransitionAt,
	}, nil
}

func (s *repoDurableStore) Save(ctx context.Context, service string, snap *Snapshot) error {
	return s.repo.Upsert(ctx, nil, &domain.CircuitState{
		Service:          service,
		State:            snap.State,
		Failures:         snap.Failures,
		Successes:        snap.Successes,
		LastTransitionAt: snap.LastTransitionAt,
	})
}
