package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type PredictRequest struct {
	Prompt   string
	MatchIDs []string
}

// PredictResult is the uniform response shape every provider, including
// fallback targets, must return.
type PredictResult struct {
	Predictions map[string]Score
	RawResponse string
	Model       string
	Strategy    string
}

// Provider is the single capability every LLM backend implements.
type Provider interface {
	Name() string
	Predict(ctx context.Context, req PredictRequest) (*PredictResult, error)
}

// Registry is the closed set of provider backends, resolved statically at
// startup. No runtime reflection, no plugin loading.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider already registered for name=%s", name)
	}
	r.providers[name] = p
	return nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// TimeoutFor returns the call deadline for a timeout class. Reasoning models
// emit long chains of thought before the answer; a global constant either
// starves them or wastes worker slots on standard models.
func TimeoutFor(class string, standard, reasoning time.Duration) time.Duration {
	if class == "reasoning" {
		return reasoning
	}
	return standard
}
