package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/khchop/kickscore/internal/platform/logger"
)

// FallbackGraph is the immutable, startup-validated mapping from a model to
// its equivalent substitute. Validation failures are fatal at process start;
// the runtime visited-set exists only to guard against validation gaps.
type FallbackGraph struct {
	mapping  map[string]string
	maxDepth int
}

// ValidateFallbackGraph checks the mapping against the known model set:
// every target must exist, no model may map to itself, no chain may exceed
// maxDepth hops, and cycles are rejected outright.
func ValidateFallbackGraph(mapping map[string]string, known map[string]bool, maxDepth int) (*FallbackGraph, error) {
	if maxDepth < 1 {
		return nil, fmt.Errorf("fallback max depth must be >= 1, got %d", maxDepth)
	}

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := mapping[name]
		if !known[name] {
			return nil, fmt.Errorf("fallback mapping references unknown model %q", name)
		}
		if !known[target] {
			return nil, fmt.Errorf("fallback target %q for model %q does not exist", target, name)
		}
		if target == name {
			return nil, fmt.Errorf("model %q maps to itself", name)
		}

		visited := map[string]bool{name: true}
		depth := 0
		cur := name
		for {
			next, ok := mapping[cur]
			if !ok {
				break
			}
			depth++
			if visited[next] {
				return nil, fmt.Errorf("fallback cycle detected through %q", next)
			}
			if depth > maxDepth {
				return nil, fmt.Errorf("fallback chain from %q exceeds max depth %d", name, maxDepth)
			}
			visited[next] = true
			cur = next
		}
	}

	cp := make(map[string]string, len(mapping))
	for k, v := range mapping {
		cp[k] = v
	}
	return &FallbackGraph{mapping: cp, maxDepth: maxDepth}, nil
}

func (g *FallbackGraph) TargetFor(model string) (string, bool) {
	if g == nil {
		return "", false
	}
	t, ok := g.mapping[model]
	return t, ok
}

func (g *FallbackGraph) MaxDepth() int { return g.maxDepth }

// GateFunc is consulted before any provider call. It returns a typed denial
// (circuit_open, budget_exceeded, or api_error for a disabled model) or nil.
// The pipeline composes breaker, budget and model-active checks into it.
type GateFunc func(ctx context.Context, model string) *CallError

// Attempt is the orchestrator's result: the provider output plus an explicit
// record of any substitution. A fallback is never silent.
type Attempt struct {
	Result        *PredictResult
	UsedFallback  bool
	FallbackModel string
	// PrimaryErr is the typed failure that forced the substitution. The
	// caller records it against the primary model; a rescued request still
	// counts toward the primary's failure streak.
	PrimaryErr error
	// RelativeCost is the substitute's cost per call, for downstream cost
	// tracking on the prediction row.
	RelativeCost float64
}

type Orchestrator struct {
	log    *logger.Logger
	reg    *Registry
	graph  *FallbackGraph
	gate   GateFunc
	costOf func(model string) float64
}

func NewOrchestrator(log *logger.Logger, reg *Registry, graph *FallbackGraph, gate GateFunc, costOf func(string) float64) *Orchestrator {
	if gate == nil {
		gate = func(context.Context, string) *CallError { return nil }
	}
	if costOf == nil {
		costOf = func(string) float64 { return 0 }
	}
	return &Orchestrator{
		log:    log.With("component", "FallbackOrchestrator"),
		reg:    reg,
		graph:  graph,
		gate:   gate,
		costOf: costOf,
	}
}

// Predict calls the primary model and, on a retryable typed failure, retries
// once against the mapped substitute. The attempted set bounds traversal even
// if the validated graph were somehow malformed.
func (o *Orchestrator) Predict(ctx context.Context, primary string, req PredictRequest) (*Attempt, error) {
	attempted := map[string]bool{}

	res, firstErr := o.callOne(ctx, primary, req, attempted)
	if firstErr == nil {
		return &Attempt{Result: res}, nil
	}
	if !Retryable(KindOf(firstErr)) {
		return nil, firstErr
	}

	hops := 0
	current := primary
	for hops < o.graph.MaxDepth() {
		target, ok := o.graph.TargetFor(current)
		if !ok {
			break
		}
		if attempted[target] {
			o.log.Warn("fallback target already attempted, stopping",
				"primary", primary, "target", target)
			break
		}
		hops++

		res, err := o.callOne(ctx, target, req, attempted)
		if err == nil {
			o.log.Info("fallback substitution succeeded",
				"primary", primary,
				"fallback", target,
				"failure_kind", string(KindOf(firstErr)),
			)
			return &Attempt{
				Result:        res,
				UsedFallback:  true,
				FallbackModel: target,
				PrimaryErr:    firstErr,
				RelativeCost:  o.costOf(target),
			}, nil
		}
		o.log.Warn("fallback attempt failed",
			"primary", primary, "fallback", target, "error", err)
		current = target
	}

	return nil, firstErr
}

func (o *Orchestrator) callOne(ctx context.Context, model string, req PredictRequest, attempted map[string]bool) (*PredictResult, error) {
	attempted[model] = true

	if denial := o.gate(ctx, model); denial != nil {
		return nil, denial
	}
	p, ok := o.reg.Get(model)
	if !ok {
		return nil, NewCallError(FailureAPIError, model, fmt.Errorf("no provider registered for model %q", model))
	}
	return p.Predict(ctx, req)
}
