package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/jobs/runtime"
	"github.com/khchop/kickscore/internal/llm"
)

// PredictionsHandler fans out one prediction request per active model with
// bounded concurrency. Individual model failures are recorded against the
// model and its backend circuit but never fail the match job; the retry job
// closer to kickoff picks up whatever is still missing.
type PredictionsHandler struct {
	deps Deps
	// jobType distinguishes the initial run, the pre-kickoff retry of missing
	// models, and historical backfill.
	jobType       string
	missingOnly   bool
	allowFinished bool
}

func NewPredictionsHandler(deps Deps) *PredictionsHandler {
	return &PredictionsHandler{deps: deps, jobType: domain.JobTypePredictions}
}

func NewPredictionRetryHandler(deps Deps) *PredictionsHandler {
	return &PredictionsHandler{deps: deps, jobType: domain.JobTypePredictionRetry, missingOnly: true}
}

func NewBackfillHandler(deps Deps) *PredictionsHandler {
	return &PredictionsHandler{deps: deps, jobType: domain.JobTypeBackfill, allowFinished: true}
}

func (h *PredictionsHandler) Type() string { return h.jobType }

func (h *PredictionsHandler) Run(c *runtime.Context) error {
	matchID, ok := c.MatchID()
	if !ok {
		err := fmt.Errorf("%s job missing match_id", h.jobType)
		c.Fail("validate", err)
		return err
	}

	match, err := h.deps.Repos.Matches.GetByID(c.Ctx, nil, matchID)
	if err != nil {
		c.Fail("load_match", err)
		return err
	}
	if match == nil {
		err := fmt.Errorf("match %s not found", matchID)
		c.Fail("load_match", err)
		return err
	}
	if !h.allowFinished && !match.SchedulableStatus() {
		c.Succeed("skipped", map[string]any{"reason": "match " + match.Status})
		return nil
	}

	models, err := h.dueModels(c, matchID)
	if err != nil {
		c.Fail("load_models", err)
		return err
	}
	if len(models) == 0 {
		c.Succeed("done", map[string]any{"requested": 0})
		return nil
	}

	analysis, err := h.deps.Repos.Analyses.GetByMatch(c.Ctx, nil, matchID)
	if err != nil {
		c.Fail("load_analysis", err)
		return err
	}
	analysisText := ""
	if analysis != nil {
		analysisText = analysis.Summary
	}

	c.Progress("predict")
	var (
		mu        sync.Mutex
		succeeded int
		failed    int
	)

	g, gctx := errgroup.WithContext(c.Ctx)
	g.SetLimit(h.deps.Cfg.ProviderCallConcurrency)
	for _, model := range models {
		model := model
		g.Go(func() error {
			err := h.predictOne(gctx, match, model, analysisText)
			mu.Lock()
			if err != nil {
				failed++
			} else {
				succeeded++
			}
			mu.Unlock()
			// Per-model outcomes never cancel the group.
			return nil
		})
	}
	_ = g.Wait()

	c.Succeed("done", map[string]any{
		"requested": len(models),
		"succeeded": succeeded,
		"failed":    failed,
	})
	return nil
}

// dueModels returns the active models this run should call. The retry job
// only targets models that still have no prediction row for the match.
func (h *PredictionsHandler) dueModels(c *runtime.Context, matchID uuid.UUID) ([]*domain.Model, error) {
	models, err := h.deps.Repos.Models.ListActive(c.Ctx, nil)
	if err != nil {
		return nil, err
	}
	if !h.missingOnly {
		return models, nil
	}

	existing, err := h.deps.Repos.Predictions.ListByMatch(c.Ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	have := map[string]bool{}
	for _, p := range existing {
		have[p.ModelID.String()] = true
	}
	var due []*domain.Model
	for _, m := range models {
		if !have[m.ID.String()] {
			due = append(due, m)
		}
	}
	return due, nil
}

func (h *PredictionsHandler) predictOne(ctx context.Context, match *domain.Match, model *domain.Model, analysisText string) error {
	prompt := llm.BuildPrompt(model.PromptVariant, []llm.MatchPrompt{{
		MatchID:     match.ID.String(),
		HomeTeam:    match.HomeTeam,
		AwayTeam:    match.AwayTeam,
		Competition: match.CompetitionID,
		Analysis:    analysisText,
	}})
	req := llm.PredictRequest{
		Prompt:   prompt,
		MatchIDs: []string{match.ID.String()},
	}

	attempt, err := h.deps.Orchestrator.Predict(ctx, model.Name, req)
	if err != nil {
		h.recordFailure(ctx, model, err)
		return err
	}

	servedBy := model
	cost := model.CostPerCallUSD
	var fallbackModel *domain.Model
	if attempt.UsedFallback {
		// The rescue does not absolve the primary: its call failed and the
		// streak must keep counting toward auto-disable.
		h.recordFailure(ctx, model, attempt.PrimaryErr)
		cost = attempt.RelativeCost
		fb, lookupErr := h.deps.Repos.Models.GetByName(ctx, nil, attempt.FallbackModel)
		if lookupErr != nil || fb == nil {
			h.deps.Log.Warn("fallback model row missing, recording substitution without id",
				"model", model.Name,
				"fallback", attempt.FallbackModel,
				"error", lookupErr,
			)
		} else {
			fallbackModel = fb
			servedBy = fb
		}
	}

	score, ok := attempt.Result.Predictions[match.ID.String()]
	if !ok {
		err := llm.NewCallError(llm.FailureParse, attempt.Result.Model,
			fmt.Errorf("response contains no score for match %s", match.ID))
		h.recordFailure(ctx, servedBy, err)
		return err
	}

	pred := &domain.Prediction{
		MatchID:      match.ID,
		ModelID:      model.ID,
		HomeScore:    score.Home,
		AwayScore:    score.Away,
		UsedFallback: attempt.UsedFallback,
		CostUSD:      cost,
		RawResponse:  attempt.Result.RawResponse,
	}
	if fallbackModel != nil {
		pred.FallbackModelID = &fallbackModel.ID
	}
	if err := h.deps.Repos.Predictions.Upsert(ctx, nil, pred); err != nil {
		h.deps.Log.Error("prediction upsert failed",
			"match_id", match.ID, "model", model.Name, "error", err)
		return err
	}

	// Success belongs to whoever actually served the call. With the fallback
	// row missing there is nothing to credit it against; the primary already
	// took its failure above.
	if !attempt.UsedFallback || fallbackModel != nil {
		h.deps.Breaker.RecordSuccess(ctx, servedBy.Backend)
		if err := h.deps.Repos.Models.RecordSuccess(ctx, nil, servedBy.ID); err != nil {
			h.deps.Log.Warn("model success record failed", "model", servedBy.Name, "error", err)
		}
	}
	return nil
}

// recordFailure updates the model's failure streak and the backend circuit:
// service-level kinds count against the circuit, payload kinds count as
// circuit successes. Gate denials are not provider failures: a call the
// circuit or budget refused tells us nothing about the model.
func (h *PredictionsHandler) recordFailure(ctx context.Context, model *domain.Model, err error) {
	kind := llm.KindOf(err)
	if kind == llm.FailureCircuitOpen || kind == llm.FailureBudgetExceeded {
		return
	}

	switch kind {
	case llm.FailureTimeout, llm.FailureAPIError, llm.FailureRateLimited:
		h.deps.Breaker.RecordFailure(ctx, model.Backend, err)
	default:
		// The backend answered; a bad payload is the model's fault, not the
		// service's. Recording the success also releases a half-open probe
		// claim, which would otherwise stay held forever.
		h.deps.Breaker.RecordSuccess(ctx, model.Backend)
	}

	disabled, recErr := h.deps.Repos.Models.RecordFailure(ctx, nil, model.ID, h.deps.Cfg.ModelDisableAfter)
	if recErr != nil {
		h.deps.Log.Warn("model failure record failed", "model", model.Name, "error", recErr)
		return
	}
	if disabled {
		h.deps.Log.Warn("model auto-disabled after consecutive failures",
			"model", model.Name,
			"failure_kind", string(kind),
		)
		if h.deps.Invalidator != nil {
			h.deps.Invalidator.ModelActivationChanged(ctx, model.ID)
		}
	}
}
