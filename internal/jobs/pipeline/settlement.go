package pipeline

import (
	"errors"
	"fmt"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/jobs/runtime"
	"github.com/khchop/kickscore/internal/settlement"
)

// SettlementHandler drives the settlement engine for one finished match.
// Predictions without an analysis row indicate the pipeline ran out of
// order; the job fails and retries so the fault is visible instead of being
// scored over.
type SettlementHandler struct {
	deps Deps
}

func NewSettlementHandler(deps Deps) *SettlementHandler {
	return &SettlementHandler{deps: deps}
}

func (h *SettlementHandler) Type() string { return domain.JobTypeSettlement }

func (h *SettlementHandler) Run(c *runtime.Context) error {
	matchID, ok := c.MatchID()
	if !ok {
		err := fmt.Errorf("settlement job missing match_id")
		c.Fail("validate", err)
		return err
	}

	count, err := h.deps.Repos.Predictions.CountByMatch(c.Ctx, nil, matchID)
	if err != nil {
		c.Fail("verify", err)
		return err
	}
	if count > 0 {
		analysis, err := h.deps.Repos.Analyses.GetByMatch(c.Ctx, nil, matchID)
		if err != nil {
			c.Fail("verify", err)
			return err
		}
		if analysis == nil {
			err := fmt.Errorf("match %s has %d predictions but no analysis", matchID, count)
			c.Fail("verify", err)
			return err
		}
	}

	c.Progress("settle")
	if err := h.deps.Settlement.Settle(c.Ctx, matchID); err != nil {
		if errors.Is(err, settlement.ErrResultMissing) {
			// Live monitoring has not written the final score yet; retry.
			c.Fail("await_result", err)
			return err
		}
		c.Fail("settle", err)
		return err
	}

	c.Succeed("done", map[string]any{"match_id": matchID, "predictions": count})
	return nil
}
