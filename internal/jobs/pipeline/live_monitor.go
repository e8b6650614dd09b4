package pipeline

import (
	"fmt"
	"time"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/jobs/runtime"
)

// LiveMonitorHandler polls the fixtures feed for one match, mirrors status
// and score into the match row, and chains the next poll while the match is
// in play. Finish detection enqueues settlement exactly once; the settlement
// job's idempotency key absorbs duplicate detections.
type LiveMonitorHandler struct {
	deps Deps
}

func NewLiveMonitorHandler(deps Deps) *LiveMonitorHandler {
	return &LiveMonitorHandler{deps: deps}
}

func (h *LiveMonitorHandler) Type() string { return domain.JobTypeLiveMonitor }

func (h *LiveMonitorHandler) Run(c *runtime.Context) error {
	matchID, ok := c.MatchID()
	if !ok {
		err := fmt.Errorf("live_monitor job missing match_id")
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
	if match.Status == domain.MatchStatusFinished || match.Status == domain.MatchStatusCancelled {
		c.Succeed("done", map[string]any{"status": match.Status})
		return nil
	}

	fixture, err := h.deps.Fixtures.GetFixture(c.Ctx, match.ExternalID)
	if err != nil {
		c.Fail("poll_fixture", err)
		return err
	}

	if err := h.deps.Repos.Matches.UpdateStatusAndScore(c.Ctx, nil, match.ID,
		fixture.Status, fixture.HomeScore, fixture.AwayScore); err != nil {
		c.Fail("persist", err)
		return err
	}

	switch fixture.Status {
	case domain.MatchStatusFinished:
		if err := h.deps.Scheduler.ScheduleSettlement(c.Ctx, match.ID); err != nil {
			c.Fail("enqueue_settlement", err)
			return err
		}
		h.deps.Log.Info("match finished, settlement enqueued",
			"match_id", match.ID,
			"home", derefScore(fixture.HomeScore),
			"away", derefScore(fixture.AwayScore),
		)
	case domain.MatchStatusCancelled, domain.MatchStatusPostponed:
		h.deps.Log.Info("match left play", "match_id", match.ID, "status", fixture.Status)
	default:
		// Still scheduled or live: chain the next poll.
		next := time.Now().Add(h.deps.Cfg.LiveMonitorPeriod)
		if err := h.deps.Scheduler.ScheduleLiveMonitorTick(c.Ctx, match.ID, next); err != nil {
			c.Fail("chain_monitor", err)
			return err
		}
	}

	c.Succeed("done", map[string]any{"status": fixture.Status})
	return nil
}

func derefScore(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
