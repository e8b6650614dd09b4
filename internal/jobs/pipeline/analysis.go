package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"github.com/khchop/kickscore/internal/clients/fixtures"
	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/jobs/runtime"
)

const formWindow = 5

// AnalysisHandler builds the pre-match analysis row: recent form for both
// teams from the fixtures feed plus a compact textual summary the prediction
// prompt embeds.
type AnalysisHandler struct {
	deps Deps
}

func NewAnalysisHandler(deps Deps) *AnalysisHandler {
	return &AnalysisHandler{deps: deps}
}

func (h *AnalysisHandler) Type() string { return domain.JobTypeAnalysis }

func (h *AnalysisHandler) Run(c *runtime.Context) error {
	matchID, ok := c.MatchID()
	if !ok {
		err := fmt.Errorf("analysis job missing match_id")
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
	if !match.SchedulableStatus() {
		c.Succeed("skipped", map[string]any{"reason": "match " + match.Status})
		return nil
	}

	c.Progress("fetch_form")
	homeForm, err := h.deps.Fixtures.TeamForm(c.Ctx, match.HomeTeam, formWindow)
	if err != nil {
		c.Fail("fetch_form", err)
		return err
	}
	awayForm, err := h.deps.Fixtures.TeamForm(c.Ctx, match.AwayTeam, formWindow)
	if err != nil {
		c.Fail("fetch_form", err)
		return err
	}

	homeJSON, _ := json.Marshal(homeForm)
	awayJSON, _ := json.Marshal(awayForm)
	analysis := &domain.MatchAnalysis{
		MatchID:  match.ID,
		Summary:  buildSummary(match, homeForm, awayForm),
		HomeForm: datatypes.JSON(homeJSON),
		AwayForm: datatypes.JSON(awayJSON),
	}
	if err := h.deps.Repos.Analyses.Upsert(c.Ctx, nil, analysis); err != nil {
		c.Fail("persist", err)
		return err
	}

	c.Succeed("done", map[string]any{
		"match_id":   match.ID,
		"home_games": len(homeForm),
		"away_games": len(awayForm),
	})
	return nil
}

func buildSummary(m *domain.Match, home, away []fixtures.FormEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s. %s: %s.",
		m.HomeTeam, describeForm(home),
		m.AwayTeam, describeForm(away),
	)
	return b.String()
}

func describeForm(entries []fixtures.FormEntry) string {
	if len(entries) == 0 {
		return "no recent results"
	}
	wins, draws, losses, scored, conceded := 0, 0, 0, 0, 0
	for _, e := range entries {
		scored += e.GoalsFor
		conceded += e.GoalsAgainst
		switch {
		case e.GoalsFor > e.GoalsAgainst:
			wins++
		case e.GoalsFor < e.GoalsAgainst:
			losses++
		default:
			draws++
		}
	}
	return fmt.Sprintf("last %d: %dW-%dD-%dL, %d scored, %d conceded",
		len(entries), wins, draws, losses, scored, conceded)
}
