package llm

import (
	"fmt"
	"strings"

	"github.com/khchop/kickscore/internal/domain"
)

// MatchPrompt is one match's slice of the prediction prompt.
type MatchPrompt struct {
	MatchID     string
	HomeTeam    string
	AwayTeam    string
	Competition string
	Analysis    string
}

const promptSchemaHint = `Respond with a JSON array only, one object per match:
[{"match_id": "<id>", "home": <int>, "away": <int>}]`

// BuildPrompt renders the prediction prompt in the variant a model's quirks
// demand. Variants exist because some models drift into their training
// language, some bury JSON in prose unless told twice, and some choke on
// anything but the shortest instruction.
func BuildPrompt(variant string, matchPrompts []MatchPrompt) string {
	var b strings.Builder

	switch variant {
	case domain.PromptVariantMinimal:
		b.WriteString("Predict exact football scores.\n")
	default:
		b.WriteString("You are a football analyst. Predict the exact final score of each match below, using the analysis where given.\n")
	}

	if variant == domain.PromptVariantLanguageEnforce {
		b.WriteString("Respond in English only. Do not use any other language.\n")
	}

	b.WriteString("\nMatches:\n")
	for _, mp := range matchPrompts {
		fmt.Fprintf(&b, "- match_id=%s: %s vs %s (%s)\n", mp.MatchID, mp.HomeTeam, mp.AwayTeam, mp.Competition)
		if mp.Analysis != "" && variant != domain.PromptVariantMinimal {
			fmt.Fprintf(&b, "  analysis: %s\n", mp.Analysis)
		}
	}

	b.WriteString("\n")
	b.WriteString(promptSchemaHint)
	if variant == domain.PromptVariantJSONEmphasis {
		b.WriteString("\nOutput raw JSON only. No markdown fences, no explanation, no text before or after the array.")
	}
	return b.String()
}
