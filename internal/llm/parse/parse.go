// Package parse extracts structured score predictions from raw LLM output.
//
// Models are asked for a JSON array of {match_id, home, away} objects but
// reply with everything from clean JSON to markdown-fenced blocks, prose with
// embedded JSON, or bare "2-1" score lines. Strategies run in strict order
// and a later strategy is attempted only when the prior one produced no
// schema-valid row.
package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// MaxScore bounds a sane football score. Out-of-range rows are rejected, not
// clamped: a model claiming 99 goals is a parse defect, not a prediction.
const MaxScore = 20

type Score struct {
	MatchID string `json:"match_id"`
	Home    int    `json:"home"`
	Away    int    `json:"away"`
}

// Strategy names, reported for observability.
const (
	StrategyDirect  = "direct_json"
	StrategyFenced  = "fenced_json"
	StrategyBracket = "bracket_extract"
	StrategyLoose   = "loose_pattern"
)

var (
	fencedRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	bracketRe = regexp.MustCompile(`(?s)\[.*\]|\{.*\}`)
	// "2-1", "2:1", "2 - 1"
	looseScoreRe = regexp.MustCompile(`\b(\d{1,2})\s*[-:]\s*(\d{1,2})\b`)
	thinkTagRe   = regexp.MustCompile(`(?is)<(think|thinking|reasoning|thought)>`)
)

// Predictions parses raw text into validated scores for the expected match
// ids. It returns the rows, the name of the strategy that produced them, and
// ok=false when no strategy yielded a single valid row.
func Predictions(raw string, expected []string) ([]Score, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", false
	}
	want := make(map[string]bool, len(expected))
	for _, id := range expected {
		want[id] = true
	}

	if rows := direct(raw, want); len(rows) > 0 {
		return rows, StrategyDirect, true
	}
	if rows := fenced(raw, want); len(rows) > 0 {
		return rows, StrategyFenced, true
	}
	if rows := bracket(raw, want); len(rows) > 0 {
		return rows, StrategyBracket, true
	}
	if rows := loose(raw, expected); len(rows) > 0 {
		return rows, StrategyLoose, true
	}
	return nil, "", false
}

func direct(raw string, want map[string]bool) []Score {
	return decodeJSON(raw, want)
}

func fenced(raw string, want map[string]bool) []Score {
	for _, m := range fencedRe.FindAllStringSubmatch(raw, -1) {
		if rows := decodeJSON(strings.TrimSpace(m[1]), want); len(rows) > 0 {
			return rows
		}
	}
	return nil
}

func bracket(raw string, want map[string]bool) []Score {
	m := bracketRe.FindString(raw)
	if m == "" {
		return nil
	}
	return decodeJSON(m, want)
}

// loose pairs bare "H-A" score patterns with the expected match ids in order.
// Only safe when the model echoed one score line per requested match.
func loose(raw string, expected []string) []Score {
	ms := looseScoreRe.FindAllStringSubmatch(raw, -1)
	if len(ms) == 0 || len(ms) != len(expected) {
		return nil
	}
	out := make([]Score, 0, len(ms))
	for i, m := range ms {
		home, err1 := strconv.Atoi(m[1])
		away, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || !validScore(home, away) {
			return nil
		}
		out = append(out, Score{MatchID: expected[i], Home: home, Away: away})
	}
	return out
}

func decodeJSON(raw string, want map[string]bool) []Score {
	type row struct {
		MatchID   string `json:"match_id"`
		Home      *int   `json:"home"`
		Away      *int   `json:"away"`
		HomeScore *int   `json:"home_score"`
		AwayScore *int   `json:"away_score"`
	}
	var rows []row
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		var one row
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return nil
		}
		rows = []row{one}
	}
	out := make([]Score, 0, len(rows))
	seen := map[string]bool{}
	for _, r := range rows {
		home, away := r.Home, r.Away
		if home == nil {
			home = r.HomeScore
		}
		if away == nil {
			away = r.AwayScore
		}
		id := strings.TrimSpace(r.MatchID)
		if id == "" || home == nil || away == nil {
			continue
		}
		if len(want) > 0 && !want[id] {
			continue
		}
		if seen[id] || !validScore(*home, *away) {
			continue
		}
		seen[id] = true
		out = append(out, Score{MatchID: id, Home: *home, Away: *away})
	}
	return out
}

func validScore(home, away int) bool {
	return home >= 0 && home <= MaxScore && away >= 0 && away <= MaxScore
}

// IsEmpty reports the empty-response failure signature.
func IsEmpty(raw string) bool {
	return strings.TrimSpace(raw) == ""
}

// HasThinkingTags reports un-stripped reasoning tags in the output, which
// means the model's response handler should be strip_thinking.
func HasThinkingTags(raw string) bool {
	return thinkTagRe.MatchString(raw)
}

// LooksNonLatin flags output dominated by non-latin script, the signature of
// a model ignoring the target-language instruction.
func LooksNonLatin(raw string) bool {
	letters, nonLatin := 0, 0
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			letters++
		case r > 0x2E80: // CJK and beyond
			nonLatin++
			letters++
		}
	}
	if letters < 20 {
		return false
	}
	return float64(nonLatin)/float64(letters) > 0.5
}
