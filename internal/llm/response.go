package llm

import (
	"regexp"
	"strings"

	"github.com/khchop/kickscore/internal/domain"
)

var (
	reasoningBlockRe = regexp.MustCompile(`(?is)<(think|thinking|reasoning|thought)>.*?</(think|thinking|reasoning|thought)>`)
	danglingTagRe    = regexp.MustCompile(`(?is)</?(think|thinking|reasoning|thought)>`)
	embeddedJSONRe   = regexp.MustCompile(`(?s)\[.*\]|\{.*\}`)
)

// ApplyResponseHandler normalizes raw provider output per the model's
// configured handler before the parser sees it.
func ApplyResponseHandler(handler, raw string) string {
	switch handler {
	case domain.ResponseHandlerStripThinking:
		out := reasoningBlockRe.ReplaceAllString(raw, "")
		// An unterminated block means the model ran out of tokens mid
		// thought; everything before a dangling open tag is reasoning too.
		if loc := danglingTagRe.FindStringIndex(out); loc != nil {
			out = out[loc[1]:]
		}
		return strings.TrimSpace(out)
	case domain.ResponseHandlerExtractJSON:
		if m := embeddedJSONRe.FindString(raw); m != "" {
			return m
		}
		return strings.TrimSpace(raw)
	default:
		return strings.TrimSpace(raw)
	}
}
