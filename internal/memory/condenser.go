package memory

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/warblehq/warble/internal/llm"
	"github.com/warblehq/warble/internal/logging"
)

// condenseTargetBuffer leaves the model headroom below the hard cap.
const condenseTargetBuffer = 100

const condensePrompt = "Please summarize and condense the following notes, removing redundancy " +
	"and keeping the most important points. Aim for a maximum length of " +
	"around %d characters, but do not exceed %d characters.\n\n" +
	"NOTES:\n```\n%s\n```\n\nCONDENSED NOTES:"

// Condenser shrinks oversized memory text with a generation call.
type Condenser struct {
	provider llm.Provider
	maxChars int
}

// NewCondenser creates a condenser capped at maxChars.
func NewCondenser(provider llm.Provider, maxChars int) *Condenser {
	return &Condenser{provider: provider, maxChars: maxChars}
}

// Condense returns text unchanged when it fits, otherwise asks the model
// to summarize it. Condensation is best-effort: on any failure, or when
// the model does not actually shorten the text, the input is returned
// truncated to the cap so a save never fails on size.
func (c *Condenser) Condense(ctx context.Context, userID, text string) string {
	text = strings.TrimSpace(text)
	if c.maxChars <= 0 || utf8.RuneCountInString(text) <= c.maxChars {
		return text
	}

	logging.Warnf("[memory] user %s memory exceeds cap (%d/%d), condensing",
		userID, utf8.RuneCountInString(text), c.maxChars)

	if c.provider == nil {
		return truncateRunes(text, c.maxChars)
	}

	target := c.maxChars - condenseTargetBuffer
	if target < 0 {
		target = 0
	}
	prompt := fmt.Sprintf(condensePrompt, target, c.maxChars, text)

	condensed, err := llm.Complete(ctx, c.provider, &llm.ChatRequest{
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		logging.Errorf("[memory] condensation for user %s failed: %v", userID, err)
		return truncateRunes(text, c.maxChars)
	}

	condensed = strings.TrimSpace(condensed)
	if condensed == "" || len(condensed) >= len(text) {
		logging.Warnf("[memory] condensation for user %s did not shorten text, truncating", userID)
		return truncateRunes(text, c.maxChars)
	}
	if utf8.RuneCountInString(condensed) > c.maxChars {
		condensed = truncateRunes(condensed, c.maxChars)
	}

	logging.Infof("[memory] condensed memory for user %s to %d chars", userID, utf8.RuneCountInString(condensed))
	return condensed
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
