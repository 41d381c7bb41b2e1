package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/logging"
)

// SuggestionStore is the subset of Store the extractor writes through.
type SuggestionStore interface {
	Set(ctx context.Context, userID, text string) error
	Append(ctx context.Context, userID, text string) error
}

// Extractor pulls memory directives out of model output, writes them to
// the store, and strips the directive spans from the rendered text.
//
// Two directive forms exist: append and replace, each delimited by a
// configurable marker pair. Replace directives take exclusive priority
// over appends when both appear in the same response.
type Extractor struct {
	store     SuggestionStore
	appendRe  *regexp.Regexp
	replaceRe *regexp.Regexp
	stripRe   *regexp.Regexp
	strip     bool
	enabled   bool
}

// NewExtractor builds an extractor from the memory configuration.
func NewExtractor(store SuggestionStore, cfg config.MemoryConfig) *Extractor {
	appendPat := directivePattern(cfg.AppendStartMarker, cfg.AppendEndMarker)
	replacePat := directivePattern(cfg.ReplaceStartMarker, cfg.ReplaceEndMarker)

	return &Extractor{
		store:     store,
		appendRe:  regexp.MustCompile(`(?is)` + appendPat),
		replaceRe: regexp.MustCompile(`(?is)` + replacePat),
		stripRe:   regexp.MustCompile(`(?is)\s*(?:` + appendPat + `|` + replacePat + `)\s*`),
		strip:     cfg.StripMarkers,
		enabled:   cfg.Enabled && cfg.LLMSuggestsMemory,
	}
}

func directivePattern(start, end string) string {
	return regexp.QuoteMeta(start) + `(.*?)` + regexp.QuoteMeta(end)
}

// Apply extracts directives from text, persists them, and returns the
// text with directive spans removed. The store write completes before
// Apply returns so a crash cannot lose an acknowledged suggestion; a
// failed write is logged and never fails the turn.
func (e *Extractor) Apply(ctx context.Context, userID, text string) string {
	if !e.enabled || text == "" {
		return text
	}

	replaces := e.bodies(e.replaceRe, text)
	appends := e.bodies(e.appendRe, text)

	switch {
	case len(replaces) > 0:
		// Replace wins: append directives in the same response are ignored
		if err := e.store.Set(ctx, userID, strings.Join(replaces, "\n")); err != nil {
			logging.Errorf("[memory] replace for user %s failed: %v", userID, err)
		}
	case len(appends) > 0:
		if err := e.store.Append(ctx, userID, strings.Join(appends, "\n")); err != nil {
			logging.Errorf("[memory] append for user %s failed: %v", userID, err)
		}
	}

	if !e.strip {
		return text
	}
	return strings.TrimSpace(e.stripRe.ReplaceAllString(text, " "))
}

// bodies returns the trimmed, non-empty directive bodies in order.
// Whitespace-only bodies are no-ops: stripped from the text, never written.
func (e *Extractor) bodies(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if body != "" {
			out = append(out, body)
		}
	}
	return out
}
