package reasoning

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/llm"
	"github.com/warblehq/warble/internal/logging"
	"github.com/warblehq/warble/internal/orchestrator"
)

// thinkingIndicator is shown while the stronger model has produced no
// content yet.
const thinkingIndicator = "🧠 Thinking deeper..."

// Gate is the per-user escalation rate limit.
type Gate interface {
	AllowReasoning(userID string) bool
}

// Detector inspects a primary response for the escalation marker and,
// when present, reruns the turn against a stronger model. The primary
// system prompt instructs the model to emit the marker, optionally
// followed by guidance text, when a request exceeds its depth.
type Detector struct {
	cfg      config.ReasoningConfig
	provider llm.Provider
	orch     *orchestrator.Orchestrator
	gate     Gate
}

// New creates a detector. A nil provider disables escalation entirely.
func New(cfg config.ReasoningConfig, provider llm.Provider, orch *orchestrator.Orchestrator, gate Gate) *Detector {
	return &Detector{cfg: cfg, provider: provider, orch: orch, gate: gate}
}

// Enabled reports whether escalation can happen at all.
func (d *Detector) Enabled() bool {
	return d.cfg.Enabled && d.provider != nil
}

// Signal returns the configured escalation marker.
func (d *Detector) Signal() string {
	return d.cfg.Signal
}

// MaybeEscalate returns the text that should reach the user. When the
// primary output carries the marker and the user is not rate-limited,
// the turn is rerun on the stronger provider with the original history
// plus any model-authored guidance after the marker; its output fully
// replaces the primary output. On a failed or empty escalation the
// primary text, marker stripped, is rendered as the fallback.
func (d *Detector) MaybeEscalate(ctx context.Context, primary string, history []llm.ChatMessage, system, userID string, render orchestrator.RenderFunc) string {
	if !d.Enabled() || !strings.Contains(primary, d.cfg.Signal) {
		return primary
	}

	stripped := strings.TrimSpace(strings.Replace(primary, d.cfg.Signal, "", 1))

	if d.gate != nil && !d.gate.AllowReasoning(userID) {
		logging.Infof("[reasoning] user %s rate-limited, skipping escalation", userID)
		if stripped == "" {
			stripped = orchestrator.NoResponsePlaceholder
		}
		render(stripped, true)
		return stripped
	}

	// Everything after the marker is guidance for the stronger model.
	// Empty guidance is valid: the original context alone still escalates.
	signal := ""
	if idx := strings.Index(primary, d.cfg.Signal); idx >= 0 {
		signal = strings.TrimSpace(primary[idx+len(d.cfg.Signal):])
	}

	logging.Infof("[reasoning] escalating for user %s (guidance %d chars)", userID, len(signal))

	opts := orchestrator.Options{
		MaxTokens:     d.cfg.MaxTokens,
		Temperature:   d.cfg.Temperature,
		MaxToolRounds: 1,
	}
	if _, model := splitModel(d.cfg.Model); model != "" {
		opts.Model = model
	}
	if signal != "" {
		opts.ExtraSystem = "Guidance from the first-pass model:\n" + signal
	}

	text, err := d.orch.Run(ctx, d.provider, history, system, opts,
		d.indicatorRender(render))
	if err != nil || text == "" || text == orchestrator.NoResponsePlaceholder {
		logging.Warnf("[reasoning] escalation failed for user %s (err=%v), falling back", userID, err)
		if stripped == "" {
			stripped = orchestrator.NoResponsePlaceholder
		}
		render(stripped, true)
		return stripped
	}

	return text
}

// indicatorRender surfaces the thinking indicator if the configured
// delay passes with no content, and lets the first real update replace it.
func (d *Detector) indicatorRender(render orchestrator.RenderFunc) orchestrator.RenderFunc {
	if !d.cfg.NotifyUser || d.cfg.IndicatorSeconds <= 0 {
		return render
	}

	// The timer fires on its own goroutine; rendering under the mutex
	// keeps the indicator and real updates mutually exclusive, so the
	// indicator can never land after the first content.
	var mu sync.Mutex
	gotContent := false
	timer := time.AfterFunc(time.Duration(d.cfg.IndicatorSeconds)*time.Second, func() {
		mu.Lock()
		defer mu.Unlock()
		if !gotContent {
			render(thinkingIndicator, false)
		}
	})

	return func(text string, final bool) {
		mu.Lock()
		defer mu.Unlock()
		gotContent = true
		timer.Stop()
		render(text, final)
	}
}

// SuppressMarker wraps a renderer so partial updates that carry, or are
// growing into, the escalation marker never reach the user — including
// when the marker starts mid-text after a conversational lead-in. Final
// updates still pass when they carry no marker.
func SuppressMarker(marker string, render orchestrator.RenderFunc) orchestrator.RenderFunc {
	if marker == "" {
		return render
	}
	return func(text string, final bool) {
		trimmed := strings.TrimSpace(text)
		if strings.Contains(trimmed, marker) || trailsIntoMarker(trimmed, marker) {
			return
		}
		render(text, final)
	}
}

// trailsIntoMarker reports whether text ends partway into the marker,
// meaning the next deltas may complete it.
func trailsIntoMarker(text, marker string) bool {
	n := len(marker) - 1
	if len(text) < n {
		n = len(text)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(text, marker[:n]) {
			return true
		}
	}
	return false
}

func splitModel(s string) (provider, model string) {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return "", s
}
