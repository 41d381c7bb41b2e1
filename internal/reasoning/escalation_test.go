package reasoning

import (
	"context"
	"strings"
	"testing"

	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/llm"
	"github.com/warblehq/warble/internal/orchestrator"
)

const marker = "[USE_REASONING_MODEL]"

type strongProvider struct {
	events   []llm.StreamEvent
	requests []*llm.ChatRequest
}

func (p *strongProvider) ID() string { return "strong" }

func (p *strongProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{SystemPrompt: true, Streaming: true}
}

func (p *strongProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	cp := *req
	p.requests = append(p.requests, &cp)

	ch := make(chan llm.StreamEvent, len(p.events))
	go func() {
		defer close(ch)
		for _, ev := range p.events {
			ch <- ev
		}
	}()
	return ch, nil
}

type fixedGate struct{ allow bool }

func (g fixedGate) AllowReasoning(string) bool { return g.allow }

func testCfg() config.ReasoningConfig {
	cfg := config.DefaultConfig().Reasoning
	cfg.Enabled = true
	cfg.Model = "openai/o3"
	cfg.NotifyUser = false
	return cfg
}

func newDetector(p *strongProvider, gate Gate) *Detector {
	return New(testCfg(), p, orchestrator.New(nil), gate)
}

func history() []llm.ChatMessage {
	return []llm.ChatMessage{{Role: llm.RoleUser, Content: "hard question"}}
}

func TestMaybeEscalateNoMarker(t *testing.T) {
	p := &strongProvider{}
	d := newDetector(p, fixedGate{allow: true})

	got := d.MaybeEscalate(context.Background(), "plain answer", history(), "", "u1",
		func(string, bool) {})

	if got != "plain answer" {
		t.Errorf("got %q", got)
	}
	if len(p.requests) != 0 {
		t.Error("no escalation should happen without the marker")
	}
}

func TestMaybeEscalateReplacesOutput(t *testing.T) {
	p := &strongProvider{events: []llm.StreamEvent{
		{Type: llm.EventTypeText, Text: "deep answer"},
		{Type: llm.EventTypeDone, FinishReason: llm.FinishStop},
	}}
	d := newDetector(p, fixedGate{allow: true})

	got := d.MaybeEscalate(context.Background(), marker+" consider edge cases", history(), "base prompt", "u1",
		func(string, bool) {})

	if got != "deep answer" {
		t.Errorf("got %q, want the escalated output", got)
	}
	if len(p.requests) != 1 {
		t.Fatalf("expected one escalated call, got %d", len(p.requests))
	}
	if p.requests[0].Messages[0].Content != "hard question" {
		t.Error("escalation must reuse the original history")
	}
	if !strings.Contains(p.requests[0].System, "consider edge cases") {
		t.Errorf("guidance after the marker should reach the stronger model, system = %q",
			p.requests[0].System)
	}
	if p.requests[0].Model != "o3" {
		t.Errorf("model override = %q, want o3", p.requests[0].Model)
	}
}

func TestMaybeEscalateEmptySignalStillEscalates(t *testing.T) {
	p := &strongProvider{events: []llm.StreamEvent{
		{Type: llm.EventTypeText, Text: "thought about it"},
		{Type: llm.EventTypeDone, FinishReason: llm.FinishStop},
	}}
	d := newDetector(p, fixedGate{allow: true})

	got := d.MaybeEscalate(context.Background(), marker, history(), "base", "u1",
		func(string, bool) {})

	if got != "thought about it" {
		t.Errorf("got %q", got)
	}
	if strings.Contains(p.requests[0].System, "Guidance") {
		t.Error("empty signal should add no guidance section")
	}
}

func TestMaybeEscalateEmptyResultFallsBack(t *testing.T) {
	// Secondary stream produces no content
	p := &strongProvider{events: []llm.StreamEvent{
		{Type: llm.EventTypeDone, FinishReason: llm.FinishStop},
	}}
	d := newDetector(p, fixedGate{allow: true})

	var finals []string
	got := d.MaybeEscalate(context.Background(), marker+" some hint", history(), "", "u1",
		func(text string, final bool) {
			if final {
				finals = append(finals, text)
			}
		})

	if got != "some hint" {
		t.Errorf("fallback should be the primary text with marker stripped, got %q", got)
	}
	if len(finals) == 0 || finals[len(finals)-1] != "some hint" {
		t.Errorf("fallback must be rendered, finals = %v", finals)
	}
}

func TestMaybeEscalateRateLimited(t *testing.T) {
	p := &strongProvider{}
	d := newDetector(p, fixedGate{allow: false})

	got := d.MaybeEscalate(context.Background(), marker+" leftover text", history(), "", "u1",
		func(string, bool) {})

	if got != "leftover text" {
		t.Errorf("got %q, want marker-stripped primary text", got)
	}
	if len(p.requests) != 0 {
		t.Error("rate-limited user must not reach the stronger model")
	}
}

func TestMaybeEscalateDisabled(t *testing.T) {
	cfg := testCfg()
	cfg.Enabled = false
	d := New(cfg, &strongProvider{}, orchestrator.New(nil), fixedGate{allow: true})

	got := d.MaybeEscalate(context.Background(), marker, history(), "", "u1",
		func(string, bool) {})

	if got != marker {
		t.Errorf("disabled detector must pass text through, got %q", got)
	}
}

func TestSuppressMarker(t *testing.T) {
	var got []string
	render := SuppressMarker(marker, func(text string, final bool) {
		got = append(got, text)
	})

	render("[USE_RE", false)           // growing into the marker
	render(marker, false)              // exactly the marker
	render(marker+" guidance", false)  // marker plus signal
	render("Sure — [USE_REA", false)   // marker starting after a lead-in
	render("Sure — [USE_REASONING_MODEL]", false)
	render("normal partial", false) // unrelated text
	render("final text", true)

	if len(got) != 2 || got[0] != "normal partial" || got[1] != "final text" {
		t.Errorf("suppression wrong, forwarded: %v", got)
	}
}

func TestThinkingIndicatorNeverFollowsContent(t *testing.T) {
	cfg := testCfg()
	cfg.NotifyUser = true
	cfg.IndicatorSeconds = 1
	p := &strongProvider{events: []llm.StreamEvent{
		{Type: llm.EventTypeText, Text: "deep answer"},
		{Type: llm.EventTypeDone, FinishReason: llm.FinishStop},
	}}
	d := New(cfg, p, orchestrator.New(nil), fixedGate{allow: true})

	var got []string
	out := d.MaybeEscalate(context.Background(), marker, history(), "", "u1",
		func(text string, final bool) {
			got = append(got, text)
		})

	if out != "deep answer" {
		t.Fatalf("got %q", out)
	}
	for _, text := range got {
		if text == thinkingIndicator {
			t.Error("indicator must not render once content has arrived")
		}
	}
}
