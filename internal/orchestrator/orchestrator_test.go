package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/warblehq/warble/internal/llm"
	"github.com/warblehq/warble/internal/tools"
)

// scriptedProvider plays back one event script per Stream call and
// records the requests it received.
type scriptedProvider struct {
	caps     llm.Capabilities
	scripts  [][]llm.StreamEvent
	requests []*llm.ChatRequest
	err      error
}

func (p *scriptedProvider) ID() string { return "scripted" }

func (p *scriptedProvider) Capabilities() llm.Capabilities { return p.caps }

func (p *scriptedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	if p.err != nil {
		return nil, p.err
	}

	// Snapshot the request so later rounds can't alias it
	cp := *req
	cp.Messages = append([]llm.ChatMessage(nil), req.Messages...)
	p.requests = append(p.requests, &cp)

	call := len(p.requests) - 1
	if call >= len(p.scripts) {
		call = len(p.scripts) - 1
	}
	script := p.scripts[call]

	ch := make(chan llm.StreamEvent, len(script))
	go func() {
		defer close(ch)
		for _, ev := range script {
			ch <- ev
		}
	}()
	return ch, nil
}

// echoExecutor returns a fixed result for every call.
type echoExecutor struct {
	defs   []llm.ToolDefinition
	result *tools.ToolResult
	calls  []*llm.ToolCall
}

func (e *echoExecutor) List() []llm.ToolDefinition { return e.defs }

func (e *echoExecutor) Execute(ctx context.Context, call *llm.ToolCall) *tools.ToolResult {
	e.calls = append(e.calls, call)
	return e.result
}

type renderRecorder struct {
	partials []string
	finals   []string
}

func (r *renderRecorder) fn() RenderFunc {
	return func(text string, final bool) {
		if final {
			r.finals = append(r.finals, text)
		} else {
			r.partials = append(r.partials, text)
		}
	}
}

func textDone(parts ...string) []llm.StreamEvent {
	var events []llm.StreamEvent
	for _, p := range parts {
		events = append(events, llm.StreamEvent{Type: llm.EventTypeText, Text: p})
	}
	return append(events, llm.StreamEvent{Type: llm.EventTypeDone, FinishReason: llm.FinishStop})
}

func userMessages(texts ...string) []llm.ChatMessage {
	var out []llm.ChatMessage
	for _, t := range texts {
		out = append(out, llm.ChatMessage{Role: llm.RoleUser, Content: t})
	}
	return out
}

func TestRunPlainStream(t *testing.T) {
	p := &scriptedProvider{
		caps:    llm.Capabilities{SystemPrompt: true, Streaming: true},
		scripts: [][]llm.StreamEvent{textDone("Hello", ", world")},
	}
	rec := &renderRecorder{}
	o := New(nil)

	got, err := o.Run(context.Background(), p, userMessages("hi"), "be nice", Options{}, rec.fn())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("final text = %q", got)
	}
	if len(rec.partials) != 2 {
		t.Errorf("every delta forwarded: got %d partials", len(rec.partials))
	}
	if len(rec.finals) != 1 || rec.finals[0] != "Hello, world" {
		t.Errorf("exactly one final update expected, got %v", rec.finals)
	}
	if p.requests[0].System != "be nice" {
		t.Errorf("system prompt should pass through natively, got %q", p.requests[0].System)
	}
}

func TestRunToolLoop(t *testing.T) {
	call := llm.ToolCall{ID: "call_1", Name: "clock", Input: json.RawMessage(`{}`)}
	p := &scriptedProvider{
		caps: llm.Capabilities{SystemPrompt: true, Tools: true, Streaming: true},
		scripts: [][]llm.StreamEvent{
			{
				{Type: llm.EventTypeToolCall, ToolCall: &call},
				{Type: llm.EventTypeDone, FinishReason: llm.FinishToolCalls},
			},
			textDone("It is noon."),
		},
	}
	exec := &echoExecutor{
		defs:   []llm.ToolDefinition{{Name: "clock"}},
		result: &tools.ToolResult{Content: "12:00"},
	}
	rec := &renderRecorder{}
	o := New(exec)

	got, err := o.Run(context.Background(), p, userMessages("what time is it"), "",
		Options{MaxToolRounds: 5}, rec.fn())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got != "It is noon." {
		t.Errorf("final text = %q", got)
	}
	if len(exec.calls) != 1 || exec.calls[0].Name != "clock" {
		t.Fatalf("expected one clock call, got %v", exec.calls)
	}

	// Second request carries exactly one assistant tool-request message
	// and one tool-result message after the original user message
	second := p.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("second call history has %d messages, want 3", len(second))
	}
	if second[1].Role != llm.RoleAssistant || len(second[1].ToolCalls) != 1 {
		t.Errorf("message 1 should be the assistant tool request: %+v", second[1])
	}
	if second[2].Role != llm.RoleTool || second[2].Content != "12:00" || second[2].ToolCallID != "call_1" {
		t.Errorf("message 2 should be the tool result: %+v", second[2])
	}
	if len(rec.finals) != 1 {
		t.Errorf("one final render per turn, got %d", len(rec.finals))
	}
}

func TestRunToolFailureFeedsModel(t *testing.T) {
	call := llm.ToolCall{ID: "call_1", Name: "clock", Input: json.RawMessage(`{}`)}
	p := &scriptedProvider{
		caps: llm.Capabilities{SystemPrompt: true, Tools: true, Streaming: true},
		scripts: [][]llm.StreamEvent{
			{
				{Type: llm.EventTypeToolCall, ToolCall: &call},
				{Type: llm.EventTypeDone, FinishReason: llm.FinishToolCalls},
			},
			textDone("The clock is broken."),
		},
	}
	exec := &echoExecutor{
		defs:   []llm.ToolDefinition{{Name: "clock"}},
		result: &tools.ToolResult{Content: "Error: clock unplugged", IsError: true},
	}
	o := New(exec)

	got, err := o.Run(context.Background(), p, userMessages("time?"), "",
		Options{MaxToolRounds: 5}, func(string, bool) {})
	if err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	if got != "The clock is broken." {
		t.Errorf("final text = %q", got)
	}
	if !strings.HasPrefix(p.requests[1].Messages[2].Content, "Error:") {
		t.Errorf("tool failure should reach the model as an Error: message, got %q",
			p.requests[1].Messages[2].Content)
	}
}

func TestRunToolRoundBound(t *testing.T) {
	call := llm.ToolCall{ID: "call_x", Name: "clock", Input: json.RawMessage(`{}`)}
	// Every stream asks for another tool call, forever
	p := &scriptedProvider{
		caps: llm.Capabilities{SystemPrompt: true, Tools: true, Streaming: true},
		scripts: [][]llm.StreamEvent{
			{
				{Type: llm.EventTypeToolCall, ToolCall: &call},
				{Type: llm.EventTypeDone, FinishReason: llm.FinishToolCalls},
			},
		},
	}
	exec := &echoExecutor{result: &tools.ToolResult{Content: "tick"}}
	rec := &renderRecorder{}
	o := New(exec)

	got, err := o.Run(context.Background(), p, userMessages("loop"), "",
		Options{MaxToolRounds: 3}, rec.fn())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(p.requests) != 4 {
		t.Errorf("expected 1 initial + 3 resumed calls, got %d", len(p.requests))
	}
	if got != NoResponsePlaceholder {
		t.Errorf("textless exhausted turn should render the placeholder, got %q", got)
	}
	if len(rec.finals) != 1 {
		t.Errorf("still exactly one final render, got %d", len(rec.finals))
	}
}

func TestRunInlinesSystemPrompt(t *testing.T) {
	p := &scriptedProvider{
		caps:    llm.Capabilities{Streaming: true}, // no native system prompt
		scripts: [][]llm.StreamEvent{textDone("ok")},
	}
	o := New(nil)

	_, err := o.Run(context.Background(), p, userMessages("question"), "be brief", Options{},
		func(string, bool) {})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got := p.requests[0].Messages[0].Content
	want := "be brief\n\n---\n\nquestion"
	if got != want {
		t.Errorf("inlined prompt = %q, want %q", got, want)
	}
	if p.requests[0].System != "" {
		t.Errorf("no system parameter should be passed, got %q", p.requests[0].System)
	}
}

func TestRunTrailingUserPlaceholder(t *testing.T) {
	call := llm.ToolCall{ID: "c1", Name: "clock", Input: json.RawMessage(`{}`)}
	p := &scriptedProvider{
		caps: llm.Capabilities{SystemPrompt: true, Tools: true, Streaming: true, TrailingUser: true},
		scripts: [][]llm.StreamEvent{
			{
				{Type: llm.EventTypeToolCall, ToolCall: &call},
				{Type: llm.EventTypeDone, FinishReason: llm.FinishToolCalls},
			},
			textDone("done"),
		},
	}
	exec := &echoExecutor{result: &tools.ToolResult{Content: "12:00"}}
	o := New(exec)

	if _, err := o.Run(context.Background(), p, userMessages("time?"), "",
		Options{MaxToolRounds: 2}, func(string, bool) {}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	second := p.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != llm.RoleUser || last.Content != "Continue." {
		t.Errorf("expected trailing user placeholder, got %+v", last)
	}
}

func TestRunStreamError(t *testing.T) {
	p := &scriptedProvider{
		caps: llm.Capabilities{SystemPrompt: true, Streaming: true},
		scripts: [][]llm.StreamEvent{
			{
				{Type: llm.EventTypeText, Text: "partial "},
				{Type: llm.EventTypeError, Error: errors.New("connection lost"), FinishReason: llm.FinishError},
			},
		},
	}
	rec := &renderRecorder{}
	o := New(nil)

	got, err := o.Run(context.Background(), p, userMessages("hi"), "", Options{}, rec.fn())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(got, "connection lost") {
		t.Errorf("visible text should carry the error, got %q", got)
	}
	if len(rec.finals) != 1 || rec.finals[0] != got {
		t.Errorf("error must be rendered as the single final update, got %v", rec.finals)
	}
}

func TestRunProviderRefusal(t *testing.T) {
	p := &scriptedProvider{err: errors.New("bad request")}
	rec := &renderRecorder{}
	o := New(nil)

	got, err := o.Run(context.Background(), p, userMessages("hi"), "", Options{}, rec.fn())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(rec.finals) != 1 {
		t.Fatalf("refusal still renders a final update, got %d", len(rec.finals))
	}
	if !strings.Contains(got, "bad request") {
		t.Errorf("got %q", got)
	}
}

func TestRunEmptyStreamRendersPlaceholder(t *testing.T) {
	p := &scriptedProvider{
		caps:    llm.Capabilities{SystemPrompt: true, Streaming: true},
		scripts: [][]llm.StreamEvent{{{Type: llm.EventTypeDone, FinishReason: llm.FinishStop}}},
	}
	o := New(nil)

	got, err := o.Run(context.Background(), p, userMessages("hi"), "", Options{}, func(string, bool) {})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got != NoResponsePlaceholder {
		t.Errorf("got %q, want placeholder", got)
	}
}

func TestRunDoesNotMutateCallerHistory(t *testing.T) {
	call := llm.ToolCall{ID: "c1", Name: "clock", Input: json.RawMessage(`{}`)}
	p := &scriptedProvider{
		caps: llm.Capabilities{SystemPrompt: true, Tools: true, Streaming: true},
		scripts: [][]llm.StreamEvent{
			{
				{Type: llm.EventTypeToolCall, ToolCall: &call},
				{Type: llm.EventTypeDone, FinishReason: llm.FinishToolCalls},
			},
			textDone("fin"),
		},
	}
	exec := &echoExecutor{result: &tools.ToolResult{Content: "r"}}
	o := New(exec)

	history := userMessages("original")
	if _, err := o.Run(context.Background(), p, history, "", Options{MaxToolRounds: 2},
		func(string, bool) {}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(history) != 1 || history[0].Content != "original" {
		t.Errorf("caller history was mutated: %+v", history)
	}
}
