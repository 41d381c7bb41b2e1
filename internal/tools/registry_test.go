package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/warblehq/warble/internal/llm"
)

type fakeTool struct {
	name    string
	result  *ToolResult
	err     error
	gotArgs json.RawMessage
}

func (f *fakeTool) Name() string            { return f.name }
func (f *fakeTool) Description() string     { return "a fake tool" }
func (f *fakeTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (f *fakeTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	f.gotArgs = input
	return f.result, f.err
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "echo", result: &ToolResult{Content: "hi"}}
	reg.Register(tool)

	result := reg.Execute(context.Background(), &llm.ToolCall{
		ID:    "call_1",
		Name:  "echo",
		Input: json.RawMessage(`{"text":"hi"}`),
	})

	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "hi" {
		t.Errorf("got %q, want %q", result.Content, "hi")
	}
	if string(tool.gotArgs) != `{"text":"hi"}` {
		t.Errorf("tool received args %s", tool.gotArgs)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "clock", result: &ToolResult{Content: "now"}})

	result := reg.Execute(context.Background(), &llm.ToolCall{Name: "websearch"})

	if !result.IsError {
		t.Fatal("expected error result for unknown tool")
	}
	if !strings.Contains(result.Content, "websearch") {
		t.Errorf("error should name the missing tool: %s", result.Content)
	}
	if !strings.Contains(result.Content, "clock") {
		t.Errorf("error should list available tools: %s", result.Content)
	}
}

func TestRegistryExecuteToolFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "broken", err: errors.New("disk on fire")})

	result := reg.Execute(context.Background(), &llm.ToolCall{Name: "broken"})

	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(result.Content, "disk on fire") {
		t.Errorf("error result should carry the failure: %s", result.Content)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeTool{name: "zeta"})
	reg.Register(&fakeTool{name: "alpha"})

	defs := reg.List()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("definitions not sorted: %v, %v", defs[0].Name, defs[1].Name)
	}
}

func TestClockTool(t *testing.T) {
	tool := NewClockTool()

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"timezone":"UTC"}`))
	if err != nil {
		t.Fatalf("clock failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "UTC") {
		t.Errorf("expected UTC timestamp, got %q", result.Content)
	}

	result, err = tool.Execute(context.Background(), json.RawMessage(`{"timezone":"Not/AZone"}`))
	if err != nil {
		t.Fatalf("clock returned hard error for bad zone: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unknown timezone")
	}
}
