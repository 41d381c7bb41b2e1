package llm

import (
	"context"
	"encoding/json"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// StreamEventType defines the type of streaming event
type StreamEventType string

const (
	EventTypeText     StreamEventType = "text"
	EventTypeToolCall StreamEventType = "tool_call"
	EventTypeThinking StreamEventType = "thinking"
	EventTypeError    StreamEventType = "error"
	EventTypeDone     StreamEventType = "done"
)

// FinishReason reports why a generation ended. Only meaningful on the
// terminal (done or error) event of a stream.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishError         FinishReason = "error"
	FinishUnknown       FinishReason = "unknown"
)

// StreamEvent represents a streaming response event
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Text         string          `json:"text,omitempty"`
	ToolCall     *ToolCall       `json:"tool_call,omitempty"`
	Error        error           `json:"error,omitempty"`
	FinishReason FinishReason    `json:"finish_reason,omitempty"`
}

// ToolCall represents a tool invocation from the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolDefinition describes a tool available to the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ImagePart is one image attached to a message
type ImagePart struct {
	MediaType string `json:"media_type"` // e.g. "image/png"
	Data      []byte `json:"data"`
}

// ChatMessage is the provider-facing message unit
type ChatMessage struct {
	Role    string      `json:"role"` // user, assistant, system, tool
	Content string      `json:"content,omitempty"`
	Images  []ImagePart `json:"images,omitempty"`

	// Name identifies the participant; only sent when the provider
	// supports named participants.
	Name string `json:"name,omitempty"`

	// Assistant tool requests
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool result fields (role == "tool")
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ChatRequest represents a request to a provider
type ChatRequest struct {
	Messages    []ChatMessage    `json:"messages"`
	System      string           `json:"system,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	Model       string           `json:"model,omitempty"` // Per-call model override
}

// Capabilities are the feature flags a provider adapter reports. The
// history builder and the orchestrator depend only on these, never on a
// concrete adapter type.
type Capabilities struct {
	Vision       bool `json:"vision"`
	Tools        bool `json:"tools"`
	SystemPrompt bool `json:"system_prompt"`
	Usernames    bool `json:"usernames"`
	Streaming    bool `json:"streaming"`

	// TrailingUser is set by adapters whose backend requires the last
	// history message to have user role when resuming after tool results.
	TrailingUser bool `json:"trailing_user,omitempty"`
}

// Provider interface for LLM backends
type Provider interface {
	// ID returns the provider identifier (e.g. "anthropic", "openai")
	ID() string

	// Capabilities reports the adapter's feature flags
	Capabilities() Capabilities

	// Stream sends a request and returns a channel of streaming events.
	// The channel is closed after the terminal event.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// Complete drains a stream into a single string. Used for one-shot calls
// that don't need incremental rendering (memory condensation and the like).
func Complete(ctx context.Context, p Provider, req *ChatRequest) (string, error) {
	events, err := p.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var result []byte
	for event := range events {
		switch event.Type {
		case EventTypeText:
			result = append(result, event.Text...)
		case EventTypeError:
			return string(result), event.Error
		}
	}
	return string(result), nil
}
