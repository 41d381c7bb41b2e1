package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/warblehq/warble/internal/llm"
	"github.com/warblehq/warble/internal/logging"
	"github.com/warblehq/warble/internal/tools"
)

// systemDelimiter separates an inlined system prompt from the first user
// message when the provider has no native system-prompt support.
const systemDelimiter = "\n\n---\n\n"

// continuationPhrase is the placeholder user message appended after tool
// results for providers that require the final message to be user-role.
const continuationPhrase = "Continue."

// NoResponsePlaceholder is rendered when a turn produces no text at all.
const NoResponsePlaceholder = "*No response generated.*"

// RenderFunc receives the accumulated text on every delta and exactly
// once with final=true at the end of the turn. Throttling and platform
// length limits are the renderer's concern, not the orchestrator's.
type RenderFunc func(text string, final bool)

// ToolExecutor is the registry surface the orchestrator drives.
type ToolExecutor interface {
	List() []llm.ToolDefinition
	Execute(ctx context.Context, call *llm.ToolCall) *tools.ToolResult
}

// Options tune a single turn.
type Options struct {
	MaxTokens     int
	Temperature   float64
	Model         string // per-call model override
	MaxToolRounds int    // tool-call resume cycles before giving up
	ExtraSystem   string // appended to the system prompt for this turn only
}

// Orchestrator drives one or more sequential provider streams for a
// turn: it accumulates text, forwards every delta to the renderer,
// executes mid-stream tool calls, splices the results into the working
// history, and re-invokes the provider until a terminal event.
type Orchestrator struct {
	tools ToolExecutor
}

// New creates an orchestrator. A nil executor disables tool calling.
func New(exec ToolExecutor) *Orchestrator {
	return &Orchestrator{tools: exec}
}

// Run executes one turn and returns the final text handed to the
// renderer. The returned error reports how the turn ended: a non-nil
// error means the visible text is an error message, not model output.
// Every path renders exactly one final update.
func (o *Orchestrator) Run(ctx context.Context, provider llm.Provider, messages []llm.ChatMessage, system string, opts Options, render RenderFunc) (string, error) {
	turnID := uuid.New().String()[:8]
	caps := provider.Capabilities()

	// The working history is owned by this turn; the caller's slice is
	// never mutated.
	working := make([]llm.ChatMessage, len(messages))
	copy(working, messages)

	if opts.ExtraSystem != "" {
		if system != "" {
			system += "\n\n" + opts.ExtraSystem
		} else {
			system = opts.ExtraSystem
		}
	}

	var toolDefs []llm.ToolDefinition
	if o.tools != nil && caps.Tools {
		toolDefs = o.tools.List()
	}

	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 1
	}

	var buf strings.Builder

	for round := 0; round <= maxRounds; round++ {
		req := &llm.ChatRequest{
			Messages:    working,
			Tools:       toolDefs,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			Model:       opts.Model,
		}
		// Applied identically on every call within the turn, including
		// post-tool resumption
		if caps.SystemPrompt {
			req.System = system
		} else if system != "" {
			req.Messages = inlineSystemPrompt(working, system)
		}

		logging.Debugf("[orchestrator] turn %s round %d: messages=%d tools=%d",
			turnID, round, len(req.Messages), len(toolDefs))

		events, err := provider.Stream(ctx, req)
		if err != nil {
			return o.finishError(render, &buf, err)
		}

		var toolCalls []llm.ToolCall
		var streamText strings.Builder
		finished := llm.FinishUnknown

	stream:
		for event := range events {
			switch event.Type {
			case llm.EventTypeText:
				streamText.WriteString(event.Text)
				buf.WriteString(event.Text)
				render(buf.String(), false)

			case llm.EventTypeToolCall:
				toolCalls = append(toolCalls, *event.ToolCall)

			case llm.EventTypeError:
				logging.Errorf("[orchestrator] turn %s stream error: %v", turnID, event.Error)
				return o.finishError(render, &buf, event.Error)

			case llm.EventTypeDone:
				finished = event.FinishReason
				break stream
			}
		}

		if len(toolCalls) == 0 {
			// Terminal stream: plain stop, length, or filter
			text := buf.String()
			if strings.TrimSpace(text) == "" {
				text = NoResponsePlaceholder
			}
			render(text, true)
			return text, nil
		}

		if round == maxRounds {
			logging.Warnf("[orchestrator] turn %s hit tool round limit (%d)", turnID, maxRounds)
			break
		}

		logging.Debugf("[orchestrator] turn %s finished %s with %d tool call(s)",
			turnID, finished, len(toolCalls))

		// Record the request, then one tool-role message per result, in
		// the order the calls arrived
		working = append(working, llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   streamText.String(),
			ToolCalls: toolCalls,
		})
		for i := range toolCalls {
			call := &toolCalls[i]
			working = append(working, o.executeCall(ctx, call))
		}
		if caps.TrailingUser {
			working = append(working, llm.ChatMessage{
				Role:    llm.RoleUser,
				Content: continuationPhrase,
			})
		}
	}

	// Tool rounds exhausted; surface whatever text accumulated
	text := buf.String()
	if strings.TrimSpace(text) == "" {
		text = NoResponsePlaceholder
	}
	render(text, true)
	return text, nil
}

// executeCall runs one tool call and converts any failure into a
// textual error result the model can react to.
func (o *Orchestrator) executeCall(ctx context.Context, call *llm.ToolCall) llm.ChatMessage {
	var result *tools.ToolResult
	if o.tools == nil {
		result = &tools.ToolResult{
			Content: fmt.Sprintf("Error: tool %q is not available", call.Name),
			IsError: true,
		}
	} else {
		result = o.tools.Execute(ctx, call)
	}

	return llm.ChatMessage{
		Role:       llm.RoleTool,
		Content:    result.Content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// inlineSystemPrompt prepends the system prompt to the first user
// message for providers without native system-prompt support. The input
// slice is left untouched.
func inlineSystemPrompt(messages []llm.ChatMessage, system string) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(messages))
	copy(out, messages)

	for i := range out {
		if out[i].Role == llm.RoleUser {
			out[i].Content = system + systemDelimiter + out[i].Content
			return out
		}
	}

	// No user message to carry it; lead with one
	return append([]llm.ChatMessage{{Role: llm.RoleUser, Content: system}}, out...)
}

// finishError renders the turn's terminal error text exactly once.
func (o *Orchestrator) finishError(render RenderFunc, buf *strings.Builder, err error) (string, error) {
	text := buf.String()
	errText := errorText(err)
	if text == "" {
		text = errText
	} else {
		text = text + "\n\n" + errText
	}
	render(text, true)
	return text, err
}

// errorText maps a provider failure to the message shown to the user.
func errorText(err error) string {
	switch llm.ClassifyErrorReason(err) {
	case "rate_limit":
		return "⚠️ The model is receiving too many requests right now. Please try again in a moment."
	case "billing", "auth":
		return "⚠️ There's a problem with the model configuration. Please contact the bot operator."
	case "timeout":
		return "⚠️ The model took too long to respond. Please try again."
	default:
		if llm.IsContextOverflow(err) {
			return "⚠️ This conversation is too long for the model. Start a fresh one."
		}
		return fmt.Sprintf("⚠️ Error: %v", err)
	}
}
