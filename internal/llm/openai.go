package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/warblehq/warble/internal/logging"
)

// OpenAIProvider implements the OpenAI chat completions API using the
// official SDK. It also serves OpenAI-compatible backends (x-ai, groq,
// mistral, openrouter, local servers) via a custom base URL.
type OpenAIProvider struct {
	client openai.Client
	id     string
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return NewOpenAICompatProvider("openai", "", apiKey, model)
}

// NewOpenAICompatProvider creates a provider for an OpenAI-compatible API.
// An empty baseURL targets api.openai.com.
func NewOpenAICompatProvider(id, baseURL, apiKey, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		id:     id,
		model:  model,
	}
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() string {
	return p.id
}

// Capabilities reports the adapter's feature flags
func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{
		Vision:       ModelSupportsVision(p.model),
		Tools:        true,
		SystemPrompt: true,
		Usernames:    ProviderSupportsUsernames(p.id),
		Streaming:    true,
	}
}

// Stream sends a request and returns streaming events
func (p *OpenAIProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	messages, err := p.buildMessages(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages: %w", err)
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			var schema map[string]interface{}
			if err := json.Unmarshal([]byte(tool.InputSchema), &schema); err != nil {
				logging.Errorf("[%s] failed to parse tool schema for %s: %v", p.id, tool.Name, err)
				continue
			}

			tools = append(tools, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  shared.FunctionParameters(schema),
				},
			})
		}
		params.Tools = tools
	}

	logging.Debugf("[%s] request: model=%s messages=%d tools=%d",
		p.id, model, len(messages), len(req.Tools))

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	events := make(chan StreamEvent, 100)
	go p.handleStream(stream, events)

	return events, nil
}

// buildMessages converts chat messages to OpenAI format
func (p *OpenAIProvider) buildMessages(req *ChatRequest) ([]openai.ChatCompletionMessageParamUnion, error) {
	var result []openai.ChatCompletionMessageParamUnion

	if req.System != "" {
		result = append(result, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			userMsg := openai.ChatCompletionUserMessageParam{}
			if msg.Name != "" {
				userMsg.Name = openai.String(msg.Name)
			}

			if len(msg.Images) > 0 {
				parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Images)+1)
				if msg.Content != "" {
					parts = append(parts, openai.TextContentPart(msg.Content))
				}
				for _, img := range msg.Images {
					dataURL := fmt.Sprintf("data:%s;base64,%s",
						img.MediaType, base64.StdEncoding.EncodeToString(img.Data))
					parts = append(parts, openai.ImageContentPart(
						openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
					))
				}
				userMsg.Content = openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: parts,
				}
			} else {
				userMsg.Content = openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfUser: &userMsg})

		case RoleAssistant:
			var toolCalls []openai.ChatCompletionMessageToolCallParam
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}

			if msg.Content == "" && len(toolCalls) == 0 {
				continue
			}
			assistantMsg := openai.ChatCompletionAssistantMessageParam{
				Role: "assistant",
			}
			if msg.Content != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			if len(toolCalls) > 0 {
				assistantMsg.ToolCalls = toolCalls
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &assistantMsg,
			})

		case RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))

		case RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		}
	}

	return result, nil
}

// handleStream processes the streaming response
func (p *OpenAIProvider) handleStream(stream *ssestream.Stream[openai.ChatCompletionChunk], events chan<- StreamEvent) {
	defer close(events)

	acc := openai.ChatCompletionAccumulator{}
	reason := FinishStop

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			events <- StreamEvent{
				Type: EventTypeToolCall,
				ToolCall: &ToolCall{
					ID:    tool.ID,
					Name:  tool.Name,
					Input: json.RawMessage(tool.Arguments),
				},
			}
		}

		if len(chunk.Choices) > 0 {
			if chunk.Choices[0].Delta.Content != "" {
				events <- StreamEvent{
					Type: EventTypeText,
					Text: chunk.Choices[0].Delta.Content,
				}
			}
			switch chunk.Choices[0].FinishReason {
			case "length":
				reason = FinishLength
			case "content_filter":
				reason = FinishContentFilter
			case "tool_calls":
				reason = FinishToolCalls
			}
		}
	}

	if err := stream.Err(); err != nil {
		logging.Errorf("[%s] stream error: %v", p.id, err)
		events <- StreamEvent{
			Type:         EventTypeError,
			Error:        err,
			FinishReason: FinishError,
		}
		return
	}

	events <- StreamEvent{Type: EventTypeDone, FinishReason: reason}
}
