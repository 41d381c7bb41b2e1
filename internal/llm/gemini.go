package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/warblehq/warble/internal/logging"
)

// GeminiProvider implements the Google Gemini API via the official SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// ID returns the provider identifier
func (p *GeminiProvider) ID() string {
	return "google"
}

// Capabilities reports the adapter's feature flags. Gemini requires the
// final message in a turn to come from the user, so after tool results
// the orchestrator appends a continuation message.
func (p *GeminiProvider) Capabilities() Capabilities {
	return Capabilities{
		Vision:       ModelSupportsVision(p.model),
		Tools:        true,
		SystemPrompt: true,
		Streaming:    true,
		TrailingUser: true,
	}
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Stream sends a request and returns streaming events
func (p *GeminiProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	name := p.model
	if req.Model != "" {
		name = req.Model
	}
	model := p.client.GenerativeModel(name)

	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, tool := range req.Tools {
			schema, err := toGeminiSchema(tool.InputSchema)
			if err != nil {
				logging.Errorf("[google] failed to convert schema for %s: %v", tool.Name, err)
				continue
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	history, last, err := p.buildContents(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages: %w", err)
	}

	session := model.StartChat()
	session.History = history

	logging.Debugf("[google] request: model=%s history=%d tools=%d",
		name, len(history), len(req.Tools))

	iter := session.SendMessageStream(ctx, last...)

	events := make(chan StreamEvent, 100)
	go p.handleStream(iter, events)

	return events, nil
}

// buildContents converts chat messages to Gemini contents, splitting off
// the final message's parts because SendMessageStream takes them directly.
func (p *GeminiProvider) buildContents(messages []ChatMessage) ([]*genai.Content, []genai.Part, error) {
	var contents []*genai.Content

	for _, msg := range messages {
		var role string
		var parts []genai.Part

		switch msg.Role {
		case RoleUser:
			role = "user"
			text := msg.Content
			if msg.Name != "" {
				text = msg.Name + ": " + text
			}
			if text != "" {
				parts = append(parts, genai.Text(text))
			}
			for _, img := range msg.Images {
				format := strings.TrimPrefix(img.MediaType, "image/")
				parts = append(parts, genai.ImageData(format, img.Data))
			}

		case RoleAssistant:
			role = "model"
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]interface{}
				if err := json.Unmarshal(tc.Input, &args); err != nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}

		case RoleTool:
			role = "user"
			parts = append(parts, genai.FunctionResponse{
				Name:     msg.ToolName,
				Response: map[string]interface{}{"result": msg.Content},
			})

		case RoleSystem:
			// handled via SystemInstruction
			continue
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("no messages to send")
	}

	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, nil, fmt.Errorf("final message must be from the user")
	}
	return contents[:len(contents)-1], last.Parts, nil
}

// handleStream processes the streaming response
func (p *GeminiProvider) handleStream(iter *genai.GenerateContentResponseIterator, events chan<- StreamEvent) {
	defer close(events)

	sawToolCall := false
	callSeq := 0
	reason := FinishStop

	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logging.Errorf("[google] stream error: %v", err)
			events <- StreamEvent{
				Type:         EventTypeError,
				Error:        err,
				FinishReason: FinishError,
			}
			return
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					if v != "" {
						events <- StreamEvent{Type: EventTypeText, Text: string(v)}
					}
				case genai.FunctionCall:
					callSeq++
					input, err := json.Marshal(v.Args)
					if err != nil {
						input = json.RawMessage("{}")
					}
					sawToolCall = true
					events <- StreamEvent{
						Type: EventTypeToolCall,
						ToolCall: &ToolCall{
							ID:    fmt.Sprintf("call_%d", callSeq),
							Name:  v.Name,
							Input: input,
						},
					}
				}
			}
			switch cand.FinishReason {
			case genai.FinishReasonMaxTokens:
				reason = FinishLength
			case genai.FinishReasonSafety, genai.FinishReasonRecitation:
				reason = FinishContentFilter
			}
		}
	}

	if sawToolCall {
		reason = FinishToolCalls
	}
	events <- StreamEvent{Type: EventTypeDone, FinishReason: reason}
}

// toGeminiSchema converts a JSON schema document to the Gemini schema type.
func toGeminiSchema(raw json.RawMessage) (*genai.Schema, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return convertSchema(doc), nil
}

func convertSchema(doc map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := doc["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	if d, ok := doc["description"].(string); ok {
		schema.Description = d
	}
	if enum, ok := doc["enum"].([]interface{}); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := doc["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, val := range props {
			if sub, ok := val.(map[string]interface{}); ok {
				schema.Properties[name] = convertSchema(sub)
			}
		}
	}
	if required, ok := doc["required"].([]interface{}); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := doc["items"].(map[string]interface{}); ok {
		schema.Items = convertSchema(items)
	}

	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
