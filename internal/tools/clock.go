package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ClockTool reports the current date and time, optionally in a named
// IANA time zone.
type ClockTool struct{}

// NewClockTool creates a new clock tool
func NewClockTool() *ClockTool {
	return &ClockTool{}
}

func (t *ClockTool) Name() string {
	return "clock"
}

func (t *ClockTool) Description() string {
	return "Get the current date and time. Optionally pass an IANA timezone name like America/New_York."
}

func (t *ClockTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name. Defaults to UTC."
			}
		}
	}`)
}

type clockInput struct {
	Timezone string `json:"timezone"`
}

func (t *ClockTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in clockInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	loc := time.UTC
	if in.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(in.Timezone)
		if err != nil {
			return &ToolResult{
				Content: fmt.Sprintf("Error: unknown timezone %q", in.Timezone),
				IsError: true,
			}, nil
		}
	}

	now := time.Now().In(loc)
	return &ToolResult{
		Content: now.Format("Monday, January 2, 2006 at 15:04:05 MST"),
	}, nil
}
