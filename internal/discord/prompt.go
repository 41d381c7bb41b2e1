package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/llm"
)

// buildSystemPrompt assembles the per-turn system prompt: the configured
// base text with {date}/{time} substituted, speaker-format notes matched
// to the provider's capabilities, the user's stored memory, memory
// directive instructions, and optionally the escalation instruction.
// The escalated call passes includeReasoning=false so the stronger model
// cannot re-escalate.
func buildSystemPrompt(cfg *config.Config, caps llm.Capabilities, userID, memoryText string, includeReasoning bool) string {
	now := time.Now()
	base := strings.TrimSpace(cfg.SystemPrompt)
	base = strings.ReplaceAll(base, "{date}", now.Format("January 2 2006"))
	base = strings.ReplaceAll(base, "{time}", now.Format("15:04"))

	var parts []string
	if base != "" {
		extras := []string{fmt.Sprintf("Today's date: %s.", now.Format("January 2 2006"))}
		if caps.Usernames {
			extras = append(extras, "User IDs may be provided in the 'name' field for user messages.")
		} else {
			extras = append(extras,
				"User messages in the history are prefixed with 'User (DisplayName/ID):' to identify the speaker.",
				fmt.Sprintf("To mention the user you are replying to (ID: %s), write '<@%s>'. To mention other users from context, write '<@USER_ID>' with their ID.", userID, userID))
		}
		parts = append(parts, strings.Join(append([]string{base}, extras...), "\n"))
	}

	if memoryText != "" {
		memory := fmt.Sprintf("%s(User ID: %s):\n%s", cfg.Memory.MemoryPrefix, userID, memoryText)
		parts = append([]string{memory}, parts...)
	}

	prompt := strings.Join(parts, "\n\n")

	if cfg.Memory.Enabled && cfg.Memory.LLMSuggestsMemory {
		instructions := fmt.Sprintf(
			"\n\n**Memory Instructions:**\n"+
				"If you learn new, lasting information about the user, or need to rewrite your notes, "+
				"include one directive at the very end of your response, after all other text:\n"+
				"1. To add a note: `%snew note text%s`\n"+
				"2. To rewrite all notes: `%sthe full replacement text%s`\n"+
				"Do not mention these directives in your conversational reply.",
			cfg.Memory.AppendStartMarker, cfg.Memory.AppendEndMarker,
			cfg.Memory.ReplaceStartMarker, cfg.Memory.ReplaceEndMarker)
		prompt = strings.TrimSpace(prompt + instructions)
	}

	if includeReasoning && cfg.Reasoning.Enabled && cfg.Reasoning.Model != "" {
		instruction := fmt.Sprintf(
			"\n\n---\n"+
				"Internal Task: If the user's request requires complex reasoning, analysis, multi-step planning, "+
				"or deep creative thought, or if the user asks you to think deeply, respond *only* with the exact "+
				"text `%s` and nothing else. You may follow the marker with a short note on what to focus on. "+
				"Otherwise, answer the request directly.",
			cfg.Reasoning.Signal)
		prompt = strings.TrimSpace(prompt + instruction)
	}

	return prompt
}
