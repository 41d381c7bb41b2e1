package discord

import (
	"strings"
	"testing"

	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/llm"
)

func TestStripBotMention(t *testing.T) {
	tests := []struct {
		in            string
		wantContent   string
		wantMentioned bool
	}{
		{"<@bot1> hello", "hello", true},
		{"<@!bot1> hello", "hello", true},
		{"hello <@bot1>", "hello <@bot1>", true},
		{"hello", "hello", false},
		{"<@other> hi", "<@other> hi", false},
	}
	for _, tt := range tests {
		content, mentioned := stripBotMention(tt.in, "bot1")
		if content != tt.wantContent || mentioned != tt.wantMentioned {
			t.Errorf("stripBotMention(%q) = (%q, %v), want (%q, %v)",
				tt.in, content, mentioned, tt.wantContent, tt.wantMentioned)
		}
	}
}

func TestParseMemoryCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantCmd  string
		wantRest string
		wantOK   bool
	}{
		{"!memory show", "show", "", true},
		{"!memory set likes go", "set", "likes go", true},
		{"!memory CLEAR", "clear", "", true},
		{"!memory", "", "", true},
		{"!memorycheck", "", "", false},
		{"hello there", "", "", false},
	}
	for _, tt := range tests {
		cmd, rest, ok := parseMemoryCommand(tt.in)
		if cmd != tt.wantCmd || rest != tt.wantRest || ok != tt.wantOK {
			t.Errorf("parseMemoryCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, cmd, rest, ok, tt.wantCmd, tt.wantRest, tt.wantOK)
		}
	}
}

func promptConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SystemPrompt = "You are a helpful assistant."
	return cfg
}

func TestBuildSystemPromptUsernameCapable(t *testing.T) {
	cfg := promptConfig()
	caps := llm.Capabilities{Usernames: true}

	prompt := buildSystemPrompt(cfg, caps, "u1", "", false)
	if !strings.Contains(prompt, "You are a helpful assistant.") {
		t.Error("base prompt missing")
	}
	if !strings.Contains(prompt, "'name' field") {
		t.Error("name-field note missing for username-capable provider")
	}
	if strings.Contains(prompt, "User (DisplayName/ID)") {
		t.Error("prefix note should not appear for username-capable provider")
	}
}

func TestBuildSystemPromptPrefixNote(t *testing.T) {
	cfg := promptConfig()
	prompt := buildSystemPrompt(cfg, llm.Capabilities{}, "u1", "", false)
	if !strings.Contains(prompt, "User (DisplayName/ID)") {
		t.Error("prefix note missing")
	}
	if !strings.Contains(prompt, "<@u1>") {
		t.Error("mention format note missing")
	}
}

func TestBuildSystemPromptMemorySection(t *testing.T) {
	cfg := promptConfig()
	prompt := buildSystemPrompt(cfg, llm.Capabilities{}, "u1", "likes concise answers", false)
	if !strings.Contains(prompt, "(User ID: u1):\nlikes concise answers") {
		t.Errorf("memory section missing:\n%s", prompt)
	}
	idx := strings.Index(prompt, "likes concise answers")
	base := strings.Index(prompt, "You are a helpful assistant.")
	if idx == -1 || base == -1 || idx > base {
		t.Error("memory should precede the base prompt")
	}
}

func TestBuildSystemPromptMemoryDirectives(t *testing.T) {
	cfg := promptConfig()
	cfg.Memory.Enabled = true
	cfg.Memory.LLMSuggestsMemory = true

	prompt := buildSystemPrompt(cfg, llm.Capabilities{}, "u1", "", false)
	if !strings.Contains(prompt, "[MEM_APPEND]") || !strings.Contains(prompt, "[/MEM_REPLACE]") {
		t.Errorf("directive markers missing:\n%s", prompt)
	}
}

func TestBuildSystemPromptReasoningInstruction(t *testing.T) {
	cfg := promptConfig()
	cfg.Reasoning.Enabled = true
	cfg.Reasoning.Model = "openai/o3"

	with := buildSystemPrompt(cfg, llm.Capabilities{}, "u1", "", true)
	if !strings.Contains(with, "[USE_REASONING_MODEL]") {
		t.Error("escalation marker instruction missing")
	}

	// The escalated call must not re-instruct the marker
	without := buildSystemPrompt(cfg, llm.Capabilities{}, "u1", "", false)
	if strings.Contains(without, "[USE_REASONING_MODEL]") {
		t.Error("escalation instruction leaked into the escalated call")
	}
}

func TestBuildSystemPromptDateSubstitution(t *testing.T) {
	cfg := promptConfig()
	cfg.SystemPrompt = "Today is {date} at {time}."
	prompt := buildSystemPrompt(cfg, llm.Capabilities{Usernames: true}, "u1", "", false)
	if strings.Contains(prompt, "{date}") || strings.Contains(prompt, "{time}") {
		t.Errorf("placeholders not substituted:\n%s", prompt)
	}
}
