package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the bot configuration
type Config struct {
	// Discord settings
	BotToken       string   `yaml:"bot_token"`
	ClientID       string   `yaml:"client_id"`
	StatusMessages []string `yaml:"status_messages"`
	StatusSeconds  int      `yaml:"status_seconds"` // Rotation interval (default: 300)

	// Response rendering
	UsePlainResponses bool `yaml:"use_plain_responses"` // Plain text instead of embeds
	AllowDMs          bool `yaml:"allow_dms"`

	// History limits
	MaxText         int `yaml:"max_text"`          // Max characters per message (default: 100000)
	MaxImages       int `yaml:"max_images"`        // Max images per message, 0 disables (default: 5)
	MaxMessages     int `yaml:"max_messages"`      // Max messages in a reply chain (default: 25)
	MaxMessageNodes int `yaml:"max_message_nodes"` // Node cache size (default: 100)

	// Model selection: "provider/model", e.g. "openai/gpt-4o"
	Model         string              `yaml:"model"`
	ExtraAPIParms ExtraAPIParams      `yaml:"extra_api_parameters"`
	SystemPrompt  string              `yaml:"system_prompt"`
	Providers     map[string]Provider `yaml:"providers"`

	// Tool calling
	Tools ToolsConfig `yaml:"tools"`

	Permissions Permissions     `yaml:"permissions"`
	Memory      MemoryConfig    `yaml:"memory"`
	Reasoning   ReasoningConfig `yaml:"reasoning"`
	RateLimits  RateLimitConfig `yaml:"rate_limits"`

	DataDir string `yaml:"data_dir"`
}

// Provider holds connection settings for one LLM backend
type Provider struct {
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// ExtraAPIParams are forwarded to the provider on every generation call
type ExtraAPIParams struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ToolsConfig controls tool/function calling
type ToolsConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxToolRounds int  `yaml:"max_tool_rounds"` // Tool-call resume cycles per turn (default: 5)
}

// Permissions gates who may talk to the bot and where
type Permissions struct {
	AdminIDs []string `yaml:"admin_ids"`
	Users    IDSet    `yaml:"users"`
	Roles    IDSet    `yaml:"roles"`
	Channels IDSet    `yaml:"channels"`
}

// IDSet is an allow/block pair. An empty allow list means "everyone".
type IDSet struct {
	AllowedIDs []string `yaml:"allowed_ids"`
	BlockedIDs []string `yaml:"blocked_ids"`
}

// MemoryConfig controls persistent per-user memory
type MemoryConfig struct {
	Enabled            bool   `yaml:"enabled"`
	DatabasePath       string `yaml:"database_path"`
	MemoryPrefix       string `yaml:"memory_prefix"` // Prepended to the memory section of the system prompt
	MaxMemoryChars     int    `yaml:"max_memory_chars"`
	Condense           bool   `yaml:"condense"` // Summarize via LLM when over MaxMemoryChars
	LLMSuggestsMemory  bool   `yaml:"llm_suggests_memory"`
	AppendStartMarker  string `yaml:"append_start_marker"`
	AppendEndMarker    string `yaml:"append_end_marker"`
	ReplaceStartMarker string `yaml:"replace_start_marker"`
	ReplaceEndMarker   string `yaml:"replace_end_marker"`
	StripMarkers       bool   `yaml:"strip_markers"`
}

// ReasoningConfig controls escalation to a stronger model
type ReasoningConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Model            string  `yaml:"model"`  // "provider/model" of the stronger backend
	Signal           string  `yaml:"signal"` // Escalation marker (default: "[USE_REASONING_MODEL]")
	NotifyUser       bool    `yaml:"notify_user"`
	IndicatorSeconds int     `yaml:"indicator_seconds"` // Delay before the thinking indicator (default: 5)
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
}

// RateLimitConfig holds request gate settings. Periods are in seconds.
type RateLimitConfig struct {
	Enabled             bool `yaml:"enabled"`
	AdminBypass         bool `yaml:"admin_bypass"`
	UserLimit           int  `yaml:"user_limit"`
	UserPeriod          int  `yaml:"user_period"`
	GlobalLimit         int  `yaml:"global_limit"`
	GlobalPeriod        int  `yaml:"global_period"`
	ReasoningUserLimit  int  `yaml:"reasoning_user_limit"`
	ReasoningUserPeriod int  `yaml:"reasoning_user_period"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		StatusSeconds:   300,
		AllowDMs:        true,
		MaxText:         100000,
		MaxImages:       5,
		MaxMessages:     25,
		MaxMessageNodes: 100,
		Model:           "openai/gpt-4o",
		ExtraAPIParms:   ExtraAPIParams{MaxTokens: 4096, Temperature: 1.0},
		SystemPrompt:    "You are a helpful Discord chatbot.",
		Providers:       map[string]Provider{},
		Tools:           ToolsConfig{Enabled: true, MaxToolRounds: 5},
		DataDir:         ".warble",
		Memory: MemoryConfig{
			DatabasePath:       "warble_memory.db",
			MemoryPrefix:       "[User Memory/Notes]:\n",
			MaxMemoryChars:     1500,
			Condense:           true,
			AppendStartMarker:  "[MEM_APPEND]",
			AppendEndMarker:    "[/MEM_APPEND]",
			ReplaceStartMarker: "[MEM_REPLACE]",
			ReplaceEndMarker:   "[/MEM_REPLACE]",
			StripMarkers:       true,
		},
		Reasoning: ReasoningConfig{
			Signal:           "[USE_REASONING_MODEL]",
			NotifyUser:       true,
			IndicatorSeconds: 5,
		},
		RateLimits: RateLimitConfig{
			Enabled:             true,
			UserLimit:           5,
			UserPeriod:          60,
			GlobalLimit:         100,
			GlobalPeriod:        60,
			ReasoningUserLimit:  2,
			ReasoningUserPeriod: 300,
		},
	}
}

// Load loads config from warble.yaml in the working directory
func Load() (*Config, error) {
	return LoadFrom("warble.yaml")
}

// LoadFrom loads config from a specific path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := loadInto(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses config from raw YAML (used for the embedded default config)
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadInto(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadInto unmarshals YAML over cfg and normalizes the result
func loadInto(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}

	// Expand ~ in DataDir (config file may have a tilde path)
	if strings.HasPrefix(cfg.DataDir, "~/") {
		home, _ := os.UserHomeDir()
		cfg.DataDir = filepath.Join(home, cfg.DataDir[2:])
	}

	// Expand env vars in secrets
	cfg.BotToken = os.ExpandEnv(cfg.BotToken)
	for name, p := range cfg.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		cfg.Providers[name] = p
	}

	return cfg.Validate()
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("bot_token is missing")
	}
	if !strings.Contains(c.Model, "/") {
		return fmt.Errorf("model %q must be in provider/model format", c.Model)
	}
	if c.Reasoning.Enabled && !strings.Contains(c.Reasoning.Model, "/") {
		return fmt.Errorf("reasoning.model %q must be in provider/model format", c.Reasoning.Model)
	}
	return nil
}

// Save writes the config to warble.yaml in the data directory
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(c.DataDir, "warble.yaml"), data, 0600)
}

// DBPath returns the path to the memory SQLite database
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Memory.DatabasePath) {
		return c.Memory.DatabasePath
	}
	return filepath.Join(c.DataDir, c.Memory.DatabasePath)
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}

// SplitModel splits a "provider/model" spec into its parts
func SplitModel(spec string) (provider, model string) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return spec, ""
	}
	return parts[0], parts[1]
}
