package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/history"
	"github.com/warblehq/warble/internal/llm"
	"github.com/warblehq/warble/internal/logging"
	"github.com/warblehq/warble/internal/memory"
	"github.com/warblehq/warble/internal/orchestrator"
	"github.com/warblehq/warble/internal/ratelimit"
	"github.com/warblehq/warble/internal/reasoning"
	"github.com/warblehq/warble/internal/tools"
)

// pipeline bundles the per-config objects a turn needs. Config reloads
// swap the whole pipeline atomically so an in-flight turn keeps a
// consistent view.
type pipeline struct {
	cfg       *config.Config
	provider  llm.Provider
	orch      *orchestrator.Orchestrator
	detector  *reasoning.Detector
	limiter   *ratelimit.Limiter
	checker   *Checker
	extractor *memory.Extractor
	condenser *memory.Condenser
}

// Bot owns the gateway session and the long-lived state that survives
// config reloads: the node cache, the memory store, and the message
// source's channel map.
type Bot struct {
	session *discordgo.Session
	botID   string
	source  *Source
	cache   *history.NodeCache
	store   *memory.Store
	status  *StatusRotator

	mu   sync.RWMutex
	pipe *pipeline
}

// New builds a bot from the config. The gateway is not opened yet.
func New(cfg *config.Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		session: session,
		cache:   history.NewNodeCache(cfg.MaxMessageNodes),
	}

	if cfg.Memory.Enabled {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		store, err := memory.NewStore(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("opening memory store: %w", err)
		}
		b.store = store
	}

	pipe, err := buildPipeline(cfg, b.store)
	if err != nil {
		return nil, err
	}
	b.pipe = pipe
	return b, nil
}

// buildPipeline constructs the config-derived turn machinery.
func buildPipeline(cfg *config.Config, store *memory.Store) (*pipeline, error) {
	provider, err := providerFor(cfg, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("configuring model %q: %w", cfg.Model, err)
	}

	var exec orchestrator.ToolExecutor
	if cfg.Tools.Enabled {
		registry := tools.NewRegistry()
		registry.Register(tools.NewClockTool())
		exec = registry
	}
	orch := orchestrator.New(exec)

	limiter := ratelimit.New(cfg.RateLimits, cfg.Permissions.AdminIDs)

	var reasoningProvider llm.Provider
	if cfg.Reasoning.Enabled {
		reasoningProvider, err = providerFor(cfg, cfg.Reasoning.Model)
		if err != nil {
			return nil, fmt.Errorf("configuring reasoning model %q: %w", cfg.Reasoning.Model, err)
		}
	}
	detector := reasoning.New(cfg.Reasoning, reasoningProvider, orch, limiter)

	var extractor *memory.Extractor
	var condenser *memory.Condenser
	if store != nil {
		extractor = memory.NewExtractor(store, cfg.Memory)
		condenser = memory.NewCondenser(provider, cfg.Memory.MaxMemoryChars)
	}

	return &pipeline{
		cfg:       cfg,
		provider:  provider,
		orch:      orch,
		detector:  detector,
		limiter:   limiter,
		checker:   NewChecker(cfg.Permissions, cfg.AllowDMs),
		extractor: extractor,
		condenser: condenser,
	}, nil
}

// providerFor resolves a "provider/model" spec against the configured
// provider credentials.
func providerFor(cfg *config.Config, spec string) (llm.Provider, error) {
	name, model := config.SplitModel(spec)
	pcfg := cfg.Providers[name]
	return llm.New(name, model, pcfg.APIKey, pcfg.BaseURL)
}

// snapshot returns the current pipeline.
func (b *Bot) snapshot() *pipeline {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pipe
}

// Reload swaps in a pipeline built from the new config. A config that
// fails to build keeps the previous pipeline running.
func (b *Bot) Reload(cfg *config.Config) {
	pipe, err := buildPipeline(cfg, b.store)
	if err != nil {
		logging.Errorf("[discord] config reload rejected: %v", err)
		return
	}
	b.mu.Lock()
	b.pipe = pipe
	b.mu.Unlock()
	logging.Infof("[discord] pipeline rebuilt for model %s", cfg.Model)
}

// Run opens the gateway and blocks until the context is canceled. When
// configPath is non-empty the file is watched and edits hot-reload the
// pipeline.
func (b *Bot) Run(ctx context.Context, configPath string) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening gateway: %w", err)
	}
	defer b.session.Close()

	user := b.session.State.User
	b.botID = user.ID
	b.source = NewSource(b.session, b.botID)
	b.session.AddHandler(b.onMessageCreate)
	logging.Infof("[discord] logged in as %s (%s)", user.Username, user.ID)

	cfg := b.snapshot().cfg
	if cfg.ClientID != "" {
		logging.Infof("[discord] invite: https://discord.com/oauth2/authorize?client_id=%s&permissions=412317273088&scope=bot", cfg.ClientID)
	}

	b.status = NewStatusRotator(b.session, cfg.StatusMessages, cfg.StatusSeconds)
	b.status.Start()
	defer b.status.Stop()

	if configPath != "" {
		if err := config.Watch(ctx, configPath, b.Reload); err != nil {
			logging.Warnf("[discord] config watch disabled: %v", err)
		}
	}

	<-ctx.Done()
	return nil
}

// Close releases resources held outside the session.
func (b *Bot) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
