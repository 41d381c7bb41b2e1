package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/warblehq/warble/internal/history"
	"github.com/warblehq/warble/internal/logging"
	"github.com/warblehq/warble/internal/orchestrator"
	"github.com/warblehq/warble/internal/reasoning"
)

const (
	rateLimitedReply   = "⚠️ You're sending requests too quickly. Please wait a moment and try again."
	historyFailedReply = "⚠️ Couldn't read this conversation. Please try again."
	memoryUsageReply   = "Usage: `!memory show`, `!memory set <text>`, or `!memory clear`"
)

// onMessageCreate is the entry point for every gateway message. It
// filters down to messages actually addressed to the bot, then runs the
// full turn pipeline: history reconstruction, generation, escalation,
// memory extraction, and rendering.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	p := b.snapshot()
	channel := b.channel(s, m.ChannelID)
	isDM := channel != nil && channel.Type == discordgo.ChannelTypeDM

	content, mentioned := stripBotMention(m.Content, b.botID)
	repliedToBot := m.ReferencedMessage != nil &&
		m.ReferencedMessage.Author != nil &&
		m.ReferencedMessage.Author.ID == b.botID
	if !isDM && !mentioned && !repliedToBot {
		return
	}

	var roleIDs []string
	if m.Member != nil {
		roleIDs = m.Member.Roles
	}
	channelIDs := []string{m.ChannelID}
	if channel != nil && channel.ParentID != "" {
		channelIDs = append(channelIDs, channel.ParentID)
	}
	if !p.checker.Allowed(m.Author.ID, roleIDs, channelIDs, isDM) {
		logging.Warnf("[discord] blocked message from user %s in channel %s", m.Author.ID, m.ChannelID)
		return
	}

	if cmd, rest, ok := parseMemoryCommand(content); ok {
		b.handleMemoryCommand(s, m, p, cmd, rest)
		return
	}

	if !p.limiter.AllowRequest(m.Author.ID) {
		logging.Warnf("[discord] rate limited user %s", m.Author.ID)
		b.reply(s, m, rateLimitedReply)
		return
	}

	logging.Infof("[discord] message from %s (%s) in channel %s: %d chars, %d attachments",
		m.Author.Username, m.Author.ID, m.ChannelID, len(content), len(m.Attachments))

	b.runTurn(context.Background(), s, m, p)
}

// runTurn executes one full response turn for an addressed message.
func (b *Bot) runTurn(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, p *pipeline) {
	caps := p.provider.Capabilities()

	b.source.Track(m.ID, m.ChannelID)
	builder := history.NewBuilder(b.source, b.cache, b.botID, history.Limits{
		MaxText:     p.cfg.MaxText,
		MaxImages:   p.cfg.MaxImages,
		MaxMessages: p.cfg.MaxMessages,
	})
	messages, warnings, err := builder.Build(ctx, m.ID, caps)
	if err != nil {
		logging.Errorf("[discord] building history for message %s failed: %v", m.ID, err)
		b.reply(s, m, historyFailedReply)
		return
	}

	var memoryText string
	if p.cfg.Memory.Enabled && b.store != nil {
		memoryText, err = b.store.Get(ctx, m.Author.ID)
		if err != nil {
			logging.Errorf("[memory] loading memory for user %s failed: %v", m.Author.ID, err)
			warnings.Add(history.WarnMemoryLoadFailed, "⚠️ Couldn't load your saved memory for this reply")
			memoryText = ""
		}
	}

	system := buildSystemPrompt(p.cfg, caps, m.Author.ID, memoryText, p.detector.Enabled())

	renderer := NewRenderer(sessionMessenger{s}, m.ChannelID, m.Reference(), p.cfg.UsePlainResponses)

	// The final update is deferred so escalation, memory directives, and
	// mention rewriting run before anything is committed to the channel.
	var finalText string
	render := func(text string, final bool) {
		if final {
			finalText = text
			return
		}
		renderer.Update(text, false)
	}

	primaryRender := render
	if p.detector.Enabled() {
		primaryRender = reasoning.SuppressMarker(p.detector.Signal(), render)
	}

	opts := orchestrator.Options{
		MaxTokens:     p.cfg.ExtraAPIParms.MaxTokens,
		Temperature:   p.cfg.ExtraAPIParms.Temperature,
		MaxToolRounds: p.cfg.Tools.MaxToolRounds,
	}
	text, runErr := p.orch.Run(ctx, p.provider, messages, system, opts, primaryRender)
	if runErr != nil {
		renderer.SetWarnings(warnings.Messages())
		renderer.Update(finalText, true)
		b.trackResponses(renderer, m.ChannelID)
		return
	}

	if p.detector.Enabled() {
		escalationSystem := buildSystemPrompt(p.cfg, caps, m.Author.ID, memoryText, false)
		text = p.detector.MaybeEscalate(ctx, text, messages, escalationSystem, m.Author.ID, render)
	}

	if p.extractor != nil {
		text = p.extractor.Apply(ctx, m.Author.ID, text)
		b.condenseMemory(ctx, p, m.Author.ID)
	}

	text = strings.ReplaceAll(text, "<@USER_ID>", "<@"+m.Author.ID+">")
	if strings.TrimSpace(text) == "" {
		text = orchestrator.NoResponsePlaceholder
	}

	renderer.SetWarnings(warnings.Messages())
	renderer.Update(text, true)
	b.trackResponses(renderer, m.ChannelID)
}

// condenseMemory shrinks the stored memory when a directive pushed it
// over the configured cap.
func (b *Bot) condenseMemory(ctx context.Context, p *pipeline, userID string) {
	if !p.cfg.Memory.Enabled || !p.cfg.Memory.Condense || b.store == nil || p.condenser == nil {
		return
	}
	saved, err := b.store.Get(ctx, userID)
	if err != nil || len(saved) <= p.cfg.Memory.MaxMemoryChars {
		return
	}
	condensed := p.condenser.Condense(ctx, userID, saved)
	if condensed == saved {
		return
	}
	if err := b.store.Set(ctx, userID, condensed); err != nil {
		logging.Errorf("[memory] saving condensed memory for user %s failed: %v", userID, err)
	}
}

// trackResponses registers the rendered messages so later replies to
// them can be resolved back into history.
func (b *Bot) trackResponses(renderer *Renderer, channelID string) {
	for _, msg := range renderer.Messages() {
		b.source.Track(msg.ID, channelID)
	}
}

// handleMemoryCommand serves the !memory show/set/clear commands.
func (b *Bot) handleMemoryCommand(s *discordgo.Session, m *discordgo.MessageCreate, p *pipeline, cmd, rest string) {
	if !p.cfg.Memory.Enabled || b.store == nil {
		b.reply(s, m, "⚠️ Memory is not enabled.")
		return
	}
	ctx := context.Background()

	switch cmd {
	case "show":
		text, err := b.store.Get(ctx, m.Author.ID)
		if err != nil {
			logging.Errorf("[memory] reading memory for user %s failed: %v", m.Author.ID, err)
			b.reply(s, m, "⚠️ Couldn't read your memory.")
			return
		}
		if text == "" {
			b.reply(s, m, "You have no saved memory.")
			return
		}
		b.reply(s, m, fmt.Sprintf("Your saved memory:\n```\n%s\n```", truncate(text, plainLimit-100)))

	case "clear":
		if err := b.store.Clear(ctx, m.Author.ID); err != nil {
			logging.Errorf("[memory] clearing memory for user %s failed: %v", m.Author.ID, err)
			b.reply(s, m, "⚠️ Couldn't clear your memory.")
			return
		}
		b.reply(s, m, "✅ Your memory has been cleared.")

	case "set":
		if rest == "" {
			b.reply(s, m, memoryUsageReply)
			return
		}
		if err := b.store.Set(ctx, m.Author.ID, rest); err != nil {
			logging.Errorf("[memory] setting memory for user %s failed: %v", m.Author.ID, err)
			b.reply(s, m, "⚠️ Couldn't save your memory.")
			return
		}
		b.condenseMemory(ctx, p, m.Author.ID)
		b.reply(s, m, "✅ Your memory has been updated.")

	default:
		b.reply(s, m, memoryUsageReply)
	}
}

// parseMemoryCommand splits "!memory <cmd> [rest]" into its parts.
func parseMemoryCommand(content string) (cmd, rest string, ok bool) {
	const prefix = "!memory"
	if content != prefix && !strings.HasPrefix(content, prefix+" ") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(content, prefix)), " ", 2)
	cmd = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) > 1 {
		rest = strings.TrimSpace(fields[1])
	}
	return cmd, rest, true
}

// stripBotMention removes a leading mention of the bot and reports
// whether the bot was mentioned anywhere in the text.
func stripBotMention(content, botID string) (string, bool) {
	content = strings.TrimSpace(content)
	mentioned := false
	for _, prefix := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if strings.Contains(content, prefix) {
			mentioned = true
		}
		if strings.HasPrefix(content, prefix) {
			content = strings.TrimSpace(strings.TrimPrefix(content, prefix))
		}
	}
	return content, mentioned
}

// channel resolves a channel from the state cache, falling back to REST.
func (b *Bot) channel(s *discordgo.Session, channelID string) *discordgo.Channel {
	if ch, err := s.State.Channel(channelID); err == nil {
		return ch
	}
	ch, err := s.Channel(channelID)
	if err != nil {
		logging.Warnf("[discord] resolving channel %s failed: %v", channelID, err)
		return nil
	}
	return ch
}

// reply sends a short plain reply to the triggering message.
func (b *Bot) reply(s *discordgo.Session, m *discordgo.MessageCreate, text string) {
	if _, err := s.ChannelMessageSendReply(m.ChannelID, text, m.Reference()); err != nil {
		logging.Errorf("[discord] sending reply in channel %s failed: %v", m.ChannelID, err)
	}
}
