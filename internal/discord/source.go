package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/warblehq/warble/internal/history"
)

// Source resolves Discord messages and attachments for the history
// builder. Discord addresses messages by (channel, message) pairs, so
// the source keeps a channel hint per message id, seeded from the
// trigger and extended as parents are discovered.
type Source struct {
	session *discordgo.Session
	botID   string
	client  *http.Client

	mu       sync.Mutex
	channels map[string]string // message id -> channel id
}

// NewSource creates a message source backed by a live session.
func NewSource(session *discordgo.Session, botID string) *Source {
	return &Source{
		session:  session,
		botID:    botID,
		client:   &http.Client{Timeout: 30 * time.Second},
		channels: make(map[string]string),
	}
}

// Track records which channel a message lives in. The handler calls
// this for the trigger message before building history.
func (s *Source) Track(messageID, channelID string) {
	s.mu.Lock()
	s.channels[messageID] = channelID
	s.mu.Unlock()
}

func (s *Source) channelFor(messageID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[messageID]
	return ch, ok
}

// Message fetches and normalizes one message, resolving its parent:
// an explicit reply wins, then the thread starter for a thread's first
// message, then the bot's previous message in a DM.
func (s *Source) Message(ctx context.Context, id string) (*history.SourceMessage, error) {
	channelID, ok := s.channelFor(id)
	if !ok {
		return nil, fmt.Errorf("unknown channel for message %s", id)
	}

	msg, err := s.session.ChannelMessage(channelID, id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}

	channel, err := s.session.State.Channel(channelID)
	if err != nil {
		channel, err = s.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve channel %s: %w", channelID, err)
		}
	}
	isDM := channel.Type == discordgo.ChannelTypeDM

	out := &history.SourceMessage{
		ID:          msg.ID,
		AuthorID:    msg.Author.ID,
		AuthorName:  displayName(msg),
		AuthorIsBot: msg.Author.ID == s.botID,
		Content:     msg.Content,
		IsDM:        isDM,
	}

	for _, att := range msg.Attachments {
		out.Attachments = append(out.Attachments, history.Attachment{
			ContentType: att.ContentType,
			Size:        int64(att.Size),
			URL:         att.URL,
		})
	}
	if len(msg.Embeds) > 0 {
		out.EmbedDescription = msg.Embeds[0].Description
	}

	out.ParentID = s.resolveParent(ctx, msg, channel, isDM)
	return out, nil
}

func (s *Source) resolveParent(ctx context.Context, msg *discordgo.Message, channel *discordgo.Channel, isDM bool) string {
	// Explicit reply
	if ref := msg.MessageReference; ref != nil && ref.MessageID != "" {
		refChannel := ref.ChannelID
		if refChannel == "" {
			refChannel = msg.ChannelID
		}
		s.Track(ref.MessageID, refChannel)
		return ref.MessageID
	}

	// First message of a thread continues from the starter message in
	// the parent channel; the thread id doubles as the starter's id
	if channel.IsThread() && msg.ID == channel.ID && channel.ParentID != "" {
		s.Track(channel.ID, channel.ParentID)
		return channel.ID
	}

	// DM continuation: link to the bot's previous message
	if isDM {
		prev, err := s.session.ChannelMessages(msg.ChannelID, 1, msg.ID, "", "", discordgo.WithContext(ctx))
		if err == nil && len(prev) == 1 && prev[0].Author.ID == s.botID {
			s.Track(prev[0].ID, msg.ChannelID)
			return prev[0].ID
		}
	}

	return ""
}

// FetchImage downloads an attachment body.
func (s *Source) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, history.DefaultMaxAttachmentBytes))
}

func displayName(msg *discordgo.Message) string {
	if msg.Member != nil && msg.Member.Nick != "" {
		return msg.Member.Nick
	}
	if msg.Author.GlobalName != "" {
		return msg.Author.GlobalName
	}
	return msg.Author.Username
}
