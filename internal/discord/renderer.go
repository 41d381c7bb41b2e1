package discord

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/warblehq/warble/internal/logging"
)

const (
	// streamingIndicator marks an in-progress embed.
	streamingIndicator = " ⚪"

	plainLimit = 2000
	embedLimit = 4096 - len(streamingIndicator)

	// editInterval is the minimum spacing between partial edits.
	editInterval = 1300 * time.Millisecond

	// ratePenalty delays the next update after the API returns 429.
	ratePenalty = 2 * time.Second

	embedColorStreaming = 0xE67E22 // orange
	embedColorComplete  = 0x1F8B4C // dark green
)

// Messenger is the message send/edit surface the renderer drives,
// narrowed from the session for testability.
type Messenger interface {
	Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	Edit(channelID, messageID, content string, embed *discordgo.MessageEmbed) (*discordgo.Message, error)
}

type sessionMessenger struct {
	s *discordgo.Session
}

func (m sessionMessenger) Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	return m.s.ChannelMessageSendComplex(channelID, msg)
}

func (m sessionMessenger) Edit(channelID, messageID, content string, embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	edit := &discordgo.MessageEdit{Channel: channelID, ID: messageID}
	if embed != nil {
		edit.Embeds = &[]*discordgo.MessageEmbed{embed}
	} else {
		edit.SetContent(content)
	}
	return m.s.ChannelMessageEditComplex(edit)
}

// Renderer owns one turn's visible output: it throttles partial edits,
// splits text across messages at the platform length limit, and appends
// the turn's warnings to the final update. Plain mode sends complete
// chunks only; embed mode live-edits an embed per chunk.
type Renderer struct {
	m         Messenger
	channelID string
	replyTo   *discordgo.MessageReference
	plain     bool
	warnings  []string

	now      func() time.Time
	lastEdit time.Time
	penalty  time.Duration

	msgs      []*discordgo.Message
	sentPlain int // chunks already sent in plain mode
}

// NewRenderer creates a renderer replying to the trigger message.
func NewRenderer(m Messenger, channelID string, replyTo *discordgo.MessageReference, plain bool) *Renderer {
	return &Renderer{
		m:         m,
		channelID: channelID,
		replyTo:   replyTo,
		plain:     plain,
		now:       time.Now,
	}
}

// SetWarnings sets the caveats appended to the final update.
func (r *Renderer) SetWarnings(warnings []string) {
	r.warnings = warnings
}

// Update receives the accumulated text. Partial updates may be skipped
// by the throttle; the final update always lands.
func (r *Renderer) Update(text string, final bool) {
	if text == "" && !final {
		return
	}
	if !final && r.now().Sub(r.lastEdit) < editInterval+r.penalty {
		return
	}
	r.penalty = 0

	if r.plain {
		r.renderPlain(text, final)
	} else {
		r.renderEmbeds(text, final)
	}
	r.lastEdit = r.now()
}

func (r *Renderer) renderPlain(text string, final bool) {
	if final && len(r.warnings) > 0 {
		text = text + "\n\n" + strings.Join(r.warnings, "\n")
	}
	chunks := splitChunks(text, plainLimit)

	// Filled chunks go out as they complete; the last waits for final
	ready := len(chunks) - 1
	if final {
		ready = len(chunks)
	}
	for r.sentPlain < ready {
		chunk := chunks[r.sentPlain]
		msg := &discordgo.MessageSend{Content: chunk, Reference: r.reference()}
		sent, err := r.m.Send(r.channelID, msg)
		if isBadRequest(err) {
			// One retry with a shortened body, then give up
			msg.Content = truncate(chunk, plainLimit/2)
			sent, err = r.m.Send(r.channelID, msg)
		}
		if r.handleSendError(err) {
			return
		}
		if sent != nil {
			r.msgs = append(r.msgs, sent)
		}
		r.sentPlain++
	}
}

func (r *Renderer) renderEmbeds(text string, final bool) {
	chunks := splitChunks(text, embedLimit)

	for i, chunk := range chunks {
		last := i == len(chunks)-1

		embed := &discordgo.MessageEmbed{Description: chunk, Color: embedColorComplete}
		if last && !final {
			embed.Description = chunk + streamingIndicator
			embed.Color = embedColorStreaming
		}
		if last && final {
			for _, w := range r.warnings {
				embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: w, Value: "​"})
			}
		}

		// Earlier chunks were already finalized on a previous pass
		if i < len(r.msgs) && !last {
			continue
		}

		if i < len(r.msgs) {
			_, err := r.m.Edit(r.channelID, r.msgs[i].ID, "", embed)
			if r.handleSendError(err) {
				return
			}
		} else {
			send := &discordgo.MessageSend{
				Embeds:    []*discordgo.MessageEmbed{embed},
				Reference: r.reference(),
			}
			sent, err := r.m.Send(r.channelID, send)
			if isBadRequest(err) {
				embed.Description = truncate(embed.Description, embedLimit/2)
				sent, err = r.m.Send(r.channelID, send)
			}
			if r.handleSendError(err) {
				return
			}
			if sent != nil {
				r.msgs = append(r.msgs, sent)
			}
		}
	}
}

// reference makes the first response reply to the trigger and each
// later chunk reply to the previous one, keeping the chain walkable.
func (r *Renderer) reference() *discordgo.MessageReference {
	if len(r.msgs) > 0 {
		return &discordgo.MessageReference{
			MessageID: r.msgs[len(r.msgs)-1].ID,
			ChannelID: r.channelID,
		}
	}
	return r.replyTo
}

// handleSendError absorbs renderer-boundary failures: a 429 skips the
// update and penalizes the next edit, anything else is logged and
// dropped. Returns true when the current pass should stop.
func (r *Renderer) handleSendError(err error) bool {
	if err == nil {
		return false
	}
	if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil &&
		restErr.Response.StatusCode == 429 {
		logging.Warnf("[discord] rate limited, penalizing next edit")
		r.penalty = ratePenalty
		return true
	}
	logging.Errorf("[discord] message update failed: %v", err)
	return true
}

func isBadRequest(err error) bool {
	restErr, ok := err.(*discordgo.RESTError)
	return ok && restErr.Response != nil && restErr.Response.StatusCode == 400
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Messages returns the messages sent for this turn so far.
func (r *Renderer) Messages() []*discordgo.Message {
	return r.msgs
}

// splitChunks cuts text into pieces of at most limit bytes, preferring
// newline boundaries.
func splitChunks(text string, limit int) []string {
	if text == "" {
		return []string{""}
	}

	var chunks []string
	for len(text) > limit {
		cut := limit
		if idx := strings.LastIndexByte(text[:limit], '\n'); idx > limit/2 {
			cut = idx
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	return append(chunks, text)
}
