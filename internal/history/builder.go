package history

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/warblehq/warble/internal/llm"
	"github.com/warblehq/warble/internal/logging"
)

// DefaultMaxAttachmentBytes caps individual attachment downloads.
const DefaultMaxAttachmentBytes = 10 * 1024 * 1024

// imageSubtypes is the attachment allow-list.
var imageSubtypes = map[string]bool{
	"png":  true,
	"jpeg": true,
	"jpg":  true,
	"gif":  true,
	"webp": true,
}

var nameSanitizer = regexp.MustCompile(`[^A-Za-z0-9 _-]`)

// Limits bound the history a single turn may carry.
type Limits struct {
	MaxText            int
	MaxImages          int
	MaxMessages        int
	MaxAttachmentBytes int64
}

// Builder reconstructs provider-facing history by walking a reply chain
// backward from a trigger message.
type Builder struct {
	source    Source
	cache     *NodeCache
	botUserID string
	limits    Limits
}

// NewBuilder creates a history builder.
func NewBuilder(source Source, cache *NodeCache, botUserID string, limits Limits) *Builder {
	if limits.MaxAttachmentBytes <= 0 {
		limits.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	return &Builder{
		source:    source,
		cache:     cache,
		botUserID: botUserID,
		limits:    limits,
	}
}

// Build walks the reply chain starting at triggerID and returns the
// conversation oldest-to-newest, plus the warnings accumulated along the
// way. Formatting is capability-dependent, so the same chain can render
// differently for different providers, but node construction (including
// image downloads) happens once per message.
func (b *Builder) Build(ctx context.Context, triggerID string, caps llm.Capabilities) ([]llm.ChatMessage, *WarningSet, error) {
	warnings := NewWarningSet()
	var messages []llm.ChatMessage

	currID := triggerID
	for currID != "" && len(messages) < b.limits.MaxMessages {
		node, ok := b.cache.Get(currID)
		if !ok {
			src, err := b.source.Message(ctx, currID)
			if err != nil {
				if currID == triggerID {
					return nil, nil, fmt.Errorf("failed to fetch trigger message: %w", err)
				}
				logging.Warnf("[history] parent fetch failed for %s: %v", currID, err)
				warnings.Add(WarnParentFetchFailed, "⚠️ Couldn't fetch an earlier message in this conversation")
				currID = ""
				break
			}
			node = b.buildNode(ctx, src, caps)
			b.cache.Put(node)
		}

		if msg, ok := b.formatNode(node, caps, warnings); ok {
			messages = append(messages, msg)
		}
		currID = node.ParentID
	}

	if currID != "" {
		warnings.Add(WarnHistoryTruncated,
			fmt.Sprintf("⚠️ Only using the last %d message(s)", len(messages)))
	}

	// Walked newest-to-oldest; providers want oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, warnings, nil
}

// buildNode normalizes one platform message. Attachments are only
// inspected when the provider can see them; a skipped or failed
// attachment marks the node rather than aborting it.
func (b *Builder) buildNode(ctx context.Context, src *SourceMessage, caps llm.Capabilities) *Node {
	role := llm.RoleUser
	userID := src.AuthorID
	if src.AuthorIsBot {
		role = llm.RoleAssistant
		userID = ""
	}

	text := src.Content
	if !src.IsDM {
		text = stripLeadingMention(text, b.botUserID)
	}

	node := &Node{
		MessageID: src.ID,
		Role:      role,
		UserID:    userID,
		UserName:  src.AuthorName,
		Text:      text,
		EmbedText: src.EmbedDescription,
		ParentID:  src.ParentID,
		IsDM:      src.IsDM,
	}

	if caps.Vision {
		for _, att := range src.Attachments {
			subtype := strings.TrimPrefix(strings.ToLower(att.ContentType), "image/")
			if subtype == att.ContentType || !imageSubtypes[subtype] {
				node.HasBadAttachments = true
				continue
			}
			if att.Size > b.limits.MaxAttachmentBytes {
				node.HasBadAttachments = true
				continue
			}
			data, err := b.source.FetchImage(ctx, att.URL)
			if err != nil {
				logging.Warnf("[history] attachment fetch failed for %s: %v", src.ID, err)
				node.HasBadAttachments = true
				continue
			}
			node.Images = append(node.Images, llm.ImagePart{
				MediaType: att.ContentType,
				Data:      data,
			})
		}
	} else if len(src.Attachments) > 0 {
		node.HasBadAttachments = true
	}

	return node
}

// formatNode turns a node into zero or one chat messages, applying the
// formatting caps and recording warnings. A node that yields nothing
// still contributes its warnings.
func (b *Builder) formatNode(node *Node, caps llm.Capabilities, warnings *WarningSet) (llm.ChatMessage, bool) {
	text := node.Text
	if utf8.RuneCountInString(text) > b.limits.MaxText {
		text = truncateRunes(text, b.limits.MaxText)
		warnings.Add(WarnTextTruncated,
			fmt.Sprintf("⚠️ Max %d characters per message", b.limits.MaxText))
	}

	// Images are fetched under the caps active when the node was built;
	// the cache outlives provider swaps, so re-check at format time.
	images := node.Images
	if !caps.Vision && len(images) > 0 {
		images = nil
		warnings.Add(WarnAttachmentIgnored, "⚠️ Unsupported attachments")
	}
	if len(images) > b.limits.MaxImages {
		images = images[:b.limits.MaxImages]
		warnings.Add(WarnImageTruncated,
			fmt.Sprintf("⚠️ Max %d %s per message", b.limits.MaxImages, plural(b.limits.MaxImages, "image")))
	}

	if node.HasBadAttachments {
		warnings.Add(WarnAttachmentIgnored, "⚠️ Unsupported attachments")
	}

	if text == "" && len(images) == 0 {
		if node.Role == llm.RoleAssistant && node.EmbedText != "" {
			text = firstLine(node.EmbedText)
		}
		if text == "" {
			return llm.ChatMessage{}, false
		}
	}

	msg := llm.ChatMessage{
		Role:    node.Role,
		Content: text,
		Images:  images,
	}

	if node.Role == llm.RoleUser {
		if caps.Usernames {
			msg.Name = capLength(sanitizeName(node.UserID), 64)
		} else {
			msg.Content = fmt.Sprintf("User (%s/%s): %s",
				sanitizeName(node.UserName), node.UserID, text)
		}
	}

	return msg, true
}

func stripLeadingMention(text, botID string) string {
	for _, prefix := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if strings.HasPrefix(text, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(text, prefix))
		}
	}
	return text
}

func sanitizeName(name string) string {
	return nameSanitizer.ReplaceAllString(name, "")
}

func capLength(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
