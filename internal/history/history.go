package history

import (
	"context"

	"github.com/warblehq/warble/internal/llm"
)

// WarningKind classifies a user-facing caveat produced while building
// history or processing a turn.
type WarningKind string

const (
	WarnTextTruncated     WarningKind = "text_truncated"
	WarnImageTruncated    WarningKind = "image_truncated"
	WarnAttachmentIgnored WarningKind = "attachment_ignored"
	WarnHistoryTruncated  WarningKind = "history_truncated"
	WarnParentFetchFailed WarningKind = "parent_fetch_failed"
	WarnMemoryLoadFailed  WarningKind = "memory_load_failed"
	WarnGeneric           WarningKind = "generic"
)

// Warning is one rendered caveat appended to the final response.
type Warning struct {
	Kind    WarningKind
	Message string
}

// WarningSet accumulates warnings, deduplicated by message, in insertion
// order.
type WarningSet struct {
	seen map[string]bool
	list []Warning
}

// NewWarningSet creates an empty warning set
func NewWarningSet() *WarningSet {
	return &WarningSet{seen: make(map[string]bool)}
}

// Add records a warning unless an identical message is already present.
func (w *WarningSet) Add(kind WarningKind, message string) {
	if w.seen[message] {
		return
	}
	w.seen[message] = true
	w.list = append(w.list, Warning{Kind: kind, Message: message})
}

// Messages returns the rendered warning strings in insertion order.
func (w *WarningSet) Messages() []string {
	out := make([]string, len(w.list))
	for i, warn := range w.list {
		out[i] = warn.Message
	}
	return out
}

// Len returns the number of distinct warnings.
func (w *WarningSet) Len() int {
	return len(w.list)
}

// Attachment describes one file attached to a platform message.
type Attachment struct {
	ContentType string
	Size        int64
	URL         string
}

// SourceMessage is the platform-neutral view of one message, as returned
// by the Source collaborator.
type SourceMessage struct {
	ID               string
	AuthorID         string
	AuthorName       string
	AuthorIsBot      bool
	Content          string
	Attachments      []Attachment
	EmbedDescription string
	ParentID         string
	IsDM             bool
}

// Source fetches messages and attachment bodies from the platform.
type Source interface {
	// Message resolves a message by id, including its parent reference.
	Message(ctx context.Context, id string) (*SourceMessage, error)

	// FetchImage downloads an attachment body.
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Node is a normalized, cached view of one platform message. Nodes are
// immutable once constructed and inserted into the cache.
type Node struct {
	MessageID         string
	Role              string
	UserID            string
	UserName          string
	Text              string
	EmbedText         string
	Images            []llm.ImagePart
	HasBadAttachments bool
	ParentID          string
	IsDM              bool
}
