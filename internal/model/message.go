// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strconv"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// rank orders roles for timestamp ties: user before assistant.
func (r Role) rank() int {
	if r == RoleUser {
		return 0
	}
	return 1
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// AuthorInfo identifies who wrote a user message.
type AuthorInfo struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// SourceCitation is one retrieval citation attached to an assistant reply.
type SourceCitation struct {
	DocumentID string  `json:"document_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Message represents a single entry in the timeline.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	RecordID  string    `json:"record_id,omitempty"` // Server record shared by a question/answer pair
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Context
	Attachments      []FileAttachment `json:"attachments,omitempty"`
	FileReferenceIDs []string         `json:"file_reference_ids,omitempty"`
	ChatReferences   []ChatReference  `json:"chat_references,omitempty"`
	Sources          []SourceCitation `json:"sources,omitempty"`
	Author           *AuthorInfo      `json:"author,omitempty"`
}

// Clone returns a copy of the message with its own slices.
func (m *Message) Clone() *Message {
	c := *m
	c.Attachments = append([]FileAttachment(nil), m.Attachments...)
	c.FileReferenceIDs = append([]string(nil), m.FileReferenceIDs...)
	c.ChatReferences = append([]ChatReference(nil), m.ChatReferences...)
	c.Sources = append([]SourceCitation(nil), m.Sources...)
	return &c
}

// IsPlaceholder reports whether the message still carries a synthetic id.
func (m *Message) IsPlaceholder() bool {
	return m.RecordID == ""
}

// UserPlaceholderID returns the synthetic id for an optimistic user message.
func UserPlaceholderID(now time.Time) string {
	return "user-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// AssistantPlaceholderID returns the synthetic id for an assistant placeholder.
func AssistantPlaceholderID(now time.Time) string {
	return "assistant-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// UserMessageID maps a server record id to its user timeline id.
func UserMessageID(recordID string) string {
	return recordID
}

// AssistantMessageID maps a server record id to its assistant timeline id.
func AssistantMessageID(recordID string) string {
	return recordID + "-reply"
}

// =============================================================================
// ORDERING
// =============================================================================

// Less reports whether a sorts before b: ascending timestamp, user before
// assistant on ties.
func Less(a, b *Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Role.rank() < b.Role.rank()
}

// SortMessages sorts messages in place. The sort is stable so equal entries
// keep their relative order.
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return Less(msgs[i], msgs[j])
	})
}

// IsSorted reports whether msgs satisfy the timeline ordering.
func IsSorted(msgs []*Message) bool {
	for i := 1; i < len(msgs); i++ {
		if Less(msgs[i], msgs[i-1]) {
			return false
		}
	}
	return true
}
