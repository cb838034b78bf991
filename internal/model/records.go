// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// DefaultChatTitle is the placeholder name a freshly created chat carries.
const DefaultChatTitle = "New Chat"

// Chat is a conversation record as listed by the backend.
type Chat struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id,omitempty"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Title returns the display title, falling back to the default.
func (c Chat) Title() string {
	if c.Name != "" {
		return c.Name
	}
	return DefaultChatTitle
}

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
	CurrentPage int  `json:"current_page"`
	Pages       int  `json:"pages"`
}

// HistoryRecord is one persisted question/answer exchange.
type HistoryRecord struct {
	ID                   string           `json:"id"`
	Question             string           `json:"question"`
	Answer               string           `json:"answer"`
	CreatedAt            time.Time        `json:"created_at"`
	FileReferenceIDs     []string         `json:"file_reference_ids,omitempty"`
	FileReferenceDetails []FileAttachment `json:"file_reference_details,omitempty"`
	ReferencedChatIDs    []RawReference   `json:"referenced_chat_ids,omitempty"`
	ReferencedChats      []RawReference   `json:"referenced_chats,omitempty"`
	Sources              []SourceCitation `json:"sources,omitempty"`
	Author               *AuthorInfo      `json:"author,omitempty"`
}

// References returns the normalized references the record carries. Detailed
// objects are preferred over bare ids when both are present.
func (r HistoryRecord) References() []PersistedReference {
	if len(r.ReferencedChats) > 0 {
		return NormalizeAll(r.ReferencedChats)
	}
	return NormalizeAll(r.ReferencedChatIDs)
}

// ExpandRecord maps one history record into its user and assistant timeline
// entries. Both share the record timestamp; ordering puts the user first.
func ExpandRecord(r HistoryRecord) []*Message {
	refs := r.References()
	chatRefs := make([]ChatReference, 0, len(refs))
	for _, ref := range refs {
		chatRefs = append(chatRefs, ref.ToChatReference())
	}

	user := &Message{
		ID:               UserMessageID(r.ID),
		RecordID:         r.ID,
		Role:             RoleUser,
		Timestamp:        r.CreatedAt,
		Content:          r.Question,
		Attachments:      append([]FileAttachment(nil), r.FileReferenceDetails...),
		FileReferenceIDs: append([]string(nil), r.FileReferenceIDs...),
		ChatReferences:   chatRefs,
		Author:           r.Author,
	}
	assistant := &Message{
		ID:        AssistantMessageID(r.ID),
		RecordID:  r.ID,
		Role:      RoleAssistant,
		Timestamp: r.CreatedAt,
		Content:   r.Answer,
		Sources:   append([]SourceCitation(nil), r.Sources...),
	}
	return []*Message{user, assistant}
}

// ExpandRecords expands a page of records.
func ExpandRecords(records []HistoryRecord) []*Message {
	out := make([]*Message, 0, len(records)*2)
	for _, r := range records {
		out = append(out, ExpandRecord(r)...)
	}
	return out
}
