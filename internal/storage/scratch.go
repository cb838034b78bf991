// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// SCRATCH KEYS
// =============================================================================

const (
	keyLastMessageID = "last_message_id:"
	keyTitle         = "title:"
	keyEmptyChats    = "empty_chats:"
	keyRecentChats   = "recent_chats:"
)

// DefaultRecentLimit caps the recent-chats list when no limit is given.
const DefaultRecentLimit = 10

// RecentChat is one entry of the per-project recent-chats cache.
type RecentChat struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	OpenedAt time.Time `json:"opened_at"`
}

// =============================================================================
// SCRATCH
// =============================================================================

// Scratch exposes the typed scratch keys over a Store.
type Scratch struct {
	store  Store
	logger *zap.Logger
}

// NewScratch wraps store. A nil logger discards output.
func NewScratch(store Store, logger *zap.Logger) *Scratch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scratch{store: store, logger: logger}
}

// Store returns the underlying store.
func (s *Scratch) Store() Store {
	return s.store
}

func (s *Scratch) get(key string) (string, bool) {
	v, ok, err := s.store.Get(key)
	if err != nil {
		s.logger.Warn("scratch read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return v, ok
}

func (s *Scratch) getJSON(key string, out any) bool {
	raw, ok := s.get(key)
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("scratch value corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Scratch) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.store.Set(key, string(data))
}

// -----------------------------------------------------------------------------
// Last message id
// -----------------------------------------------------------------------------

// LastMessageID returns the id of the newest message sent in chatID.
func (s *Scratch) LastMessageID(chatID string) (string, bool) {
	v, ok := s.get(keyLastMessageID + chatID)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SetLastMessageID records the id of the newest message sent in chatID.
func (s *Scratch) SetLastMessageID(chatID, messageID string) error {
	return s.store.Set(keyLastMessageID+chatID, messageID)
}

// -----------------------------------------------------------------------------
// Provisional title
// -----------------------------------------------------------------------------

// ProvisionalTitle returns the title saved from a first reply, if any.
func (s *Scratch) ProvisionalTitle(chatID string) (string, bool) {
	v, ok := s.get(keyTitle + chatID)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SetProvisionalTitle saves a title until the chat list refreshes.
func (s *Scratch) SetProvisionalTitle(chatID, title string) error {
	return s.store.Set(keyTitle+chatID, title)
}

// ClearProvisionalTitle removes the saved title.
func (s *Scratch) ClearProvisionalTitle(chatID string) error {
	return s.store.Delete(keyTitle + chatID)
}

// -----------------------------------------------------------------------------
// Empty chats
// -----------------------------------------------------------------------------

// EmptyChats returns chats in projectID that were created but never used.
func (s *Scratch) EmptyChats(projectID string) []string {
	var ids []string
	s.getJSON(keyEmptyChats+projectID, &ids)
	return ids
}

// IsEmptyChat reports whether chatID is marked empty.
func (s *Scratch) IsEmptyChat(projectID, chatID string) bool {
	for _, id := range s.EmptyChats(projectID) {
		if id == chatID {
			return true
		}
	}
	return false
}

// MarkEmptyChat adds chatID to the project's empty-chat set.
func (s *Scratch) MarkEmptyChat(projectID, chatID string) error {
	ids := s.EmptyChats(projectID)
	for _, id := range ids {
		if id == chatID {
			return nil
		}
	}
	return s.setJSON(keyEmptyChats+projectID, append(ids, chatID))
}

// UnmarkEmptyChat removes chatID from the project's empty-chat set.
func (s *Scratch) UnmarkEmptyChat(projectID, chatID string) error {
	ids := s.EmptyChats(projectID)
	out := ids[:0]
	found := false
	for _, id := range ids {
		if id == chatID {
			found = true
			continue
		}
		out = append(out, id)
	}
	if !found {
		return nil
	}
	if len(out) == 0 {
		return s.store.Delete(keyEmptyChats + projectID)
	}
	return s.setJSON(keyEmptyChats+projectID, out)
}

// -----------------------------------------------------------------------------
// Recent chats
// -----------------------------------------------------------------------------

// RecentChats returns the project's recently opened chats, newest first.
func (s *Scratch) RecentChats(projectID string) []RecentChat {
	var chats []RecentChat
	s.getJSON(keyRecentChats+projectID, &chats)
	return chats
}

// TouchRecentChat moves chat to the front of the recent list, trimming the
// list to limit entries. A non-positive limit uses DefaultRecentLimit.
func (s *Scratch) TouchRecentChat(projectID string, chat RecentChat, limit int) error {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if chat.OpenedAt.IsZero() {
		chat.OpenedAt = time.Now()
	}

	existing := s.RecentChats(projectID)
	out := make([]RecentChat, 0, len(existing)+1)
	out = append(out, chat)
	for _, c := range existing {
		if c.ID == chat.ID {
			if chat.Title == "" {
				out[0].Title = c.Title
			}
			continue
		}
		out = append(out, c)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return s.setJSON(keyRecentChats+projectID, out)
}

// RenameRecentChat updates the cached title of chatID, if present.
func (s *Scratch) RenameRecentChat(projectID, chatID, title string) error {
	chats := s.RecentChats(projectID)
	for i := range chats {
		if chats[i].ID == chatID {
			chats[i].Title = title
			return s.setJSON(keyRecentChats+projectID, chats)
		}
	}
	return nil
}

// ForgetRecentChat removes chatID from the recent list.
func (s *Scratch) ForgetRecentChat(projectID, chatID string) error {
	chats := s.RecentChats(projectID)
	out := chats[:0]
	for _, c := range chats {
		if c.ID != chatID {
			out = append(out, c)
		}
	}
	if len(out) == len(chats) {
		return nil
	}
	return s.setJSON(keyRecentChats+projectID, out)
}

// TitleFor looks up a chat title in the recent cache, falling back to a
// provisional title.
func (s *Scratch) TitleFor(projectID, chatID string) (string, bool) {
	for _, c := range s.RecentChats(projectID) {
		if c.ID == chatID && c.Title != "" {
			return c.Title, true
		}
	}
	return s.ProvisionalTitle(chatID)
}
