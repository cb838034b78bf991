// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package timeline manages the ordered, paginated message list of one chat.
//
// History is fetched newest page first. Each record expands into a user and
// an assistant entry. Every mutation goes through one merge step that
// de-duplicates by id and re-sorts, so the list is always ascending by
// timestamp with user entries before assistant entries on ties.
package timeline

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// HistoryClient fetches pages of chat history.
type HistoryClient interface {
	GetHistory(ctx context.Context, chatID string, page, pageSize int) (*api.HistoryPage, error)
}

// =============================================================================
// MESSAGES
// =============================================================================

// LoadedMsg carries the result of a history fetch.
type LoadedMsg struct {
	Gen    int
	ChatID string
	Page   int
	Older  bool
	Result *api.HistoryPage
	Err    error
}

// Scroll describes a viewport movement. Offset is the distance from the
// top of the list, in entries.
type Scroll struct {
	Up     bool
	Offset int
}

// LoadResult reports what applying a LoadedMsg did.
type LoadResult struct {
	// Applied is false for stale or unrelated messages.
	Applied bool
	// Older is true for a prepended page.
	Older bool
	// Anchor is the id of the entry that was first before a prepend; the
	// view keeps it at the same screen position.
	Anchor string
	// Err is a transport failure to surface as a notice.
	Err error
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the message list of the open chat.
type Manager struct {
	client   HistoryClient
	logger   *zap.Logger
	pageSize int
	nearTop  int

	chatID         string
	gen            int
	messages       []*model.Message
	page           int
	hasMore        bool
	loadingInitial bool
	loadingOlder   bool
}

// NewManager creates a manager paged by cfg.
func NewManager(client HistoryClient, cfg config.TimelineConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Manager{
		client:   client,
		logger:   logger.Named("timeline"),
		pageSize: pageSize,
		nearTop:  cfg.NearTopThreshold,
	}
}

// ChatID returns the chat the manager is showing.
func (m *Manager) ChatID() string { return m.chatID }

// HasMore reports whether older pages exist.
func (m *Manager) HasMore() bool { return m.hasMore }

// Loading reports whether any fetch is in flight.
func (m *Manager) Loading() bool { return m.loadingInitial || m.loadingOlder }

// LoadingOlder reports whether an older-page fetch is in flight.
func (m *Manager) LoadingOlder() bool { return m.loadingOlder }

// Len returns the number of entries.
func (m *Manager) Len() int { return len(m.messages) }

// Messages returns the entries in display order. The slice is a copy; the
// entries are shared and must not be modified by callers.
func (m *Manager) Messages() []*model.Message {
	out := make([]*model.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Find returns the entry with id and its index.
func (m *Manager) Find(id string) (*model.Message, int) {
	for i, msg := range m.messages {
		if msg.ID == id {
			return msg, i
		}
	}
	return nil, -1
}

// Last returns the newest entry.
func (m *Manager) Last() *model.Message {
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

// Reset switches to chatID and discards all state. In-flight fetches for the
// previous chat become stale.
func (m *Manager) Reset(chatID string) {
	m.gen++
	m.chatID = chatID
	m.messages = nil
	m.page = 0
	m.hasMore = false
	m.loadingInitial = false
	m.loadingOlder = false
}

// LoadInitial clears the list and fetches the newest page.
func (m *Manager) LoadInitial(ctx context.Context) tea.Cmd {
	if m.chatID == "" {
		return nil
	}
	m.gen++
	m.messages = nil
	m.page = 0
	m.hasMore = false
	m.loadingInitial = true
	m.loadingOlder = false
	return m.fetch(ctx, 1, false)
}

// LoadOlder fetches the next older page when the user scrolls upward near
// the top, more pages exist and nothing else is loading.
func (m *Manager) LoadOlder(ctx context.Context, s Scroll) tea.Cmd {
	if !s.Up || s.Offset > m.nearTop {
		return nil
	}
	if !m.hasMore || m.loadingOlder || m.loadingInitial || m.chatID == "" {
		return nil
	}
	m.loadingOlder = true
	return m.fetch(ctx, m.page+1, true)
}

func (m *Manager) fetch(ctx context.Context, page int, older bool) tea.Cmd {
	client := m.client
	chatID := m.chatID
	gen := m.gen
	size := m.pageSize
	return func() tea.Msg {
		res, err := client.GetHistory(ctx, chatID, page, size)
		return LoadedMsg{Gen: gen, ChatID: chatID, Page: page, Older: older, Result: res, Err: err}
	}
}

// Update applies a fetch result.
func (m *Manager) Update(msg tea.Msg) LoadResult {
	loaded, ok := msg.(LoadedMsg)
	if !ok || loaded.Gen != m.gen || loaded.ChatID != m.chatID {
		return LoadResult{}
	}

	if loaded.Older {
		m.loadingOlder = false
	} else {
		m.loadingInitial = false
	}

	if loaded.Err != nil {
		m.logger.Warn("history fetch failed",
			zap.String("chat_id", loaded.ChatID),
			zap.Int("page", loaded.Page),
			zap.Error(loaded.Err))
		if !loaded.Older {
			// LoadInitial already emptied the list; whatever is here now was
			// sent while page 1 was loading and stays
			m.hasMore = false
		}
		return LoadResult{Applied: true, Older: loaded.Older, Err: fmt.Errorf("load history: %w", loaded.Err)}
	}

	var records []model.HistoryRecord
	var hasNext bool
	if loaded.Result != nil {
		records = loaded.Result.Records
		hasNext = loaded.Result.Pagination.HasNext
	}

	result := LoadResult{Applied: true, Older: loaded.Older}
	if loaded.Older && len(m.messages) > 0 {
		result.Anchor = m.messages[0].ID
	}

	m.page = loaded.Page
	m.hasMore = hasNext && len(records) > 0
	m.merge(model.ExpandRecords(records))
	return result
}

// =============================================================================
// MUTATIONS
// =============================================================================

// merge is the single mutation point: incoming entries replace existing
// entries with the same id, then the list is de-duplicated and re-sorted.
func (m *Manager) merge(incoming []*model.Message) {
	combined := make([]*model.Message, 0, len(m.messages)+len(incoming))
	combined = append(combined, m.messages...)
	combined = append(combined, incoming...)
	m.messages = dedupeSorted(combined)
}

// dedupeSorted keeps the last entry for each id at the position of the first
// and returns the list in timeline order.
func dedupeSorted(msgs []*model.Message) []*model.Message {
	index := make(map[string]int, len(msgs))
	out := make([]*model.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if i, ok := index[msg.ID]; ok {
			out[i] = msg
			continue
		}
		index[msg.ID] = len(out)
		out = append(out, msg)
	}
	model.SortMessages(out)
	return out
}

// Append adds entries (optimistic inserts).
func (m *Manager) Append(msgs ...*model.Message) {
	m.merge(msgs)
}

// Remove deletes the entry with id. It reports whether one was removed.
func (m *Manager) Remove(id string) bool {
	_, i := m.Find(id)
	if i < 0 {
		return false
	}
	rest := make([]*model.Message, 0, len(m.messages)-1)
	rest = append(rest, m.messages[:i]...)
	rest = append(rest, m.messages[i+1:]...)
	m.messages = nil
	m.merge(rest)
	return true
}

// Replace swaps the entry oldID for a modified copy produced by edit. The
// copy may carry a new id. It reports whether oldID was found.
func (m *Manager) Replace(oldID string, edit func(*model.Message)) bool {
	msg, i := m.Find(oldID)
	if i < 0 {
		return false
	}
	updated := msg.Clone()
	edit(updated)

	rest := make([]*model.Message, 0, len(m.messages))
	rest = append(rest, m.messages[:i]...)
	rest = append(rest, m.messages[i+1:]...)
	m.messages = rest
	m.merge([]*model.Message{updated})
	return true
}

// SetContent replaces the content of the entry with id.
func (m *Manager) SetContent(id, content string) bool {
	return m.Replace(id, func(msg *model.Message) {
		msg.Content = content
	})
}
