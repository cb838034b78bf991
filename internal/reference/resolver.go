// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reference

import (
	"context"
	"math/big"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/storage"
	"github.com/grayphite/polaris-frontend-sub000/internal/util"
)

// MappingClient fetches the per-message reference mapping of a chat.
type MappingClient interface {
	GetReferenceMapping(ctx context.Context, chatID string) (*api.ReferenceMapping, error)
}

// MappingMsg carries a fetched reference mapping.
type MappingMsg struct {
	Gen     int
	ChatID  string
	Mapping *api.ReferenceMapping
	Err     error
}

// =============================================================================
// MAPPING RESOLUTION
// =============================================================================

// ResolveMapping picks the authoritative persisted references of a chat.
//
// Only the most recently created message's entry counts: the highest numeric
// key must equal storedID, the record id this client last saw complete. A
// mismatch means the mapping is stale or belongs to a message this client
// has not seen, and yields no references. When no id is stored, or the map
// is empty, the legacy top-level fields are used.
func ResolveMapping(m *api.ReferenceMapping, storedID string) []model.PersistedReference {
	if m == nil {
		return nil
	}
	if storedID == "" || len(m.ByMessage) == 0 {
		return model.NormalizeAll(m.Legacy)
	}

	latest, ok := latestKey(m.ByMessage)
	if !ok || !model.SameID(latest, storedID) {
		return []model.PersistedReference{}
	}
	return model.NormalizeAll(m.ByMessage[latest])
}

// latestKey returns the numerically highest key. Non-numeric keys are
// ignored.
func latestKey(byMessage map[string][]model.RawReference) (string, bool) {
	var (
		best    string
		bestVal *big.Float
	)
	for k := range byMessage {
		v, ok := new(big.Float).SetString(k)
		if !ok {
			continue
		}
		if bestVal == nil || v.Cmp(bestVal) > 0 || (v.Cmp(bestVal) == 0 && k < best) {
			best, bestVal = k, v
		}
	}
	return best, bestVal != nil
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver holds the reference chips of the open chat.
type Resolver struct {
	client  MappingClient
	scratch *storage.Scratch
	logger  *zap.Logger

	projectID string
	chatID    string
	gen       int

	persisted []model.PersistedReference
	manual    []model.ChatReference
	hidden    map[string]bool
	trigger   *Trigger
}

// NewResolver creates an empty resolver.
func NewResolver(client MappingClient, scratch *storage.Scratch, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		client:  client,
		scratch: scratch,
		logger:  logger,
		hidden:  make(map[string]bool),
	}
}

// Reset discards all state for a newly opened chat.
func (r *Resolver) Reset(projectID, chatID string) {
	r.gen++
	r.projectID = projectID
	r.chatID = chatID
	r.persisted = nil
	r.manual = nil
	r.hidden = make(map[string]bool)
	r.trigger = nil
}

// Load fetches the reference mapping of the open chat.
func (r *Resolver) Load(ctx context.Context) tea.Cmd {
	if r.client == nil || r.chatID == "" {
		return nil
	}
	client, gen, chatID := r.client, r.gen, r.chatID
	return func() tea.Msg {
		m, err := client.GetReferenceMapping(ctx, chatID)
		return MappingMsg{Gen: gen, ChatID: chatID, Mapping: m, Err: err}
	}
}

// Update applies a fetched mapping. Stale or failed fetches keep the current
// references; a failure is returned for logging only.
func (r *Resolver) Update(msg tea.Msg) (bool, error) {
	m, ok := msg.(MappingMsg)
	if !ok || m.Gen != r.gen || m.ChatID != r.chatID {
		return false, nil
	}
	if m.Err != nil {
		r.logger.Debug("reference mapping fetch failed",
			zap.String("chat_id", m.ChatID),
			zap.Error(m.Err))
		return false, m.Err
	}
	var stored string
	if r.scratch != nil {
		stored, _ = r.scratch.LastMessageID(r.chatID)
	}
	r.SetPersisted(ResolveMapping(m.Mapping, stored))
	return true, nil
}

// SetPersisted replaces the persisted references, for example with the
// server echo of a completed send. Manual entries now persisted are dropped
// and hidden entries become visible again.
func (r *Resolver) SetPersisted(refs []model.PersistedReference) {
	r.persisted = append([]model.PersistedReference(nil), refs...)
	r.hidden = make(map[string]bool)

	ids := make(map[string]bool, len(refs))
	for _, p := range refs {
		ids[p.ID] = true
	}
	kept := r.manual[:0]
	for _, m := range r.manual {
		if !ids[m.ID] {
			kept = append(kept, m)
		}
	}
	r.manual = kept
}

// Persisted returns the persisted references, hidden ones included.
func (r *Resolver) Persisted() []model.PersistedReference {
	return append([]model.PersistedReference(nil), r.persisted...)
}

// Manual returns the manually selected references.
func (r *Resolver) Manual() []model.ChatReference {
	return append([]model.ChatReference(nil), r.manual...)
}

// Chips returns the merged reference set: visible persisted entries, with
// missing titles filled from the local cache, then manual entries whose id
// is not persisted.
func (r *Resolver) Chips() []model.ChatReference {
	out := make([]model.ChatReference, 0, len(r.persisted)+len(r.manual))
	seen := make(map[string]bool, len(r.persisted))
	for _, p := range r.persisted {
		seen[p.ID] = true
		if r.hidden[p.ID] {
			continue
		}
		ref := p.ToChatReference()
		if ref.Title == "" && r.scratch != nil {
			if title, ok := r.scratch.TitleFor(r.projectID, ref.ID); ok {
				ref.Title = title
			}
		}
		out = append(out, ref)
	}
	for _, m := range r.manual {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

// IDs returns the ids of the merged reference set.
func (r *Resolver) IDs() []string {
	chips := r.Chips()
	ids := make([]string, 0, len(chips))
	for _, c := range chips {
		ids = append(ids, c.ID)
	}
	return ids
}

// UpdateTrigger re-runs mention detection after a compose edit.
func (r *Resolver) UpdateTrigger(text string, caret int) (Trigger, bool) {
	t, ok := DetectTrigger(text, caret)
	if !ok {
		r.trigger = nil
		return Trigger{}, false
	}
	r.trigger = &t
	return t, true
}

// Trigger returns the active inline mention, if any.
func (r *Resolver) Trigger() (Trigger, bool) {
	if r.trigger == nil {
		return Trigger{}, false
	}
	return *r.trigger, true
}

// Select adds chat to the manual set. The first selection made while an
// inline mention is active removes the "@" token from text and returns the
// edited text with the restored caret; otherwise text and caret come back
// unchanged.
func (r *Resolver) Select(chat model.ChatReference, text string, caret int) (string, int) {
	if chat.ID != "" && chat.ID != r.chatID && !r.contains(chat.ID) {
		r.manual = append(r.manual, chat)
	}
	delete(r.hidden, chat.ID)

	if r.trigger == nil {
		return text, caret
	}
	t := *r.trigger
	r.trigger = nil
	return util.SpliceRunes(text, t.Start, t.End, "")
}

func (r *Resolver) contains(id string) bool {
	for _, p := range r.persisted {
		if p.ID == id && !r.hidden[id] {
			return true
		}
	}
	for _, m := range r.manual {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Remove drops a manual entry, or hides a persisted entry from the next send.
func (r *Resolver) Remove(id string) {
	for i, m := range r.manual {
		if m.ID == id {
			r.manual = append(r.manual[:i:i], r.manual[i+1:]...)
			return
		}
	}
	for _, p := range r.persisted {
		if p.ID == id {
			r.hidden[id] = true
			return
		}
	}
}

// ClearManual drops the manual selections after a send.
func (r *Resolver) ClearManual() {
	r.manual = nil
}
