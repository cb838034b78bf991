// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reference

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/storage"
)

// Searcher lists a project's chats matching a query.
type Searcher interface {
	ListChats(ctx context.Context, projectID string, p api.ListChatsParams) (*api.ChatPage, error)
}

// TickFunc schedules a timer message; tea.Tick in production.
type TickFunc func(time.Duration, func(time.Time) tea.Msg) tea.Cmd

// Candidate is one selectable chat in the picker.
type Candidate struct {
	ID     string
	Title  string
	Recent bool // from the local recent-chats cache
}

// ToChatReference converts the candidate into a chip.
func (c Candidate) ToChatReference() model.ChatReference {
	return model.ChatReference{ID: c.ID, Title: c.Title}
}

// =============================================================================
// MESSAGES
// =============================================================================

// DebounceMsg fires when the query has been stable for the debounce delay.
type DebounceMsg struct {
	Seq int
}

// SearchResultMsg carries the result of a picker search.
type SearchResultMsg struct {
	Seq     int
	Query   string
	Results []Candidate
	Err     error
}

// =============================================================================
// PICKER
// =============================================================================

// Picker is the referenced-chat search popup. Every query change bumps a
// sequence number; debounce ticks and search results carrying an older
// number are ignored.
type Picker struct {
	searcher    Searcher
	scratch     *storage.Scratch
	logger      *zap.Logger
	delay       time.Duration
	pageSize    int
	recentLimit int
	tick        TickFunc

	projectID string
	chatID    string

	open      bool
	inline    bool
	query     string
	exclude   map[string]bool
	seq       int
	pending   bool
	searching bool
	results   []Candidate
}

// NewPicker creates a closed picker.
func NewPicker(searcher Searcher, scratch *storage.Scratch, cfg config.PickerConfig, logger *zap.Logger) *Picker {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Picker{
		searcher:    searcher,
		scratch:     scratch,
		logger:      logger,
		delay:       cfg.Debounce(),
		pageSize:    cfg.SearchPageSize,
		recentLimit: cfg.RecentLimit,
		tick:        tea.Tick,
	}
	if p.delay <= 0 {
		p.delay = 300 * time.Millisecond
	}
	if p.pageSize <= 0 {
		p.pageSize = 20
	}
	return p
}

// WithTicker replaces the timer source, for tests.
func (p *Picker) WithTicker(fn TickFunc) *Picker {
	p.tick = fn
	return p
}

// SetScope sets the project searched and the chat excluded from results.
// It closes the picker.
func (p *Picker) SetScope(projectID, chatID string) {
	p.projectID = projectID
	p.chatID = chatID
	p.Close()
}

// IsOpen reports whether the picker is visible.
func (p *Picker) IsOpen() bool { return p.open }

// Inline reports whether the picker was opened by an "@" mention.
func (p *Picker) Inline() bool { return p.open && p.inline }

// Query returns the normalized query.
func (p *Picker) Query() string { return p.query }

// Pending reports whether a debounce is waiting to fire.
func (p *Picker) Pending() bool { return p.pending }

// Searching reports whether a search request is in flight.
func (p *Picker) Searching() bool { return p.searching }

// Results returns the visible candidates.
func (p *Picker) Results() []Candidate {
	return append([]Candidate(nil), p.results...)
}

// Open shows the picker with the recent chats. exclude lists chat ids that
// are already selected.
func (p *Picker) Open(inline bool, exclude []string) {
	p.open = true
	p.inline = inline
	p.query = ""
	p.seq++
	p.pending = false
	p.searching = false
	p.setExclude(exclude)
	p.results = p.recent("")
}

// Close hides the picker and invalidates any pending search.
func (p *Picker) Close() {
	p.open = false
	p.inline = false
	p.query = ""
	p.seq++
	p.pending = false
	p.searching = false
	p.results = nil
}

// SetQuery updates the query. An empty query shows the recent chats at once.
// Otherwise the recent chats are filtered locally while the debounce runs,
// and the returned command fires the debounce.
func (p *Picker) SetQuery(query string, exclude []string) tea.Cmd {
	if !p.open {
		return nil
	}
	q := normalizeQuery(query)
	p.setExclude(exclude)
	if q == p.query && (p.pending || p.searching) {
		return nil
	}

	p.query = q
	p.seq++
	p.searching = false
	p.results = p.recent(q)
	if q == "" {
		p.pending = false
		return nil
	}

	p.pending = true
	seq := p.seq
	return p.tick(p.delay, func(time.Time) tea.Msg {
		return DebounceMsg{Seq: seq}
	})
}

// Update handles debounce ticks and search results. A returned error is a
// failed search to surface as a notice; the local results stay visible.
func (p *Picker) Update(ctx context.Context, msg tea.Msg) (tea.Cmd, error) {
	switch msg := msg.(type) {
	case DebounceMsg:
		if !p.open || msg.Seq != p.seq || !p.pending {
			return nil, nil
		}
		p.pending = false
		p.searching = true
		return p.search(ctx, msg.Seq, p.query), nil

	case SearchResultMsg:
		if !p.open || msg.Seq != p.seq {
			return nil, nil
		}
		p.searching = false
		if msg.Err != nil {
			p.logger.Warn("chat search failed",
				zap.String("query", msg.Query),
				zap.Error(msg.Err))
			return nil, msg.Err
		}
		p.results = p.filter(msg.Results)
	}
	return nil, nil
}

func (p *Picker) search(ctx context.Context, seq int, query string) tea.Cmd {
	searcher, projectID := p.searcher, p.projectID
	params := api.ListChatsParams{Page: 1, PageSize: p.pageSize, Search: query}
	return func() tea.Msg {
		page, err := searcher.ListChats(ctx, projectID, params)
		if err != nil {
			return SearchResultMsg{Seq: seq, Query: query, Err: err}
		}
		out := make([]Candidate, 0, len(page.Records))
		for _, c := range page.Records {
			out = append(out, Candidate{ID: c.ID, Title: c.Title()})
		}
		return SearchResultMsg{Seq: seq, Query: query, Results: out}
	}
}

func (p *Picker) recent(query string) []Candidate {
	if p.scratch == nil {
		return nil
	}
	var all []Candidate
	for _, c := range p.scratch.RecentChats(p.projectID) {
		all = append(all, Candidate{ID: c.ID, Title: c.Title, Recent: true})
	}
	out := filterCandidates(query, p.filter(all))
	if p.recentLimit > 0 && len(out) > p.recentLimit {
		out = out[:p.recentLimit]
	}
	return out
}

// filter drops the open chat and already-selected chats.
func (p *Picker) filter(in []Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.ID == "" || c.ID == p.chatID || p.exclude[c.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (p *Picker) setExclude(ids []string) {
	p.exclude = make(map[string]bool, len(ids))
	for _, id := range ids {
		p.exclude[id] = true
	}
}

func normalizeQuery(q string) string {
	return strings.TrimSpace(norm.NFKC.String(q))
}
