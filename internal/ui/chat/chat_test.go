// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/notice"
	"github.com/grayphite/polaris-frontend-sub000/internal/session"
	"github.com/grayphite/polaris-frontend-sub000/internal/storage"
	"github.com/grayphite/polaris-frontend-sub000/internal/ui/styles"
)

var clock = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// =============================================================================
// FAKE BACKEND
// =============================================================================

type fakeBackend struct {
	mu sync.Mutex

	chats   []model.Chat
	frames  []api.StreamEvent
	sends   []api.SendRequest
	renames []string
	uploads int
}

func (f *fakeBackend) GetHistory(context.Context, string, int, int) (*api.HistoryPage, error) {
	return &api.HistoryPage{}, nil
}

func (f *fakeBackend) UploadFile(_ context.Context, up api.UploadRequest) (*model.FileAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return &model.FileAttachment{ID: fmt.Sprintf("file-%d", f.uploads), Filename: up.Filename, MimeType: up.MimeType, FileType: up.FileType}, nil
}

func (f *fakeBackend) DeleteFile(context.Context, string) error { return nil }

func (f *fakeBackend) GetReferenceMapping(context.Context, string) (*api.ReferenceMapping, error) {
	return &api.ReferenceMapping{}, nil
}

func (f *fakeBackend) ListChats(context.Context, string, api.ListChatsParams) (*api.ChatPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &api.ChatPage{Records: f.chats}, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, _ string, req api.SendRequest) (<-chan api.StreamEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	ch := make(chan api.StreamEvent, len(f.frames))
	for _, ev := range f.frames {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeBackend) RenameChat(_ context.Context, chatID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, chatID+"="+name)
	return nil
}

func (f *fakeBackend) DeleteChat(context.Context, string) error { return nil }

func (f *fakeBackend) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

// =============================================================================
// HELPERS
// =============================================================================

func immediateTick(_ time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
	return func() tea.Msg { return fn(clock) }
}

func newModel(t *testing.T, be *fakeBackend) Model {
	t.Helper()
	scratch := storage.NewScratch(storage.NewMemoryStore(), nil)
	id := session.Identity{UserID: "u1", DisplayName: "Ada", ProjectID: "p1"}
	s := session.New(be, scratch, config.Default(), id, nil).
		WithClock(func() time.Time { return clock }).
		WithNotices(notice.NewQueue().WithClock(func() time.Time { return clock }))
	s.Stream().WithTicker(immediateTick)
	s.Picker().WithTicker(immediateTick)

	m := New(s, model.Chat{ID: "chat-1", ProjectID: "p1"}, styles.NewTheme()).
		WithMarkdownStyle("notty").
		WithClock(func() time.Time { return clock }).
		WithFileReader(func(path string) ([]byte, error) {
			if path == "/tmp/a.png" {
				return pngHeader, nil
			}
			return nil, errors.New("no such file")
		})
	m = settle(t, m, m.Init())
	return update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
}

// quick runs cmd and gives up on it if it blocks, which only the real
// timers (cursor blink, spinner frames, notice expiry) do.
func quick(cmd tea.Cmd) (tea.Msg, bool) {
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg, true
	case <-time.After(50 * time.Millisecond):
		return nil, false
	}
}

// settle runs cmd depth-first and feeds every message back into the model.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	steps := 0
	var exec func(tea.Cmd)
	exec = func(c tea.Cmd) {
		if c == nil {
			return
		}
		steps++
		require.Less(t, steps, 500, "command loop did not settle")
		msg, ok := quick(c)
		if !ok || msg == nil {
			return
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, sub := range batch {
				exec(sub)
			}
			return
		}
		next, cmd := m.Update(msg)
		m = next.(Model)
		exec(cmd)
	}
	exec(cmd)
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	return settle(t, next.(Model), cmd)
}

func typeText(m Model, t *testing.T, text string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

// =============================================================================
// SEND
// =============================================================================

func TestModel_SendShowsReply(t *testing.T) {
	be := &fakeBackend{frames: []api.StreamEvent{
		{Type: api.FrameTextDelta, Delta: "Hi"},
		{Type: api.FrameTextDelta, Delta: " there"},
		{Type: api.FrameStreamComplete, Complete: &api.StreamComplete{
			Message:        model.HistoryRecord{ID: "r1", Question: "Hello", Answer: "Hi there", CreatedAt: clock},
			ChatTitle:      "Greetings",
			IsFirstMessage: true,
		}},
	}}
	m := newModel(t, be)

	m = typeText(m, t, "Hello")
	m = update(t, m, enter)

	require.Equal(t, 1, be.sendCount())
	msgs := m.Session().Timeline().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "r1", msgs[0].ID)
	assert.Equal(t, "r1-reply", msgs[1].ID)
	assert.Equal(t, "Hi there", msgs[1].Content)

	assert.Empty(t, m.input.Value())
	view := m.View()
	assert.Contains(t, view, "Greetings")
	assert.Contains(t, view, "Ada")
	assert.Contains(t, view, "Hi there")
}

func TestModel_EmptySubmitIsSilent(t *testing.T) {
	be := &fakeBackend{}
	m := newModel(t, be)

	m = update(t, m, enter)

	assert.Zero(t, be.sendCount())
	_, ok := m.Session().Notices().Latest()
	assert.False(t, ok)
}

func TestDescribeSubmitError(t *testing.T) {
	assert.Empty(t, describeSubmitError(session.ErrEmptyInput))
	assert.Equal(t, "Wait for attachments to finish uploading", describeSubmitError(session.ErrUploadsPending))
	assert.Equal(t, "Wait for the reply to finish", describeSubmitError(session.ErrStreamActive))
}

// =============================================================================
// REFERENCES
// =============================================================================

func TestModel_MentionSelectsReference(t *testing.T) {
	be := &fakeBackend{chats: []model.Chat{{ID: "c7", Name: "Project plan"}}}
	m := newModel(t, be)

	m = typeText(m, t, "Compare with @proj")

	p := m.Session().Picker()
	require.True(t, p.Inline())
	require.Len(t, p.Results(), 1)
	assert.Contains(t, m.View(), "Project plan")

	m = update(t, m, enter)

	assert.Zero(t, be.sendCount(), "enter picks a result instead of sending")
	assert.False(t, m.Session().Picker().IsOpen())
	assert.Equal(t, "Compare with ", m.input.Value())
	assert.Equal(t, 13, m.input.Position())

	chips := m.Session().References().Chips()
	require.Len(t, chips, 1)
	assert.Equal(t, "c7", chips[0].ID)
	assert.Contains(t, m.View(), "@Project plan")
}

func TestModel_EscapeClosesPicker(t *testing.T) {
	m := newModel(t, &fakeBackend{})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.True(t, m.Session().Picker().IsOpen())
	assert.False(t, m.Session().Picker().Inline())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.Session().Picker().IsOpen())
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestModel_AttachCommand(t *testing.T) {
	be := &fakeBackend{}
	m := newModel(t, be)

	m = typeText(m, t, "/attach /tmp/a.png")
	m = update(t, m, enter)

	files := m.Session().Attachments().Files()
	require.Len(t, files, 1)
	assert.Equal(t, "a.png", files[0].Filename)
	assert.Equal(t, model.FileTypeImage, files[0].FileType)
	assert.True(t, files[0].IsReady())
	assert.Zero(t, be.sendCount(), "commands are never sent")
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "[OK] 1 a.png")
}

func TestModel_AttachUnreadableFile(t *testing.T) {
	m := newModel(t, &fakeBackend{})

	m = typeText(m, t, "/attach /tmp/missing.pdf")
	m = update(t, m, enter)

	assert.Zero(t, m.Session().Attachments().Len())
	n, ok := m.Session().Notices().Latest()
	require.True(t, ok)
	assert.Equal(t, notice.KindWarning, n.Kind)
	assert.Contains(t, n.Message, "missing.pdf")
}

func TestModel_RenameCommand(t *testing.T) {
	be := &fakeBackend{}
	m := newModel(t, be)

	m = typeText(m, t, "/rename Trip notes")
	m = update(t, m, enter)

	assert.Equal(t, "Trip notes", m.Session().Title())
	assert.Equal(t, []string{"chat-1=Trip notes"}, be.renames)
	assert.Contains(t, m.View(), "Trip notes")
}

func TestModel_UnknownCommandWarns(t *testing.T) {
	m := newModel(t, &fakeBackend{})

	m = typeText(m, t, "/frobnicate")
	m = update(t, m, enter)

	n, ok := m.Session().Notices().Latest()
	require.True(t, ok)
	assert.Equal(t, "Unknown command /frobnicate", n.Message)
	assert.Contains(t, m.View(), "[!] Unknown command /frobnicate")
}

func TestModel_ExportCommand(t *testing.T) {
	be := &fakeBackend{frames: []api.StreamEvent{
		{Type: api.FrameStreamComplete, Complete: &api.StreamComplete{
			Message:        model.HistoryRecord{ID: "r1", Question: "Hello", Answer: "Hi there", CreatedAt: clock},
			ChatTitle:      "Greetings",
			IsFirstMessage: true,
		}},
	}}
	dir := t.TempDir()
	m := newModel(t, be).WithExportDir(dir)
	m = typeText(m, t, "Hello")
	m = update(t, m, enter)

	m = typeText(m, t, "/export")
	m = update(t, m, enter)

	n, ok := m.Session().Notices().Latest()
	require.True(t, ok)
	assert.Equal(t, notice.KindSuccess, n.Kind)

	path := filepath.Join(dir, "chat_Greetings_20250602_100000.md")
	assert.Equal(t, "Saved "+path, n.Message)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hi there")
}

func TestModel_ExportEmptyChatWarns(t *testing.T) {
	m := newModel(t, &fakeBackend{}).WithExportDir(t.TempDir())

	m = typeText(m, t, "/export json")
	m = update(t, m, enter)

	n, ok := m.Session().Notices().Latest()
	require.True(t, ok)
	assert.Equal(t, "Nothing to export yet", n.Message)

	m = typeText(m, t, "/export pdf")
	m = update(t, m, enter)
	n, _ = m.Session().Notices().Latest()
	assert.Equal(t, "Usage: /export [md|json]", n.Message)
}

func TestModel_ConfigReloadedNotice(t *testing.T) {
	m := newModel(t, &fakeBackend{})

	m = update(t, m, ConfigReloadedMsg{Path: "/tmp/config.toml"})

	n, ok := m.Session().Notices().Latest()
	require.True(t, ok)
	assert.Equal(t, notice.KindStatus, n.Kind)
	assert.Equal(t, "Configuration reloaded", n.Message)
}

func TestModel_Quit(t *testing.T) {
	m := newModel(t, &fakeBackend{})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)

	var quit bool
	var walk func(tea.Cmd)
	walk = func(c tea.Cmd) {
		msg, ok := quick(c)
		if !ok {
			return
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, sub := range batch {
				walk(sub)
			}
			return
		}
		if _, ok := msg.(tea.QuitMsg); ok {
			quit = true
		}
	}
	walk(cmd)
	assert.True(t, quit)
}

// =============================================================================
// LAYOUT HELPERS
// =============================================================================

func TestTopEntry(t *testing.T) {
	m := Model{starts: []int{0, 3, 7}}

	tests := []struct {
		offset int
		want   int
	}{
		{0, 0},
		{2, 0},
		{3, 1},
		{6, 1},
		{7, 2},
		{40, 2},
	}
	for _, tt := range tests {
		m.viewport.YOffset = tt.offset
		assert.Equal(t, tt.want, m.topEntry(), "offset %d", tt.offset)
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 12, 15, 30, 0, 0, time.Local)

	assert.Equal(t, "09:05", formatTimestamp(time.Date(2025, 6, 12, 9, 5, 0, 0, time.Local), now))
	assert.Equal(t, "Tue 09:05", formatTimestamp(time.Date(2025, 6, 10, 9, 5, 0, 0, time.Local), now))
	assert.Equal(t, "May 2 09:05", formatTimestamp(time.Date(2025, 5, 2, 9, 5, 0, 0, time.Local), now))
}

func TestMarkdownRenderer_Caches(t *testing.T) {
	r := newMarkdownRenderer("notty")

	first := r.Render("m1", "some **bold** words", 60)
	assert.Contains(t, first, "bold")
	assert.Equal(t, first, r.Render("m1", "some **bold** words", 60))

	changed := r.Render("m1", "other text", 60)
	assert.Contains(t, changed, "other text")
	assert.NotContains(t, changed, "bold")
}
