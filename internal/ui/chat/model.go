// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/notice"
	"github.com/grayphite/polaris-frontend-sub000/internal/session"
	"github.com/grayphite/polaris-frontend-sub000/internal/timeline"
	"github.com/grayphite/polaris-frontend-sub000/internal/ui/styles"
)

// FileReader loads a file named by an /attach command.
type FileReader func(path string) ([]byte, error)

// ConfigReloadedMsg is sent by the program owner after the config file
// changed on disk.
type ConfigReloadedMsg struct {
	Path string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the chat view. It is a value type like every Bubble Tea model;
// the engine state it renders lives behind the session pointer.
type Model struct {
	sess  *session.Session
	chat  model.Chat
	theme *styles.Theme
	keys  KeyMap

	input    textinput.Model
	search   textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	markdown *markdownRenderer

	width  int
	height int
	ready  bool

	// follow keeps the viewport pinned to the newest message
	follow bool
	// cursor is the highlighted picker row
	cursor int

	ticking  bool
	spinning bool

	readFile  FileReader
	exportDir string
	now       func() time.Time

	// layout of the last render: first line of each timeline entry
	starts  []int
	firstID string
}

// New creates the view for chat. The chat is opened by Init.
func New(sess *session.Session, chat model.Chat, theme *styles.Theme) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}

	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "Ask anything. @ references a chat, /attach adds files"
	input.Focus()

	search := textinput.New()
	search.Prompt = "@ "
	search.Placeholder = "search chats"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.AssistantLabel

	vp := viewport.New(theme.Width, 1)
	vp.MouseWheelEnabled = true

	return Model{
		sess:     sess,
		chat:     chat,
		theme:    theme,
		keys:     DefaultKeyMap(),
		input:    input,
		search:   search,
		viewport: vp,
		spinner:  sp,
		markdown: newMarkdownRenderer(""),
		follow:   true,
		readFile:  os.ReadFile,
		exportDir: ".",
		now:       time.Now,
	}
}

// WithMarkdownStyle selects a glamour standard style ("dark", "light",
// "notty"). The default follows the terminal background.
func (m Model) WithMarkdownStyle(style string) Model {
	m.markdown = newMarkdownRenderer(style)
	return m
}

// WithFileReader replaces os.ReadFile for /attach.
func (m Model) WithFileReader(fn FileReader) Model {
	m.readFile = fn
	return m
}

// WithExportDir sets the directory /export writes to.
func (m Model) WithExportDir(dir string) Model {
	m.exportDir = dir
	return m
}

// WithClock sets the clock used for timestamps.
func (m Model) WithClock(now func() time.Time) Model {
	m.now = now
	return m
}

// Session returns the engine behind the view.
func (m Model) Session() *session.Session { return m.sess }

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init opens the chat.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.sess.Open(m.chat))
}

// Update handles input and hands engine results back to the session.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		cmd = m.handleKey(msg)

	case tea.MouseMsg:
		cmd = m.handleMouse(msg)

	case exportDoneMsg:
		m.handleExported(msg)

	case ConfigReloadedMsg:
		m.sess.Notices().Status("Configuration reloaded")

	case notice.TickMsg:
		m.ticking = false
		m.sess.Notices().Expire()

	case spinner.TickMsg:
		m.spinning = false
		if m.sess.Busy() {
			m.spinner, cmd = m.spinner.Update(msg)
			m.spinning = cmd != nil
		}

	default:
		var inputCmd tea.Cmd
		m.input, inputCmd = m.input.Update(msg)
		cmd = tea.Batch(m.sess.Update(msg), inputCmd)
	}

	m.refresh()
	anim := m.animate()
	return m, tea.Batch(cmd, anim)
}

// animate starts the notice expiry timer and the thinking spinner when
// they are needed and not already running.
func (m *Model) animate() tea.Cmd {
	var cmds []tea.Cmd
	if !m.ticking && len(m.sess.Notices().Active()) > 0 {
		m.ticking = true
		cmds = append(cmds, notice.TickCmd())
	}
	if !m.spinning && m.sess.Busy() {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)

	inputWidth := m.theme.ContentWidth() - 4
	m.input.Width = inputWidth
	m.search.Width = inputWidth - 2
	m.viewport.Width = width
	m.ready = true
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Quit) {
		return tea.Quit
	}
	if m.sess.Picker().IsOpen() {
		if cmd, handled := m.handlePickerKey(msg); handled {
			return cmd
		}
	}

	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Picker):
		m.sess.OpenPicker()
		m.cursor = 0
		m.search.SetValue("")
		m.input.Blur()
		return m.search.Focus()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m.scrolled(true)

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m.scrolled(false)

	case key.Matches(msg, m.keys.LineUp):
		m.viewport.LineUp(1)
		return m.scrolled(true)

	case key.Matches(msg, m.keys.LineDown):
		m.viewport.LineDown(1)
		return m.scrolled(false)
	}
	return m.editCompose(msg)
}

// handlePickerKey consumes navigation keys while the picker is open. In the
// standalone picker typing edits the search box; inline, it falls through
// to the compose box, whose "@" token drives the query.
func (m *Model) handlePickerKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	p := m.sess.Picker()
	results := p.Results()

	switch {
	case key.Matches(msg, m.keys.Cancel):
		return m.closePicker(), true

	case key.Matches(msg, m.keys.PickerUp):
		if m.cursor > 0 {
			m.cursor--
		}
		return nil, true

	case key.Matches(msg, m.keys.PickerDown):
		if m.cursor < len(results)-1 {
			m.cursor++
		}
		return nil, true

	case key.Matches(msg, m.keys.Submit):
		if m.cursor >= len(results) {
			return nil, true
		}
		inline := p.Inline()
		m.sess.SelectReference(results[m.cursor])
		m.cursor = 0
		if inline {
			text, caret := m.sess.Compose()
			m.input.SetValue(text)
			m.input.SetCursor(caret)
			return nil, true
		}
		m.search.SetValue("")
		return nil, true
	}

	if p.Inline() {
		return nil, false
	}
	prev := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if q := m.search.Value(); q != prev {
		m.cursor = 0
		return tea.Batch(cmd, m.sess.SearchPicker(q)), true
	}
	return cmd, true
}

func (m *Model) closePicker() tea.Cmd {
	m.sess.ClosePicker()
	m.cursor = 0
	m.search.Blur()
	m.search.SetValue("")
	return m.input.Focus()
}

// editCompose feeds a key to the compose box and reports any change of text
// or caret to the session.
func (m *Model) editCompose(msg tea.KeyMsg) tea.Cmd {
	prevText, prevCaret := m.input.Value(), m.input.Position()

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	text, caret := m.input.Value(), m.input.Position()
	if text == prevText && caret == prevCaret {
		return cmd
	}
	if m.sess.Picker().IsOpen() && !m.sess.Picker().Inline() {
		return cmd
	}
	m.cursor = 0
	return tea.Batch(cmd, m.sess.SetCompose(text, caret))
}

func (m *Model) submit() tea.Cmd {
	if isCommand(m.input.Value()) {
		cmd := m.runCommand(m.input.Value())
		m.input.Reset()
		return tea.Batch(cmd, m.sess.SetCompose("", 0))
	}

	cmd, err := m.sess.Submit()
	if err != nil {
		if msg := describeSubmitError(err); msg != "" {
			m.sess.Notices().Status(msg)
		}
		return nil
	}
	m.input.Reset()
	m.follow = true
	return cmd
}

func describeSubmitError(err error) string {
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		return ""
	case errors.Is(err, session.ErrUploadsPending):
		return "Wait for attachments to finish uploading"
	case errors.Is(err, session.ErrStreamActive):
		return "Wait for the reply to finish"
	case errors.Is(err, session.ErrNoChat):
		return "No chat is open"
	default:
		return err.Error()
	}
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	prev := m.viewport.YOffset
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	if m.viewport.YOffset == prev {
		return cmd
	}
	return tea.Batch(cmd, m.scrolled(m.viewport.YOffset < prev))
}

// scrolled reports a viewport move to the timeline, which loads an older
// page when the top entry nears the start of the list.
func (m *Model) scrolled(up bool) tea.Cmd {
	m.follow = m.viewport.AtBottom()
	return m.sess.Scrolled(timeline.Scroll{Up: up, Offset: m.topEntry()})
}

// topEntry is the index of the timeline entry at the top of the viewport.
func (m *Model) topEntry() int {
	i := sort.SearchInts(m.starts, m.viewport.YOffset+1) - 1
	if i < 0 {
		return 0
	}
	return i
}

// =============================================================================
// LAYOUT
// =============================================================================

// refresh re-renders the timeline into the viewport. When older messages
// were prepended the viewport keeps the previous first entry in place.
func (m *Model) refresh() {
	if !m.ready {
		return
	}

	chrome := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.renderCompose()) + lipgloss.Height(m.renderStatus())
	m.viewport.Height = max(1, m.height-chrome)

	msgs := m.sess.Timeline().Messages()
	content, starts := m.renderTimeline(msgs)

	anchor := -1
	if !m.follow && m.firstID != "" && len(msgs) > 0 && msgs[0].ID != m.firstID {
		for i, msg := range msgs {
			if msg.ID == m.firstID {
				anchor = i
				break
			}
		}
	}
	prevStart := 0
	if len(m.starts) > 0 {
		prevStart = m.starts[0]
	}
	offset := m.viewport.YOffset

	m.viewport.SetContent(content)
	switch {
	case m.follow:
		m.viewport.GotoBottom()
	case anchor >= 0:
		m.viewport.SetYOffset(starts[anchor] - prevStart + offset)
	}

	m.starts = starts
	m.firstID = ""
	if len(msgs) > 0 {
		m.firstID = msgs[0].ID
	}
	if n := len(m.sess.Picker().Results()); m.cursor >= n {
		m.cursor = max(0, n-1)
	}
}
