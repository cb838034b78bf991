// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/session"
	"github.com/grayphite/polaris-frontend-sub000/internal/ui/styles"
	"github.com/grayphite/polaris-frontend-sub000/internal/util"
)

// maxPickerRows is how many picker results are visible at once.
const maxPickerRows = 8

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderCompose(),
		m.renderStatus(),
	)
}

// =============================================================================
// HEADER AND STATUS
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render(util.TruncateWidth(m.sess.Title(), m.theme.ContentWidth()/2))

	var meta []string
	if p := m.sess.Chat().ProjectID; p != "" {
		meta = append(meta, "project "+p)
	}
	switch {
	case m.sess.Phase() != session.PhaseIdle:
		meta = append(meta, m.sess.Phase().String())
	case m.sess.Timeline().Loading():
		meta = append(meta, "loading")
	}

	line := title
	if len(meta) > 0 {
		line += "  " + m.theme.HeaderMeta.Render(strings.Join(meta, " | "))
	}
	return m.theme.Header.Width(m.width).Render(line)
}

func (m Model) renderStatus() string {
	width := m.theme.ContentWidth()
	if n, ok := m.sess.Notices().Latest(); ok {
		text := util.TruncateWidth(styles.NoticeIndicator(n.Kind)+" "+n.Message, width)
		return m.theme.StatusBar.Width(m.width).Render(m.theme.NoticeStyle(n.Kind).Render(text))
	}

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, m.theme.ShortcutKey.Render(h.Key)+" "+h.Desc)
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(hints, "  "))
}

// =============================================================================
// TIMELINE
// =============================================================================

// renderTimeline renders every entry and returns the first line of each.
func (m *Model) renderTimeline(msgs []*model.Message) (string, []int) {
	tl := m.sess.Timeline()

	var (
		blocks []string
		starts = make([]int, 0, len(msgs))
		line   int
	)
	add := func(block string) {
		blocks = append(blocks, block)
		line += lipgloss.Height(block) + 1
	}

	switch {
	case tl.LoadingOlder():
		add(m.theme.Hint.Render("Loading older messages..."))
	case tl.HasMore() && len(msgs) > 0:
		add(m.theme.Hint.Render("Scroll up for older messages"))
	case len(msgs) == 0 && !tl.Loading():
		add(m.theme.Hint.Render("No messages yet."))
	}

	for _, msg := range msgs {
		starts = append(starts, line)
		add(m.renderMessage(msg))
	}
	return strings.Join(blocks, "\n\n"), starts
}

func (m *Model) renderMessage(msg *model.Message) string {
	var label string
	if msg.Role == model.RoleUser {
		name := msg.Role.DisplayName()
		if msg.Author != nil && msg.Author.DisplayName != "" {
			name = msg.Author.DisplayName
		}
		label = m.theme.UserLabel.Render(name)
	} else {
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	}
	if !msg.Timestamp.IsZero() {
		label += " " + m.theme.Timestamp.Render(formatTimestamp(msg.Timestamp, m.now()))
	}

	lines := []string{label, m.renderBody(msg)}

	if len(msg.ChatReferences) > 0 {
		titles := make([]string, 0, len(msg.ChatReferences))
		for _, ref := range msg.ChatReferences {
			titles = append(titles, "@"+referenceTitle(ref))
		}
		lines = append(lines, m.theme.Source.Render("references "+strings.Join(titles, ", ")))
	}
	for _, f := range msg.Attachments {
		lines = append(lines, m.theme.Source.Render("+ "+f.Filename))
	}
	for i, src := range msg.Sources {
		lines = append(lines, m.theme.Source.Render(fmt.Sprintf("[%d] %s", i+1, sourceLabel(src))))
	}
	return strings.Join(lines, "\n")
}

// renderBody shows a streaming reply as plain text and a finished one as
// markdown.
func (m *Model) renderBody(msg *model.Message) string {
	width := m.theme.ContentWidth()
	streaming := msg.Role == model.RoleAssistant && msg.ID == m.sess.Stream().MessageID()

	switch {
	case streaming && msg.Content == "":
		return m.theme.Pending.Render(m.spinner.View() + " Thinking...")
	case msg.Content == "" && msg.Role == model.RoleAssistant:
		return m.theme.Pending.Render("No reply")
	case streaming || msg.Role == model.RoleUser:
		return m.theme.Body.Width(width).Render(msg.Content)
	default:
		return m.markdown.Render(msg.ID, msg.Content, width)
	}
}

func referenceTitle(ref model.ChatReference) string {
	if ref.Title != "" {
		return ref.Title
	}
	return ref.ID
}

func sourceLabel(src model.SourceCitation) string {
	switch {
	case src.Title != "" && src.URL != "":
		return src.Title + " " + src.URL
	case src.Title != "":
		return src.Title
	case src.URL != "":
		return src.URL
	default:
		return src.DocumentID
	}
}

// formatTimestamp shows the time for today, the weekday within a week and
// the date otherwise.
func formatTimestamp(t, now time.Time) string {
	t = t.Local()
	now = now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}
	return t.Format("Jan 2 15:04")
}

// =============================================================================
// COMPOSE AREA
// =============================================================================

func (m Model) renderCompose() string {
	var parts []string
	if m.sess.Picker().IsOpen() {
		parts = append(parts, m.renderPicker())
	}
	if chips := m.renderChips(); chips != "" {
		parts = append(parts, chips)
	}
	for i, f := range m.sess.Attachments().Files() {
		line := fmt.Sprintf("%s %d %s", styles.UploadIndicator(f.UploadStatus), i+1, f.Filename)
		if f.UploadError != "" {
			line += ": " + f.UploadError
		}
		parts = append(parts, m.theme.UploadStyle(f.UploadStatus).Render(util.TruncateWidth(line, m.theme.ContentWidth())))
	}

	box := m.theme.InputBox.Width(m.theme.ContentWidth())
	parts = append(parts, box.Render(m.theme.InputPrompt.Render("> ")+m.input.View()))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderChips lists the references the next send will carry.
func (m Model) renderChips() string {
	chips := m.sess.References().Chips()
	if len(chips) == 0 {
		return ""
	}
	out := make([]string, 0, len(chips))
	for i, c := range chips {
		out = append(out, m.theme.Chip.Render(fmt.Sprintf("%d @%s", i+1, util.TruncateWidth(referenceTitle(c), 24))))
	}
	return strings.Join(out, " ")
}

func (m Model) renderPicker() string {
	p := m.sess.Picker()
	width := m.theme.ContentWidth()

	var lines []string
	if p.Inline() {
		lines = append(lines, m.theme.Hint.Render("@"+p.Query()))
	} else {
		lines = append(lines, m.search.View())
	}

	results := p.Results()
	busy := p.Pending() || p.Searching()
	if busy {
		lines = append(lines, m.theme.Hint.Render("Searching..."))
	}
	if len(results) == 0 && !busy {
		lines = append(lines, m.theme.Hint.Render("No matching chats"))
	}

	start := max(0, m.cursor-maxPickerRows+1)
	end := min(len(results), start+maxPickerRows)
	for i := start; i < end; i++ {
		c := results[i]
		title := util.TruncateWidth(c.Title, width-14)
		if c.Recent {
			title += " (recent)"
		}
		if i == m.cursor {
			lines = append(lines, m.theme.PickerCurrent.Render("> "+title))
		} else {
			lines = append(lines, m.theme.PickerItem.Render("  "+title))
		}
	}
	return m.theme.PickerBox.Width(width).Render(strings.Join(lines, "\n"))
}
