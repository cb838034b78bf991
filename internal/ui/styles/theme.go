// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/notice"
)

// Theme holds the styled components of the chat view.
type Theme struct {
	Width  int
	Height int

	// ==========================================================================
	// HEADER AND STATUS
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style
	StatusBar   lipgloss.Style
	ShortcutKey lipgloss.Style
	Hint        lipgloss.Style

	// ==========================================================================
	// TIMELINE
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Timestamp      lipgloss.Style
	Body           lipgloss.Style
	Pending        lipgloss.Style
	Source         lipgloss.Style

	// ==========================================================================
	// COMPOSE AREA
	// ==========================================================================

	Chip          lipgloss.Style
	Attachment    lipgloss.Style
	InputBox      lipgloss.Style
	InputPrompt   lipgloss.Style
	PickerBox     lipgloss.Style
	PickerItem    lipgloss.Style
	PickerCurrent lipgloss.Style

	// ==========================================================================
	// NOTICES
	// ==========================================================================

	NoticeError   lipgloss.Style
	NoticeWarning lipgloss.Style
	NoticeSuccess lipgloss.Style
	NoticeStatus  lipgloss.Style
}

// NewTheme creates a theme with all styles initialized.
func NewTheme() *Theme {
	t := &Theme{Width: 80, Height: 24}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.HeaderMeta = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.Hint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.UserLabel = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.AssistantLabel = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)
	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.Body = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)
	t.Pending = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		PaddingLeft(2)
	t.Source = lipgloss.NewStyle().
		Foreground(TextSecondary).
		PaddingLeft(4)

	t.Chip = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Cyan).
		Padding(0, 1)
	t.Attachment = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(Overlay).
		PaddingLeft(1)
	t.InputBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.PickerBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.PickerItem = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.PickerCurrent = lipgloss.NewStyle().
		Foreground(Purple).
		Background(SelectionBg).
		Bold(true)

	t.NoticeError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.NoticeWarning = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.NoticeSuccess = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.NoticeStatus = lipgloss.NewStyle().Foreground(TextSecondary)
}

// SetSize records the terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// ContentWidth is the usable width inside the frame, never below 20.
func (t *Theme) ContentWidth() int {
	if t.Width-4 < 20 {
		return 20
	}
	return t.Width - 4
}

// =============================================================================
// SEMANTIC HELPERS
// =============================================================================

// NoticeStyle returns the style for a notice kind.
func (t *Theme) NoticeStyle(kind notice.Kind) lipgloss.Style {
	switch kind {
	case notice.KindError:
		return t.NoticeError
	case notice.KindWarning:
		return t.NoticeWarning
	case notice.KindSuccess:
		return t.NoticeSuccess
	default:
		return t.NoticeStatus
	}
}

// NoticeIndicator returns the text marker for a notice kind.
func NoticeIndicator(kind notice.Kind) string {
	switch kind {
	case notice.KindError:
		return StatusIndicators.Error
	case notice.KindWarning:
		return StatusIndicators.Warning
	case notice.KindSuccess:
		return StatusIndicators.Success
	default:
		return StatusIndicators.Info
	}
}

// UploadIndicator returns the text marker for an upload state.
func UploadIndicator(status model.UploadStatus) string {
	switch status {
	case model.UploadStatusSuccess:
		return StatusIndicators.Success
	case model.UploadStatusError:
		return StatusIndicators.Error
	default:
		return StatusIndicators.Pending
	}
}

// UploadStyle colors an attachment line by its upload state.
func (t *Theme) UploadStyle(status model.UploadStatus) lipgloss.Style {
	switch status {
	case model.UploadStatusSuccess:
		return t.Attachment.Foreground(Emerald)
	case model.UploadStatusError:
		return t.Attachment.Foreground(Rose)
	default:
		return t.Attachment.Foreground(Amber)
	}
}
