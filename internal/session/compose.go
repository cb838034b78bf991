// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/grayphite/polaris-frontend-sub000/internal/attachment"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/reference"
	"github.com/grayphite/polaris-frontend-sub000/internal/timeline"
	"github.com/grayphite/polaris-frontend-sub000/internal/util"
)

// =============================================================================
// COMPOSE BOX
// =============================================================================

// SetCompose records an edit of the compose box. An "@" token reaching the
// caret opens the inline picker on its query; losing the token closes it.
func (s *Session) SetCompose(text string, caret int) tea.Cmd {
	s.compose = text
	s.caret = clampCaret(text, caret)

	trig, ok := s.references.UpdateTrigger(s.compose, s.caret)
	if !ok {
		if s.picker.Inline() {
			s.picker.Close()
		}
		return nil
	}
	if !s.picker.IsOpen() {
		s.picker.Open(true, s.references.IDs())
	}
	return s.picker.SetQuery(trig.Query, s.references.IDs())
}

func clampCaret(text string, caret int) int {
	n := util.RuneLen(text)
	switch {
	case caret < 0:
		return 0
	case caret > n:
		return n
	}
	return caret
}

// OpenPicker shows the picker without an inline mention.
func (s *Session) OpenPicker() {
	s.picker.Open(false, s.references.IDs())
}

// SearchPicker updates the query of a picker opened with OpenPicker.
func (s *Session) SearchPicker(query string) tea.Cmd {
	return s.picker.SetQuery(query, s.references.IDs())
}

// ClosePicker hides the picker.
func (s *Session) ClosePicker() {
	s.picker.Close()
}

// SelectReference adds a picked chat. When picked from an inline mention the
// "@" token is removed from the compose box and the picker closes.
func (s *Session) SelectReference(c reference.Candidate) {
	inline := s.picker.Inline()
	s.compose, s.caret = s.references.Select(c.ToChatReference(), s.compose, s.caret)
	if inline {
		s.picker.Close()
		return
	}
	// refresh exclusions so the picked chat leaves the list
	s.picker.Open(false, s.references.IDs())
}

// RemoveReference removes a chip.
func (s *Session) RemoveReference(id string) {
	s.references.Remove(id)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attach queues files. Rejected files raise a warning each and never reach
// the network.
func (s *Session) Attach(files []attachment.LocalFile, kind model.FileType) tea.Cmd {
	rejected, cmd := s.attachments.Queue(s.ctx, files, kind)
	s.warnRejected(rejected)
	return cmd
}

// Paste queues clipboard images.
func (s *Session) Paste(items []attachment.ClipboardItem) tea.Cmd {
	rejected, cmd := s.attachments.Paste(s.ctx, items)
	s.warnRejected(rejected)
	return cmd
}

// RemoveAttachment removes the attachment at index.
func (s *Session) RemoveAttachment(index int) tea.Cmd {
	return s.attachments.Remove(s.ctx, index)
}

func (s *Session) warnRejected(rejected []*attachment.Rejection) {
	for _, r := range rejected {
		s.notices.Warn(fmt.Sprintf("%s was not attached: %v", r.Filename, r.Err))
	}
}

// =============================================================================
// TIMELINE
// =============================================================================

// Scrolled asks for an older page when the view nears the top.
func (s *Session) Scrolled(sc timeline.Scroll) tea.Cmd {
	return s.timeline.LoadOlder(s.ctx, sc)
}
