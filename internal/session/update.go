// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/attachment"
	"github.com/grayphite/polaris-frontend-sub000/internal/reference"
	"github.com/grayphite/polaris-frontend-sub000/internal/stream"
	"github.com/grayphite/polaris-frontend-sub000/internal/timeline"
)

// Update routes a result message to the component that issued it. Messages
// the session does not own are ignored.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case streamOpenedMsg:
		return s.handleOpened(msg)

	case streamEventMsg:
		return s.handleFrame(msg)

	case stream.TickMsg:
		cmd, changed := s.stream.Update(msg)
		if changed {
			s.syncStreamContent()
		}
		return cmd

	case timeline.LoadedMsg:
		s.handleLoaded(msg)

	case attachment.UploadDoneMsg, attachment.DeleteDoneMsg:
		if res := s.attachments.Update(msg); res.Err != nil {
			s.notices.Error(res.Err.Error())
		}

	case reference.MappingMsg:
		// a failed mapping fetch keeps the chips; not worth a notice
		_, _ = s.references.Update(msg)

	case reference.DebounceMsg, reference.SearchResultMsg:
		cmd, err := s.picker.Update(s.ctx, msg)
		if err != nil {
			s.notices.Warn("Chat search failed")
		}
		return cmd

	case chatsDeletedMsg:
		s.handleDeleted(msg)

	case renameDoneMsg:
		s.handleRenamed(msg)
	}
	return nil
}

func (s *Session) handleLoaded(msg timeline.LoadedMsg) {
	res := s.timeline.Update(msg)
	if !res.Applied {
		return
	}
	if res.Err != nil {
		if res.Older {
			s.notices.Warn("Could not load older messages")
		} else {
			s.notices.Error("Could not load this conversation")
		}
		return
	}
	if !res.Older && s.timeline.Len() > 0 {
		// history proves the chat is in use even if its listing said otherwise
		s.logWrite("unmark empty chat", s.scratch.UnmarkEmptyChat(s.projectID(), s.chat.ID))
	}
	s.logger.Debug("history applied",
		zap.String("chat_id", msg.ChatID),
		zap.Int("page", msg.Page),
		zap.Bool("older", res.Older),
		zap.Int("len", s.timeline.Len()))
}
