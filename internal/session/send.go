// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// streamOpenedMsg reports whether the send request was accepted.
type streamOpenedMsg struct {
	gen         int
	assistantID string
	events      <-chan api.StreamEvent
	err         error
}

// streamEventMsg carries one frame, or closed when the channel ended.
type streamEventMsg struct {
	gen         int
	assistantID string
	event       api.StreamEvent
	events      <-chan api.StreamEvent
	closed      bool
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates the compose box and sends it. On a validation error
// nothing changes and no network call is made.
func (s *Session) Submit() (tea.Cmd, error) {
	if s.chat.ID == "" {
		return nil, ErrNoChat
	}

	prev := s.phase
	s.phase = PhaseValidating
	if err := s.validate(); err != nil {
		// a rejected submit leaves any send in flight untouched
		s.phase = prev
		return nil, err
	}
	question := strings.TrimSpace(s.compose)

	s.phase = PhaseOptimisticInsert
	now := s.now()
	files := s.attachments.Ready()
	fileIDs := s.attachments.ReadyIDs()
	chips := s.references.Chips()
	refIDs := s.references.IDs()

	user := &model.Message{
		ID:               model.UserPlaceholderID(now),
		Role:             model.RoleUser,
		Timestamp:        now,
		Content:          question,
		Attachments:      files,
		FileReferenceIDs: fileIDs,
		ChatReferences:   chips,
		Author:           s.identity.Author(),
	}
	assistant := &model.Message{
		ID:        model.AssistantPlaceholderID(now),
		Role:      model.RoleAssistant,
		Timestamp: now,
	}
	s.timeline.Append(user, assistant)

	s.compose, s.caret = "", 0
	s.attachments.Clear()
	s.picker.Close()
	s.logWrite("unmark empty chat", s.scratch.UnmarkEmptyChat(s.projectID(), s.chat.ID))

	s.flushStream()
	s.stream.Begin(assistant.ID)
	s.pending = &pendingSend{userID: user.ID, assistantID: assistant.ID}
	s.phase = PhaseStreaming

	s.logger.Debug("sending message",
		zap.String("chat_id", s.chat.ID),
		zap.Int("files", len(fileIDs)),
		zap.Int("references", len(refIDs)))

	req := api.SendRequest{
		Question:             question,
		FileReferenceIDs:     fileIDs,
		FileReferenceDetails: files,
		ReferencedChatIDs:    refIDs,
	}
	backend, ctx, gen, chatID, assistantID := s.backend, s.ctx, s.gen, s.chat.ID, assistant.ID
	return func() tea.Msg {
		events, err := backend.SendMessage(ctx, chatID, req)
		return streamOpenedMsg{gen: gen, assistantID: assistantID, events: events, err: err}
	}, nil
}

// validate checks the compose box in a fixed order: text, uploads, stream.
func (s *Session) validate() error {
	switch {
	case strings.TrimSpace(s.compose) == "":
		return ErrEmptyInput
	case s.attachments.HasUploading():
		return ErrUploadsPending
	case s.Busy():
		return ErrStreamActive
	}
	return nil
}

func waitFrame(gen int, assistantID string, events <-chan api.StreamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		return streamEventMsg{gen: gen, assistantID: assistantID, event: ev, events: events, closed: !ok}
	}
}

// current reports whether a stream result belongs to the send in flight.
func (s *Session) current(gen int, assistantID string) bool {
	return gen == s.gen && s.pending != nil && s.pending.assistantID == assistantID
}

func (s *Session) handleOpened(msg streamOpenedMsg) tea.Cmd {
	if !s.current(msg.gen, msg.assistantID) {
		return nil
	}
	if msg.err != nil {
		s.failSend(msg.err)
		return nil
	}
	return waitFrame(msg.gen, msg.assistantID, msg.events)
}

func (s *Session) handleFrame(msg streamEventMsg) tea.Cmd {
	if !s.current(msg.gen, msg.assistantID) {
		return nil
	}
	if msg.closed {
		s.failSend(&api.StreamError{Err: io.ErrUnexpectedEOF})
		return nil
	}

	ev := msg.event
	switch {
	case ev.Err != nil:
		s.failSend(ev.Err)
		return nil
	case ev.Complete != nil:
		return s.reconcile(*ev.Complete)
	default:
		return tea.Batch(s.stream.Append(ev.Delta), waitFrame(msg.gen, msg.assistantID, msg.events))
	}
}

// failSend drops the assistant placeholder and keeps the user message.
func (s *Session) failSend(err error) {
	p := s.pending
	s.pending = nil
	s.stream.Abort()
	s.timeline.Remove(p.assistantID)
	s.phase = PhaseIdle

	s.logger.Warn("send failed",
		zap.String("chat_id", s.chat.ID),
		zap.Error(err))
	s.notices.Error(describeSendError(err))
}

func describeSendError(err error) string {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return "Message not sent: session expired, sign in again"
	case errors.Is(err, api.ErrRateLimited):
		return "Message not sent: too many requests, try again shortly"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return "Message not sent: " + apiErr.Message
	case errors.Is(err, api.ErrStreamFailed):
		return fmt.Sprintf("Reply failed: %v", errors.Unwrap(err))
	default:
		return "Message not sent: connection lost"
	}
}

// =============================================================================
// RECONCILE
// =============================================================================

// reconcile swaps the placeholders for the server's ids and records what
// the server persisted.
func (s *Session) reconcile(done api.StreamComplete) tea.Cmd {
	s.phase = PhaseReconciling
	p := s.pending
	s.pending = nil
	rec := done.Message

	if rec.ID == "" {
		// nothing to key on; keep the placeholders and finish the reveal
		s.logger.Warn("completion without record id", zap.String("chat_id", s.chat.ID))
		cmd := s.stream.Complete(rec.Answer, rec.Sources)
		s.syncStreamContent()
		s.phase = PhaseIdle
		return cmd
	}

	refs := rec.References()
	chips := make([]model.ChatReference, 0, len(refs))
	for _, r := range refs {
		chips = append(chips, r.ToChatReference())
	}

	userID, assistantID := model.UserMessageID(rec.ID), model.AssistantMessageID(rec.ID)
	s.timeline.Replace(p.userID, func(m *model.Message) {
		m.ID = userID
		m.RecordID = rec.ID
		if !rec.CreatedAt.IsZero() {
			m.Timestamp = rec.CreatedAt
		}
		if len(refs) > 0 {
			m.ChatReferences = chips
		}
		if len(rec.FileReferenceDetails) > 0 {
			m.Attachments = append([]model.FileAttachment(nil), rec.FileReferenceDetails...)
		}
	})
	s.timeline.Replace(p.assistantID, func(m *model.Message) {
		m.ID = assistantID
		m.RecordID = rec.ID
		if !rec.CreatedAt.IsZero() {
			m.Timestamp = rec.CreatedAt
		}
		m.Sources = append([]model.SourceCitation(nil), rec.Sources...)
	})

	s.stream.Rekey(p.assistantID, assistantID)
	cmd := s.stream.Complete(rec.Answer, rec.Sources)
	s.syncStreamContent()

	if done.ChatTitle != "" && (done.IsFirstMessage || s.chat.Title() == model.DefaultChatTitle) {
		s.applyTitle(done.ChatTitle)
	}
	s.references.SetPersisted(refs)
	s.references.ClearManual()
	s.logWrite("store last message id", s.scratch.SetLastMessageID(s.chat.ID, rec.ID))
	s.chat.MessageCount++

	s.logger.Debug("send reconciled",
		zap.String("chat_id", s.chat.ID),
		zap.String("record_id", rec.ID),
		zap.Int("references", len(refs)))

	s.phase = PhaseIdle
	return cmd
}

// flushStream writes the full text of a completed reply that is still being
// revealed into its timeline entry. Begin drops the pending reveal ticks, so
// without this the earlier reply would keep its partial text.
func (s *Session) flushStream() {
	if id, text, ok := s.stream.Flush(); ok {
		s.timeline.SetContent(id, text)
	}
}

// syncStreamContent copies the revealed text into the timeline entry.
func (s *Session) syncStreamContent() {
	st := s.stream.State()
	if st.StreamingMessageID == "" {
		return
	}
	if msg, _ := s.timeline.Find(st.StreamingMessageID); msg != nil && msg.Content != st.DisplayedText {
		s.timeline.SetContent(st.StreamingMessageID, st.DisplayedText)
	}
}
