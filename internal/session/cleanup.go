// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxParallelDeletes bounds concurrent chat deletions during cleanup.
const maxParallelDeletes = 4

// chatsDeletedMsg reports an empty-chat cleanup.
type chatsDeletedMsg struct {
	deleted []string
	err     error
}

// renameDoneMsg reports a background rename.
type renameDoneMsg struct {
	chatID string
	title  string
	err    error
}

// emptyChatsExcept lists the chats marked empty in the current project,
// skipping keep.
func (s *Session) emptyChatsExcept(keep string) []string {
	var out []string
	for _, id := range s.scratch.EmptyChats(s.projectID()) {
		if id != keep {
			out = append(out, id)
		}
	}
	return out
}

// cleanupEmptyChats deletes every chat left empty, except the one now open.
// This covers the chat just left and any left behind by an earlier run.
func (s *Session) cleanupEmptyChats(keep string) tea.Cmd {
	ids := s.emptyChatsExcept(keep)
	if len(ids) == 0 {
		return nil
	}
	backend := s.backend
	// deletions outlive navigation
	ctx := context.WithoutCancel(s.ctx)
	return func() tea.Msg {
		deleted, err := deleteChats(ctx, backend, ids)
		return chatsDeletedMsg{deleted: deleted, err: err}
	}
}

// deleteChats deletes ids concurrently and returns the ones that succeeded.
func deleteChats(ctx context.Context, backend Backend, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	results := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(maxParallelDeletes)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = backend.DeleteChat(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var (
		deleted []string
		errs    []error
	)
	for i, err := range results {
		if err != nil {
			errs = append(errs, fmt.Errorf("delete chat %s: %w", ids[i], err))
			continue
		}
		deleted = append(deleted, ids[i])
	}
	return deleted, errors.Join(errs...)
}

func (s *Session) forgetDeleted(ids []string) {
	project := s.projectID()
	for _, id := range ids {
		s.logWrite("unmark empty chat", s.scratch.UnmarkEmptyChat(project, id))
		s.logWrite("forget recent chat", s.scratch.ForgetRecentChat(project, id))
		s.logWrite("clear provisional title", s.scratch.ClearProvisionalTitle(id))
	}
}

func (s *Session) handleDeleted(msg chatsDeletedMsg) {
	s.forgetDeleted(msg.deleted)
	if msg.err != nil {
		// markers stay so the next navigation retries
		s.logger.Warn("empty chat cleanup failed", zap.Error(msg.err))
	}
}

func (s *Session) handleRenamed(msg renameDoneMsg) {
	if msg.err != nil {
		s.logger.Warn("rename failed",
			zap.String("chat_id", msg.chatID),
			zap.String("title", msg.title),
			zap.Error(msg.err))
	}
}
