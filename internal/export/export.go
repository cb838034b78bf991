// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	// Export returns the rendered transcript.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, dot included.
	FileExtension() string
}

var (
	// ErrUnknownFormat is returned by ForFormat for an unsupported name.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrEmptyTranscript is returned when there is nothing to export.
	ErrEmptyTranscript = errors.New("conversation has no messages")
)

// ForFormat returns the exporter for a format name. An empty name selects
// Markdown.
func ForFormat(name string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, name)
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is a snapshot of one chat.
type Transcript struct {
	ChatID     string           `json:"chat_id"`
	ProjectID  string           `json:"project_id,omitempty"`
	Title      string           `json:"title"`
	ExportedAt time.Time        `json:"exported_at"`
	Messages   []*model.Message `json:"messages"`
}

// NewTranscript copies the chat's messages. Assistant entries that have no
// text yet are left out, so a reply still being generated is not exported
// half way.
func NewTranscript(chat model.Chat, msgs []*model.Message, now time.Time) *Transcript {
	t := &Transcript{
		ChatID:     chat.ID,
		ProjectID:  chat.ProjectID,
		Title:      chat.Title(),
		ExportedAt: now,
		Messages:   make([]*model.Message, 0, len(msgs)),
	}
	for _, m := range msgs {
		if m.Role == model.RoleAssistant && strings.TrimSpace(m.Content) == "" {
			continue
		}
		t.Messages = append(t.Messages, m.Clone())
	}
	return t
}

// =============================================================================
// FILES
// =============================================================================

// WriteFile renders t into dir and returns the path written. The file name
// carries the chat title and the export time.
func WriteFile(t *Transcript, exp Exporter, dir string) (string, error) {
	if t == nil || len(t.Messages) == 0 {
		return "", ErrEmptyTranscript
	}
	content, err := exp.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	name := fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(t.Title),
		t.ExportedAt.Format("20060102_150405"),
		exp.FileExtension())
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// sanitizeFilename replaces characters that are invalid in file names on
// any platform.
func sanitizeFilename(s string) string {
	const maxLen = 50
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "chat"
	}
	return b.String()
}
