// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gabriel-vasile/mimetype"

	"github.com/grayphite/polaris-frontend-sub000/internal/attachment"
	"github.com/grayphite/polaris-frontend-sub000/internal/export"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// LOCAL COMMANDS
// =============================================================================

func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// runCommand executes a slash command typed in the compose box.
func (m *Model) runCommand(line string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	notices := m.sess.Notices()

	switch name {
	case "/attach":
		return m.attach(strings.Fields(arg))

	case "/detach":
		if i, ok := m.itemIndex(arg, m.sess.Attachments().Len()); ok {
			return m.sess.RemoveAttachment(i)
		}

	case "/unref":
		chips := m.sess.References().Chips()
		if i, ok := m.itemIndex(arg, len(chips)); ok {
			m.sess.RemoveReference(chips[i].ID)
		}

	case "/rename":
		if arg == "" {
			notices.Warn("Usage: /rename <title>")
			return nil
		}
		return m.sess.Rename(arg)

	case "/export":
		return m.exportTranscript(arg)

	default:
		notices.Warn("Unknown command " + name)
	}
	return nil
}

// itemIndex parses a 1-based item number.
func (m *Model) itemIndex(arg string, n int) (int, bool) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > n {
		m.sess.Notices().Warn(fmt.Sprintf("No item %q", arg))
		return 0, false
	}
	return i - 1, true
}

// attach reads files from disk and queues them, images and documents
// separately. The content decides which is which, not the extension.
func (m *Model) attach(paths []string) tea.Cmd {
	if len(paths) == 0 {
		m.sess.Notices().Warn("Usage: /attach <path>...")
		return nil
	}

	var docs, images []attachment.LocalFile
	for _, p := range paths {
		name := filepath.Base(p)
		data, err := m.readFile(p)
		if err != nil {
			m.sess.Notices().Warn(name + " could not be read")
			continue
		}
		sniffed := mimetype.Detect(data)
		declared := mime.TypeByExtension(filepath.Ext(name))
		if declared == "" {
			declared = sniffed.String()
		}
		f := attachment.LocalFile{Name: name, MimeType: declared, Data: data}
		if strings.HasPrefix(sniffed.String(), "image/") {
			images = append(images, f)
		} else {
			docs = append(docs, f)
		}
	}

	var cmds []tea.Cmd
	if len(docs) > 0 {
		cmds = append(cmds, m.sess.Attach(docs, model.FileTypeDocument))
	}
	if len(images) > 0 {
		cmds = append(cmds, m.sess.Attach(images, model.FileTypeImage))
	}
	return tea.Batch(cmds...)
}

// exportDoneMsg reports a transcript written by /export.
type exportDoneMsg struct {
	path string
	err  error
}

// exportTranscript snapshots the timeline now and writes it in the
// background.
func (m *Model) exportTranscript(format string) tea.Cmd {
	exp, err := export.ForFormat(format)
	if err != nil {
		m.sess.Notices().Warn("Usage: /export [md|json]")
		return nil
	}
	t := export.NewTranscript(m.sess.Chat(), m.sess.Timeline().Messages(), m.now())
	if len(t.Messages) == 0 {
		m.sess.Notices().Warn("Nothing to export yet")
		return nil
	}
	dir := m.exportDir
	return func() tea.Msg {
		path, err := export.WriteFile(t, exp, dir)
		return exportDoneMsg{path: path, err: err}
	}
}

func (m *Model) handleExported(msg exportDoneMsg) {
	if msg.err != nil {
		m.sess.Notices().Error("Export failed: " + msg.err.Error())
		return
	}
	m.sess.Notices().Success("Saved " + msg.path)
}
