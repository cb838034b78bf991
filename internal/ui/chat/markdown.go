// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer renders finished assistant replies with glamour and
// caches the output per message until its text or the width changes.
type markdownRenderer struct {
	style string
	width int
	term  *glamour.TermRenderer
	cache map[string]renderedBlock
}

type renderedBlock struct {
	source string
	out    string
}

func newMarkdownRenderer(style string) *markdownRenderer {
	return &markdownRenderer{style: style, width: -1}
}

// Render returns the rendered reply, or the source itself if glamour fails.
func (r *markdownRenderer) Render(id, source string, width int) string {
	if width != r.width {
		r.reset(width)
	}
	if b, ok := r.cache[id]; ok && b.source == source {
		return b.out
	}

	out := source
	if r.term != nil {
		if rendered, err := r.term.Render(source); err == nil {
			out = strings.Trim(rendered, "\n")
		}
	}
	r.cache[id] = renderedBlock{source: source, out: out}
	return out
}

func (r *markdownRenderer) reset(width int) {
	r.width = width
	r.cache = make(map[string]renderedBlock)

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if r.style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(r.style))
	}
	// a nil renderer falls back to plain text
	r.term, _ = glamour.NewTermRenderer(opts...)
}
