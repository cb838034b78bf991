// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes the transcript as Markdown with a YAML
// frontmatter block.
type MarkdownExporter struct{}

// Export renders t.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("transcript is nil")
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(t.Title))
	fmt.Fprintf(&sb, "chat: %s\n", t.ChatID)
	if t.ProjectID != "" {
		fmt.Fprintf(&sb, "project: %s\n", t.ProjectID)
	}
	fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
	fmt.Fprintf(&sb, "exported: %s\n", t.ExportedAt.Format(time.RFC3339))
	sb.WriteString("generator: polaris\n")
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title))

	for i, msg := range t.Messages {
		if msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg))
		} else {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg), msg.Timestamp.Format("2006-01-02 15:04"))
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if ctx := contextLines(msg); ctx != "" {
			sb.WriteString(ctx)
			sb.WriteString("\n")
		}

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string { return ".md" }

// roleLabel names the author of msg.
func roleLabel(msg *model.Message) string {
	if msg.Role == model.RoleUser && msg.Author != nil && msg.Author.DisplayName != "" {
		return escapeMarkdown(msg.Author.DisplayName)
	}
	return msg.Role.DisplayName()
}

// contextLines lists references, attachments and citations.
func contextLines(msg *model.Message) string {
	var sb strings.Builder
	if len(msg.ChatReferences) > 0 {
		titles := make([]string, 0, len(msg.ChatReferences))
		for _, ref := range msg.ChatReferences {
			title := ref.Title
			if title == "" {
				title = ref.ID
			}
			titles = append(titles, "@"+escapeMarkdown(title))
		}
		fmt.Fprintf(&sb, "- **References**: %s\n", strings.Join(titles, ", "))
	}
	for _, f := range msg.Attachments {
		fmt.Fprintf(&sb, "- **Attachment**: %s\n", escapeMarkdown(f.Filename))
	}
	for i, src := range msg.Sources {
		label := src.Title
		if label == "" {
			label = src.DocumentID
		}
		if src.URL != "" {
			fmt.Fprintf(&sb, "- [%d] [%s](%s)\n", i+1, escapeMarkdown(label), src.URL)
		} else {
			fmt.Fprintf(&sb, "- [%d] %s\n", i+1, escapeMarkdown(label))
		}
	}
	return sb.String()
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes the characters that would break a heading or a
// list item.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	)
	return r.Replace(s)
}

// escapeYAML quotes a scalar that YAML would otherwise misread.
func escapeYAML(s string) string {
	if !strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") && !strings.HasPrefix(s, " ") && !strings.HasSuffix(s, " ") {
		return s
	}
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return `"` + r.Replace(s) + `"`
}
