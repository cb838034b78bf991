// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation transcript to disk.
//
// # Key Types
//
//   - Transcript: a snapshot of a chat and its settled messages
//   - Exporter: renders a transcript in one format
//
// # Supported Formats
//
//   - Markdown: human-readable, with YAML frontmatter
//   - JSON: the transcript as records, for tooling
//
// # Usage
//
//	t := export.NewTranscript(chat, sess.Timeline().Messages(), time.Now())
//	exp, err := export.ForFormat("md")
//	path, err := export.WriteFile(t, exp, ".")
package export
