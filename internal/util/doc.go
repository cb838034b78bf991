// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the engine.
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: truncation by terminal display width
//   - SpliceRunes: rune-indexed text editing used for caret-relative edits
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
