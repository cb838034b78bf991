// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the small client-side scratch store for polaris.
//
// The scratch store is a string key/value map that survives restarts. It
// holds only what the conversation engine must remember between sessions:
//
//   - last_message_id:<chat>  id of the newest message sent in a chat
//   - title:<chat>            provisional title from the first reply
//   - empty_chats:<project>   chats created but never sent to
//   - recent_chats:<project>  recently opened chats for the picker
//
// # Backends
//
//   - FileStore: one JSON document written atomically with fsync
//   - SQLiteStore: a single table in a pure Go SQLite database
//   - MemoryStore: process-local map, used by tests
//
// Scratch wraps any Store with the typed helpers above. Scratch data is
// advisory: read failures are logged and treated as absent.
package storage
