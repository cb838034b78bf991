// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the conversation engine.
//
// # Key Types
//
//   - Message: one timeline entry (user question or assistant reply)
//   - FileAttachment: a file queued for, or attached to, a message
//   - ChatReference: another conversation supplied as context
//   - RawReference / PersistedReference: legacy reference shapes and their normal form
//   - Chat, Pagination, HistoryRecord: backend records
//
// # Usage
//
//	msgs := model.ExpandRecord(record)
//	model.SortMessages(msgs)
package model
