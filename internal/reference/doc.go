// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reference manages the set of other chats supplied as context to a
// message.
//
// Two provenances are merged: persisted references, which the backend stored
// against the most recent message of the chat, and manual references, which
// the user picked for the next send. Persisted entries win on id collisions.
//
// The package also hosts the "@" mention trigger and the debounced chat
// picker that feeds manual selections.
package reference
