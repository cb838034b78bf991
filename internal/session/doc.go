// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session composes the conversation engine for one open chat.
//
// A Session owns the timeline, the attachment list, the reference chips, the
// chat picker and the stream consumer, and drives the send state machine:
//
//	Idle -> Validating -> OptimisticInsert -> Streaming -> Reconciling -> Idle
//
// Any failure returns to Idle. All methods run on the Bubble Tea update loop;
// network work happens in returned commands whose results come back through
// Update. Results carry the generation they were issued under, so anything
// that arrives after navigating to another chat is dropped.
//
// # Usage
//
//	s := session.New(client, scratch, cfg, session.IdentityFromConfig(cfg.Identity), logger)
//	cmd := s.Open(chat)
//	...
//	s.SetCompose("Hello", 5)
//	cmd, err := s.Submit()
//	if errors.Is(err, session.ErrUploadsPending) {
//	    // keep the compose text, tell the user
//	}
package session
