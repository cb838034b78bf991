// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the polaris chat backend.
//
// All endpoints live under a configured base URL and authenticate with a
// bearer token passed through from configuration.
//
// # Endpoints
//
//   - ListChats, CreateChat, UpdateChat, DeleteChat: project chat records
//   - GetHistory: paginated question/answer records of one chat
//   - SendMessage: posts a question and streams the reply as SSE frames
//   - GetReferenceMapping: message id to referenced chats lookup
//   - UploadFile, DeleteFile: attachment storage
//
// # Transport
//
// Requests are paced by a token-bucket limiter and retried with exponential
// backoff on 429 and 5xx responses. Non-idempotent requests are retried only
// when the server rejected them before processing (429). Response bodies are
// read through a size limit.
//
// # Errors
//
// HTTP failures surface as *APIError, which matches the sentinels
// ErrUnauthorized, ErrNotFound, ErrRateLimited and ErrServer through
// errors.Is. Streams that fail after emitting text return *StreamError
// carrying the partial content.
package api
