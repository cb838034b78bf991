// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attachment owns the per-file upload lifecycle of the compose box.
//
// Files are validated locally (content-sniffed MIME type against a per-kind
// allow-list, size ceiling, PDF page ceiling) before any network call.
// Accepted files get an "uploading" placeholder keyed by a temporary id; the
// upload result replaces the placeholder in place or marks it failed. Results
// for placeholders that were removed in the meantime are dropped by id.
package attachment
