// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the polaris command line and implements the commands
// that run without the terminal UI.
//
// Usage:
//
//	polaris [--chat ID] [--project ID] [--config PATH] [--debug]
//	polaris config [path|show|validate]
//	polaris version
//	polaris help
package cli
