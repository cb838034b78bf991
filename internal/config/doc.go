// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for polaris.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Backend base URL, bearer token and transport pacing
//   - TimelineConfig, StreamConfig, PickerConfig, UploadsConfig: engine tuning
//   - StorageConfig: Scratch store backend selection
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (POLARIS_*)
//   - ~/.polaris/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Watch for edits:
//
//	stop, err := config.Watch(path, func(cfg *config.Config) { ... }, logger)
package config
