// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete polaris configuration.
type Config struct {
	API      APIConfig      `toml:"api"`
	Timeline TimelineConfig `toml:"timeline"`
	Stream   StreamConfig   `toml:"stream"`
	Picker   PickerConfig   `toml:"picker"`
	Uploads  UploadsConfig  `toml:"uploads"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
	Identity IdentityConfig `toml:"identity"`
}

// APIConfig holds backend transport settings.
type APIConfig struct {
	BaseURL           string  `toml:"base_url"`
	Token             string  `toml:"token"`
	TimeoutSecs       int     `toml:"timeout_secs"`
	MaxRetries        int     `toml:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// TimelineConfig controls history pagination.
type TimelineConfig struct {
	PageSize         int `toml:"page_size"`
	NearTopThreshold int `toml:"near_top_threshold"`
}

// StreamConfig controls the progressive reveal of a streamed reply.
type StreamConfig struct {
	RevealIntervalMs int `toml:"reveal_interval_ms"`
	CharsPerTick     int `toml:"chars_per_tick"`
}

// PickerConfig controls the referenced-chat picker.
type PickerConfig struct {
	DebounceMs     int `toml:"debounce_ms"`
	SearchPageSize int `toml:"search_page_size"`
	RecentLimit    int `toml:"recent_limit"`
}

// UploadsConfig holds attachment validation rules.
type UploadsConfig struct {
	MaxPDFPages   int      `toml:"max_pdf_pages"`
	MaxFileMB     int      `toml:"max_file_mb"`
	DocumentTypes []string `toml:"document_types"`
	ImageTypes    []string `toml:"image_types"`
}

// StorageConfig selects the scratch store backend.
type StorageConfig struct {
	Backend string `toml:"backend"` // "file" or "sqlite"
	Path    string `toml:"path"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level       string `toml:"level"`
	File        string `toml:"file"`
	Development bool   `toml:"development"`
}

// IdentityConfig is the acting user, injected into the session explicitly.
type IdentityConfig struct {
	UserID      string `toml:"user_id"`
	DisplayName string `toml:"display_name"`
	ProjectID   string `toml:"project_id"`
	ProjectRole string `toml:"project_role"`
}

// Timeout returns the API request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RevealInterval returns the reveal tick period.
func (c StreamConfig) RevealInterval() time.Duration {
	return time.Duration(c.RevealIntervalMs) * time.Millisecond
}

// Debounce returns the picker search debounce delay.
func (c PickerConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// MaxFileBytes returns the per-file size ceiling, or 0 when unlimited.
func (c UploadsConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) * 1024 * 1024
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with all default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "http://localhost:8000/api/v1",
			TimeoutSecs:       120,
			MaxRetries:        3,
			RequestsPerSecond: 10,
		},
		Timeline: TimelineConfig{
			PageSize:         20,
			NearTopThreshold: 3,
		},
		Stream: StreamConfig{
			RevealIntervalMs: 33,
			CharsPerTick:     3,
		},
		Picker: PickerConfig{
			DebounceMs:     300,
			SearchPageSize: 20,
			RecentLimit:    10,
		},
		Uploads: UploadsConfig{
			MaxPDFPages: 100,
			MaxFileMB:   25,
			DocumentTypes: []string{
				"application/pdf",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"text/plain",
				"text/csv",
				"text/markdown",
			},
			ImageTypes: []string{
				"image/png",
				"image/jpeg",
				"image/gif",
				"image/webp",
			},
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the polaris config directory (~/.polaris).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".polaris"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens the config file to 0600 since it may hold a token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.polaris/config.toml, falling back to
// defaults when the file does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file. A missing file
// yields defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg and refills zero values from defaults.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if cfg.API.RequestsPerSecond == 0 {
		cfg.API.RequestsPerSecond = defaults.API.RequestsPerSecond
	}

	if cfg.Timeline.PageSize == 0 {
		cfg.Timeline.PageSize = defaults.Timeline.PageSize
	}
	if cfg.Timeline.NearTopThreshold == 0 {
		cfg.Timeline.NearTopThreshold = defaults.Timeline.NearTopThreshold
	}

	if cfg.Stream.RevealIntervalMs == 0 {
		cfg.Stream.RevealIntervalMs = defaults.Stream.RevealIntervalMs
	}
	if cfg.Stream.CharsPerTick == 0 {
		cfg.Stream.CharsPerTick = defaults.Stream.CharsPerTick
	}

	if cfg.Picker.DebounceMs == 0 {
		cfg.Picker.DebounceMs = defaults.Picker.DebounceMs
	}
	if cfg.Picker.SearchPageSize == 0 {
		cfg.Picker.SearchPageSize = defaults.Picker.SearchPageSize
	}
	if cfg.Picker.RecentLimit == 0 {
		cfg.Picker.RecentLimit = defaults.Picker.RecentLimit
	}

	if cfg.Uploads.MaxPDFPages == 0 {
		cfg.Uploads.MaxPDFPages = defaults.Uploads.MaxPDFPages
	}
	if len(cfg.Uploads.DocumentTypes) == 0 {
		cfg.Uploads.DocumentTypes = defaults.Uploads.DocumentTypes
	}
	if len(cfg.Uploads.ImageTypes) == 0 {
		cfg.Uploads.ImageTypes = defaults.Uploads.ImageTypes
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# polaris configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("invalid URL '%s'", c.API.BaseURL),
		})
	}
	if c.API.TimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "api.timeout_secs",
			Message: fmt.Sprintf("must be at least 1, got %d", c.API.TimeoutSecs),
		})
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "api.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.API.MaxRetries),
		})
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "api.requests_per_second",
			Message: "must be non-negative",
		})
	}

	if c.Timeline.PageSize < 1 || c.Timeline.PageSize > 200 {
		errs = append(errs, ValidationError{
			Field:   "timeline.page_size",
			Message: fmt.Sprintf("must be 1-200, got %d", c.Timeline.PageSize),
		})
	}
	if c.Timeline.NearTopThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "timeline.near_top_threshold",
			Message: "must be non-negative",
		})
	}

	if c.Stream.RevealIntervalMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "stream.reveal_interval_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Stream.RevealIntervalMs),
		})
	}
	if c.Stream.CharsPerTick < 1 {
		errs = append(errs, ValidationError{
			Field:   "stream.chars_per_tick",
			Message: fmt.Sprintf("must be positive, got %d", c.Stream.CharsPerTick),
		})
	}

	if c.Picker.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "picker.debounce_ms",
			Message: "must be non-negative",
		})
	}

	if c.Uploads.MaxPDFPages < 1 {
		errs = append(errs, ValidationError{
			Field:   "uploads.max_pdf_pages",
			Message: fmt.Sprintf("must be positive, got %d", c.Uploads.MaxPDFPages),
		})
	}
	if c.Uploads.MaxFileMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "uploads.max_file_mb",
			Message: "must be non-negative",
		})
	}

	validBackends := map[string]bool{"file": true, "sqlite": true}
	if !validBackends[strings.ToLower(c.Storage.Backend)] {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite", c.Storage.Backend),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies POLARIS_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("POLARIS_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("POLARIS_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("POLARIS_PROJECT"); v != "" {
		c.Identity.ProjectID = v
	}
	if v := os.Getenv("POLARIS_USER_ID"); v != "" {
		c.Identity.UserID = v
	}
	if v := os.Getenv("POLARIS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("POLARIS_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("POLARIS_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Timeline.PageSize = n
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Uploads.DocumentTypes = append([]string(nil), c.Uploads.DocumentTypes...)
	out.Uploads.ImageTypes = append([]string(nil), c.Uploads.ImageTypes...)
	return &out
}

// =============================================================================
// GLOBAL INSTANCE
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
