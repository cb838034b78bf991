// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/grayphite/polaris-frontend-sub000/internal/config"
)

const redacted = "********"

// ConfigPath returns the config file named on the command line, or the
// default location.
func ConfigPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPath()
}

// LoadConfig loads the config file selected by args and applies the
// command-line overrides on top of it.
func LoadConfig(args Args) (*config.Config, string, error) {
	path, err := ConfigPath(args)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, path, err
	}
	if args.ProjectID != "" {
		cfg.Identity.ProjectID = args.ProjectID
	}
	if args.Debug {
		cfg.Log.Level = "debug"
	}
	return cfg, path, nil
}

// HandleConfig runs "polaris config <action>".
func HandleConfig(w io.Writer, args Args) error {
	path, err := ConfigPath(args)
	if err != nil {
		return err
	}
	if args.ConfigAction == "path" {
		fmt.Fprintln(w, path)
		return nil
	}

	cfg, _, err := LoadConfig(args)
	if err != nil {
		return err
	}

	switch args.ConfigAction {
	case "validate":
		fmt.Fprintf(w, "%s: ok\n", path)
		return nil
	default:
		shown := cfg.Clone()
		if shown.API.Token != "" {
			shown.API.Token = redacted
		}
		fmt.Fprintf(w, "# effective configuration (%s)\n", path)
		if err := toml.NewEncoder(w).Encode(shown); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		return nil
	}
}
