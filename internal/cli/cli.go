// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command is the top-level action selected on the command line.
type Command int

const (
	// CmdTUI opens a chat in the terminal UI.
	CmdTUI Command = iota
	// CmdConfig inspects the configuration.
	CmdConfig
	// CmdVersion prints version information.
	CmdVersion
	// CmdHelp prints usage.
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "chat"
	}
}

// Args holds the parsed command line.
type Args struct {
	Command Command

	// ConfigPath overrides ~/.polaris/config.toml.
	ConfigPath string
	// ProjectID overrides the configured project.
	ProjectID string
	// ChatID opens an existing chat; empty creates a new one.
	ChatID string
	// Debug forces debug logging.
	Debug bool
	// Inline renders in the main screen instead of the alternate one.
	Inline bool

	// ConfigAction is the config subcommand: path, show or validate.
	ConfigAction string
}

var (
	flagAliases = map[string]string{
		"c": "chat",
		"p": "project",
		"d": "debug",
		"h": "help",
		"v": "version",
	}
	boolFlags  = []string{"debug", "inline", "help", "version"}
	knownFlags = []string{"chat", "project", "config", "debug", "inline", "help", "version"}
)

const usageText = `polaris - terminal client for polaris conversations

Usage:
  polaris [flags]                 open a chat
  polaris config [path|show|validate]
  polaris version
  polaris help

Flags:
  -c, --chat ID       open an existing chat (default: start a new one)
  -p, --project ID    project to work in (default: identity.project_id)
      --config PATH   config file (default: ~/.polaris/config.toml)
  -d, --debug         debug logging
      --inline        do not switch to the alternate screen

Environment:
  POLARIS_API_URL, POLARIS_API_TOKEN, POLARIS_PROJECT, POLARIS_USER_ID,
  POLARIS_LOG_LEVEL, POLARIS_STORAGE, POLARIS_PAGE_SIZE
`

// Parse parses the arguments after the program name.
func Parse(argv []string) (Args, error) {
	p := NewArgParser(argv, flagAliases, boolFlags)

	if unknown := p.Unknown(knownFlags...); len(unknown) > 0 {
		sort.Strings(unknown)
		return Args{}, &UsageError{Message: "unknown flag " + strings.Join(unknown, ", ")}
	}

	args := Args{
		ConfigPath: p.Flag("config"),
		ProjectID:  p.Flag("project"),
		ChatID:     p.Flag("chat"),
		Debug:      p.BoolFlag("debug"),
		Inline:     p.BoolFlag("inline"),
	}
	for _, name := range []string{"chat", "project", "config"} {
		if p.BoolFlag(name) {
			return Args{}, &UsageError{Message: "--" + name + " needs a value"}
		}
	}

	switch {
	case p.BoolFlag("help"):
		args.Command = CmdHelp
		return args, nil
	case p.BoolFlag("version"):
		args.Command = CmdVersion
		return args, nil
	}

	switch sub := p.Subcommand(); sub {
	case "", "chat":
		args.Command = CmdTUI
	case "config":
		args.Command = CmdConfig
		args.ConfigAction = p.Positional(1)
		if args.ConfigAction == "" {
			args.ConfigAction = "show"
		}
		switch args.ConfigAction {
		case "path", "show", "validate":
		default:
			return Args{}, &UsageError{Message: "polaris config [path|show|validate]"}
		}
	case "version":
		args.Command = CmdVersion
	case "help":
		args.Command = CmdHelp
	default:
		return Args{}, &UsageError{Message: fmt.Sprintf("unknown command %q", sub)}
	}
	return args, nil
}

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "polaris %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}
