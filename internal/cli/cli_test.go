// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser(t *testing.T) {
	p := NewArgParser(
		[]string{"config", "show", "--config", "/tmp/c.toml", "-c", "chat-1", "--debug", "extra", "--project=p9"},
		flagAliases, boolFlags,
	)

	assert.Equal(t, "config", p.Subcommand())
	assert.Equal(t, "show", p.Positional(1))
	assert.Equal(t, "extra", p.Positional(2), "boolean flags never consume a value")
	assert.Equal(t, 3, p.PositionalCount())
	assert.Equal(t, "/tmp/c.toml", p.Flag("config"))
	assert.Equal(t, "chat-1", p.Flag("chat"))
	assert.Equal(t, "p9", p.Flag("project"))
	assert.True(t, p.BoolFlag("debug"))
	assert.False(t, p.BoolFlag("inline"))
	assert.Equal(t, "fallback", p.FlagOrDefault("missing", "fallback"))
	assert.Empty(t, p.Unknown(knownFlags...))
}

func TestArgParser_DoubleDash(t *testing.T) {
	p := NewArgParser([]string{"--debug", "--", "--not-a-flag"}, nil, boolFlags)

	assert.True(t, p.BoolFlag("debug"))
	assert.Equal(t, "--not-a-flag", p.Positional(0))
	assert.False(t, p.HasFlag("not-a-flag"))
}

func TestArgParser_ExplicitBool(t *testing.T) {
	p := NewArgParser([]string{"--debug=false", "--inline=true"}, nil, boolFlags)

	assert.True(t, p.HasFlag("debug"))
	assert.False(t, p.BoolFlag("debug"))
	assert.True(t, p.BoolFlag("inline"))
}

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Args
	}{
		{
			name: "defaults to the chat view",
			argv: nil,
			want: Args{Command: CmdTUI},
		},
		{
			name: "chat flags",
			argv: []string{"-c", "chat-1", "-p", "proj", "--inline", "-d"},
			want: Args{Command: CmdTUI, ChatID: "chat-1", ProjectID: "proj", Inline: true, Debug: true},
		},
		{
			name: "config defaults to show",
			argv: []string{"config", "--config", "/x.toml"},
			want: Args{Command: CmdConfig, ConfigAction: "show", ConfigPath: "/x.toml"},
		},
		{
			name: "config path",
			argv: []string{"config", "path"},
			want: Args{Command: CmdConfig, ConfigAction: "path"},
		},
		{
			name: "version flag wins",
			argv: []string{"config", "-v"},
			want: Args{Command: CmdVersion},
		},
		{
			name: "help",
			argv: []string{"help"},
			want: Args{Command: CmdHelp},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.argv)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		msg  string
	}{
		{"unknown flag", []string{"--colour"}, "usage: unknown flag --colour"},
		{"missing value", []string{"--chat"}, "usage: --chat needs a value"},
		{"unknown command", []string{"frobnicate"}, `usage: unknown command "frobnicate"`},
		{"bad config action", []string{"config", "edit"}, "usage: polaris config [path|show|validate]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.argv)
			var usage *UsageError
			require.ErrorAs(t, err, &usage)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

// =============================================================================
// CONFIG COMMAND TESTS
// =============================================================================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestHandleConfig_ShowRedactsToken(t *testing.T) {
	t.Setenv("POLARIS_API_TOKEN", "")
	path := writeConfig(t, "[api]\nbase_url = \"https://polaris.example\"\ntoken = \"secret-token\"\n")

	var out bytes.Buffer
	err := HandleConfig(&out, Args{Command: CmdConfig, ConfigAction: "show", ConfigPath: path})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "https://polaris.example")
	assert.Contains(t, out.String(), redacted)
	assert.NotContains(t, out.String(), "secret-token")
}

func TestHandleConfig_Path(t *testing.T) {
	var out bytes.Buffer
	err := HandleConfig(&out, Args{Command: CmdConfig, ConfigAction: "path", ConfigPath: "/etc/polaris.toml"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/polaris.toml\n", out.String())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("POLARIS_PROJECT", "")
	t.Setenv("POLARIS_LOG_LEVEL", "")
	path := writeConfig(t, "[identity]\nproject_id = \"from-file\"\n")

	cfg, got, err := LoadConfig(Args{ConfigPath: path, ProjectID: "from-flag", Debug: true})
	require.NoError(t, err)

	assert.Equal(t, path, got)
	assert.Equal(t, "from-flag", cfg.Identity.ProjectID)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestHandleConfig_ValidateReportsErrors(t *testing.T) {
	path := writeConfig(t, "[api\nbroken")

	var out bytes.Buffer
	err := HandleConfig(&out, Args{Command: CmdConfig, ConfigAction: "validate", ConfigPath: path})
	assert.Error(t, err)
	assert.Empty(t, out.String())
}
