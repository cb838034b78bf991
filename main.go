// polaris - terminal client for polaris project conversations.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/cli"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/logging"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/session"
	"github.com/grayphite/polaris-frontend-sub000/internal/storage"
	chatui "github.com/grayphite/polaris-frontend-sub000/internal/ui/chat"
	"github.com/grayphite/polaris-frontend-sub000/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds the session teardown after the UI exits.
const shutdownTimeout = 10 * time.Second

// errNoProject is returned when neither the config nor the command line
// names a project.
var errNoProject = errors.New("no project selected: set identity.project_id, POLARIS_PROJECT or --project")

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	args, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	switch args.Command {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
	case cli.CmdConfig:
		if err := cli.HandleConfig(os.Stdout, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := runTUI(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// =============================================================================
// TUI
// =============================================================================

func runTUI(args cli.Args) error {
	if !cli.CanRunTUI() {
		return errors.New("polaris needs an interactive terminal")
	}

	cfg, cfgPath, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(dir, "polaris.log")
	}

	logger, level, err := logging.NewLeveled(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	identity := session.IdentityFromConfig(cfg.Identity)
	if identity.ProjectID == "" {
		return errNoProject
	}

	store, err := storage.Open(cfg.Storage, dir)
	if err != nil {
		return fmt.Errorf("open local storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close local storage", zap.Error(err))
		}
	}()
	scratch := storage.NewScratch(store, logger)

	client := api.NewClient(cfg.API).WithLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat, err := resolveChat(ctx, client, identity.ProjectID, args.ChatID)
	if err != nil {
		return err
	}
	logger.Info("opening chat",
		zap.String("chat_id", chat.ID),
		zap.String("project_id", identity.ProjectID),
		zap.String("version", Version))

	sess := session.New(client, scratch, cfg, identity, logger).
		WithContext(ctx).
		WithTitleCallback(func(chatID, title string) {
			logger.Debug("chat title changed", zap.String("chat_id", chatID), zap.String("title", title))
		})
	m := chatui.New(sess, *chat, styles.NewTheme())

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if !args.Inline {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(m, opts...)

	watcher, err := config.Watch(cfgPath, func(next *config.Config) {
		if !args.Debug {
			if lvl, err := logging.ParseLevel(next.Log.Level); err == nil {
				level.SetLevel(lvl)
			}
		}
		p.Send(chatui.ConfigReloadedMsg{Path: cfgPath})
	}, logger)
	if err != nil {
		// hot reload is optional
		logger.Warn("config watch disabled", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	_, runErr := p.Run()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		logger.Warn("session close", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("run polaris: %w", runErr)
	}
	return nil
}

// chatSource is the part of the API client needed to pick the chat to open.
type chatSource interface {
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
	CreateChat(ctx context.Context, projectID, name string) (*model.Chat, error)
}

// resolveChat fetches the named chat, or creates a fresh one when chatID is
// empty.
func resolveChat(ctx context.Context, src chatSource, projectID, chatID string) (*model.Chat, error) {
	if chatID == "" {
		chat, err := src.CreateChat(ctx, projectID, "")
		if err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
		return chat, nil
	}

	chat, err := src.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("open chat %s: %w", chatID, err)
	}
	if chat.ProjectID == "" {
		chat.ProjectID = projectID
	}
	if chat.ProjectID != projectID {
		return nil, fmt.Errorf("chat %s belongs to project %s, not %s", chatID, chat.ProjectID, projectID)
	}
	return chat, nil
}
