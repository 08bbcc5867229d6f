package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zepposd/docudigitize/internal/clock"
	"github.com/zepposd/docudigitize/internal/config"
	"github.com/zepposd/docudigitize/internal/gemini"
	"github.com/zepposd/docudigitize/internal/logging"
	"github.com/zepposd/docudigitize/internal/reconcile"
	"github.com/zepposd/docudigitize/internal/state"
	"github.com/zepposd/docudigitize/internal/workspace"
)

var Version = "dev"

const usage = `usage: docudigitize <command> [flags]

commands:
  serve                       run the MCP server and the inbox watcher
  ingest [flags] <path>...    extract and store scans
  backup [-dir d]             write a backup file
  restore <file>              replace the workspace with a backup
  merge <file>                add what is missing from a backup
  export [flags]              export files as txt, csv, xlsx or md
  history [-from r] [-to r]   list or diff title settings snapshots
  users list|add|delete       manage users
  version                     print the version
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock
	st     *state.State
	ai     *gemini.Client
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	name, rest := args[0], args[1:]

	if name == "version" {
		fmt.Fprintln(stdout, Version)
		return nil
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	st, err := state.LoadAt(cfg.DBPath(), state.WithSeedTitles(state.DefaultMetadataTitles))
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer st.Close()

	a := &app{
		cfg:    cfg,
		logger: logger,
		clock:  clock.Real{},
		st:     st,
		ai:     gemini.New(cfg.GeminiAPIKey, logger, cfg.GeminiOptions()...),
		stdout: stdout,
		stderr: stderr,
	}

	return cmd(ctx, a, rest)
}

// workspace returns a Workspace over the app's store. baseline may be nil.
func (a *app) workspace(baseline reconcile.Baseline) *workspace.Workspace {
	return workspace.New(a.st, a.ai, baseline, a.clock, a.logger)
}
