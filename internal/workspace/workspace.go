// Package workspace exposes the operations a user performs on a
// digitization workspace: managing users and metadata titles, editing and
// translating files, searching, and moving data in and out through
// backups.
package workspace

//go:generate mockgen -source=workspace.go -destination=mock_assistant.go -package=workspace

import (
	"context"
	"log/slog"

	"github.com/zepposd/docudigitize/internal/clock"
	"github.com/zepposd/docudigitize/internal/gemini"
	"github.com/zepposd/docudigitize/internal/reconcile"
	"github.com/zepposd/docudigitize/internal/state"
)

// Assistant is the AI collaborator for everything except extraction.
// Errors wrap apperrors.ErrAuth or apperrors.ErrService.
type Assistant interface {
	Translate(ctx context.Context, text string, target gemini.Language) (string, error)
	SuggestTitles(ctx context.Context, sample string) ([]string, error)
	SmartSearch(ctx context.Context, query string, docs []gemini.Document) ([]gemini.Match, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// Workspace ties the store to the collaborator and the backup engine.
type Workspace struct {
	st     *state.State
	ai     Assistant
	engine *reconcile.Engine
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Workspace over st. baseline receives the title list after
// merge and restore; pass the autosave scheduler, or nil.
func New(st *state.State, ai Assistant, baseline reconcile.Baseline, clk clock.Clock, logger *slog.Logger) *Workspace {
	return &Workspace{
		st:     st,
		ai:     ai,
		engine: reconcile.New(st, baseline, logger),
		clock:  clk,
		logger: logger.With(slog.String("component", "workspace")),
	}
}

// State returns the underlying store.
func (w *Workspace) State() *state.State {
	return w.st
}
