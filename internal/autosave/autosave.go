// Package autosave records metadata title edits into the settings history
// once the user stops editing.
//
// The scheduler moves through four states:
//
//	idle ──edit──▶ pending ──quiet interval──▶ saving ──delay──▶ saved ──delay──▶ idle
//
// Edits while pending restart the quiet interval. Edits while saving or
// saved go straight back to pending.
package autosave

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/zepposd/docudigitize/internal/clock"
	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/state"
)

// Status is the externally visible scheduler state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
)

const (
	// DefaultQuietInterval is how long titles must stay unchanged before
	// they are committed to history.
	DefaultQuietInterval = 1500 * time.Millisecond

	// DefaultSavingDelay is how long the saving state is shown.
	DefaultSavingDelay = 500 * time.Millisecond

	// DefaultSavedDisplay is how long the saved state is shown before
	// returning to idle.
	DefaultSavedDisplay = 2 * time.Second
)

// Config holds the scheduler delays.
type Config struct {
	QuietInterval time.Duration
	SavingDelay   time.Duration
	SavedDisplay  time.Duration
}

// DefaultConfig returns the standard delays.
func DefaultConfig() Config {
	return Config{
		QuietInterval: DefaultQuietInterval,
		SavingDelay:   DefaultSavingDelay,
		SavedDisplay:  DefaultSavedDisplay,
	}
}

// Scheduler watches the metadata title collection and appends a settings
// snapshot after every burst of edits.
type Scheduler struct {
	st     *state.State
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	status   Status
	baseline []models.MetadataTitle
	timer    *time.Timer
	// gen invalidates timer callbacks that fired after being superseded.
	gen    uint64
	closed bool

	unsubscribe func()
}

// New starts a scheduler over st. The current title list becomes the
// baseline, so opening a workspace never counts as an edit.
func New(st *state.State, clk clock.Clock, cfg Config, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		st:       st,
		clock:    clk,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "autosave")),
		status:   StatusIdle,
		baseline: st.MetadataTitles.All(),
	}
	s.unsubscribe = st.Subscribe(s.observe)

	return s
}

// Status returns the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// HasUnsavedChanges reports whether the live titles differ from the last
// committed ones. Callers check it before discarding the session.
func (s *Scheduler) HasUnsavedChanges() bool {
	live := s.st.MetadataTitles.All()

	s.mu.Lock()
	defer s.mu.Unlock()

	return !slices.Equal(live, s.baseline)
}

// ResetBaseline makes titles the committed list and cancels any pending
// save. Merge and restore call it so their writes are not treated as
// edits.
func (s *Scheduler) ResetBaseline(titles []models.MetadataTitle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseline = models.CloneTitles(titles)
	s.stopTimerLocked()
	s.setStatusLocked(StatusIdle)
}

// Flush commits a pending edit immediately instead of waiting for the
// quiet interval. It is a no-op unless the scheduler is pending.
func (s *Scheduler) Flush() error {
	s.mu.Lock()

	if s.status != StatusPending {
		s.mu.Unlock()
		return nil
	}

	s.stopTimerLocked()

	live := s.st.MetadataTitles.All()
	s.baseline = models.CloneTitles(live)
	s.setStatusLocked(StatusIdle)
	s.mu.Unlock()

	return s.save(live)
}

// Close stops the scheduler. A pending edit is not committed; call Flush
// first to keep it.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.stopTimerLocked()
	s.unsubscribe()
}

// observe runs synchronously after every store mutation.
func (s *Scheduler) observe(c state.Change) {
	if c.Collection != state.CollectionMetadataTitles {
		return
	}

	live := s.st.MetadataTitles.All()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if slices.Equal(live, s.baseline) {
		// Edited back to the committed list before the save fired.
		if s.status == StatusPending {
			s.stopTimerLocked()
			s.setStatusLocked(StatusIdle)
		}

		return
	}

	s.setStatusLocked(StatusPending)
	s.scheduleLocked(s.cfg.QuietInterval, s.quietElapsed)
}

func (s *Scheduler) quietElapsed(gen uint64) {
	s.mu.Lock()

	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}

	live := s.st.MetadataTitles.All()
	if slices.Equal(live, s.baseline) {
		s.setStatusLocked(StatusIdle)
		s.mu.Unlock()

		return
	}

	s.baseline = models.CloneTitles(live)
	s.setStatusLocked(StatusSaving)
	s.scheduleLocked(s.cfg.SavingDelay, s.savingElapsed)
	s.mu.Unlock()

	// The history write notifies subscribers, including observe, so it
	// must happen without s.mu held.
	if err := s.save(live); err != nil {
		s.logger.Warn("settings snapshot not persisted", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) savingElapsed(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		return
	}

	s.setStatusLocked(StatusSaved)
	s.scheduleLocked(s.cfg.SavedDisplay, s.savedElapsed)
}

func (s *Scheduler) savedElapsed(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		return
	}

	s.setStatusLocked(StatusIdle)
}

func (s *Scheduler) save(titles []models.MetadataTitle) error {
	snap, err := s.st.MetadataSettingsHistory.Create(models.MetadataSettingsSnapshot{
		SavedAt:        s.clock.Now(),
		MetadataTitles: titles,
	})
	if err != nil {
		return fmt.Errorf("saving settings snapshot: %w", err)
	}

	s.logger.Info("metadata titles saved to history",
		slog.String("snapshot_id", snap.ID),
		slog.Int("titles", len(titles)),
	)

	return nil
}

// scheduleLocked replaces the current delayed action. Caller holds s.mu.
func (s *Scheduler) scheduleLocked(d time.Duration, fn func(gen uint64)) {
	s.stopTimerLocked()

	gen := s.gen
	s.timer = time.AfterFunc(d, func() { fn(gen) })
}

// stopTimerLocked cancels the current delayed action. Caller holds s.mu.
func (s *Scheduler) stopTimerLocked() {
	s.gen++

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) setStatusLocked(st Status) {
	if s.status == st {
		return
	}

	s.logger.Debug("autosave status", slog.String("from", string(s.status)), slog.String("to", string(st)))
	s.status = st
}
