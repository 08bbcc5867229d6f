// Package inbox ingests scans dropped into a folder. Each settled file is
// run through the upload pipeline without review and then moved to
// processed/ or failed/.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/ingest"
)

const (
	// ProcessedDir receives files that were committed or skipped as
	// duplicates.
	ProcessedDir = "processed"
	// FailedDir receives files that could not be extracted or are not a
	// supported type.
	FailedDir = "failed"

	dirPerm = fs.FileMode(0o755)

	// debounceInterval is how often pending files are checked.
	debounceInterval = 500 * time.Millisecond
	// settleTime is how long a file must go without events before it is
	// read. Scanners write in several chunks.
	settleTime = 300 * time.Millisecond
)

// Runner is the subset of ingest.Pipeline the watcher drives.
type Runner interface {
	Enqueue(uploads ...ingest.Upload) ingest.EnqueueResult
	RunAll(ctx context.Context, uploadedBy string, policy ingest.DuplicatePolicy) (ingest.Report, error)
	Reset()
}

// Outcome is where a dropped file ended up.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeHeld means the file stays in the inbox until it changes
	// again, for example after an auth failure.
	OutcomeHeld Outcome = "held"
)

// Watcher monitors an inbox directory.
type Watcher struct {
	dir        string
	runner     Runner
	policy     ingest.DuplicatePolicy
	uploadedBy string
	logger     *slog.Logger

	// pending maps absolute paths to the time of their last event.
	pending map[string]time.Time
}

// New creates a watcher for dir. Committed files are attributed to
// uploadedBy and duplicates follow policy.
func New(dir string, runner Runner, policy ingest.DuplicatePolicy, uploadedBy string, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:        dir,
		runner:     runner,
		policy:     policy,
		uploadedBy: uploadedBy,
		logger:     logger.With(slog.String("component", "inbox")),
		pending:    make(map[string]time.Time),
	}
}

// Watch processes files already in the inbox, then watches for new ones.
// It blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), dirPerm); err != nil {
			return fmt.Errorf("creating inbox dir: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching inbox: %w", err)
	}

	if err := w.sweep(time.Now()); err != nil {
		return fmt.Errorf("scanning inbox: %w", err)
	}

	w.logger.Info("inbox watcher started", slog.String("dir", w.dir), slog.String("on_duplicate", string(w.policy)))

	ticker := time.NewTicker(debounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			w.track(event, time.Now())

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			w.flush(ctx, time.Now())
		}
	}
}

// sweep marks every file already in the inbox as pending.
func (w *Watcher) sweep(now time.Time) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Type().IsRegular() && !shouldIgnore(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = now.Add(-settleTime)
		}
	}

	return nil
}

// track records a filesystem event.
func (w *Watcher) track(event fsnotify.Event, now time.Time) {
	if shouldIgnore(filepath.Base(event.Name)) || filepath.Dir(event.Name) != filepath.Clean(w.dir) {
		return
	}

	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		w.pending[event.Name] = now
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
	}
}

// flush ingests every pending file that has settled, in name order.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string

	for path, t := range w.pending {
		if now.Sub(t) >= settleTime {
			ready = append(ready, path)
		}
	}

	slices.Sort(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}

		delete(w.pending, path)
		w.ingest(ctx, path)
	}
}

// ingest runs one file through the pipeline and files it away.
func (w *Watcher) ingest(ctx context.Context, path string) Outcome {
	logger := w.logger.With(slog.String("file", filepath.Base(path)))

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return OutcomeHeld
	}

	upload, err := ingest.LoadFile(path)
	if err != nil {
		logger.Warn("reading dropped file", slog.String("error", err.Error()))
		return OutcomeHeld
	}

	if res := w.runner.Enqueue(upload); res.Accepted == 0 {
		logger.Warn("unsupported file type")
		return w.move(path, FailedDir, logger)
	}

	rep, err := w.runner.RunAll(ctx, w.uploadedBy, w.policy)
	if err != nil {
		w.runner.Reset()

		if apperrors.IsAuth(err) {
			logger.Error("extraction rejected the API key, file left in inbox", slog.String("error", err.Error()))
		} else if !errors.Is(err, context.Canceled) {
			logger.Warn("ingest interrupted", slog.String("error", err.Error()))
		}

		return OutcomeHeld
	}

	if len(rep.Failed) > 0 {
		logger.Warn("extraction failed", slog.String("error", rep.Failed[0].Err))
		return w.move(path, FailedDir, logger)
	}

	logger.Info("ingested",
		slog.Int("created", len(rep.Created)),
		slog.Int("replaced", len(rep.Replaced)),
		slog.Int("skipped", len(rep.Skipped)),
	)

	return w.move(path, ProcessedDir, logger)
}

// move renames path into sub, suffixing the name when the target exists.
func (w *Watcher) move(path, sub string, logger *slog.Logger) Outcome {
	outcome := OutcomeProcessed
	if sub == FailedDir {
		outcome = OutcomeFailed
	}

	base := filepath.Base(path)
	target := filepath.Join(w.dir, sub, base)

	if _, err := os.Lstat(target); err == nil {
		ext := filepath.Ext(base)
		target = filepath.Join(w.dir, sub, strings.TrimSuffix(base, ext)+"-"+strconv.FormatInt(time.Now().UnixNano(), 10)+ext)
	}

	if err := os.Rename(path, target); err != nil {
		logger.Warn("moving ingested file", slog.String("target", sub), slog.String("error", err.Error()))
	}

	return outcome
}

func shouldIgnore(base string) bool {
	if strings.HasPrefix(base, ".") {
		return true
	}

	for _, suffix := range []string{"~", ".swp", ".tmp", ".part", ".crdownload"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}

	return false
}
