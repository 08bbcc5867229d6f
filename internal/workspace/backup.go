package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zepposd/docudigitize/internal/reconcile"
	"github.com/zepposd/docudigitize/internal/snapshot"
)

const backupFilePerm = 0o600

// Backup encodes the workspace as a backup document and returns it with
// its suggested file name. Files excluded from archiving are left out.
func (w *Workspace) Backup() ([]byte, string, error) {
	now := w.clock.Now()

	data, err := snapshot.Marshal(snapshot.Encode(w.st.Contents(), now))
	if err != nil {
		return nil, "", fmt.Errorf("encoding backup: %w", err)
	}

	return data, snapshot.FileName(now), nil
}

// WriteBackup writes a backup into dir and returns its path.
func (w *Workspace) WriteBackup(dir string) (string, error) {
	data, name, err := w.Backup()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, backupFilePerm); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}

	w.logger.Info("backup written", slog.String("path", path), slog.Int("bytes", len(data)))

	return path, nil
}

// Merge adds what raw has and the workspace lacks.
func (w *Workspace) Merge(raw []byte) (reconcile.Summary, error) {
	return w.engine.Merge(raw)
}

// MergeFile merges the backup at path.
func (w *Workspace) MergeFile(path string) (reconcile.Summary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return reconcile.Summary{}, fmt.Errorf("reading backup: %w", err)
	}

	return w.engine.Merge(raw)
}

// Restore replaces the workspace contents with raw. Users are kept.
func (w *Workspace) Restore(raw []byte) error {
	return w.engine.Restore(raw)
}

// RestoreFile restores the backup at path.
func (w *Workspace) RestoreFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading backup: %w", err)
	}

	return w.engine.Restore(raw)
}
