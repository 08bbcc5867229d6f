package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/snapshot"
	"github.com/zepposd/docudigitize/internal/state"
)

// Baseline receives the metadata title list that merge and restore leave
// behind, so the change does not show up as an unsaved edit. The autosave
// scheduler implements it.
type Baseline interface {
	ResetBaseline(titles []models.MetadataTitle)
}

type noBaseline struct{}

func (noBaseline) ResetBaseline([]models.MetadataTitle) {}

// Engine merges and restores backups into a State.
type Engine struct {
	st       *state.State
	baseline Baseline
	logger   *slog.Logger
}

// New returns an Engine writing to st. baseline may be nil when nothing
// tracks unsaved title edits.
func New(st *state.State, baseline Baseline, logger *slog.Logger) *Engine {
	if baseline == nil {
		baseline = noBaseline{}
	}

	return &Engine{
		st:       st,
		baseline: baseline,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Merge decodes raw and merges it. A file that fails to decode leaves the
// store untouched.
func (e *Engine) Merge(raw []byte) (Summary, error) {
	b, err := snapshot.Decode(raw)
	if err != nil {
		return Summary{}, fmt.Errorf("merging backup: %w", err)
	}

	return e.MergeBackup(b)
}

func (e *Engine) warnInvalidTimestamps(b *snapshot.Backup) {
	if b.InvalidTimestamps > 0 {
		e.logger.Warn("backup has unreadable timestamps, kept as zero",
			slog.Int("count", b.InvalidTimestamps),
		)
	}
}

// MergeBackup appends every new item of b to the live collections in one
// store transaction. Existing items are never removed or changed. A
// returned error wrapping ErrPersistence means the merge is visible for
// this session but did not reach disk.
func (e *Engine) MergeBackup(b *snapshot.Backup) (Summary, error) {
	e.warnInvalidTimestamps(b)

	live := e.st.Contents()
	plan := PlanMerge(live, b.Data, e.st.IDs())
	summary := plan.Summary()

	if plan.Unidentified > 0 {
		e.logger.Warn("backup has settings snapshots without ids, matched on savedAt and titles",
			slog.Int("count", plan.Unidentified),
		)
	}

	if summary.Empty() {
		e.logger.Info("merge found nothing new")
		return summary, nil
	}

	var reps []state.Replacement

	if len(plan.Files) > 0 {
		reps = append(reps, e.st.Files.Replacement(append(live.Files, plan.Files...)))
	}

	if len(plan.MetadataTitles) > 0 {
		titles := append(live.MetadataTitles, plan.MetadataTitles...)
		// Reset first so the store notification finds live == baseline.
		e.baseline.ResetBaseline(models.CloneTitles(titles))
		reps = append(reps, e.st.MetadataTitles.Replacement(titles))
	}

	if len(plan.MetadataRawInputs) > 0 {
		reps = append(reps, e.st.MetadataRawInputs.Replacement(append(live.MetadataRawInputs, plan.MetadataRawInputs...)))
	}

	if len(plan.MetadataSettingsHistory) > 0 {
		reps = append(reps, e.st.MetadataSettingsHistory.Replacement(append(live.MetadataSettingsHistory, plan.MetadataSettingsHistory...)))
	}

	err := e.st.Replace(reps...)

	e.logger.Info("merge applied",
		slog.Int("files", summary.Files),
		slog.Int("metadata_titles", summary.MetadataTitles),
		slog.Int("metadata_raw_inputs", summary.MetadataRawInputs),
		slog.Int("metadata_settings_history", summary.MetadataSettingsHistory),
	)

	if err != nil {
		return summary, fmt.Errorf("saving merge: %w", err)
	}

	return summary, nil
}

// Restore decodes raw and restores it. A file that fails to decode leaves
// the store untouched.
func (e *Engine) Restore(raw []byte) error {
	b, err := snapshot.Decode(raw)
	if err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}

	return e.RestoreBackup(b)
}

// RestoreBackup replaces every backed-up collection with the contents of
// b. Collections absent from the backup end up empty. Users are not part
// of backups and are left alone.
func (e *Engine) RestoreBackup(b *snapshot.Backup) error {
	d := b.Data

	e.warnInvalidTimestamps(b)

	e.baseline.ResetBaseline(models.CloneTitles(d.MetadataTitles))

	err := e.st.Replace(
		e.st.Files.Replacement(d.Files),
		e.st.MetadataTitles.Replacement(d.MetadataTitles),
		e.st.MetadataRawInputs.Replacement(d.MetadataRawInputs),
		e.st.MetadataSettingsHistory.Replacement(d.MetadataSettingsHistory),
		e.st.Categories.Replacement(d.Categories),
		e.st.CategoryRawInputs.Replacement(d.CategoryRawInputs),
		e.st.CategorySettingsHistory.Replacement(d.CategorySettingsHistory),
		e.st.ClassificationGoalReplacement(d.ClassificationGoal),
		e.st.ClassificationGoalHistory.Replacement(d.ClassificationGoalHistory),
	)

	e.logger.Info("backup restored",
		slog.Int("files", len(d.Files)),
		slog.Int("metadata_titles", len(d.MetadataTitles)),
		slog.Time("backup_created_at", b.CreatedAt),
	)

	if err != nil {
		return fmt.Errorf("saving restore: %w", err)
	}

	return nil
}
