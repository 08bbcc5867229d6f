package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/models"
)

// Titles returns the metadata titles in display order.
func (w *Workspace) Titles() []models.MetadataTitle {
	return w.st.MetadataTitles.All()
}

// AddTitle appends a metadata title. A name already present, compared
// case-insensitively, is rejected with ErrDuplicateName.
func (w *Workspace) AddTitle(name string) (models.MetadataTitle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MetadataTitle{}, fmt.Errorf("title name is required")
	}

	if _, ok := models.NameIndex(w.st.MetadataTitles.All())[models.NameKey(name)]; ok {
		return models.MetadataTitle{}, fmt.Errorf("title %s: %w", name, apperrors.ErrDuplicateName)
	}

	t, err := w.st.MetadataTitles.Create(models.MetadataTitle{Name: name})
	if err != nil {
		return t, fmt.Errorf("adding title %s: %w", name, err)
	}

	return t, nil
}

// RenameTitle renames a title in place. Values already captured on files
// stay under the old name.
func (w *Workspace) RenameTitle(id, name string) (models.MetadataTitle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MetadataTitle{}, fmt.Errorf("title name is required")
	}

	if other, ok := models.NameIndex(w.st.MetadataTitles.All())[models.NameKey(name)]; ok && other.ID != id {
		return models.MetadataTitle{}, fmt.Errorf("title %s: %w", name, apperrors.ErrDuplicateName)
	}

	t, err := w.st.MetadataTitles.Update(id, func(t *models.MetadataTitle) { t.Name = name })
	if err != nil {
		return t, fmt.Errorf("renaming title %s: %w", id, err)
	}

	return t, nil
}

// DeleteTitle removes a title. Files keep their values for it.
func (w *Workspace) DeleteTitle(id string) error {
	if err := w.st.MetadataTitles.Delete(id); err != nil {
		return fmt.Errorf("deleting title %s: %w", id, err)
	}

	return nil
}

// ReorderTitles puts the titles in the order of ids, which must name
// every title exactly once.
func (w *Workspace) ReorderTitles(ids []string) ([]models.MetadataTitle, error) {
	current := w.st.MetadataTitles.All()
	if len(ids) != len(current) {
		return nil, fmt.Errorf("reorder needs all %d titles, got %d", len(current), len(ids))
	}

	byID := make(map[string]models.MetadataTitle, len(current))
	for _, t := range current {
		byID[t.ID] = t
	}

	ordered := make([]models.MetadataTitle, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("reorder title %s: %w", id, apperrors.ErrNotFound)
		}

		delete(byID, id)
		ordered = append(ordered, t)
	}

	if err := w.st.MetadataTitles.ReplaceAll(ordered); err != nil {
		return ordered, fmt.Errorf("reordering titles: %w", err)
	}

	return ordered, nil
}

// SuggestMetadataTitles asks the collaborator for titles that fit sample
// and appends the ones not already present. When record is set the
// sample is kept as a raw input first, even if the call then fails. It
// returns the titles that were added.
func (w *Workspace) SuggestMetadataTitles(ctx context.Context, sample string, record bool) ([]models.MetadataTitle, error) {
	if strings.TrimSpace(sample) == "" {
		return nil, fmt.Errorf("sample text is required")
	}

	if record {
		if _, err := w.st.MetadataRawInputs.Create(models.MetadataRawInput{
			PastedText: sample,
			CreatedAt:  w.clock.Now(),
		}); err != nil && !apperrors.IsPersistence(err) {
			return nil, fmt.Errorf("recording sample: %w", err)
		}
	}

	names, err := w.ai.SuggestTitles(ctx, sample)
	if err != nil {
		return nil, fmt.Errorf("suggesting titles: %w", err)
	}

	idx := models.NameIndex(w.st.MetadataTitles.All())

	var (
		added   []models.MetadataTitle
		saveErr error
	)

	for _, name := range names {
		name = strings.TrimSpace(name)
		key := models.NameKey(name)

		if name == "" {
			continue
		}

		if _, ok := idx[key]; ok {
			continue
		}

		t, err := w.st.MetadataTitles.Create(models.MetadataTitle{Name: name})
		if err != nil && saveErr == nil {
			saveErr = err
		}

		idx[key] = t
		added = append(added, t)
	}

	w.logger.Info("titles suggested", slog.Int("suggested", len(names)), slog.Int("added", len(added)))

	if saveErr != nil {
		return added, fmt.Errorf("saving suggested titles: %w", saveErr)
	}

	return added, nil
}
