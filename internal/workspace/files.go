package workspace

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/gemini"
	"github.com/zepposd/docudigitize/internal/models"
)

// Files returns every file in upload order.
func (w *Workspace) Files() []models.DigitizedFile {
	return w.st.Files.All()
}

// File returns one file.
func (w *Workspace) File(id string) (models.DigitizedFile, error) {
	f, ok := w.st.Files.Get(id)
	if !ok {
		return f, fmt.Errorf("file %s: %w", id, apperrors.ErrNotFound)
	}

	return f, nil
}

// PatchFile applies the non-nil fields of p to a file.
func (w *Workspace) PatchFile(id string, p models.FilePatch) (models.DigitizedFile, error) {
	if p.ArchiveStatus != nil && !p.ArchiveStatus.Valid() {
		return models.DigitizedFile{}, fmt.Errorf("unknown archive status %q", *p.ArchiveStatus)
	}

	f, err := w.st.Files.Update(id, p.Apply)
	if err != nil {
		return f, fmt.Errorf("updating file %s: %w", id, err)
	}

	return f, nil
}

// ToggleArchive flips a file between keep and exclude.
func (w *Workspace) ToggleArchive(id string) (models.DigitizedFile, error) {
	f, err := w.st.Files.Update(id, func(f *models.DigitizedFile) {
		if f.ArchiveStatus == models.ArchiveExclude {
			f.ArchiveStatus = models.ArchiveKeep
		} else {
			f.ArchiveStatus = models.ArchiveExclude
		}
	})
	if err != nil {
		return f, fmt.Errorf("toggling archive status of %s: %w", id, err)
	}

	return f, nil
}

// DeleteFile removes a file.
func (w *Workspace) DeleteFile(id string) error {
	if err := w.st.Files.Delete(id); err != nil {
		return fmt.Errorf("deleting file %s: %w", id, err)
	}

	return nil
}

// TranslateFile translates a file's OCR text and stores the result in the
// field for target.
func (w *Workspace) TranslateFile(ctx context.Context, id string, target gemini.Language) (models.DigitizedFile, error) {
	if !target.Valid() {
		return models.DigitizedFile{}, fmt.Errorf("unsupported translation target %q", target)
	}

	f, err := w.File(id)
	if err != nil {
		return f, err
	}

	text, err := w.ai.Translate(ctx, f.OCRText, target)
	if err != nil {
		return f, fmt.Errorf("translating %s: %w", f.OriginalFilename, err)
	}

	f, err = w.st.Files.Update(id, func(f *models.DigitizedFile) {
		if target == gemini.English {
			f.TranslationEn = text
		} else {
			f.TranslationGr = text
		}
	})
	if err != nil {
		return f, fmt.Errorf("saving translation of %s: %w", id, err)
	}

	w.logger.Info("file translated", slog.String("id", id), slog.String("target", string(target)))

	return f, nil
}

// LanguageProgress reports batch progress: done of total files handled.
type LanguageProgress func(done, total int)

// LanguageResult is the outcome of a re-evaluation batch.
type LanguageResult struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// ReevaluateLanguages asks the collaborator for the language of each
// selected file, in store order. A service failure marks the file with
// "Σφάλμα" and the batch goes on; an auth failure stops it at once and is
// returned with the counts so far. Unknown ids are ignored. progress may
// be nil.
func (w *Workspace) ReevaluateLanguages(ctx context.Context, ids []string, progress LanguageProgress) (LanguageResult, error) {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}

	var targets []models.DigitizedFile

	for _, f := range w.st.Files.All() {
		if selected[f.ID] {
			targets = append(targets, f)
		}
	}

	var res LanguageResult

	for i, f := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		lang, err := w.ai.DetectLanguage(ctx, f.OCRText)

		switch {
		case err == nil:
			res.Updated++
		case apperrors.IsAuth(err):
			w.logger.Error("language re-evaluation halted", slog.String("id", f.ID), slog.String("error", err.Error()))
			return res, fmt.Errorf("re-evaluating %s: %w", f.OriginalFilename, err)
		case ctx.Err() != nil:
			return res, ctx.Err()
		default:
			w.logger.Warn("language re-evaluation failed", slog.String("id", f.ID), slog.String("error", err.Error()))

			lang = models.LanguageError
			res.Failed++
		}

		if _, err := w.st.Files.Update(f.ID, func(f *models.DigitizedFile) { f.OriginalLanguage = lang }); err != nil {
			// ErrNotFound here means the file was deleted while the batch ran.
			w.logger.Warn("storing detected language", slog.String("id", f.ID), slog.String("error", err.Error()))
		}

		if progress != nil {
			progress(i+1, len(targets))
		}
	}

	return res, nil
}
