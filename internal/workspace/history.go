package workspace

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/models"
)

// DiffOp marks a line of a title diff.
type DiffOp string

const (
	DiffEqual  DiffOp = " "
	DiffInsert DiffOp = "+"
	DiffDelete DiffOp = "-"
)

// DiffLine is one title in a diff.
type DiffLine struct {
	Op   DiffOp `json:"op"`
	Name string `json:"name"`
}

// History returns the metadata settings snapshots, oldest first.
func (w *Workspace) History() []models.MetadataSettingsSnapshot {
	return w.st.MetadataSettingsHistory.All()
}

// DiffHistory compares the title names of two settings snapshots. An
// empty toID compares against the live titles. Snapshots without an id,
// from older backups, can be addressed as "#<n>", their 1-based position
// in History.
func (w *Workspace) DiffHistory(fromID, toID string) ([]DiffLine, error) {
	history := w.st.MetadataSettingsHistory.All()

	from, err := findSnapshot(history, fromID)
	if err != nil {
		return nil, err
	}

	to := w.st.MetadataTitles.All()

	if toID != "" {
		snap, err := findSnapshot(history, toID)
		if err != nil {
			return nil, err
		}

		to = snap
	}

	return DiffTitles(from, to), nil
}

func findSnapshot(history []models.MetadataSettingsSnapshot, ref string) ([]models.MetadataTitle, error) {
	var pos int
	if _, err := fmt.Sscanf(ref, "#%d", &pos); err == nil {
		if pos < 1 || pos > len(history) {
			return nil, fmt.Errorf("settings snapshot %s: %w", ref, apperrors.ErrNotFound)
		}

		return history[pos-1].MetadataTitles, nil
	}

	for _, h := range history {
		if h.ID != "" && h.ID == ref {
			return h.MetadataTitles, nil
		}
	}

	return nil, fmt.Errorf("settings snapshot %s: %w", ref, apperrors.ErrNotFound)
}

// DiffTitles returns a line diff of the title names in from and to.
func DiffTitles(from, to []models.MetadataTitle) []DiffLine {
	a := joinLines(models.TitleNames(from))
	b := joinLines(models.TitleNames(to))

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	out := []DiffLine{}

	for _, d := range diffs {
		op := DiffEqual

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = DiffInsert
		case diffmatchpatch.DiffDelete:
			op = DiffDelete
		}

		for _, name := range strings.SplitAfter(d.Text, "\n") {
			if name == "" {
				continue
			}

			out = append(out, DiffLine{Op: op, Name: strings.TrimSuffix(name, "\n")})
		}
	}

	return out
}

func joinLines(names []string) string {
	if len(names) == 0 {
		return ""
	}

	return strings.Join(names, "\n") + "\n"
}

// FormatDiff renders lines in unified-diff style.
func FormatDiff(lines []DiffLine) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(string(l.Op))
		sb.WriteString(" ")
		sb.WriteString(l.Name)
		sb.WriteString("\n")
	}

	return sb.String()
}
