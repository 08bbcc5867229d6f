// Package export renders stored files as plain text, CSV, Excel workbooks
// and markdown documents. Every writer is a pure function of the entities
// passed in.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zepposd/docudigitize/internal/models"
)

// Format is an export file format.
type Format string

const (
	FormatTXT      Format = "txt"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatMarkdown Format = "md"
)

// ErrNothingToExport is returned when the selection is empty, or holds
// no kept files for a workbook.
var ErrNothingToExport = errors.New("no files to export")

const (
	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

// ParseFormat accepts a format name, with "excel" as an alias for xlsx
// and "markdown" for md.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTXT, FormatCSV, FormatXLSX, FormatMarkdown:
		return f, nil
	case "excel":
		return FormatXLSX, nil
	case "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want txt, csv, xlsx or md)", s)
	}
}

// FileName returns the download name for an export taken at now.
func FileName(f Format, now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)

	if f == FormatXLSX {
		return "DocuDigitize-Excel-Export-" + ts + ".xlsx"
	}

	return "DocuDigitize-Export-" + ts + "." + string(f)
}

// Write renders files in format f. titles sets the metadata columns of a
// CSV. Markdown output concatenates one document per file.
func Write(w io.Writer, f Format, files []models.DigitizedFile, titles []models.MetadataTitle, now time.Time) error {
	if len(files) == 0 {
		return ErrNothingToExport
	}

	switch f {
	case FormatTXT:
		return TXT(w, files, now)
	case FormatCSV:
		return CSV(w, files, titles)
	case FormatXLSX:
		return XLSX(w, files)
	case FormatMarkdown:
		for i, file := range files {
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}

			if err := Markdown(w, file); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// Select returns the files whose ids are in ids, in store order. A nil
// ids selects everything.
func Select(files []models.DigitizedFile, ids []string) []models.DigitizedFile {
	if ids == nil {
		return files
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	out := make([]models.DigitizedFile, 0, len(ids))

	for _, f := range files {
		if want[f.ID] {
			out = append(out, f)
		}
	}

	return out
}

// WriteFile renders files into a new file in dir named by FileName and
// returns its path. A failed render removes the partial file.
func WriteFile(dir string, f Format, files []models.DigitizedFile, titles []models.MetadataTitle, now time.Time) (string, error) {
	if len(files) == 0 {
		return "", ErrNothingToExport
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	path := filepath.Join(dir, FileName(f, now))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}

	werr := Write(out, f, files, titles, now)
	cerr := out.Close()

	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}
