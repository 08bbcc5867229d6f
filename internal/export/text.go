package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zepposd/docudigitize/internal/models"
)

const rule = "=================================================="

// TXT writes a plain-text report: a header, then one section per file
// with its metadata, summary, translations and OCR text.
func TXT(w io.Writer, files []models.DigitizedFile, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "DocuDigitize AI - Export\n")
	fmt.Fprintf(bw, "Exported on: %s\n", now.UTC().Format(dateTimeLayout))
	fmt.Fprintf(bw, "Total Files: %d\n\n", len(files))

	for _, f := range files {
		fmt.Fprintf(bw, "%s\nFILE: %s\n%s\n\n", rule, f.OriginalFilename, rule)
		fmt.Fprintf(bw, "--- METADATA ---\n")
		fmt.Fprintf(bw, "Original Filename: %s\n", f.OriginalFilename)
		fmt.Fprintf(bw, "Uploaded By: %s\n", f.UploadedBy)
		fmt.Fprintf(bw, "Created At: %s\n\n", f.CreatedAt.UTC().Format(dateTimeLayout))

		lines := make([]string, 0, len(f.Metadata))
		for _, m := range f.Metadata {
			lines = append(lines, "- "+m.Name+": "+m.Value)
		}

		fmt.Fprintf(bw, "Metadata:\n%s\n\n", strings.Join(lines, "\n"))
		fmt.Fprintf(bw, "--- SUMMARY (Greek) ---\n%s\n\n", f.Summary)

		if f.TranslationEn != "" {
			fmt.Fprintf(bw, "--- TRANSLATION (English) ---\n%s\n\n", f.TranslationEn)
		}

		if f.TranslationGr != "" {
			fmt.Fprintf(bw, "--- TRANSLATION (Greek) ---\n%s\n\n", f.TranslationGr)
		}

		fmt.Fprintf(bw, "--- FULL OCR TEXT ---\n%s\n\n\n", f.OCRText)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing text export: %w", err)
	}

	return nil
}

// csvHeaders are the fixed columns that precede one column per metadata
// title.
var csvHeaders = []string{
	"originalFilename",
	"uploadedBy",
	"createdAt",
	"Σύνοψη",
	"Πρωτότυπο Κείμενο",
	"Πρωτότυπη Γλώσσα",
	"Μετάφραση (Αγγλικά)",
	"Μετάφραση (Ελληνικά)",
}

// CSV writes one row per file. Header cells are bare; every data cell is
// quoted with embedded quotes doubled. Metadata columns follow titles;
// values are looked up by title name.
func CSV(w io.Writer, files []models.DigitizedFile, titles []models.MetadataTitle) error {
	bw := bufio.NewWriter(w)

	headers := append(append([]string{}, csvHeaders...), models.TitleNames(titles)...)
	bw.WriteString(strings.Join(headers, ","))

	for _, f := range files {
		row := []string{
			f.OriginalFilename,
			f.UploadedBy,
			f.CreatedAt.UTC().Format(dateTimeLayout),
			f.Summary,
			f.OCRText,
			f.OriginalLanguage,
			f.TranslationEn,
			f.TranslationGr,
		}

		for _, t := range titles {
			v, _ := f.Metadata.Get(t.Name)
			row = append(row, v)
		}

		bw.WriteString("\n")

		for i, cell := range row {
			if i > 0 {
				bw.WriteString(",")
			}

			bw.WriteString(quoteCell(cell))
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing csv export: %w", err)
	}

	return nil
}

func quoteCell(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
