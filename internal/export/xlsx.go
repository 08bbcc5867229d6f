package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"github.com/zepposd/docudigitize/internal/models"
)

const sheetName = "Export"

var xlsxHeaders = []any{"Όνομα Αρχείου", "Χρήστης", "Ημερομηνία Εισαγωγής"}

// XLSX writes a workbook listing the kept files among files: name,
// uploader and upload date. Excluded files are left out; if none remain
// it returns ErrNothingToExport.
func XLSX(w io.Writer, files []models.DigitizedFile) error {
	var kept []models.DigitizedFile

	for _, f := range files {
		if f.Kept() {
			kept = append(kept, f)
		}
	}

	if len(kept) == 0 {
		return ErrNothingToExport
	}

	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := wb.SetSheetRow(sheetName, "A1", &xlsxHeaders); err != nil {
		return fmt.Errorf("writing header row: %w", err)
	}

	bold, err := wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := wb.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header row: %w", err)
	}

	for i, f := range kept {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		row := []any{f.OriginalFilename, f.UploadedBy, f.CreatedAt.UTC().Format(dateLayout)}
		if err := wb.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row for %s: %w", f.OriginalFilename, err)
		}
	}

	if err := wb.SetColWidth(sheetName, "A", "A", 40); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := wb.SetColWidth(sheetName, "B", "C", 22); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := wb.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	return nil
}
