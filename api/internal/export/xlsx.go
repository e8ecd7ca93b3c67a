package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	headerHeight = 40
	rowHeight    = 30
	headerFill   = "#E2E8F0"
)

var border = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// WriteXLSX renders wb as an xlsx file.
func WriteXLSX(w io.Writer, wb Workbook) error {
	if len(wb.Sheets) == 0 {
		return ErrNoSections
	}
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	body, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("export: body style: %w", err)
	}

	for i, sh := range wb.Sheets {
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), sh.Name)
		} else {
			_, err = f.NewSheet(sh.Name)
		}
		if err != nil {
			return fmt.Errorf("export: sheet %q: %w", sh.Name, err)
		}
		if err := writeSheet(f, sh, header, body); err != nil {
			return fmt.Errorf("export: sheet %q: %w", sh.Name, err)
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh Sheet, header, body int) error {
	if len(sh.Columns) == 0 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(len(sh.Columns))
	if err != nil {
		return err
	}

	heads := make([]any, len(sh.Columns))
	for c, col := range sh.Columns {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.Name, name, name, col.Width); err != nil {
			return err
		}
		heads[c] = col.Header
	}
	if err := f.SetSheetRow(sh.Name, "A1", &heads); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh.Name, "A1", last+"1", header); err != nil {
		return err
	}
	if err := f.SetRowHeight(sh.Name, 1, headerHeight); err != nil {
		return err
	}

	for r, row := range sh.Rows {
		n := r + 2
		cells := make([]any, len(sh.Columns))
		for c := range cells {
			if c < len(row) {
				cells[c] = row[c]
			} else {
				cells[c] = ""
			}
		}
		if err := f.SetSheetRow(sh.Name, fmt.Sprintf("A%d", n), &cells); err != nil {
			return err
		}
		if err := f.SetCellStyle(sh.Name, fmt.Sprintf("A%d", n), fmt.Sprintf("%s%d", last, n), body); err != nil {
			return err
		}
		if err := f.SetRowHeight(sh.Name, n, rowHeight); err != nil {
			return err
		}
	}
	return nil
}
