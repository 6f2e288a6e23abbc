package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter renders reports as Excel workbooks.
type XLSXWriter struct {
	out io.Writer
}

// NewXLSXWriter creates an XLSXWriter that streams the workbook to out.
func NewXLSXWriter(out io.Writer) *XLSXWriter {
	return &XLSXWriter{out: out}
}

// Write renders r as a workbook with one worksheet per report sheet.
func (w *XLSXWriter) Write(_ context.Context, r Report) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("export: closing workbook", "error", err)
		}
	}()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9D9D9"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	fillStyles := make(map[string]int)

	for i, sheet := range r.Sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return fmt.Errorf("renaming first sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", sheet.Name, err)
		}

		if err := writeRows(f, sheet); err != nil {
			return err
		}
		if err := styleSheet(f, sheet, headerStyle, fillStyles); err != nil {
			return err
		}
	}

	if err := f.Write(w.out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet Sheet) error {
	for i, row := range sheet.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(sheet.Name, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet.Name, i+1, err)
		}
	}
	return nil
}

func styleSheet(f *excelize.File, sheet Sheet, headerStyle int, fillStyles map[string]int) error {
	if len(sheet.Rows) == 0 {
		return nil
	}

	lastCol, err := excelize.ColumnNumberToName(len(sheet.Rows[0]))
	if err != nil {
		return fmt.Errorf("addressing header of %s: %w", sheet.Name, err)
	}
	if err := f.SetCellStyle(sheet.Name, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("styling header of %s: %w", sheet.Name, err)
	}
	if err := f.SetColWidth(sheet.Name, "A", lastCol, 16); err != nil {
		return fmt.Errorf("sizing columns of %s: %w", sheet.Name, err)
	}
	if err := f.SetPanes(sheet.Name, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header of %s: %w", sheet.Name, err)
	}

	for row, color := range sheet.Fills {
		style, ok := fillStyles[color]
		if !ok {
			style, err = f.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
			})
			if err != nil {
				return fmt.Errorf("creating fill %s: %w", color, err)
			}
			fillStyles[color] = style
		}
		cell, err := excelize.CoordinatesToCellName(1, row+1)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", row+1, err)
		}
		if err := f.SetCellStyle(sheet.Name, cell, cell, style); err != nil {
			return fmt.Errorf("filling %s!%s: %w", sheet.Name, cell, err)
		}
	}
	return nil
}
