package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// XLSX reads one sheet of an Office Open XML workbook.
type XLSX struct{}

func (XLSX) Name() string { return "spreadsheet" }

func (XLSX) MimeTypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
}

func (XLSX) Extensions() []string { return []string{".xlsx", ".xlsm"} }

func (XLSX) Parse(ctx context.Context, content []byte, opt Options) (dataset.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet, err := pickSheet(f.GetSheetList(), opt)
	if err != nil {
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rowsToDataset(ctx, rows, opt)
}

func pickSheet(sheets []string, opt Options) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if opt.Sheet != "" {
		for _, s := range sheets {
			if s == opt.Sheet {
				return s, nil
			}
		}
		return "", fmt.Errorf("sheet %q not found (available: %v)", opt.Sheet, sheets)
	}
	if opt.SheetIndex > 0 {
		if opt.SheetIndex > len(sheets) {
			return "", fmt.Errorf("sheet index %d out of range (workbook has %d sheets)", opt.SheetIndex, len(sheets))
		}
		return sheets[opt.SheetIndex-1], nil
	}
	return sheets[0], nil
}
