package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/cmbworks/cmbworks/internal/billing"
)

const sheetName = "Bill"

// numeric columns of lineHeader and their precision.
var numericColumns = map[int]int{3: 3, 4: 3, 5: 3, 6: 2, 7: 2, 8: 2, 9: 2, 10: 2}

// WriteBillXLSX writes the bill as a single sheet workbook.
func WriteBillXLSX(w io.Writer, snap billing.Snapshot) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("export: set sheet name: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#333333"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return fmt.Errorf("export: wrap style: %w", err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: bold style: %w", err)
	}

	if err := f.SetCellValue(sheetName, "A1", sanitizeCell(snap.Title)); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", boldStyle); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, "A2", fmt.Sprintf("%s %s", snap.Type, snap.BillDate)); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 48); err != nil {
		return err
	}

	const headerRow = 4
	for col, caption := range lineHeader {
		if err := setCell(f, col, headerRow, caption); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(lineHeader), headerRow)
	if err := f.SetCellStyle(sheetName, "A4", last, headerStyle); err != nil {
		return err
	}

	row := headerRow + 1
	for _, line := range snap.Lines {
		for col, value := range lineRecord(line) {
			if places, ok := numericColumns[col]; ok {
				if err := setNumber(f, col, row, value, places); err != nil {
					return err
				}
				continue
			}
			if err := setCell(f, col, row, sanitizeCell(value)); err != nil {
				return err
			}
		}
		cell, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellStyle(sheetName, cell, cell, wrapStyle); err != nil {
			return err
		}
		row++
	}

	row++
	for _, t := range totals(snap) {
		if err := setCell(f, 1, row, sanitizeCell(t.label)); err != nil {
			return err
		}
		places := 2
		if t.label == "Net payable" {
			places = 0
		}
		if err := setNumber(f, 10, row, t.value, places); err != nil {
			return err
		}
		row++
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheetName, cell, value)
}

// setNumber stores a fixed point string as a number cell with the given
// precision; unparsable values are kept as text.
func setNumber(f *excelize.File, col, row int, value string, places int) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return f.SetCellValue(sheetName, cell, value)
	}
	return f.SetCellFloat(sheetName, cell, d.InexactFloat64(), places, 64)
}

// sanitizeCell prefixes a quote to text a spreadsheet would read as a formula.
func sanitizeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r', '|':
		return "'" + s
	}
	return s
}
