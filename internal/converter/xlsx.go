package converter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

func readSpreadsheet(filePath string) (*types.Workbook, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	wb := types.NewWorkbook()
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %w", ErrRead, sheetName, err)
		}

		// Empty worksheets carry over so the output keeps every sheet name.
		if len(rows) == 0 {
			wb.Add(&types.Sheet{Name: sheetName})
			continue
		}

		sheet, err := sheetFromRows(sheetName, rows, 1)
		if err != nil {
			return nil, err
		}
		wb.Add(sheet)
	}

	if wb.Len() == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedInput)
	}
	return wb, nil
}

func writeSpreadsheet(w io.Writer, wb *types.Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	first := true
	for name, sheet := range wb.Sheets() {
		if first {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return fmt.Errorf("%w: %w", ErrWrite, err)
			}
			first = false
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}

		if err := writeSheetRows(f, sheet); err != nil {
			return fmt.Errorf("%w: sheet %q: %w", ErrWrite, name, err)
		}
	}
	f.SetActiveSheet(0)

	// Write rather than SaveAs: SaveAs rejects the .xls extension.
	if err := f.Write(w); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func writeSheetRows(f *excelize.File, sheet *types.Sheet) error {
	rowIdx := 1
	if len(sheet.Header) > 0 {
		header := make([]interface{}, len(sheet.Header))
		for i, h := range sheet.Header {
			header[i] = h
		}
		if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
			return err
		}
		rowIdx++
	}

	for i := 0; i < sheet.Pair.Len(); i++ {
		row := []interface{}{sheet.Pair.Potential[i], sheet.Pair.Flux[i]}
		if i < len(sheet.Extra) {
			for _, cell := range sheet.Extra[i] {
				row = append(row, passThroughCell(cell))
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &row); err != nil {
			return err
		}
		rowIdx++
	}
	return nil
}

// passThroughCell keeps numeric extra cells numeric in the output workbook.
func passThroughCell(cell string) interface{} {
	if v, err := parseNumeric(cell); err == nil {
		return v
	}
	return cell
}
