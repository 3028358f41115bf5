package converter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

func readCSV(filePath string) (*types.Workbook, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty CSV file", ErrMalformedInput)
	}

	sheet, err := sheetFromRows(name, records, 1)
	if err != nil {
		return nil, err
	}

	wb := types.NewWorkbook()
	wb.Add(sheet)
	return wb, nil
}

// sheetFromRows treats rows[0] as the header. firstRow is the file row number
// of rows[0], used in error messages.
func sheetFromRows(name string, rows [][]string, firstRow int) (*types.Sheet, error) {
	header := append([]string(nil), rows[0]...)
	if err := checkHeader(name, header); err != nil {
		return nil, err
	}

	sheet := &types.Sheet{Name: name, Header: header}
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		potential, flux, err := parseRow(name, firstRow+i+1, row)
		if err != nil {
			return nil, err
		}
		sheet.Pair.Potential = append(sheet.Pair.Potential, potential)
		sheet.Pair.Flux = append(sheet.Pair.Flux, flux)
		sheet.Extra = append(sheet.Extra, append([]string(nil), row[2:]...))
	}
	return sheet, nil
}

func writeCSV(w io.Writer, wb *types.Workbook) error {
	if wb.Len() != 1 {
		return fmt.Errorf("%w: CSV holds exactly one sheet, got %d", ErrWrite, wb.Len())
	}

	var records [][]string
	for _, sheet := range wb.Sheets() {
		records = sheetRecords(sheet)
	}

	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func sheetRecords(sheet *types.Sheet) [][]string {
	records := make([][]string, 0, sheet.Pair.Len()+1)
	if len(sheet.Header) > 0 {
		records = append(records, sheet.Header)
	}
	for i := 0; i < sheet.Pair.Len(); i++ {
		row := []string{
			formatNumeric(sheet.Pair.Potential[i]),
			formatNumeric(sheet.Pair.Flux[i]),
		}
		if i < len(sheet.Extra) {
			row = append(row, sheet.Extra[i]...)
		}
		records = append(records, row)
	}
	return records
}
