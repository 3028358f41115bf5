package converter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/params"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/transform"
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/types"
)

// Format is a supported container kind.
type Format int

const (
	FormatCSV Format = iota + 1
	FormatSpreadsheet
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatSpreadsheet:
		return "spreadsheet"
	}
	return "unknown"
}

var (
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrMalformedInput    = transform.ErrMalformedInput
	ErrRead              = errors.New("read failed")
	ErrWrite             = errors.New("write failed")
)

// UnsupportedFormatError reports the extension that could not be dispatched.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s has an unsupported data type %q", e.Path, e.Ext)
}

func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// Extensions lists the accepted file extensions, matched case-sensitively.
var Extensions = []string{".csv", ".xls", ".xlsx"}

// DetectFormat resolves the container kind from the file extension.
func DetectFormat(path string) (Format, error) {
	ext := filepath.Ext(path)
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".xls", ".xlsx":
		return FormatSpreadsheet, nil
	default:
		return 0, &UnsupportedFormatError{Path: path, Ext: ext}
	}
}

// OutputPath derives "{stem}-{Dimensionless|Dimensional}{ext}" next to the input.
func OutputPath(path string, dir types.Direction) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "-" + dir.Suffix() + ext
}

// Read loads every sheet of a supported file.
func Read(path string) (*types.Workbook, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatCSV:
		return readCSV(path)
	default:
		return readSpreadsheet(path)
	}
}

// Write stores wb at path in the container format of the path's extension.
// The file is replaced in one step, so concurrent readers of path see either
// the previous content or the complete new one.
func Write(path string, wb *types.Workbook) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		return replaceFile(path, func(w io.Writer) error { return writeCSV(w, wb) })
	default:
		return replaceFile(path, func(w io.Writer) error { return writeSpreadsheet(w, wb) })
	}
}

// replaceFile writes through a temporary file in path's directory and renames
// it onto path.
func replaceFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dimconv-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// Convert reads inputFile, transforms columns 0 and 1 of every sheet and
// writes the derived file next to it.
func Convert(inputFile string, dir types.Direction, set params.Set) (*types.ConversionResult, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	wb, err := Read(inputFile)
	if err != nil {
		return nil, err
	}

	out := types.NewWorkbook()
	rowsProcessed := 0
	for name, sheet := range wb.Sheets() {
		pair, err := transform.Apply(dir, sheet.Pair, set)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		out.Add(&types.Sheet{
			Name:   name,
			Header: sheet.Header,
			Pair:   pair,
			Extra:  sheet.Extra,
		})
		rowsProcessed += pair.Len()
	}

	outputFile := OutputPath(inputFile, dir)
	if err := Write(outputFile, out); err != nil {
		return nil, err
	}

	return &types.ConversionResult{
		InputFile:     inputFile,
		OutputFile:    outputFile,
		SheetNames:    out.Names(),
		RowsProcessed: rowsProcessed,
	}, nil
}

// parseRow pulls the potential/flux pair out of one data row. rowNum is the
// 1-based row in the file, header included.
func parseRow(sheet string, rowNum int, row []string) (float64, float64, error) {
	if len(row) < 2 {
		return 0, 0, fmt.Errorf("%w: sheet %q row %d has %d column(s), need potential and flux",
			ErrMalformedInput, sheet, rowNum, len(row))
	}
	potential, err := parseNumeric(row[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sheet %q row %d: potential %q is not numeric", ErrMalformedInput, sheet, rowNum, row[0])
	}
	flux, err := parseNumeric(row[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sheet %q row %d: flux %q is not numeric", ErrMalformedInput, sheet, rowNum, row[1])
	}
	return potential, flux, nil
}

func parseNumeric(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty cell")
	}
	return strconv.ParseFloat(s, 64)
}

func formatNumeric(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func checkHeader(sheet string, header []string) error {
	if len(header) < 2 {
		return fmt.Errorf("%w: sheet %q needs at least two columns (potential, flux), found %d",
			ErrMalformedInput, sheet, len(header))
	}
	return nil
}
