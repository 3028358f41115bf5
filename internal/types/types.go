package types

import (
	"fmt"
	"iter"

	"github.com/elliotchance/orderedmap/v3"
)

// Direction names the representation a conversion produces.
type Direction int

const (
	ToDimensionless Direction = iota
	ToDimensional
)

// Suffix is appended to the output file stem, e.g. "run-Dimensionless.csv".
func (d Direction) Suffix() string {
	if d == ToDimensional {
		return "Dimensional"
	}
	return "Dimensionless"
}

func (d Direction) String() string {
	if d == ToDimensional {
		return "dimensionless-to-dimensional"
	}
	return "dimensional-to-dimensionless"
}

// ParseDirection accepts the target representation ("dimensionless",
// "dimensional") or the long form produced by String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "dimensionless", "Dimensionless", "dimensional-to-dimensionless":
		return ToDimensionless, nil
	case "dimensional", "Dimensional", "dimensionless-to-dimensional":
		return ToDimensional, nil
	}
	return ToDimensionless, fmt.Errorf("unknown direction %q (want dimensionless or dimensional)", s)
}

type ColumnPair struct {
	Potential []float64
	Flux      []float64
}

func (p ColumnPair) Len() int {
	return len(p.Potential)
}

// Sheet is one named table. Extra holds columns 2.. of every data row,
// passed through a conversion untouched.
type Sheet struct {
	Name   string
	Header []string
	Pair   ColumnPair
	Extra  [][]string
}

// Workbook keeps sheets in file order. Flat formats hold a single sheet
// named after the file stem.
type Workbook struct {
	sheets *orderedmap.OrderedMap[string, *Sheet]
}

func NewWorkbook() *Workbook {
	return &Workbook{sheets: orderedmap.NewOrderedMap[string, *Sheet]()}
}

// Add appends a sheet, replacing any sheet with the same name in place.
func (w *Workbook) Add(s *Sheet) {
	w.sheets.Set(s.Name, s)
}

func (w *Workbook) Sheet(name string) (*Sheet, bool) {
	return w.sheets.Get(name)
}

func (w *Workbook) Len() int {
	return w.sheets.Len()
}

func (w *Workbook) Names() []string {
	names := make([]string, 0, w.sheets.Len())
	for name := range w.sheets.AllFromFront() {
		names = append(names, name)
	}
	return names
}

func (w *Workbook) Sheets() iter.Seq2[string, *Sheet] {
	return w.sheets.AllFromFront()
}

type OutcomeKind int

const (
	OutcomeWritten OutcomeKind = iota
	OutcomeUnsupported
	OutcomeMalformed
	OutcomeReadError
	OutcomeWriteError
	OutcomeCanceled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeWritten:
		return "written"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeReadError:
		return "read-error"
	case OutcomeWriteError:
		return "write-error"
	case OutcomeCanceled:
		return "canceled"
	}
	return "unknown"
}

// Outcome is the per-file result of a batch run.
type Outcome struct {
	Kind   OutcomeKind
	Input  string
	Output string
	Ext    string
	Err    error
}

func (o Outcome) Failed() bool {
	return o.Kind != OutcomeWritten
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeWritten:
		return fmt.Sprintf("%s -> %s", o.Input, o.Output)
	case OutcomeUnsupported:
		return fmt.Sprintf("%s has an unsupported data type %s", o.Input, o.Ext)
	case OutcomeCanceled:
		return fmt.Sprintf("%s: canceled", o.Input)
	}
	return fmt.Sprintf("%s: %s: %v", o.Input, o.Kind, o.Err)
}

type ConversionResult struct {
	InputFile     string
	OutputFile    string
	SheetNames    []string
	RowsProcessed int
}
