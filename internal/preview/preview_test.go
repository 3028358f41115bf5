package preview

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/converter"
)

func writeTwoSheetWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), "Scan1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Scan2"); err != nil {
		t.Fatal(err)
	}
	data := map[string][][]interface{}{
		"Scan1": {{"Potential", "Flux"}, {-0.5, -1.0}, {0.0, 0.0}, {0.5, 1.0}},
		"Scan2": {{"Potential", "Flux"}, {-0.5, 1.0}, {0.5, -1.0}},
	}
	for name, rows := range data {
		for r, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			row := row
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSpreadsheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.xlsx")
	writeTwoSheetWorkbook(t, path)

	series, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if series[0].Label != "Scan1" || series[1].Label != "Scan2" {
		t.Errorf("labels = %s, %s", series[0].Label, series[1].Label)
	}
	if len(series[0].X) != 3 || series[0].Y[2] != 1.0 {
		t.Errorf("unexpected data: %+v", series[0])
	}
}

func TestLoadCSVUsesFileStem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.csv")
	if err := os.WriteFile(path, []byte("Potential,Flux\n0.1,2\n0.2,3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	series, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(series))
	}
	if series[0].Y[0] != 2 || series[0].X[1] != 0.2 {
		t.Errorf("unexpected data: %+v", series[0])
	}
}

func TestLoadUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, converter.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPlotDimensions(t *testing.T) {
	series := []Series{
		{Label: "Scan1", X: []float64{-1, 0, 1}, Y: []float64{-1, 0, 1}},
		{Label: "Scan2", X: []float64{-1, 1}, Y: []float64{1, -1}},
	}
	var buf bytes.Buffer
	if err := PlotNoColor(&buf, Title, series, 20, 6); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// title + 6 rows + x ticks + axis names + legend
	if len(lines) != 10 {
		t.Fatalf("expected 10 lines, got %d:\n%s", len(lines), out)
	}
	if lines[0] != Title {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(out, "Scan1") || !strings.Contains(out, "Scan2") {
		t.Errorf("legend missing series names:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected ANSI escapes")
	}
	// both diagonals touch every row
	for _, row := range lines[1:7] {
		body := row[strings.Index(row, axisSeparator)+len(axisSeparator):]
		if strings.Trim(body, "\u2800") == "" {
			t.Errorf("empty plot row: %q", row)
		}
	}
}

func TestPlotEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotNoColor(&buf, Title, []Series{{Label: "empty"}}, 20, 6); err == nil {
		t.Errorf("expected error for empty series")
	}
}

func TestPlotFlatSeries(t *testing.T) {
	var buf bytes.Buffer
	series := []Series{{Label: "flat", X: []float64{1, 1}, Y: []float64{2, 2}}}
	if err := PlotNoColor(&buf, "", series, 12, 4); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		v, lo, hi float64
		n         int
		want      int
	}{
		{0, 0, 1, 10, 0},
		{1, 0, 1, 10, 9},
		{0.5, 0, 1, 3, 1},
		{2, 0, 1, 10, 9},
		{-1, 0, 1, 10, 0},
		{0.5, 0, 1, 1, 0},
	}
	for _, tt := range tests {
		if got := scale(tt.v, tt.lo, tt.hi, tt.n); got != tt.want {
			t.Errorf("scale(%v, %v, %v, %d) = %d; want %d", tt.v, tt.lo, tt.hi, tt.n, got, tt.want)
		}
	}
}

func TestPlotWidthFor(t *testing.T) {
	if got := PlotWidthFor(80, 5); got != 80-5-len([]rune(axisSeparator)) {
		t.Errorf("PlotWidthFor(80, 5) = %d", got)
	}
	if got := PlotWidthFor(8, 5); got != minPlotWidth {
		t.Errorf("PlotWidthFor(8, 5) = %d; want %d", got, minPlotWidth)
	}
}

func TestRenderPNG(t *testing.T) {
	series := []Series{
		{Label: "Scan1", X: []float64{-1, 0, 1}, Y: []float64{-1, 0, 1}},
		{Label: "single", X: []float64{0}, Y: []float64{0}},
	}
	var buf bytes.Buffer
	if err := RenderPNG(&buf, Title, series, 400, 300); err != nil {
		t.Fatalf("RenderPNG failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("size = %dx%d; want 400x300", b.Dx(), b.Dy())
	}
}

func TestRenderPNGNothingToPlot(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, Title, []Series{{Label: "one", X: []float64{1}, Y: []float64{1}}}, 0, 0); err == nil {
		t.Errorf("expected error")
	}
}
