package preview

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	defaultPlotHeight   = 12
	minPlotWidth        = 10
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

var ansiPalette = []string{
	"\x1b[34m", // blue
	"\x1b[33m", // yellow
	"\x1b[32m", // green
	"\x1b[31m", // red
	"\x1b[35m", // magenta
	"\x1b[36m", // cyan
}

// Plot renders series as a braille line chart with potential on the x axis
// and flux on the y axis. width and height are in terminal cells; zero picks
// a size from the terminal.
func Plot(w io.Writer, title string, series []Series, width, height int) error {
	return plot(w, title, series, width, height, shouldUseColor(w))
}

// PlotNoColor is Plot without ANSI colors, for embedding in styled views.
func PlotNoColor(w io.Writer, title string, series []Series, width, height int) error {
	return plot(w, title, series, width, height, false)
}

func plot(w io.Writer, title string, series []Series, width, height int, useColor bool) error {
	xMin, xMax, yMin, yMax, ok := bounds(series)
	if !ok {
		return fmt.Errorf("nothing to plot")
	}
	if math.Abs(xMax-xMin) == 0 {
		xMin, xMax = xMin-1, xMax+1
	}
	if math.Abs(yMax-yMin) == 0 {
		yMin, yMax = yMin-1, yMax+1
	}

	yLabels := []string{formatTick(yMax), formatTick((yMin + yMax) / 2), formatTick(yMin)}
	labelWidth := 0
	for _, l := range yLabels {
		labelWidth = max(labelWidth, utf8.RuneCountInString(l))
	}

	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth(), labelWidth)
	}
	if width < minPlotWidth {
		width = minPlotWidth
	}

	pxWidth, pxHeight := width*2, height*4
	seriesCells := make([][][]uint8, len(series))
	for si, s := range series {
		cells := makeCells(height, width)
		prevX, prevY := -1, -1
		for i := range s.X {
			if i >= len(s.Y) {
				break
			}
			px := scale(s.X[i], xMin, xMax, pxWidth)
			py := pxHeight - 1 - scale(s.Y[i], yMin, yMax, pxHeight)
			if prevX >= 0 {
				drawLine(prevX, prevY, px, py, func(x, y int) { setBrailleDot(cells, x, y) })
			} else {
				setBrailleDot(cells, px, py)
			}
			prevX, prevY = px, py
		}
		seriesCells[si] = cells
	}

	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for y := 0; y < height; y++ {
		label := ""
		switch {
		case y == 0:
			label = yLabels[0]
		case y == height/2 && height > 2:
			label = yLabels[1]
		case y == height-1:
			label = yLabels[2]
		}
		var row strings.Builder
		row.WriteString(fmt.Sprintf("%*s%s", labelWidth, label, axisSeparator))
		for x := 0; x < width; x++ {
			mask, colorIdx := composeCell(seriesCells, x, y)
			ch := brailleFromMask(mask)
			if useColor && colorIdx >= 0 {
				row.WriteString(ansiPalette[colorIdx%len(ansiPalette)])
				row.WriteRune(ch)
				row.WriteString(colorReset)
			} else {
				row.WriteRune(ch)
			}
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}

	pad := strings.Repeat(" ", labelWidth+utf8.RuneCountInString(axisSeparator))
	left, right := formatTick(xMin), formatTick(xMax)
	gap := max(1, width-utf8.RuneCountInString(left)-utf8.RuneCountInString(right))
	if _, err := fmt.Fprintf(w, "%s%s%s%s\n", pad, left, strings.Repeat(" ", gap), right); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%sx: Potential  y: Flux\n", pad); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, renderLegend(series, useColor)); err != nil {
		return err
	}
	return nil
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth, labelWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	plotWidth := totalWidth - labelWidth - utf8.RuneCountInString(axisSeparator)
	if plotWidth < minPlotWidth {
		plotWidth = minPlotWidth
	}
	return plotWidth
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func formatTick(v float64) string {
	return fmt.Sprintf("%.3g", v)
}

// scale maps v in [lo, hi] onto 0..n-1.
func scale(v, lo, hi float64, n int) int {
	if n <= 1 {
		return 0
	}
	pos := (v - lo) / (hi - lo)
	idx := int(math.Round(pos * float64(n-1)))
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func makeCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := 0; y < height; y++ {
		cells[y] = make([]uint8, width)
	}
	return cells
}

func composeCell(seriesCells [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	colorIdx := -1
	for i, cells := range seriesCells {
		if y < 0 || y >= len(cells) {
			continue
		}
		if x < 0 || x >= len(cells[y]) {
			continue
		}
		cellMask := cells[y][x]
		if cellMask == 0 {
			continue
		}
		if colorIdx == -1 {
			colorIdx = i
		}
		mask |= cellMask
	}
	return mask, colorIdx
}

func renderLegend(series []Series, useColor bool) string {
	parts := make([]string, 0, len(series))
	marker := brailleFromMask(0xFF)
	for i, s := range series {
		label := fmt.Sprintf("%c %s", marker, s.Label)
		if useColor {
			label = ansiPalette[i%len(ansiPalette)] + label + colorReset
		}
		parts = append(parts, label)
	}
	return "Legend: " + strings.Join(parts, "  ")
}

func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := int(math.Abs(float64(x1 - x0)))
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -int(math.Abs(float64(y1 - y0)))
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			if x0 == x1 {
				break
			}
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			if y0 == y1 {
				break
			}
			err += dx
			y0 += sy
		}
	}
}

func setBrailleDot(cells [][]uint8, x, y int) {
	if y < 0 || x < 0 {
		return
	}
	cellY := y / 4
	cellX := x / 2
	if cellY >= len(cells) || cellX >= len(cells[cellY]) {
		return
	}
	cells[cellY][cellX] |= brailleDotMask(x%2, y%4)
}

func brailleDotMask(x, y int) uint8 {
	switch {
	case x == 0 && y == 0:
		return 0x01
	case x == 0 && y == 1:
		return 0x02
	case x == 0 && y == 2:
		return 0x04
	case x == 0 && y == 3:
		return 0x40
	case x == 1 && y == 0:
		return 0x08
	case x == 1 && y == 1:
		return 0x10
	case x == 1 && y == 2:
		return 0x20
	case x == 1 && y == 3:
		return 0x80
	default:
		return 0
	}
}

func brailleFromMask(mask uint8) rune {
	return rune(0x2800 + int(mask))
}
