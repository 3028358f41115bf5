// Package preview turns a voltammogram file into plottable series.
package preview

import (
	"github.com/nmerovingian/Dimension-Conversion-Tool/internal/converter"
)

// Title is the heading used for every preview.
const Title = "Preview of Voltammogram"

// Series is one sheet's curve: X is potential, Y is flux, as stored in the file.
type Series struct {
	Label string
	X     []float64
	Y     []float64
}

// Load reads path without transforming it and returns one series per sheet,
// labelled with the sheet name.
func Load(path string) ([]Series, error) {
	wb, err := converter.Read(path)
	if err != nil {
		return nil, err
	}
	series := make([]Series, 0, wb.Len())
	for name, sheet := range wb.Sheets() {
		series = append(series, Series{
			Label: name,
			X:     sheet.Pair.Potential,
			Y:     sheet.Pair.Flux,
		})
	}
	return series, nil
}

// Palette is the color cycle used for successive sheets.
var Palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

func bounds(series []Series) (xMin, xMax, yMin, yMax float64, ok bool) {
	for _, s := range series {
		for i := range s.X {
			if i >= len(s.Y) {
				break
			}
			x, y := s.X[i], s.Y[i]
			if !ok {
				xMin, xMax, yMin, yMax = x, x, y, y
				ok = true
				continue
			}
			xMin = min(xMin, x)
			xMax = max(xMax, x)
			yMin = min(yMin, y)
			yMax = max(yMax, y)
		}
	}
	return xMin, xMax, yMin, yMax, ok
}
