package preview

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultPNGWidth  = 1024
	DefaultPNGHeight = 640
)

// RenderPNG writes series as a PNG line chart. Series with fewer than two
// points are left out; it is an error if none remain.
func RenderPNG(w io.Writer, title string, series []Series, width, height int) error {
	if width <= 0 {
		width = DefaultPNGWidth
	}
	if height <= 0 {
		height = DefaultPNGHeight
	}

	var chartSeries []chart.Series
	for i, s := range series {
		n := min(len(s.X), len(s.Y))
		if n < 2 {
			continue
		}
		chartSeries = append(chartSeries, chart.ContinuousSeries{
			Name:    s.Label,
			XValues: s.X[:n],
			YValues: s.Y[:n],
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(Palette[i%len(Palette)][1:]),
				StrokeWidth: 2,
			},
		})
	}
	if len(chartSeries) == 0 {
		return fmt.Errorf("nothing to plot: every sheet has fewer than two rows")
	}

	graph := chart.Chart{
		Title:  title,
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis:  chart.XAxis{Name: "Potential"},
		YAxis:  chart.YAxis{Name: "Flux"},
		Series: chartSeries,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
