package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot/plotter"
)

// szScatter builds an interactive s–z chart for one track.
func szScatter(t Track) *charts.Scatter {
	hits := make([]opts.ScatterData, 0, len(t.Hits))
	for _, h := range t.Hits {
		hits = append(hits, opts.ScatterData{
			Name:  h.LayerIdentifier(),
			Value: []interface{}{t.pathLength(h), h.Z()},
		})
	}

	z0, slope := t.Fit.Z0(), t.Fit.Slope()
	line := t.sampleHelix(func(s float64) plotter.XY {
		return plotter.XY{X: s, Y: z0 + s*slope}
	})
	helix := make([]opts.ScatterData, 0, len(line))
	for _, pt := range line {
		helix = append(helix, opts.ScatterData{Value: []interface{}{pt.X, pt.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Helix fits (s-z)", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Track %s", t.ID),
			Subtitle: fmt.Sprintf("z0=%.4g tanλ=%.4g χ²=%.3g/%d", z0, slope, t.Fit.ChisqTotal(), t.Fit.NdfTotal()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "s (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "z (mm)", NameLocation: "middle", NameGap: 40}),
	)
	scatter.AddSeries("helix", helix, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("hits", hits, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter
}

// WriteSZScatterHTML renders one s–z chart per fitted track as a single
// HTML page. Tracks without a fit are skipped.
func WriteSZScatterHTML(w io.Writer, tracks []Track) error {
	page := components.NewPage()
	page.PageTitle = "Helix fits"
	for _, t := range tracks {
		if t.Fit == nil {
			continue
		}
		page.AddCharts(szScatter(t))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
