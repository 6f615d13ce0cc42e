// Package report renders diagnostic views of fitted tracks: static PNG
// projections, an interactive HTML page and histograms of fit quality.
package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/security"
)

// helixSamples is the number of points used to draw a helix.
const helixSamples = 200

var (
	pixelColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	axialColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	crossColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	helixColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Track bundles a fit with the hits it was made from.
type Track struct {
	ID   string
	Fit  *helicaltrack.Fit
	Hits []*helicaltrack.Hit
}

// pathLength returns the arc length of h along the track's helix.
func (t Track) pathLength(h *helicaltrack.Hit) float64 {
	if s, ok := t.Fit.PathMap()[h]; ok {
		return s
	}
	return helicaltrack.PathLength(t.Fit, h)
}

// pathRange spans the origin and every hit, padded by 5%.
func (t Track) pathRange() (smin, smax float64) {
	for _, h := range t.Hits {
		s := t.pathLength(h)
		smin = math.Min(smin, s)
		smax = math.Max(smax, s)
	}
	pad := 0.05 * (smax - smin)
	return smin - pad, smax + pad
}

func (t Track) sampleHelix(proj func(s float64) plotter.XY) plotter.XYs {
	smin, smax := t.pathRange()
	pts := make(plotter.XYs, helixSamples)
	for i := range pts {
		s := smin + (smax-smin)*float64(i)/float64(helixSamples-1)
		pts[i] = proj(s)
	}
	return pts
}

func kindColor(k helicaltrack.HitKind) color.Color {
	switch k {
	case helicaltrack.KindAxialStrip:
		return axialColor
	case helicaltrack.KindCross:
		return crossColor
	}
	return pixelColor
}

// addHits adds one scatter per hit kind so each gets a legend entry.
func addHits(p *plot.Plot, hits []*helicaltrack.Hit, xy func(*helicaltrack.Hit) plotter.XY) error {
	byKind := map[helicaltrack.HitKind]plotter.XYs{}
	var order []helicaltrack.HitKind
	for _, h := range hits {
		if _, ok := byKind[h.Kind()]; !ok {
			order = append(order, h.Kind())
		}
		byKind[h.Kind()] = append(byKind[h.Kind()], xy(h))
	}
	for _, k := range order {
		sc, err := plotter.NewScatter(byKind[k])
		if err != nil {
			return fmt.Errorf("%s hits: %w", k, err)
		}
		sc.GlyphStyle.Color = kindColor(k)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(k.String(), sc)
	}
	return nil
}

func addHelix(p *plot.Plot, pts plotter.XYs) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("helix: %w", err)
	}
	line.Color = helixColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("helix", line)
	return nil
}

// BendPlanePlot draws the hits and fitted circle in the x–y plane.
func BendPlanePlot(t Track) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track %s - bend plane", t.ID)
	p.X.Label.Text = "x (mm)"
	p.Y.Label.Text = "y (mm)"
	p.Add(plotter.NewGrid())

	helix := t.sampleHelix(func(s float64) plotter.XY {
		pos := helicaltrack.PointOnHelix(t.Fit, s)
		return plotter.XY{X: pos.X, Y: pos.Y}
	})
	if err := addHelix(p, helix); err != nil {
		return nil, err
	}
	if err := addHits(p, t.Hits, func(h *helicaltrack.Hit) plotter.XY {
		return plotter.XY{X: h.X(), Y: h.Y()}
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// SZPlot draws z against arc length with the fitted line z0 + s·tanλ.
func SZPlot(t Track) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track %s - s-z", t.ID)
	p.X.Label.Text = "s (mm)"
	p.Y.Label.Text = "z (mm)"
	p.Add(plotter.NewGrid())

	z0, slope := t.Fit.Z0(), t.Fit.Slope()
	helix := t.sampleHelix(func(s float64) plotter.XY {
		return plotter.XY{X: s, Y: z0 + s*slope}
	})
	if err := addHelix(p, helix); err != nil {
		return nil, err
	}
	if err := addHits(p, t.Hits, func(h *helicaltrack.Hit) plotter.XY {
		return plotter.XY{X: t.pathLength(h), Y: h.Z()}
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// PlotBendPlane saves the bend-plane view of t to path.
func PlotBendPlane(t Track, path string) error {
	p, err := BendPlanePlot(t)
	if err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

// PlotSZ saves the s–z view of t to path.
func PlotSZ(t Track, path string) error {
	p, err := SZPlot(t)
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}

// PlotTracks writes <id>_xy.png and <id>_sz.png for every track with a
// fit into dir and returns the files written.
func PlotTracks(dir string, tracks []Track) ([]string, error) {
	var files []string
	for _, t := range tracks {
		if t.Fit == nil {
			continue
		}
		for _, view := range []struct {
			suffix string
			save   func(Track, string) error
		}{{"_xy", PlotBendPlane}, {"_sz", PlotSZ}} {
			path, err := security.OutputPath(dir, t.ID+view.suffix, ".png")
			if err != nil {
				return files, err
			}
			if err := view.save(t, path); err != nil {
				return files, fmt.Errorf("track %s: %w", t.ID, err)
			}
			files = append(files, filepath.Clean(path))
		}
	}
	return files, nil
}
