package report

import (
	"fmt"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
)

// Chi2Histogram bins χ² values in [0, xmax). Values outside the range land
// in the under/overflow bins.
func Chi2Histogram(chisq []float64, nbins int, xmax float64) *hbook.H1D {
	h := hbook.NewH1D(nbins, 0, xmax)
	for _, v := range chisq {
		h.Fill(v, 1)
	}
	return h
}

// PullHistogram bins normalised residuals (fit - truth)/σ in [-5, 5).
func PullHistogram(pulls []float64, nbins int) *hbook.H1D {
	h := hbook.NewH1D(nbins, -5, 5)
	for _, v := range pulls {
		h.Fill(v, 1)
	}
	return h
}

// SaveH1D draws h with its summary statistics and saves it to path. The
// format follows the file extension.
func SaveH1D(h *hbook.H1D, title, xlabel, path string) error {
	p := hplot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "entries"

	hh := hplot.NewH1D(h)
	hh.Infos.Style = hplot.HInfoSummary
	p.Add(hh)
	p.Add(hplot.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram %q: %w", title, err)
	}
	return nil
}
