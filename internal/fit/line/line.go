// Package line fits a straight line y = intercept + slope·x to weighted points.
package line

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Fit is the result of a straight-line fit.
type Fit struct {
	Slope        float64
	Intercept    float64
	SlopeErr     float64
	InterceptErr float64
	// Covariance is cov(intercept, slope).
	Covariance float64
	Chisq      float64
	Ndf        int
}

func (f Fit) String() string {
	return fmt.Sprintf("LineFit: slope=%g±%g intercept=%g±%g cov=%g chisq=%g ndf=%d",
		f.Slope, f.SlopeErr, f.Intercept, f.InterceptErr, f.Covariance, f.Chisq, f.Ndf)
}

// Fitter performs slope/intercept fits and remembers the last result.
type Fitter struct {
	fit *Fit
}

// NewFitter returns a line fitter.
func NewFitter() *Fitter {
	return &Fitter{}
}

// Fit fits y against x where dy holds the uncertainty on each y value.
// It reports false when fewer than two points are supplied, an uncertainty
// is not positive, or all x values coincide.
func (l *Fitter) Fit(x, y, dy []float64) bool {
	l.fit = nil
	n := len(x)
	if n < 2 || len(y) != n || len(dy) != n {
		return false
	}
	w := make([]float64, n)
	var s, sx, sxx float64
	for i := range x {
		if !(dy[i] > 0) {
			return false
		}
		w[i] = 1. / (dy[i] * dy[i])
		s += w[i]
		sx += w[i] * x[i]
		sxx += w[i] * x[i] * x[i]
	}
	det := s*sxx - sx*sx
	if !(det > 0) {
		return false
	}

	intercept, slope := stat.LinearRegression(x, y, w, false)

	var chisq float64
	for i := range x {
		r := y[i] - intercept - slope*x[i]
		chisq += w[i] * r * r
	}

	l.fit = &Fit{
		Slope:        slope,
		Intercept:    intercept,
		SlopeErr:     math.Sqrt(s / det),
		InterceptErr: math.Sqrt(sxx / det),
		Covariance:   -sx / det,
		Chisq:        chisq,
		Ndf:          n - 2,
	}
	return true
}

// Result returns the most recent successful fit, or nil.
func (l *Fitter) Result() *Fit {
	return l.fit
}
