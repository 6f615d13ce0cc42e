package helicaltrack

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/helicaltrack/internal/geom"
	"github.com/banshee-data/helicaltrack/internal/units"
	"gonum.org/v1/gonum/mat"
)

// Fit is the result of a helix fit. Apart from a single SetNHChisq call it
// is immutable once built.
type Fit struct {
	params Params
	cov    *mat.SymDense
	chisq  [2]float64
	ndf    [2]int

	nhchisq    float64
	nhchisqSet bool

	smap  PathMap
	msmap ScatterMap
}

// NewFit assembles a fit result. chisq and ndf hold the circle and s-z
// contributions in that order. The maps are retained, not copied.
func NewFit(params Params, cov mat.Symmetric, chisq [2]float64, ndf [2]int, smap PathMap, msmap ScatterMap) *Fit {
	if smap == nil {
		smap = PathMap{}
	}
	if msmap == nil {
		msmap = ScatterMap{}
	}
	return &Fit{
		params: params,
		cov:    geom.CloneSym(cov),
		chisq:  chisq,
		ndf:    ndf,
		smap:   smap,
		msmap:  msmap,
	}
}

func (f *Fit) Params() Params { return f.params }

func (f *Fit) DCA() float64       { return f.params.DCA }
func (f *Fit) Phi0() float64      { return f.params.Phi0 }
func (f *Fit) Curvature() float64 { return f.params.Curvature }
func (f *Fit) Z0() float64        { return f.params.Z0 }
func (f *Fit) Slope() float64     { return f.params.Slope }

// Covariance returns the 5x5 parameter covariance. It must not be modified.
func (f *Fit) Covariance() mat.Symmetric { return f.cov }

func (f *Fit) Chisq() [2]float64 { return f.chisq }
func (f *Fit) Ndf() [2]int       { return f.ndf }

// NHChisq returns the χ² of non-holonomic constraints applied after the
// fit, or 0 if none has been set.
func (f *Fit) NHChisq() float64 { return f.nhchisq }

// SetNHChisq records the non-holonomic χ². It may be called once.
func (f *Fit) SetNHChisq(v float64) error {
	if f.nhchisqSet {
		return ErrNHChisqSet
	}
	f.nhchisq = v
	f.nhchisqSet = true
	return nil
}

// ChisqTotal is the sum of the circle, s-z and non-holonomic χ².
func (f *Fit) ChisqTotal() float64 {
	return f.chisq[0] + f.chisq[1] + f.nhchisq
}

func (f *Fit) NdfTotal() int { return f.ndf[0] + f.ndf[1] }

// PathMap returns the arc length of every hit used in the fit.
func (f *Fit) PathMap() PathMap { return f.smap }

// ScatterMap returns the multiple-scattering errors the fit was made with.
func (f *Fit) ScatterMap() ScatterMap { return f.msmap }

// R returns the signed radius of curvature.
func (f *Fit) R() float64 { return 1. / f.params.Curvature }

// XC and YC return the centre of the bend-plane circle.
func (f *Fit) XC() float64 { return (f.R() - f.params.DCA) * math.Sin(f.params.Phi0) }
func (f *Fit) YC() float64 { return -(f.R() - f.params.DCA) * math.Cos(f.params.Phi0) }

// X0 and Y0 return the point of closest approach to the origin.
func (f *Fit) X0() float64 { return -f.params.DCA * math.Sin(f.params.Phi0) }
func (f *Fit) Y0() float64 { return f.params.DCA * math.Cos(f.params.Phi0) }

// Cth and Sth return cos θ and sin θ of the polar angle.
func (f *Fit) Cth() float64 { return f.params.Slope / math.Sqrt(1+f.params.Slope*f.params.Slope) }
func (f *Fit) Sth() float64 { return 1. / math.Sqrt(1+f.params.Slope*f.params.Slope) }

// PT returns the transverse momentum in GeV/c for a field in tesla.
func (f *Fit) PT(bfield float64) float64 { return units.TransverseMomentum(f.R(), bfield) }

// P returns the total momentum in GeV/c for a field in tesla.
func (f *Fit) P(bfield float64) float64 { return f.PT(bfield) / f.Sth() }

// Charge returns the sign of the curvature. Positive curvature bends
// clockwise, which is a positive particle in a field along +z.
func (f *Fit) Charge() int {
	switch {
	case f.params.Curvature > 0:
		return 1
	case f.params.Curvature < 0:
		return -1
	}
	return 0
}

func (f *Fit) err(i int) float64 { return math.Sqrt(f.cov.At(i, i)) }

func (f *Fit) DCAError() float64       { return f.err(DCAIndex) }
func (f *Fit) Phi0Error() float64      { return f.err(Phi0Index) }
func (f *Fit) CurvatureError() float64 { return f.err(CurvatureIndex) }
func (f *Fit) Z0Error() float64        { return f.err(Z0Index) }
func (f *Fit) SlopeError() float64     { return f.err(SlopeIndex) }

func (f *Fit) String() string {
	var b strings.Builder
	b.WriteString("HelicalTrackFit:\n")
	fmt.Fprintf(&b, "d0= %g\n", f.params.DCA)
	fmt.Fprintf(&b, "phi0= %g\n", f.params.Phi0)
	fmt.Fprintf(&b, "curvature: %g\n", f.params.Curvature)
	fmt.Fprintf(&b, "z0= %g\n", f.params.Z0)
	fmt.Fprintf(&b, "tanLambda= %g\n", f.params.Slope)
	return b.String()
}
