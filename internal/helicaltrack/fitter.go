package helicaltrack

import (
	"fmt"
	"math"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/fit/circle"
	"github.com/banshee-data/helicaltrack/internal/fit/line"
	"github.com/banshee-data/helicaltrack/internal/fit/zsegment"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultFitTolerance is the number of multiple-scattering σ by which
// axial strip bounds are widened.
const DefaultFitTolerance = 3.

// FitStatus is the recoverable outcome of a fit attempt.
type FitStatus int

const (
	Success FitStatus = iota
	CircleFitFailed
	InconsistentSeed
	LineFitFailed
	ZSegmentFitFailed
)

func (s FitStatus) String() string {
	switch s {
	case Success:
		return "Success"
	case CircleFitFailed:
		return "CircleFitFailed"
	case InconsistentSeed:
		return "InconsistentSeed"
	case LineFitFailed:
		return "LineFitFailed"
	case ZSegmentFitFailed:
		return "ZSegmentFitFailed"
	}
	return fmt.Sprintf("FitStatus(%d)", int(s))
}

// Fitter fits helices to hit collections. A Fitter keeps the results of
// its last fit and must not be shared between goroutines.
type Fitter struct {
	cfitter *circle.Fitter
	lfitter *line.Fitter
	zfitter *zsegment.Fitter

	cfit *circle.Fit
	lfit *line.Fit
	zfit *zsegment.Fit
	fit  *Fit

	tolerance float64
}

// NewFitter returns a fitter with the default tolerance, referenced to the
// origin.
func NewFitter() *Fitter {
	return &Fitter{
		cfitter:   circle.NewFitter(),
		lfitter:   line.NewFitter(),
		zfitter:   zsegment.NewFitter(),
		tolerance: DefaultFitTolerance,
	}
}

// Result returns the last successful fit, or nil if the last attempt failed.
func (f *Fitter) Result() *Fit { return f.fit }

// CircleFit returns the bend-plane fit of the last attempt, if it got that far.
func (f *Fitter) CircleFit() *circle.Fit { return f.cfit }

// LineFit returns the s-z line fit of the last attempt, if one was made.
func (f *Fitter) LineFit() *line.Fit { return f.lfit }

// ZSegmentFit returns the s-z segment fit of the last attempt, if one was made.
func (f *Fitter) ZSegmentFit() *zsegment.Fit { return f.zfit }

func (f *Fitter) SetTolerance(t float64) { f.tolerance = t }
func (f *Fitter) Tolerance() float64     { return f.tolerance }

// SetReferencePoint sets the bend-plane point the circle fit is expressed
// about.
func (f *Fitter) SetReferencePoint(x, y float64) {
	f.cfitter.SetReferencePosition(x, y)
}

// FitHits fits hits without multiple scattering or a prior helix.
func (f *Fitter) FitHits(hits []*Hit) (FitStatus, error) {
	return f.Fit(hits, nil, nil)
}

// FitPoints fits plain coordinate arrays. A positive dz[i] makes point i a
// pixel with z resolution dz[i]; otherwise it is an axial strip spanning
// z[i] ± |dz[i]|.
func (f *Fitter) FitPoints(x, y, z, drphi, dz []float64) (FitStatus, error) {
	n := len(x)
	if len(y) != n || len(z) != n || len(drphi) != n || len(dz) != n {
		return CircleFitFailed, ErrInputLength
	}
	hits := make([]*Hit, 0, n)
	info := HitInfo{Detector: "Unknown", Flag: detector.Barrel}
	for i := 0; i < n; i++ {
		pos := r3.Vec{X: x[i], Y: y[i], Z: z[i]}
		if dz[i] > 0 {
			hits = append(hits, NewPixelHit(pos, MakeCov(pos, drphi[i], 0, dz[i]), info))
			continue
		}
		h, err := NewAxialStripHit(pos, MakeCov(pos, drphi[i], 0, 0), info, z[i]-math.Abs(dz[i]), z[i]+math.Abs(dz[i]))
		if err != nil {
			return CircleFitFailed, err
		}
		hits = append(hits, h)
	}
	return f.FitHits(hits)
}

// MakeCov builds the covariance of a point at pos from its rφ, r and z
// resolutions.
func MakeCov(pos r3.Vec, drphi, dr, dz float64) *mat.SymDense {
	x, y := pos.X, pos.Y
	r2 := x*x + y*y
	return mat.NewSymDense(3, []float64{
		(y*y*drphi*drphi + x*x*dr*dr) / r2, x * y * (dr*dr - drphi*drphi) / r2, 0,
		x * y * (dr*dr - drphi*drphi) / r2, (x*x*drphi*drphi + y*y*dr*dr) / r2, 0,
		0, 0, dz * dz,
	})
}

// Fit fits a helix to hits. msmap supplies multiple-scattering errors and
// may be nil. oldHelix, if given, provides the slope used to convert
// endcap radial errors into z errors.
//
// The hits slice is not reordered. A non-nil error reports an invariant
// violation in the input; recoverable failures are reported through the
// status alone. In both cases Result returns nil.
func (f *Fitter) Fit(hits []*Hit, msmap ScatterMap, oldHelix *Fit) (FitStatus, error) {
	f.cfit, f.lfit, f.zfit, f.fit = nil, nil, nil, nil
	if msmap == nil {
		msmap = ScatterMap{}
	}
	if len(hits) == 0 {
		return CircleFitFailed, nil
	}

	sorted := append([]*Hit(nil), hits...)
	SortByZ(sorted)
	if math.Abs(sorted[0].Z()) > math.Abs(sorted[len(sorted)-1].Z()) {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}

	var circleHits, pixelHits, stripHits []*Hit
	for _, h := range sorted {
		if h.DRPhi() > 0 {
			circleHits = append(circleHits, h)
		}
		switch h.Kind() {
		case KindPixel, KindCross:
			pixelHits = append(pixelHits, h)
		case KindAxialStrip:
			stripHits = append(stripHits, h)
		}
	}

	nc := len(circleHits)
	if nc < 3 {
		return CircleFitFailed, nil
	}
	x := make([]float64, nc)
	y := make([]float64, nc)
	w := make([]float64, nc)
	for i, h := range circleHits {
		x[i] = h.X()
		y[i] = h.Y()
		ms := msmap[h].DRPhi
		w[i] = 1. / (h.DRPhi()*h.DRPhi() + ms*ms)
	}
	if !f.cfitter.Fit(x, y, w) {
		return CircleFitFailed, nil
	}
	cf := f.cfitter.Result()
	f.cfit = &cf

	smap := f.pathLengths(sorted)
	if smap[circleHits[nc-1]] < 0 {
		fixed := circleFix(cf)
		f.cfit = &fixed
		for h, s := range smap {
			smap[h] = -s
		}
	}
	for _, s := range smap {
		if s < 0 {
			return InconsistentSeed, nil
		}
	}

	var chisq [2]float64
	var ndf [2]int
	chisq[0] = f.cfit.Chisq
	ndf[0] = nc - 3

	// The circle solver's DCA sign is opposite to the helix convention.
	par := Params{
		DCA:       -f.cfit.DCA,
		Phi0:      f.cfit.Phi,
		Curvature: f.cfit.Curvature,
	}
	cov := mat.NewSymDense(NParams, nil)
	cc := f.cfit.Cov
	cov.SetSym(CurvatureIndex, CurvatureIndex, cc[circle.CurvCurv])
	cov.SetSym(CurvatureIndex, Phi0Index, cc[circle.CurvPhi])
	cov.SetSym(Phi0Index, Phi0Index, cc[circle.PhiPhi])
	cov.SetSym(CurvatureIndex, DCAIndex, -cc[circle.CurvDCA])
	cov.SetSym(Phi0Index, DCAIndex, -cc[circle.PhiDCA])
	cov.SetSym(DCAIndex, DCAIndex, cc[circle.DCADCA])

	if npix := len(pixelHits); npix > 1 {
		s := make([]float64, npix)
		z := make([]float64, npix)
		dz := make([]float64, npix)
		for i, h := range pixelHits {
			s[i] = smap[h]
			z[i] = h.Z()
			dz[i] = ZRes(h, msmap, oldHelix)
		}
		if !f.lfitter.Fit(s, z, dz) {
			return LineFitFailed, nil
		}
		f.lfit = f.lfitter.Result()
		chisq[1] = f.lfit.Chisq
		ndf[1] = npix - 2
		par.Z0 = f.lfit.Intercept
		par.Slope = f.lfit.Slope
		cov.SetSym(Z0Index, Z0Index, f.lfit.InterceptErr*f.lfit.InterceptErr)
		cov.SetSym(Z0Index, SlopeIndex, f.lfit.Covariance)
		cov.SetSym(SlopeIndex, SlopeIndex, f.lfit.SlopeErr*f.lfit.SlopeErr)
	} else {
		if npix == 1 && pixelHits[0].BarrelEndcapFlag().IsBarrel() {
			promoted, err := PixelToStrip(pixelHits[0], smap, msmap, oldHelix, f.tolerance)
			if err != nil {
				f.cfit = nil
				return ZSegmentFitFailed, err
			}
			stripHits = append(stripHits, promoted)
		}
		nstrip := len(stripHits)
		if nstrip < 2 {
			f.cfit = nil
			return ZSegmentFitFailed, fmt.Errorf("%w: have %d", ErrTooFewStripHits, nstrip)
		}
		s := make([]float64, nstrip)
		zmin := make([]float64, nstrip)
		zmax := make([]float64, nstrip)
		for i, h := range stripHits {
			s[i] = smap[h]
			dz := msmap[h].DZ
			zmin[i] = h.ZMin() - f.tolerance*dz
			zmax[i] = h.ZMax() + f.tolerance*dz
		}
		if !f.zfitter.Fit(s, zmin, zmax) {
			return ZSegmentFitFailed, nil
		}
		f.zfit = f.zfitter.Result()
		par.Z0 = f.zfit.Centroid[0]
		par.Slope = f.zfit.Centroid[1]
		cov.SetSym(Z0Index, Z0Index, f.zfit.Covariance.At(0, 0))
		cov.SetSym(Z0Index, SlopeIndex, f.zfit.Covariance.At(0, 1))
		cov.SetSym(SlopeIndex, SlopeIndex, f.zfit.Covariance.At(1, 1))
	}

	if len(stripHits) > 0 {
		chisq[1] += missedStripPenalty(stripHits, par, cov, smap, msmap)
	}

	f.fit = NewFit(par, cov, chisq, ndf, smap, msmap)
	return Success, nil
}

// pathLengths measures every hit along the current circle fit. Non-axial
// hits are chained from one to the next so that the arc length keeps
// growing past half a turn.
func (f *Fitter) pathLengths(hits []*Hit) PathMap {
	smap := make(PathMap, len(hits))
	var last *Hit
	var slast float64
	for _, h := range hits {
		var s float64
		switch {
		case h.Kind() == KindAxialStrip:
			s = PathLengthFromDCA(*f.cfit, h)
		case last == nil:
			s = PathLengthFromDCA(*f.cfit, h)
			last, slast = h, s
		default:
			s = slast + PathLengthBetween(*f.cfit, last, h)
			last, slast = h, s
		}
		smap[h] = s
	}
	return smap
}

// circleFix reverses the direction of travel of a circle fit.
func circleFix(cf circle.Fit) circle.Fit {
	out := cf
	out.DCA = -cf.DCA
	out.Phi = cf.Phi + math.Pi
	if out.Phi > 2*math.Pi {
		out.Phi -= 2 * math.Pi
	}
	out.Curvature = -cf.Curvature
	out.Cov[circle.CurvPhi] = -cf.Cov[circle.CurvPhi]
	out.Cov[circle.PhiDCA] = -cf.Cov[circle.PhiDCA]
	return out
}

// missedStripPenalty scores axial strips whose predicted z lies outside
// their bounds.
func missedStripPenalty(strips []*Hit, par Params, cov mat.Symmetric, smap PathMap, msmap ScatterMap) float64 {
	cz0z0 := cov.At(Z0Index, Z0Index)
	cslsl := cov.At(SlopeIndex, SlopeIndex)
	cz0sl := cov.At(Z0Index, SlopeIndex)
	var chisq float64
	for _, h := range strips {
		if h.Kind() != KindAxialStrip {
			continue
		}
		s := smap[h]
		zhelix := par.Z0 + s*par.Slope
		dzms := msmap[h].DZ
		dzsq := cz0z0 + 2*s*cz0sl + s*s*cslsl + dzms*dzms
		if zhelix < h.ZMin() {
			chisq += (zhelix - h.ZMin()) * (zhelix - h.ZMin()) / dzsq
		}
		if zhelix > h.ZMax() {
			chisq += (zhelix - h.ZMax()) * (zhelix - h.ZMax()) / dzsq
		}
	}
	return chisq
}
