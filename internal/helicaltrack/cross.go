package helicaltrack

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/helicaltrack/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// NewCross builds a stereo hit from two strips on parallel sensor planes.
// The position starts as the from-origin estimate; SetTrackDirection
// refines it once a helix is known. Detector, layer and flag are taken
// from s1.
func NewCross(s1, s2 *Strip, epsParallel, epsStereoAngle float64) (*Hit, error) {
	if n := r3.Norm(r3.Cross(s1.W(), s2.W())); n > epsParallel {
		return nil, fmt.Errorf("%w: |w1×w2|=%g exceeds %g", ErrNotParallel, n, epsParallel)
	}
	if r3.Dot(s1.W(), s2.W()) < 0 {
		return nil, ErrOppositeNormals
	}
	if salpha := V1DotU2(s1, s2); math.Abs(salpha) < epsStereoAngle {
		return nil, fmt.Errorf("%w: sin(alpha)=%g below %g", ErrCollinearStrips, salpha, epsStereoAngle)
	}

	info := HitInfo{
		DEdx:     s1.DEdx() + s2.DEdx(),
		Time:     0.5 * (s1.Time() + s2.Time()),
		Detector: s1.Detector(),
		Layer:    s1.Layer(),
		Flag:     s1.BarrelEndcapFlag(),
	}
	h := newHit(KindCross, PositionFromOrigin(s1, s2), CovarianceFromOrigin(s1, s2), info)
	h.cross = &crossPair{strip1: s1, strip2: s2}
	for _, r := range s1.RawHits() {
		h.addRawHit(r)
	}
	for _, r := range s2.RawHits() {
		h.addRawHit(r)
	}
	return h, nil
}

// Helix returns the fit the cross was last corrected for, or nil.
func (h *Hit) Helix() *Fit {
	if h.cross == nil {
		return nil
	}
	return h.cross.helix
}

// SetTrackDirection corrects the cross for the track direction of f at the
// cross's path length in f. A nil fit restores the from-origin estimate.
// Correcting twice for the same fit is a no-op.
func (h *Hit) SetTrackDirection(f *Fit) error {
	if h.cross == nil {
		return ErrNotCross
	}
	if f == nil {
		h.ResetTrackDirection()
		return nil
	}
	if f == h.cross.helix {
		return nil
	}
	s, ok := f.PathMap()[h]
	if !ok {
		return ErrNotInPathMap
	}
	td, err := CalculateTrackDirection(f, s)
	if err != nil {
		return err
	}
	if err := h.ApplyDirection(td, f.Covariance()); err != nil {
		return err
	}
	h.cross.helix = f
	return nil
}

// ApplyDirection replaces the correction of the cross with one computed
// for td and the helix covariance hcov. If the corrected uncertainties
// would exceed the nominal ones the cross is reset instead.
func (h *Hit) ApplyDirection(td TrackDirection, hcov mat.Symmetric) error {
	c, err := h.CorrectedFor(td, hcov)
	switch {
	case err == nil:
		h.cor = c
		return nil
	case errors.Is(err, ErrCorrectionRejected):
		monitoring.Logf("helicaltrack: %s: direction correction rejected, using from-origin estimate", h.LayerIdentifier())
		h.ResetTrackDirection()
		return nil
	}
	return err
}

// ResetTrackDirection restores the from-origin estimate and clears the
// penalty and the helix reference.
func (h *Hit) ResetTrackDirection() {
	if h.cross == nil {
		return
	}
	s1, s2 := h.cross.strip1, h.cross.strip2
	h.cor = newCorrection(PositionFromOrigin(s1, s2), CovarianceFromOrigin(s1, s2), 0)
	h.cross.helix = nil
}

// CorrectedFor computes the correction for td and hcov without applying
// it. It returns ErrCorrectionRejected when any of σ(rφ), σ(r) or σ(z)
// would grow by more than 0.01 over the nominal value.
func (h *Hit) CorrectedFor(td TrackDirection, hcov mat.Symmetric) (*Correction, error) {
	if h.cross == nil {
		return nil, ErrNotCross
	}
	s1, s2 := h.cross.strip1, h.cross.strip2
	pos := PositionOnHelix(td, s1, s2)
	cov := CovarianceOnHelix(td, hcov, s1, s2)

	ok := drphiCalc(pos, cov) < drphiCalc(h.pos, h.cov)+polarEps &&
		drCalc(pos, cov) < drCalc(h.pos, h.cov)+polarEps &&
		math.Sqrt(cov.At(2, 2)) < math.Sqrt(h.cov.At(2, 2))+polarEps
	if !ok {
		return nil, ErrCorrectionRejected
	}
	return newCorrection(pos, cov, h.chisqPenalty(td, hcov)), nil
}

// chisqPenalty scores unmeasured coordinates that fall outside their
// strip.
func (h *Hit) chisqPenalty(td TrackDirection, hcov mat.Symmetric) float64 {
	s1, s2 := h.cross.strip1, h.cross.strip2
	v1 := UnmeasuredCoordinate(td, s1, s2)
	v2 := UnmeasuredCoordinate(td, s2, s1)
	dv1 := DV(td, hcov, s1, s2)
	dv2 := DV(td, hcov, s2, s1)
	return boundPenalty(v1, s1.VMin(), s1.VMax(), dv1) + boundPenalty(v2, s2.VMin(), s2.VMax(), dv2)
}

func boundPenalty(v, lo, hi, dv float64) float64 {
	var chisq float64
	if v < lo {
		chisq += math.Pow((v-lo)/dv, 2)
	}
	if v > hi {
		chisq += math.Pow((v-hi)/dv, 2)
	}
	return chisq
}
