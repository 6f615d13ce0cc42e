package helicaltrack

import (
	"fmt"
	"math"

	"github.com/banshee-data/helicaltrack/internal/truth"
	"gonum.org/v1/gonum/spatial/r3"
)

// Default stereo pairing knobs.
const (
	DefaultStereoTolerance = 2.
	DefaultMaxSeparation   = 10.
	DefaultEpsParallel     = 1e-2
	DefaultEpsStereoAngle  = 1e-2
)

// StereoHitMaker pairs strips on parallel sensor planes into crosses.
type StereoHitMaker struct {
	tolerance      float64
	maxSep         float64
	epsParallel    float64
	epsStereoAngle float64
}

// NewStereoHitMaker returns a maker with the default knobs.
func NewStereoHitMaker() *StereoHitMaker {
	return NewStereoHitMakerWith(DefaultStereoTolerance, DefaultMaxSeparation)
}

// NewStereoHitMakerWith returns a maker with the given tolerance and
// maximum plane separation.
func NewStereoHitMakerWith(tolerance, maxSep float64) *StereoHitMaker {
	return &StereoHitMaker{
		tolerance:      tolerance,
		maxSep:         maxSep,
		epsParallel:    DefaultEpsParallel,
		epsStereoAngle: DefaultEpsStereoAngle,
	}
}

func (m *StereoHitMaker) SetTolerance(t float64)      { m.tolerance = t }
func (m *StereoHitMaker) Tolerance() float64          { return m.tolerance }
func (m *StereoHitMaker) SetMaxSeparation(s float64)  { m.maxSep = s }
func (m *StereoHitMaker) MaxSeparation() float64      { return m.maxSep }
func (m *StereoHitMaker) SetEpsParallel(e float64)    { m.epsParallel = e }
func (m *StereoHitMaker) EpsParallel() float64        { return m.epsParallel }
func (m *StereoHitMaker) SetEpsStereoAngle(e float64) { m.epsStereoAngle = e }
func (m *StereoHitMaker) EpsStereoAngle() float64     { return m.epsStereoAngle }

// MakeHits tries every pairing of a strip from strips1 with one from
// strips2 and returns the crosses that pass.
func (m *StereoHitMaker) MakeHits(strips1, strips2 []*Strip) ([]*Hit, error) {
	var crosses []*Hit
	for _, s1 := range strips1 {
		for _, s2 := range strips2 {
			h, err := m.makeHit(s1, s2)
			if err != nil {
				return crosses, err
			}
			if h != nil {
				crosses = append(crosses, h)
			}
		}
	}
	return crosses, nil
}

// MakeLayerHits pairs strips from a single collection that share detector,
// layer and barrel/endcap flag.
func (m *StereoHitMaker) MakeLayerHits(strips []*Strip) ([]*Hit, error) {
	var crosses []*Hit
	for i := 0; i < len(strips)-1; i++ {
		for j := i + 1; j < len(strips); j++ {
			s1, s2 := strips[i], strips[j]
			if s1.Layer() != s2.Layer() || s1.BarrelEndcapFlag() != s2.BarrelEndcapFlag() ||
				s1.Detector() != s2.Detector() {
				continue
			}
			h, err := m.makeHit(s1, s2)
			if err != nil {
				return crosses, err
			}
			if h != nil {
				crosses = append(crosses, h)
			}
		}
	}
	return crosses, nil
}

func (m *StereoHitMaker) makeHit(s1, s2 *Strip) (*Hit, error) {
	if !m.checkCross(s1, s2) {
		return nil, nil
	}
	h, err := NewCross(s1, s2, m.epsParallel, m.epsStereoAngle)
	if err != nil {
		return nil, fmt.Errorf("stereo pair %s%d: %w", s1.Detector(), s1.Layer(), err)
	}
	for _, p := range truth.Intersect(s1.Truth(), s2.Truth()) {
		h.AddTruth(p)
	}
	return h, nil
}

// checkCross applies the pairing cuts in order of cost.
func (m *StereoHitMaker) checkCross(s1, s2 *Strip) bool {
	if s1.BarrelEndcapFlag() != s2.BarrelEndcapFlag() {
		return false
	}
	if r3.Norm(r3.Cross(s1.W(), s2.W())) > m.epsParallel {
		return false
	}
	salpha := V1DotU2(s1, s2)
	if math.Abs(salpha) < m.epsStereoAngle {
		return false
	}

	dp := r3.Sub(StripCenter(s1), StripCenter(s2))
	sep := math.Abs(r3.Dot(dp, s1.W()))
	if sep > m.maxSep {
		return false
	}

	// Near-perpendicular strips get almost no slack.
	tol := m.tolerance
	if math.Abs(salpha) > 0.99 {
		tol = 0.01
	}
	vtol := math.Abs(sep * tol / salpha)

	v1 := r3.Dot(dp, s2.U()) / salpha
	if v1 > s1.VMax()+vtol || v1 < s1.VMin()-vtol {
		return false
	}
	v2 := r3.Dot(dp, s1.U()) / salpha
	if v2 > s2.VMax()+vtol || v2 < s2.VMin()-vtol {
		return false
	}
	return true
}
