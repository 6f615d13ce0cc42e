package helicaltrack

import (
	"fmt"
	"math"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/truth"
	"gonum.org/v1/gonum/spatial/r3"
)

const stripEps = 1e-10

// Strip is a one-dimensional measurement on a planar sensor. The measured
// coordinate runs along u, the unmeasured one along v, and w = u×v is the
// sensor normal oriented away from the coordinate origin. After
// construction the origin is the strip midpoint, so vmin = -vmax.
type Strip struct {
	origin r3.Vec
	u, v   r3.Vec
	w      r3.Vec

	umeas float64
	du    float64
	vmin  float64
	vmax  float64

	info  HitInfo
	truth []*truth.Particle
}

// NewStrip builds a strip measurement. u and v need not be normalised.
// The bounds vmin and vmax may be given in either order.
func NewStrip(origin, u, v r3.Vec, umeas, du, vmin, vmax float64, info HitInfo) (*Strip, error) {
	s := &Strip{
		origin: origin,
		u:      r3.Unit(u),
		v:      r3.Unit(v),
		umeas:  umeas,
		du:     du,
		vmin:   vmin,
		vmax:   vmax,
		info:   info,
	}

	vmiddle := 0.5 * (s.vmin + s.vmax)
	if math.Abs(vmiddle) > stripEps {
		s.origin = r3.Add(s.origin, r3.Scale(vmiddle, s.v))
		s.vmin -= vmiddle
		s.vmax -= vmiddle
	}
	if s.vmin > s.vmax {
		s.vmin, s.vmax = s.vmax, s.vmin
	}

	s.w = r3.Cross(s.u, s.v)
	if r3.Dot(s.w, s.origin) < 0 {
		s.v = r3.Scale(-1, s.v)
		s.vmin, s.vmax = -s.vmax, -s.vmin
		s.w = r3.Cross(s.u, s.v)
	}

	if math.Abs(s.vmin+s.vmax) > 2*stripEps {
		return nil, fmt.Errorf("%w: vmin=%g vmax=%g", ErrStripBounds, s.vmin, s.vmax)
	}
	return s, nil
}

// Origin returns the strip midpoint.
func (s *Strip) Origin() r3.Vec { return s.origin }

// U returns the unit measurement direction.
func (s *Strip) U() r3.Vec { return s.u }

// V returns the unit direction along the strip.
func (s *Strip) V() r3.Vec { return s.v }

// W returns the outward sensor normal.
func (s *Strip) W() r3.Vec { return s.w }

func (s *Strip) UMeas() float64 { return s.umeas }
func (s *Strip) DU() float64    { return s.du }
func (s *Strip) VMin() float64  { return s.vmin }
func (s *Strip) VMax() float64  { return s.vmax }

func (s *Strip) DEdx() float64                               { return s.info.DEdx }
func (s *Strip) Time() float64                               { return s.info.Time }
func (s *Strip) RawHits() []*RawHit                          { return s.info.RawHits }
func (s *Strip) Detector() string                            { return s.info.Detector }
func (s *Strip) Layer() int                                  { return s.info.Layer }
func (s *Strip) BarrelEndcapFlag() detector.BarrelEndcapFlag { return s.info.Flag }

// Truth returns the simulated particles associated with the strip.
func (s *Strip) Truth() []*truth.Particle { return s.truth }

// AddTruth associates p with the strip unless it is already present.
func (s *Strip) AddTruth(p *truth.Particle) {
	s.truth = truth.AppendUnique(s.truth, p)
}

func (s *Strip) String() string {
	return fmt.Sprintf("HelicalTrackStrip: origin=%v u=%v v=%v umeas=%g du=%g v=[%g, %g] layer=%s%d%s",
		s.origin, s.u, s.v, s.umeas, s.du, s.vmin, s.vmax, s.info.Detector, s.info.Layer, s.info.Flag)
}
