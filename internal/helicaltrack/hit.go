package helicaltrack

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/geom"
	"github.com/banshee-data/helicaltrack/internal/truth"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// polarEps floors σ(rφ), σ(r) and σ(z) so that weights stay finite.
const polarEps = 1e-2

// HitKind discriminates the hit variants. The numeric values are the type
// codes stored alongside hits.
type HitKind int

const (
	KindPixel      HitKind = 1
	KindAxialStrip HitKind = 2
	KindCross      HitKind = 3
)

func (k HitKind) String() string {
	switch k {
	case KindPixel:
		return "pixel"
	case KindAxialStrip:
		return "axial"
	case KindCross:
		return "cross"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// RawHit is a digitised readout that one or more hits were built from.
// Hits refer to raw hits by pointer and deduplicate them by identity.
type RawHit struct {
	CellID uint64
	ADC    int32
	Time   float64
}

// HitInfo carries the bookkeeping shared by every hit variant.
type HitInfo struct {
	DEdx     float64
	Time     float64
	RawHits  []*RawHit
	Detector string
	Layer    int
	Flag     detector.BarrelEndcapFlag
}

// Correction is the track-dependent view of a hit: its corrected position
// and covariance together with the polar quantities derived from them.
// A Correction is never modified once built.
type Correction struct {
	Position r3.Vec
	Cov      *mat.SymDense
	R        float64
	Phi      float64
	DRPhi    float64
	DR       float64
	Chisq    float64
}

func newCorrection(pos r3.Vec, cov mat.Symmetric, chisq float64) *Correction {
	c := &Correction{
		Position: pos,
		Cov:      geom.CloneSym(cov),
		R:        math.Hypot(pos.X, pos.Y),
		Phi:      math.Atan2(pos.Y, pos.X),
		DRPhi:    drphiCalc(pos, cov),
		DR:       drCalc(pos, cov),
		Chisq:    chisq,
	}
	if c.Phi < 0 {
		c.Phi += 2 * math.Pi
	}
	// NaN fails the comparison as well.
	if !(c.DR > polarEps) {
		c.DR = polarEps
	}
	if !(c.DRPhi > polarEps) {
		c.DRPhi = polarEps
	}
	return c
}

func drphiCalc(pos r3.Vec, cov mat.Symmetric) float64 {
	x, y := pos.X, pos.Y
	r2 := x*x + y*y
	return math.Sqrt((y*y*cov.At(0, 0) + x*x*cov.At(1, 1) - 2*x*y*cov.At(0, 1)) / r2)
}

func drCalc(pos r3.Vec, cov mat.Symmetric) float64 {
	x, y := pos.X, pos.Y
	r2 := x*x + y*y
	return math.Sqrt((x*x*cov.At(0, 0) + y*y*cov.At(1, 1) + 2*x*y*cov.At(0, 1)) / r2)
}

type axialExtent struct {
	zmin, zmax float64
}

type crossPair struct {
	strip1, strip2 *Strip
	// helix last used to correct the cross. Not owned; compared by
	// identity only to skip recomputation.
	helix *Fit
}

// Hit is a space point used by the fitter. It is one of three kinds:
// a pixel with a full 3D measurement, an axial strip that only bounds z,
// or a stereo cross built from two strips.
type Hit struct {
	kind HitKind

	pos r3.Vec
	cov *mat.SymDense
	cor *Correction

	info  HitInfo
	truth []*truth.Particle

	dz    float64
	axial axialExtent
	cross *crossPair
}

func newHit(kind HitKind, pos r3.Vec, cov mat.Symmetric, info HitInfo) *Hit {
	h := &Hit{
		kind: kind,
		pos:  pos,
		cov:  geom.CloneSym(cov),
		info: info,
	}
	h.info.RawHits = append([]*RawHit(nil), info.RawHits...)
	h.cor = newCorrection(pos, h.cov, 0)
	return h
}

// NewPixelHit builds a hit with a full 3D position measurement.
func NewPixelHit(pos r3.Vec, cov mat.Symmetric, info HitInfo) *Hit {
	h := newHit(KindPixel, pos, cov, info)
	h.dz = math.Sqrt(cov.At(2, 2))
	if !(h.dz > polarEps) {
		h.dz = polarEps
	}
	return h
}

// NewAxialStripHit builds a hit from a strip that measures the bend plane
// only. z is known to lie within [zmin, zmax].
func NewAxialStripHit(pos r3.Vec, cov mat.Symmetric, info HitInfo, zmin, zmax float64) (*Hit, error) {
	if zmin > zmax {
		return nil, fmt.Errorf("%w: zmin=%g zmax=%g", ErrAxialBounds, zmin, zmax)
	}
	h := newHit(KindAxialStrip, pos, cov, info)
	h.axial = axialExtent{zmin: zmin, zmax: zmax}
	return h, nil
}

// Kind returns the hit variant.
func (h *Hit) Kind() HitKind { return h.kind }

// Type returns the integer type code of the hit variant.
func (h *Hit) Type() int { return int(h.kind) }

// X, Y and Z return the corrected coordinates.
func (h *Hit) X() float64 { return h.cor.Position.X }
func (h *Hit) Y() float64 { return h.cor.Position.Y }
func (h *Hit) Z() float64 { return h.cor.Position.Z }

// R, Phi, DRPhi and DR return the corrected cylindrical radius, azimuth
// and the resolutions in rφ and r.
func (h *Hit) R() float64     { return h.cor.R }
func (h *Hit) Phi() float64   { return h.cor.Phi }
func (h *Hit) DRPhi() float64 { return h.cor.DRPhi }
func (h *Hit) DR() float64    { return h.cor.DR }

// Chisq returns the penalty carried by the hit. Only crosses corrected
// for a track direction have a non-zero penalty.
func (h *Hit) Chisq() float64 { return h.cor.Chisq }

// Position returns the nominal position.
func (h *Hit) Position() r3.Vec { return h.pos }

// Covariance returns the nominal covariance. It must not be modified.
func (h *Hit) Covariance() mat.Symmetric { return h.cov }

// CorrectedPosition returns the position after any track-direction
// correction. It equals Position for pixels and axial strips.
func (h *Hit) CorrectedPosition() r3.Vec { return h.cor.Position }

// CorrectedCovariance returns the corrected covariance. It must not be
// modified.
func (h *Hit) CorrectedCovariance() mat.Symmetric { return h.cor.Cov }

// Correction returns the current correction snapshot.
func (h *Hit) Correction() *Correction { return h.cor }

// DEdx, Time, RawHits, Detector and Layer return the measurement
// metadata the hit was built with. Info returns all of it.
func (h *Hit) DEdx() float64      { return h.info.DEdx }
func (h *Hit) Time() float64      { return h.info.Time }
func (h *Hit) RawHits() []*RawHit { return h.info.RawHits }
func (h *Hit) Detector() string   { return h.info.Detector }
func (h *Hit) Layer() int         { return h.info.Layer }
func (h *Hit) Info() HitInfo      { return h.info }

// BarrelEndcapFlag returns the barrel or endcap region of the hit.
func (h *Hit) BarrelEndcapFlag() detector.BarrelEndcapFlag { return h.info.Flag }

// LayerIdentifier returns the detector name, layer and barrel/endcap flag
// joined into a single key.
func (h *Hit) LayerIdentifier() string {
	return h.info.Detector + strconv.Itoa(h.info.Layer) + h.info.Flag.String()
}

// Truth returns the simulated particles associated with the hit.
func (h *Hit) Truth() []*truth.Particle { return h.truth }

// AddTruth associates p with the hit unless it is already present.
func (h *Hit) AddTruth(p *truth.Particle) {
	h.truth = truth.AppendUnique(h.truth, p)
}

// Less orders hits by corrected z.
func (h *Hit) Less(other *Hit) bool {
	return h.cor.Position.Z < other.cor.Position.Z
}

// DZ returns the z resolution of a pixel hit and 0 for other kinds.
func (h *Hit) DZ() float64 {
	if h.kind != KindPixel {
		return 0
	}
	return h.dz
}

// ZMin returns the lower z bound of an axial strip hit.
func (h *Hit) ZMin() float64 { return h.axial.zmin }

// ZMax returns the upper z bound of an axial strip hit.
func (h *Hit) ZMax() float64 { return h.axial.zmax }

// Strips returns the two strips of a cross, or nil for other kinds.
func (h *Hit) Strips() []*Strip {
	if h.cross == nil {
		return nil
	}
	return []*Strip{h.cross.strip1, h.cross.strip2}
}

func (h *Hit) addRawHit(r *RawHit) {
	for _, have := range h.info.RawHits {
		if have == r {
			return
		}
	}
	h.info.RawHits = append(h.info.RawHits, r)
}

func (h *Hit) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "HelicalTrackHit (%s):\n", h.kind)
	fmt.Fprintf(&b, "Layer Identifier= %s\n", h.LayerIdentifier())
	fmt.Fprintf(&b, "Position= (%g, %g, %g)\n", h.X(), h.Y(), h.Z())
	fmt.Fprintf(&b, "Covariance= %v\n", geom.Packed(h.cor.Cov))
	fmt.Fprintf(&b, "dE/dx= %g\n", h.info.DEdx)
	fmt.Fprintf(&b, "Time= %g\n", h.info.Time)
	return b.String()
}

// SortByZ orders hits by corrected z in place.
func SortByZ(hits []*Hit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Less(hits[j]) })
}
