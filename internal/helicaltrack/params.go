package helicaltrack

import "fmt"

// Parameter indices into the helix covariance matrix. The ordering is
// shared with every consumer of a fit and must not change.
const (
	DCAIndex = iota
	Phi0Index
	CurvatureIndex
	Z0Index
	SlopeIndex

	NParams
)

// Params are the five helix parameters.
type Params struct {
	DCA       float64
	Phi0      float64
	Curvature float64
	Z0        float64
	Slope     float64
}

// ParamsFromVector unpacks a parameter vector in index order.
func ParamsFromVector(v [NParams]float64) Params {
	return Params{
		DCA:       v[DCAIndex],
		Phi0:      v[Phi0Index],
		Curvature: v[CurvatureIndex],
		Z0:        v[Z0Index],
		Slope:     v[SlopeIndex],
	}
}

// Vector returns the parameters in index order.
func (p Params) Vector() [NParams]float64 {
	var v [NParams]float64
	v[DCAIndex] = p.DCA
	v[Phi0Index] = p.Phi0
	v[CurvatureIndex] = p.Curvature
	v[Z0Index] = p.Z0
	v[SlopeIndex] = p.Slope
	return v
}

// At returns the parameter with index i. It panics for an index outside
// [0, NParams).
func (p Params) At(i int) float64 {
	switch i {
	case DCAIndex:
		return p.DCA
	case Phi0Index:
		return p.Phi0
	case CurvatureIndex:
		return p.Curvature
	case Z0Index:
		return p.Z0
	case SlopeIndex:
		return p.Slope
	}
	panic(fmt.Sprintf("helicaltrack: parameter index %d out of range", i))
}

func (p Params) String() string {
	return fmt.Sprintf("d0=%g phi0=%g curvature=%g z0=%g tanLambda=%g",
		p.DCA, p.Phi0, p.Curvature, p.Z0, p.Slope)
}
