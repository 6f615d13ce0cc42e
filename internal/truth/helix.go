package truth

import (
	"math"

	"github.com/banshee-data/helicaltrack/internal/units"
	"gonum.org/v1/gonum/spatial/r3"
)

// Helix holds the ideal helix parameters of a charged particle in a
// uniform solenoidal field, using the same sign conventions as the fitter.
type Helix struct {
	DCA       float64
	Phi0      float64
	Omega     float64
	Z0        float64
	TanLambda float64

	Radius    float64
	P         float64
	PT        float64
	Theta     float64
	ArcLength float64
	X0, Y0    float64
}

// HelixFor computes the helix of p in a field of bfield tesla.
func HelixFor(p *Particle, bfield float64) Helix {
	return HelixFromMomentum(p.Momentum, p.Origin, p.Charge, bfield)
}

// HelixFromMomentum computes the helix for a momentum/origin/charge triple.
func HelixFromMomentum(mom, origin r3.Vec, charge, bfield float64) Helix {
	var h Helix
	h.PT = math.Hypot(mom.X, mom.Y)
	h.P = math.Sqrt(h.PT*h.PT + mom.Z*mom.Z)
	h.Theta = math.Acos(mom.Z / h.P)
	h.Radius = charge * h.PT / (units.FieldConversion * bfield)
	h.Omega = 1. / h.Radius
	h.TanLambda = mom.Z / h.PT

	phi := math.Atan2(mom.Y, mom.X)
	xc := origin.X + h.Radius*math.Sin(phi)
	yc := origin.Y - h.Radius*math.Cos(phi)
	rc := math.Hypot(xc, yc)
	if charge > 0 {
		h.DCA = h.Radius - rc
	} else {
		h.DCA = h.Radius + rc
	}

	h.Phi0 = math.Atan2(xc/(h.Radius-h.DCA), -yc/(h.Radius-h.DCA))
	if h.Phi0 < 0 {
		h.Phi0 += units.TwoPi
	}
	h.X0 = -h.DCA * math.Sin(h.Phi0)
	h.Y0 = h.DCA * math.Cos(h.Phi0)
	h.ArcLength = (origin.X-h.X0)*math.Cos(h.Phi0) + (origin.Y-h.Y0)*math.Sin(h.Phi0)
	h.Z0 = origin.Z - h.ArcLength*h.TanLambda
	return h
}
