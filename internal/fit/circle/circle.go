// Package circle implements the Karimäki weighted least-squares circle fit.
//
// The fit returns curvature, direction and signed distance of closest
// approach relative to a reference point, along with the packed lower
// triangle of their covariance in the order
// (ρρ, ρφ, φφ, ρd, φd, dd).
//
// The DCA sign is opposite to the L3 helix convention: the point of closest
// approach is (xref + d·sinφ, yref − d·cosφ) and the centre lies a further
// 1/ρ along the same direction.
package circle

import (
	"fmt"
	"math"
)

// Packed covariance indices.
const (
	CurvCurv = iota
	CurvPhi
	PhiPhi
	CurvDCA
	PhiDCA
	DCADCA
)

// Fit is the result of a circle fit.
type Fit struct {
	XRef      float64
	YRef      float64
	Curvature float64
	Phi       float64
	DCA       float64
	Chisq     float64
	Cov       [6]float64
}

// Center returns the circle centre implied by the fit.
func (f Fit) Center() (x, y float64) {
	d := 1./f.Curvature + f.DCA
	return f.XRef + d*math.Sin(f.Phi), f.YRef - d*math.Cos(f.Phi)
}

// PCA returns the point of closest approach to the reference point.
func (f Fit) PCA() (x, y float64) {
	return f.XRef + f.DCA*math.Sin(f.Phi), f.YRef - f.DCA*math.Cos(f.Phi)
}

func (f Fit) String() string {
	return fmt.Sprintf("CircleFit: ref=(%g, %g) curvature=%g phi=%g dca=%g chisq=%g cov=%v",
		f.XRef, f.YRef, f.Curvature, f.Phi, f.DCA, f.Chisq, f.Cov)
}

// Fitter holds the state of the most recent fit so that it can be
// propagated to a new reference point afterwards.
type Fitter struct {
	xref, yref float64
	rho        float64
	phi        float64
	dca        float64
	chicir     float64
	xpca, ypca float64
	cov        [6]float64
	xx0, yy0   float64

	s1, s2, s3, s4, s5, s6, s7, s8, s9 float64
}

// NewFitter returns a fitter referenced to the origin.
func NewFitter() *Fitter {
	return &Fitter{}
}

// SetReferencePosition sets the point the next fit is expressed about.
func (c *Fitter) SetReferencePosition(x, y float64) {
	c.xref = x
	c.yref = y
}

// ReferencePosition returns the current reference point.
func (c *Fitter) ReferencePosition() (x, y float64) {
	return c.xref, c.yref
}

// Fit fits a circle to the points (x[i], y[i]) with weights w[i] = 1/σ².
// It reports false when there are fewer than three points or the
// normal equations are degenerate.
func (c *Fitter) Fit(x, y, w []float64) bool {
	np := len(x)
	if np < 3 || len(y) < np || len(w) < np {
		return false
	}

	c.s1, c.s2, c.s3, c.s4, c.s5, c.s6, c.s7, c.s8, c.s9 = 0, 0, 0, 0, 0, 0, 0, 0, 0

	// Local origin a third of the way along the point list; the first point
	// fixes the direction of travel.
	m3 := np / 3
	c.xx0 = x[m3]
	c.yy0 = y[m3]
	dirtx := c.xx0 - x[0]
	dirty := c.yy0 - y[0]

	for i := 0; i < np; i++ {
		xc := x[i] - c.xx0
		yc := y[i] - c.yy0
		wt := w[i]
		wx := wt * xc
		wy := wt * yc
		rr := xc*xc + yc*yc
		wr := wt * rr
		c.s1 += wt
		c.s2 += wx
		c.s3 += wy
		c.s4 += wx * xc
		c.s5 += wx * yc
		c.s6 += wy * yc
		c.s7 += wx * rr
		c.s8 += wy * rr
		c.s9 += wr * rr
	}
	if c.s1 < 0. {
		return false
	}

	s1i := 1. / c.s1
	sr := c.s4 + c.s6
	hsr := 0.5 * sr
	xmean := s1i * c.s2
	ymean := s1i * c.s3
	rrmean := s1i * sr
	cov1 := s1i * (c.s4 - c.s2*xmean)
	cov2 := s1i * (c.s5 - c.s2*ymean)
	cov3 := s1i * (c.s6 - c.s3*ymean)
	cov4 := s1i * (c.s7 - c.s2*rrmean)
	cov5 := s1i * (c.s8 - c.s3*rrmean)
	cov6 := s1i * (c.s9 - sr*rrmean)
	if cov6 < 0. {
		return false
	}

	y2fi := 2. * (cov2*cov6 - cov4*cov5)
	x2fi := cov6*(cov1-cov3) - cov4*cov4 + cov5*cov5
	fifit := 0.5 * math.Atan2(y2fi, x2fi)
	cosf := math.Cos(fifit)
	sinf := math.Sin(fifit)
	hapfit := (sinf*cov4 - cosf*cov5) / cov6
	delfit := -hapfit*rrmean + sinf*xmean - cosf*ymean
	apu := math.Sqrt(1. - 4.*hapfit*delfit)
	if math.IsNaN(apu) || apu == 0 {
		return false
	}
	rhof := 2. * hapfit / apu
	dft := 2. * delfit / (1. + apu)
	rod1 := 1. / apu
	rod2 := rod1 * rod1
	sinf2 := sinf * sinf
	cosf2 := cosf * cosf
	sinff := 2. * sinf * cosf
	sa := sinf*c.s2 - cosf*c.s3
	saa := sinf2*c.s4 - sinff*c.s5 + cosf2*c.s6
	sxyr := sinf*c.s7 - cosf*c.s8

	c.rho = rhof
	c.phi = fifit
	c.dca = dft
	c.chicir = rod2 * (-delfit*sa - hapfit*sxyr + saa)
	c.xpca = c.xx0 + c.dca*sinf
	c.ypca = c.yy0 - c.dca*cosf

	// Error estimation for (ρ, φ, d).
	sb := cosf*c.s2 + sinf*c.s3
	sg := (sinf2-cosf2)*c.s5 + sinf*cosf*(c.s4-c.s6)
	w1 := .25*c.s9 - dft*(sxyr-dft*(saa+hsr-dft*(sa-.25*dft*c.s1)))
	w2 := -rod1 * (0.5*(cosf*c.s7+sinf*c.s8) - dft*(sg-0.5*dft*sb))
	w3 := rod2 * (cosf2*c.s4 + sinff*c.s5 + sinf2*c.s6)
	w4 := rhof*(-0.5*sxyr+dft*saa) + rod1*hsr - 0.5*dft*((2.*rod1+rhof*dft)*sa-dft*rod1*c.s1)
	w5 := rod1*rhof*sg - rod2*sb
	w6 := rhof*(rhof*saa-2.*rod1*sa) + rod2*c.s1
	sd1 := w3*w6 - w5*w5
	sd2 := -w2*w6 + w4*w5
	sd3 := w2*w5 - w3*w4
	detinv := 1. / (w1*sd1 + w2*sd2 + w4*sd3)
	c.cov[0] = detinv * sd1
	c.cov[1] = detinv * sd2
	c.cov[2] = detinv * (w1*w6 - w4*w4)
	c.cov[3] = detinv * sd3
	c.cov[4] = detinv * (w2*w4 - w1*w5)
	c.cov[5] = detinv * (w1*w3 - w2*w2)

	// First-order correction of the parameters.
	xdero := 0.5 * (rhof*sxyr - 2.*rod1*saa + (1.+rod1)*dft*sa)
	edero := dft * xdero
	ededi := rhof * xdero
	c.rho += c.cov[0]*edero + c.cov[3]*ededi
	c.phi += c.cov[1]*edero + c.cov[4]*ededi
	c.dca += c.cov[3]*edero + c.cov[5]*ededi
	c.chicir = (1. + c.rho*c.dca) * (1. + c.rho*c.dca) * c.chicir / rod2

	c.propagate(c.xref, c.yref, sinf, cosf, dirtx, dirty)
	return true
}

// Result returns the most recent fit.
func (c *Fitter) Result() Fit {
	return Fit{
		XRef:      c.xref,
		YRef:      c.yref,
		Curvature: c.rho,
		Phi:       c.phi,
		DCA:       c.dca,
		Chisq:     c.chicir,
		Cov:       c.cov,
	}
}

// PropagateFit moves the most recent fit to the reference point (x, y)
// and returns it. The direction of travel is preserved.
func (c *Fitter) PropagateFit(x, y float64) Fit {
	sinf := math.Sin(c.phi)
	cosf := math.Cos(c.phi)
	c.propagate(x, y, sinf, cosf, cosf, sinf)
	return c.Result()
}

func (c *Fitter) propagate(x, y, sinf, cosf, dirtx, dirty float64) {
	c.SetReferencePosition(x, y)
	xmove := c.xpca - c.xref
	ymove := c.ypca - c.yref
	rod1 := 1. + c.rho*c.dca
	dperp := xmove*sinf - ymove*cosf
	dpara := xmove*cosf + ymove*sinf
	zee := dperp*dperp + dpara*dpara
	aa := 2.*dperp + c.rho*zee
	uu := math.Sqrt(1. + c.rho*aa)
	sq1ai := 1. / (1. + uu)
	bb := c.rho*xmove + sinf
	cc := -c.rho*ymove + cosf
	c.phi = math.Atan2(bb, cc)
	c.dca = aa * sq1ai

	vv := 1. + c.rho*dperp
	xee := 1. / (cc*cc + bb*bb)
	xla := 0.5 * aa * sq1ai * sq1ai / uu
	xmu := sq1ai/uu + c.rho*xla
	var jac [9]float64
	jac[0] = 1.
	jac[3] = xee * dpara
	jac[4] = xee * rod1 * vv
	jac[5] = -jac[3] * c.rho * c.rho
	jac[6] = xmu*zee - xla*aa
	jac[7] = 2. * xmu * rod1 * dpara
	jac[8] = 2. * xmu * vv
	c.cov = sandwich(jac, c.cov)

	sinf = math.Sin(c.phi)
	cosf = math.Cos(c.phi)

	if cosf*dirtx+sinf*dirty < 0. {
		c.phi += math.Pi
		cosf = -cosf
		sinf = -sinf
		c.dca = -c.dca
		c.rho = -c.rho
		c.cov[CurvPhi] = -c.cov[CurvPhi]
		c.cov[PhiDCA] = -c.cov[PhiDCA]
	}
	if c.phi >= 2.*math.Pi {
		c.phi -= 2. * math.Pi
	}
	if c.phi < 0. {
		c.phi += 2. * math.Pi
	}
	c.xpca = c.xref + c.dca*sinf
	c.ypca = c.yref - c.dca*cosf
}

// sandwich returns A·B·Aᵀ for a row-major 3x3 A and a packed symmetric B.
func sandwich(a [9]float64, b [6]float64) [6]float64 {
	e1 := a[0]*b[0] + a[1]*b[1] + a[2]*b[3]
	e2 := a[0]*b[1] + a[1]*b[2] + a[2]*b[4]
	e3 := a[0]*b[3] + a[1]*b[4] + a[2]*b[5]
	e4 := a[3]*b[0] + a[4]*b[1] + a[5]*b[3]
	e5 := a[3]*b[1] + a[4]*b[2] + a[5]*b[4]
	e6 := a[3]*b[3] + a[4]*b[4] + a[5]*b[5]
	e7 := a[6]*b[0] + a[7]*b[1] + a[8]*b[3]
	e8 := a[6]*b[1] + a[7]*b[2] + a[8]*b[4]
	e9 := a[6]*b[3] + a[7]*b[4] + a[8]*b[5]
	return [6]float64{
		a[0]*e1 + a[1]*e2 + a[2]*e3,
		a[3]*e1 + a[4]*e2 + a[5]*e3,
		a[3]*e4 + a[4]*e5 + a[5]*e6,
		a[6]*e1 + a[7]*e2 + a[8]*e3,
		a[6]*e4 + a[7]*e5 + a[8]*e6,
		a[6]*e7 + a[7]*e8 + a[8]*e9,
	}
}
