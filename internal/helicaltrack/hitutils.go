package helicaltrack

import (
	"math"

	"github.com/banshee-data/helicaltrack/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const dotEps = 1e-6

var sqrt12 = math.Sqrt(12)

// PixelToStrip turns hit into an axial strip spanning z ± tolerance·σz so
// that it can join a z-segment fit. The new hit inherits the path length
// of hit in smap.
func PixelToStrip(hit *Hit, smap PathMap, msmap ScatterMap, helix *Fit, tolerance float64) (*Hit, error) {
	dz := ZRes(hit, msmap, helix)
	zmin := hit.Z() - tolerance*dz
	zmax := hit.Z() + tolerance*dz
	strip, err := NewAxialStripHit(hit.CorrectedPosition(), hit.CorrectedCovariance(), hit.Info(), zmin, zmax)
	if err != nil {
		return nil, err
	}
	strip.truth = append(strip.truth, hit.truth...)
	if s, ok := smap[hit]; ok {
		smap[strip] = s
	}
	return strip, nil
}

// StripCenter returns the measured point at the middle of the strip.
func StripCenter(s *Strip) r3.Vec {
	return r3.Add(s.Origin(), r3.Scale(s.UMeas(), s.U()))
}

// StripCovariance returns the bend-plane covariance of a strip measured in
// the azimuthal direction.
func StripCovariance(s *Strip) *mat.SymDense {
	pos := StripCenter(s)
	x, y := pos.X, pos.Y
	r2 := x*x + y*y
	du2 := s.DU() * s.DU()
	return geom.Sym3(y*y*du2/r2, -x*y*du2/r2, x*x*du2/r2, 0, 0, 0)
}

// PixelCovariance builds a covariance from an rφ resolution at (x, y).
// dzz is stored as the z-z element directly.
func PixelCovariance(x, y, drphi, dzz float64) *mat.SymDense {
	r2 := x*x + y*y
	d2 := drphi * drphi
	return geom.Sym3(y*y*d2/r2, -x*y*d2/r2, x*x*d2/r2, 0, 0, dzz)
}

// ZRes returns the z uncertainty of hit including multiple scattering.
// Endcap hits measure r rather than z, so σr is projected with the track
// slope: that of helix when it is significant, otherwise z/r.
func ZRes(hit *Hit, msmap ScatterMap, helix *Fit) float64 {
	var dzms float64
	if ms, ok := msmap[hit]; ok {
		dzms = ms.DZ
	}
	if hit.BarrelEndcapFlag().IsBarrel() {
		return math.Sqrt(hit.CorrectedCovariance().At(2, 2) + dzms*dzms)
	}
	slope := hit.Z() / hit.R()
	if helix != nil && math.Abs(helix.Slope()) > helix.SlopeError() {
		slope = helix.Slope()
	}
	dzres := hit.DR() * math.Abs(slope)
	return math.Sqrt(dzres*dzres + dzms*dzms)
}

// nonZeroDot returns a·b with magnitudes below 1e-6 pushed out to ±1e-6.
func nonZeroDot(a, b r3.Vec) float64 {
	d := r3.Dot(a, b)
	if math.Abs(d) < dotEps {
		if d < 0 {
			return -dotEps
		}
		return dotEps
	}
	return d
}

// PositionFromOrigin returns the stereo crossing point assuming a straight
// track from the coordinate origin.
func PositionFromOrigin(s1, s2 *Strip) r3.Vec {
	gamma := r3.Dot(s2.Origin(), s2.W()) / nonZeroDot(s1.Origin(), s1.W())
	salpha := SinAlpha(s1, s2)
	p1 := StripCenter(s1)
	p2 := StripCenter(s2)
	dp := r3.Sub(p2, r3.Scale(gamma, p1))
	v1 := r3.Dot(dp, s2.U()) / (gamma * salpha)
	v1 = math.Max(s1.VMin(), math.Min(s1.VMax(), v1))
	r1 := r3.Add(p1, r3.Scale(v1, s1.V()))
	return r3.Scale(0.5*(1+gamma), r1)
}

// CovarianceFromOrigin returns the covariance of PositionFromOrigin. The
// unknown track angle adds a variance along each strip that grows with the
// plane separation, capped at a uniform distribution over the strip.
func CovarianceFromOrigin(s1, s2 *Strip) *mat.SymDense {
	gamma := r3.Dot(s2.Origin(), s2.W()) / nonZeroDot(s1.Origin(), s1.W())
	sep := SensorSeparation(s1, s2)
	salpha := SinAlpha(s1, s2)
	factor := (1 + gamma) * (1 + gamma) / (4 * salpha * salpha)
	du1, du2 := s1.DU(), s2.DU()

	dv := math.Abs(2 * sep / (sqrt12 * salpha))
	dv1 := math.Min(dv, (s1.VMax()-s1.VMin())/sqrt12)
	dv2 := math.Min(dv, (s2.VMax()-s2.VMin())/sqrt12)

	return geom.Sum(
		geom.Outer(factor*du2*du2+0.25*dv1*dv1, s1.V()),
		geom.Outer(factor*du1*du1+0.25*dv2*dv2, s2.V()),
	)
}

// helixOffset returns the separation between the strip centres once the
// track has travelled across the gap along dir, and that travel length.
func helixOffset(dir r3.Vec, s1, s2 *Strip) (dp r3.Vec, gamma float64) {
	gamma = SensorSeparation(s1, s2) / nonZeroDot(s1.W(), dir)
	p1 := StripCenter(s1)
	p2 := StripCenter(s2)
	return r3.Sub(p2, r3.Add(p1, r3.Scale(gamma, dir))), gamma
}

// PositionOnHelix returns the stereo crossing point for a track with the
// given local direction, taken midway between the two sensor planes.
func PositionOnHelix(td TrackDirection, s1, s2 *Strip) r3.Vec {
	dir := td.Direction()
	dp, gamma := helixOffset(dir, s1, s2)
	v1 := r3.Dot(dp, s2.U()) / SinAlpha(s1, s2)
	r1 := r3.Add(StripCenter(s1), r3.Scale(v1, s1.V()))
	return r3.Add(r1, r3.Scale(0.5*gamma, dir))
}

// CovarianceOnHelix returns the covariance of PositionOnHelix, propagating
// the helix covariance hcov through the direction derivatives.
func CovarianceOnHelix(td TrackDirection, hcov mat.Symmetric, s1, s2 *Strip) *mat.SymDense {
	dir := td.Direction()
	pcv1 := r3.Cross(dir, s1.V())
	pcv2 := r3.Cross(dir, s2.V())
	pdotw := nonZeroDot(dir, s1.W())
	salpha := SinAlpha(s1, s2)
	factor := SensorSeparation(s1, s2) / (2 * salpha * pdotw * pdotw)

	d := mat.NewDense(3, 3, nil)
	var part mat.Dense
	d.Outer(factor, geom.VecDense(s1.V()), geom.VecDense(pcv2))
	part.Outer(factor, geom.VecDense(s2.V()), geom.VecDense(pcv1))
	d.Add(d, &part)

	var dh mat.Dense
	dh.Mul(d, td.Derivatives())
	covDir := geom.Sandwich(&dh, hcov)

	du1, du2 := s1.DU(), s2.DU()
	sa2 := salpha * salpha
	return geom.Sum(
		covDir,
		geom.Outer(du1*du1/sa2, s2.V()),
		geom.Outer(du2*du2/sa2, s1.V()),
	)
}

// UnmeasuredCoordinate returns the coordinate along s1 at which a track
// with direction td crosses it, given the measurement on s2.
func UnmeasuredCoordinate(td TrackDirection, s1, s2 *Strip) float64 {
	dp, _ := helixOffset(td.Direction(), s1, s2)
	return r3.Dot(dp, s2.U()) / SinAlpha(s1, s2)
}

// DV returns the uncertainty on UnmeasuredCoordinate.
func DV(td TrackDirection, hcov mat.Symmetric, s1, s2 *Strip) float64 {
	dir := td.Direction()
	u1dotu2 := r3.Dot(s1.U(), s2.U())
	pdotw := nonZeroDot(dir, s1.W())
	salpha := SinAlpha(s1, s2)
	factor := SensorSeparation(s1, s2) / (salpha * pdotw * pdotw)

	dh := geom.RowTimes(r3.Scale(factor, r3.Cross(dir, s2.V())), td.Derivatives())
	a := u1dotu2 * s1.DU()
	dvsq := (a*a + s2.DU()*s2.DU()) / (salpha * salpha)
	return math.Sqrt(dvsq + geom.Quadratic(dh, hcov))
}

// SensorSeparation returns the distance from the plane of s1 to the origin
// of s2 along the normal of s1.
func SensorSeparation(s1, s2 *Strip) float64 {
	return r3.Dot(s1.W(), r3.Sub(s2.Origin(), s1.Origin()))
}

// V1DotU2 returns v1·u2.
func V1DotU2(s1, s2 *Strip) float64 {
	return r3.Dot(s1.V(), s2.U())
}

// SinAlpha returns the sine of the stereo angle between the strips.
func SinAlpha(s1, s2 *Strip) float64 { return V1DotU2(s1, s2) }
