package helicaltrack

import (
	"fmt"
	"math"

	"github.com/banshee-data/helicaltrack/internal/fit/circle"
	"github.com/banshee-data/helicaltrack/internal/units"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	minSlope = 1e-6
	// maxPath bounds the arc length searched for plane and polygon
	// intersections.
	maxPath = 2400.
	// planeEps is the z component above which a plane normal is not
	// considered transverse, and the angular tolerance for polygon tests.
	planeEps = 0.01
	// aspectTol is the covariance aspect ratio below which a hit is taken
	// to measure only one of x and y.
	aspectTol = 1e-4
)

// Circle-fit geometry. The circle solver signs the DCA opposite to the
// helix convention.
func circleRC(cf circle.Fit) float64 { return 1. / cf.Curvature }

func circleXC(cf circle.Fit) float64 {
	return cf.XRef + (circleRC(cf)+cf.DCA)*math.Sin(cf.Phi)
}

func circleYC(cf circle.Fit) float64 {
	return cf.YRef - (circleRC(cf)+cf.DCA)*math.Cos(cf.Phi)
}

func circleX0(cf circle.Fit) float64 { return cf.XRef + cf.DCA*math.Sin(cf.Phi) }
func circleY0(cf circle.Fit) float64 { return cf.YRef - cf.DCA*math.Cos(cf.Phi) }

// PathLengthFromDCA returns the arc length along the fitted circle from the
// point of closest approach to hit.
func PathLengthFromDCA(cf circle.Fit, hit *Hit) float64 {
	pos := positionOnCircle(cf, hit)
	return PathCalc(circleXC(cf), circleYC(cf), circleRC(cf), circleX0(cf), circleY0(cf), pos.X, pos.Y)
}

// PathLengthBetween returns the arc length along the fitted circle from
// hit1 to hit2.
func PathLengthBetween(cf circle.Fit, hit1, hit2 *Hit) float64 {
	p1 := positionOnCircle(cf, hit1)
	p2 := positionOnCircle(cf, hit2)
	return PathCalc(circleXC(cf), circleYC(cf), circleRC(cf), p1.X, p1.Y, p2.X, p2.Y)
}

// PathLength returns the arc length of hit along the helix. Axial strips
// are measured from the point of closest approach; other hits are measured
// from the fitted non-axial hit nearest in z so that loopers keep the
// right turn count.
func PathLength(f *Fit, hit *Hit) float64 {
	path0 := PathCalc(f.XC(), f.YC(), f.R(), f.X0(), f.Y0(), hit.X(), hit.Y())
	if hit.Kind() == KindAxialStrip {
		return path0
	}
	var nearest *Hit
	for fh := range f.PathMap() {
		if fh.Kind() == KindAxialStrip {
			continue
		}
		if nearest == nil || math.Abs(hit.Z()-fh.Z()) < math.Abs(hit.Z()-nearest.Z()) {
			nearest = fh
		}
	}
	if nearest == nil {
		return path0
	}
	return f.PathMap()[nearest] + PathCalc(f.XC(), f.YC(), f.R(), nearest.X(), nearest.Y(), hit.X(), hit.Y())
}

// PathCalc returns the signed arc length from (x1, y1) to (x2, y2) on a
// circle of signed radius rc centred at (xc, yc). The turning angle is
// taken in (-π, π].
func PathCalc(xc, yc, rc, x1, y1, x2, y2 float64) float64 {
	phi1 := math.Atan2(y1-yc, x1-xc)
	phi2 := math.Atan2(y2-yc, x2-xc)
	return -rc * units.WrapDeltaPhi(phi2-phi1)
}

// positionOnCircle moves a hit that only measures one bend-plane coordinate
// onto the fitted circle along the unmeasured one.
func positionOnCircle(cf circle.Fit, hit *Hit) r3.Vec {
	pos := hit.CorrectedPosition()
	cov := hit.CorrectedCovariance()
	dxdx := cov.At(0, 0)
	dydy := cov.At(1, 1)
	if dxdx < aspectTol*dydy && dydy < aspectTol*dxdx {
		return pos
	}

	xc, yc := circleXC(cf), circleYC(cf)
	r := math.Abs(circleRC(cf))
	x, y := pos.X, pos.Y

	if aspectTol*dxdx > dydy && math.Abs(y-yc) < r {
		x1 := math.Sqrt(r*r-(y-yc)*(y-yc)) + xc
		x2 := 2*xc - x1
		if math.Abs(x1-x) < math.Abs(x2-x) {
			x = x1
		} else {
			x = x2
		}
	}
	if aspectTol*dydy > dxdx && math.Abs(x-xc) < r {
		y1 := math.Sqrt(r*r-(x-xc)*(x-xc)) + yc
		y2 := 2*yc - y1
		if math.Abs(y1-y) < math.Abs(y2-y) {
			y = y1
		} else {
			y = y2
		}
	}
	return r3.Vec{X: x, Y: y, Z: pos.Z}
}

// PathToZPlane returns the arc length at which the helix reaches z.
// Slopes smaller than 1e-6 in magnitude are clamped, keeping their sign.
func PathToZPlane(f *Fit, z float64) float64 {
	slope := f.Slope()
	if math.Abs(slope) < minSlope {
		slope = math.Copysign(minSlope, slope)
	}
	return (z - f.Z0()) / slope
}

// PathToXPlane returns the arc length to the first crossing of the plane
// at x. It returns nil when the circle does not reach the plane. smax and
// mxint are accepted for symmetry with PathToCylinder; only one crossing
// is reported.
func PathToXPlane(f *Fit, x, smax float64, mxint int) []float64 {
	rc := f.R()
	xc, yc := f.XC(), f.YC()
	d2 := rc*rc - (x-xc)*(x-xc)
	if d2 < 0 || mxint < 1 {
		return nil
	}
	y := yc + math.Copysign(math.Sqrt(d2), rc)
	return []float64{PathCalc(xc, yc, rc, f.X0(), f.Y0(), x, y)}
}

// PathToCylinder returns the arc lengths, in increasing order and below
// smax, at which the helix crosses a cylinder of radius r about the z
// axis. At most mxint crossings are returned.
func PathToCylinder(f *Fit, r, smax float64, mxint int) []float64 {
	var paths []float64
	dca := f.DCA()
	rc := f.R()
	cdphi := 1 - (r*r-dca*dca)/(2*rc*(rc-dca))
	if math.Abs(cdphi) >= 1 {
		return paths
	}
	dphi := math.Acos(cdphi)
	arc := math.Abs(rc)
	s := dphi * arc
	for s < smax && len(paths) < mxint {
		paths = append(paths, s)
		s += 2 * (math.Pi - dphi) * arc
		if s < smax && len(paths) < mxint {
			paths = append(paths, s)
		}
		s += 2 * dphi * arc
	}
	return paths
}

// Direction returns the unit track direction at arc length s.
func Direction(f *Fit, s float64) r3.Vec {
	phi := f.Phi0() - s/f.R()
	sth := f.Sth()
	return r3.Vec{X: math.Cos(phi) * sth, Y: math.Sin(phi) * sth, Z: f.Cth()}
}

// DirectionDerivatives returns the 3x5 derivative of the direction u at
// arc length s with respect to the helix parameters. z0 does not affect
// the direction and its column is zero.
func DirectionDerivatives(f *Fit, u r3.Vec, s float64) *mat.Dense {
	d := mat.NewDense(3, NParams, nil)
	cphi0 := math.Cos(f.Phi0())
	sphi0 := math.Sin(f.Phi0())
	sth := f.Sth()
	cth := f.Cth()
	dca := f.DCA()
	omega := f.Curvature()

	d.Set(0, CurvatureIndex, (u.X-cphi0*sth)/omega)
	d.Set(1, CurvatureIndex, (u.Y-sphi0*sth)/omega)
	d.Set(0, DCAIndex, -omega*cphi0*sth)
	d.Set(1, DCAIndex, -omega*sphi0*sth)
	d.Set(0, Phi0Index, -(1-dca*omega)*sphi0*sth)
	d.Set(1, Phi0Index, (1-dca*omega)*cphi0*sth)
	d.Set(0, SlopeIndex, -u.X*sth*cth)
	d.Set(1, SlopeIndex, -u.Y*sth*cth)
	d.Set(2, SlopeIndex, sth*sth*sth)
	return d
}

// CalculateTrackDirection returns the direction and its derivatives at arc
// length s.
func CalculateTrackDirection(f *Fit, s float64) (TrackDirection, error) {
	dir := Direction(f, s)
	return NewTrackDirection(dir, DirectionDerivatives(f, dir, s))
}

// PointOnHelix returns the position at arc length s.
func PointOnHelix(f *Fit, s float64) r3.Vec {
	rc := f.R()
	phi := f.Phi0() - s/rc
	return r3.Vec{
		X: f.XC() - rc*math.Sin(phi),
		Y: f.YC() + rc*math.Cos(phi),
		Z: f.Z0() + s*f.Slope(),
	}
}

// IsInterceptingBoundedCylinder reports whether the helix crosses the
// cylinder of radius r between zmin and zmax.
func IsInterceptingBoundedCylinder(f *Fit, r, zmin, zmax float64) bool {
	path := math.Max(PathToZPlane(f, zmin), PathToZPlane(f, zmax))
	for _, s := range PathToCylinder(f, r, path, 10) {
		z := PointOnHelix(f, s).Z
		if z < zmax && z > zmin {
			return true
		}
	}
	return false
}

// IsInterceptingZDisk reports whether the helix crosses the plane at z
// inside the annulus rmin < r < rmax.
func IsInterceptingZDisk(f *Fit, rmin, rmax, z float64) bool {
	p := PointOnHelix(f, PathToZPlane(f, z))
	r := math.Hypot(p.X, p.Y)
	return r < rmax && r > rmin
}

// IsInterceptingZPolygon reports whether the helix crosses the plane at z
// inside the polygon with the given vertices.
func IsInterceptingZPolygon(f *Fit, z float64, vertices []r3.Vec) bool {
	s := PathToZPlane(f, z)
	if s < 0 || s > maxPath {
		return false
	}
	angle := InsidePolygon(PointOnHelix(f, s), vertices)
	return scalar.EqualWithinAbs(angle, 2*math.Pi, math.Pi/360)
}

func planeOffset(f *Fit, normal, origin r3.Vec) (phip, dist float64) {
	off := r3.Sub(origin, r3.Vec{X: f.X0(), Y: f.Y0(), Z: f.Z0()})
	phip = math.Atan2(normal.Y, normal.X)
	dist = r3.Dot(normal, off)
	return phip, dist
}

// IsInterceptingXYPlane reports whether the bend-plane circle reaches the
// plane through origin with the given unit normal. Only planes parallel to
// the z axis are supported.
func IsInterceptingXYPlane(f *Fit, normal, origin r3.Vec) (bool, error) {
	if normal.Z > planeEps {
		return false, fmt.Errorf("%w: normal %v is not transverse", ErrUnsupported, normal)
	}
	phip, dist := planeOffset(f, normal, origin)
	verif := math.Sin(phip-f.Phi0()) + f.Curvature()*dist
	if r3.Norm(normal) < 0.99 {
		return false, fmt.Errorf("%w: normal magnitude %g is not unit", ErrUnsupported, r3.Norm(normal))
	}
	return math.Abs(verif) <= 1, nil
}

// IsInterceptingBoundedXYPlane reports whether the helix crosses the
// planar polygon with the given nodes, the first of which is taken as the
// plane origin.
func IsInterceptingBoundedXYPlane(f *Fit, normal r3.Vec, nodes []r3.Vec) (bool, error) {
	if len(nodes) == 0 {
		return false, nil
	}
	ok, err := IsInterceptingXYPlane(f, normal, nodes[0])
	if err != nil || !ok {
		return false, err
	}
	s, err := PathToXYPlane(f, normal, nodes[0])
	if err != nil {
		return false, err
	}
	if s < 0 || s > maxPath {
		return false, nil
	}
	return scalar.EqualWithinAbs(InsidePolygon(PointOnHelix(f, s), nodes), 2*math.Pi, planeEps), nil
}

// PathToXYPlane returns the arc length at which the helix reaches the
// plane through origin with the given normal.
func PathToXYPlane(f *Fit, normal, origin r3.Vec) (float64, error) {
	if normal.Z > planeEps {
		return 0, fmt.Errorf("%w: normal %v is not transverse", ErrUnsupported, normal)
	}
	phip, dist := planeOffset(f, normal, origin)
	sinPlane := math.Sin(phip-f.Phi0()) + f.Curvature()*dist
	cs := math.Asin(sinPlane) - phip + f.Phi0()
	rn := math.Hypot(normal.X, normal.Y)
	return dist / (rn*(2/cs)*math.Sin(cs/2)*math.Cos(cs/2+phip-f.Phi0()) + normal.Z*f.Slope()), nil
}

// InsidePolygon returns the sum of the angles subtended at q by each edge
// of the polygon p. The sum is 2π for a point inside a planar polygon.
// A point on a vertex counts as inside.
func InsidePolygon(q r3.Vec, p []r3.Vec) float64 {
	var sum float64
	n := len(p)
	for i := 0; i < n; i++ {
		a := r3.Sub(p[i], q)
		b := r3.Sub(p[(i+1)%n], q)
		m := r3.Norm(a) * r3.Norm(b)
		if m <= planeEps {
			return 2 * math.Pi
		}
		sum += math.Acos(r3.Dot(a, b) / m)
	}
	return sum
}
