// Package scattering estimates the multiple-scattering contribution to hit
// position errors along a candidate helix.
//
// The helix is intersected with a simple material model of cylinders,
// disks and x planes. Each crossing deflects the track by the Highland
// angle for the traversed thickness, and every hit beyond a crossing picks
// up the resulting displacement in quadrature.
package scattering

import (
	"errors"
	"math"
	"sort"

	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNoField is returned when a calculator is built without a magnetic
// field, since the momentum and hence the scattering angle are undefined.
var ErrNoField = errors.New("scattering: magnetic field must be non-zero")

const (
	// searchLimit bounds the arc length scanned for material crossings.
	searchLimit = 9999.
	// minCosine floors the incidence cosine so that grazing crossings
	// stay finite.
	minCosine = 1e-3
	// DefaultMaxIntersections is the number of crossings considered per
	// cylinder or plane.
	DefaultMaxIntersections = 10
)

// ScatterAngle is a material crossing at arc length PathLen with RMS plane
// scattering angle Angle.
type ScatterAngle struct {
	PathLen float64
	Angle   float64
}

// Calculator finds material crossings for a fixed material model and field.
type Calculator struct {
	material         Material
	bfield           float64
	maxIntersections int
}

// NewCalculator returns a calculator for the given material in a field of
// bfield tesla.
func NewCalculator(material Material, bfield float64) (*Calculator, error) {
	if bfield == 0 {
		return nil, ErrNoField
	}
	return &Calculator{material: material, bfield: bfield, maxIntersections: DefaultMaxIntersections}, nil
}

// BField returns the field the calculator was built with.
func (c *Calculator) BField() float64 { return c.bfield }

// MSAngle returns the Highland RMS plane scattering angle for momentum p
// in GeV/c through radLength radiation lengths.
func MSAngle(p, radLength float64) float64 {
	return (0.0136 / p) * math.Sqrt(radLength) * (1 + 0.038*math.Log(radLength))
}

// FindScatters returns the material crossings of the helix inside the
// tracking volume, sorted by arc length.
func (c *Calculator) FindScatters(fit *helicaltrack.Fit) []ScatterAngle {
	var scatters []ScatterAngle
	p := fit.P(c.bfield)

	smax := searchLimit
	if s := helicaltrack.PathToCylinder(fit, c.material.RMax, smax, 1); len(s) > 0 {
		smax = math.Min(smax, s[0])
	}
	zmax := c.material.ZMax
	if fit.Slope() < 0 {
		zmax = -zmax
	}
	smax = math.Min(smax, helicaltrack.PathToZPlane(fit, zmax))

	add := func(s, thickness, cosine float64) {
		radlen := thickness / math.Max(cosine, minCosine)
		scatters = append(scatters, ScatterAngle{PathLen: s, Angle: MSAngle(p, radlen)})
	}

	for _, disk := range c.material.Disks {
		s := helicaltrack.PathToZPlane(fit, disk.Z)
		if s <= 0 || s >= smax {
			continue
		}
		pos := helicaltrack.PointOnHelix(fit, s)
		r := math.Hypot(pos.X, pos.Y)
		if r >= disk.RMin && r <= disk.RMax {
			add(s, disk.RadLengths, math.Abs(fit.Cth()))
		}
	}

	for _, cyl := range c.material.Cylinders {
		scmin := helicaltrack.PathToZPlane(fit, cyl.ZMin)
		scmax := helicaltrack.PathToZPlane(fit, cyl.ZMax)
		if scmin > scmax {
			scmin, scmax = scmax, scmin
		}
		for _, s := range helicaltrack.PathToCylinder(fit, cyl.Radius, smax, c.maxIntersections) {
			if s <= scmin || s >= scmax {
				continue
			}
			dir := helicaltrack.Direction(fit, s)
			pos := helicaltrack.PointOnHelix(fit, s)
			rhat := r3.Unit(r3.Vec{X: pos.X, Y: pos.Y})
			add(s, cyl.RadLengths, math.Abs(r3.Dot(dir, rhat)))
		}
	}

	for _, pl := range c.material.XPlanes {
		for _, s := range helicaltrack.PathToXPlane(fit, pl.X, smax, c.maxIntersections) {
			pos := helicaltrack.PointOnHelix(fit, s)
			if pos.Y < pl.YMin || pos.Y > pl.YMax || pos.Z < pl.ZMin || pos.Z > pl.ZMax {
				continue
			}
			dir := helicaltrack.Direction(fit, s)
			add(s, pl.RadLengths, math.Abs(dir.X))
		}
	}

	sort.Slice(scatters, func(i, j int) bool { return scatters[i].PathLen < scatters[j].PathLen })
	return scatters
}

// CalculateScatter sums the displacement at arc length hitPath caused by
// every crossing before it. Correlations between crossings are ignored.
// The z error assumes barrel geometry, dividing by sin²θ.
func CalculateScatter(hitPath float64, fit *helicaltrack.Fit, scatters []ScatterAngle) helicaltrack.MultipleScatter {
	sth2 := fit.Sth() * fit.Sth()
	var rphi2, z2 float64
	for _, sc := range scatters {
		if sc.PathLen > hitPath {
			break
		}
		d := (hitPath - sc.PathLen) * sc.Angle
		rphi2 += d * d
		z2 += d * d / sth2
	}
	return helicaltrack.MultipleScatter{DRPhi: math.Sqrt(rphi2), DZ: math.Sqrt(z2)}
}

// ScatterMap computes the scattering errors of each hit along fit. Hits the
// fit has no path length for are measured with helicaltrack.PathLength.
func (c *Calculator) ScatterMap(fit *helicaltrack.Fit, hits []*helicaltrack.Hit) helicaltrack.ScatterMap {
	scatters := c.FindScatters(fit)
	out := make(helicaltrack.ScatterMap, len(hits))
	for _, h := range hits {
		s, ok := fit.PathMap()[h]
		if !ok {
			s = helicaltrack.PathLength(fit, h)
		}
		out[h] = CalculateScatter(s, fit, scatters)
	}
	return out
}
