// Package zsegment finds the region of (z0, slope) space consistent with a
// set of axial strip measurements, each of which only bounds z at a known
// path length.
//
// Every measurement defines a band zmin < z0 + s·slope < zmax. The allowed
// region is the convex polygon formed by the band intersections; its
// centroid is the fit result and its second moments the covariance.
package zsegment

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const eps = 1e-6

// Fit is the result of a z-segment fit.
type Fit struct {
	// Polygon vertices as (z0, slope) pairs, ordered by angle about their mean.
	Polygon [][2]float64
	// Centroid is (z0, slope).
	Centroid [2]float64
	Area     float64
	// Covariance is the 2x2 covariance of (z0, slope).
	Covariance *mat.SymDense
}

func (f *Fit) String() string {
	return fmt.Sprintf("ZSegmentFit: z0=%g slope=%g vertices=%d area=%g",
		f.Centroid[0], f.Centroid[1], len(f.Polygon), f.Area)
}

// Fitter performs z-segment fits and remembers the last result.
type Fitter struct {
	s, zmin, zmax []float64
	polygon       [][2]float64
	fit           *Fit
}

// NewFitter returns a z-segment fitter.
func NewFitter() *Fitter {
	return &Fitter{}
}

// Fit reports false when the inputs are inconsistent in length, there are
// fewer than two segments, or the segments admit no straight line.
func (z *Fitter) Fit(s, zmin, zmax []float64) bool {
	z.s, z.zmin, z.zmax = s, zmin, zmax
	z.polygon = nil
	z.fit = nil
	if len(s) != len(zmin) || len(s) != len(zmax) || len(s) < 2 {
		return false
	}

	for i := 0; i < len(s)-1; i++ {
		for j := i + 1; j < len(s); j++ {
			z.intersect(s[i], zmin[i], s[j], zmin[j])
			z.intersect(s[i], zmin[i], s[j], zmax[j])
			z.intersect(s[i], zmax[i], s[j], zmin[j])
			z.intersect(s[i], zmax[i], s[j], zmax[j])
		}
	}
	nv := len(z.polygon)
	if nv < 3 {
		return false
	}
	z.orderVertices()

	var area float64
	var centroid [2]float64
	for i := 0; i < nv; i++ {
		p0 := z.polygon[i]
		p1 := z.polygon[(i+1)%nv]
		darea := 0.5 * (p0[0]*p1[1] - p1[0]*p0[1])
		area += darea
		centroid[0] += (p0[0] + p1[0]) * darea
		centroid[1] += (p0[1] + p1[1]) * darea
	}
	centroid[0] /= 3 * area
	centroid[1] /= 3 * area
	area = math.Abs(area)

	z.fit = &Fit{
		Polygon:    z.polygon,
		Centroid:   centroid,
		Area:       area,
		Covariance: polygonCovariance(z.polygon, centroid, area),
	}
	return true
}

// Result returns the most recent successful fit, or nil.
func (z *Fitter) Result() *Fit {
	return z.fit
}

// intersect adds the crossing of z0 + s1·t = o1 and z0 + s2·t = o2 to the
// polygon when it satisfies every band and is not already present.
func (z *Fitter) intersect(s1, o1, s2, o2 float64) {
	if s1 == s2 {
		return
	}
	cross := [2]float64{
		(o1*s2 - o2*s1) / (s2 - s1),
		(o2 - o1) / (s2 - s1),
	}
	for i := range z.s {
		zpred := cross[0] + z.s[i]*cross[1]
		if zpred < z.zmin[i]-eps || zpred > z.zmax[i]+eps {
			return
		}
	}
	for _, old := range z.polygon {
		if math.Hypot(cross[0]-old[0], cross[1]-old[1]) < eps {
			return
		}
	}
	z.polygon = append(z.polygon, cross)
}

func (z *Fitter) orderVertices() {
	var pc [2]float64
	nv := float64(len(z.polygon))
	for _, p := range z.polygon {
		pc[0] += p[0] / nv
		pc[1] += p[1] / nv
	}
	sort.SliceStable(z.polygon, func(i, j int) bool {
		pi, pj := z.polygon[i], z.polygon[j]
		return math.Atan2(pi[1]-pc[1], pi[0]-pc[0]) < math.Atan2(pj[1]-pc[1], pj[0]-pc[0])
	})
}

// polygonCovariance integrates the second moments of a uniform density over
// the polygon by splitting it into triangles that share the centroid.
func polygonCovariance(poly [][2]float64, centroid [2]float64, area float64) *mat.SymDense {
	nv := len(poly)
	var cxx, cxy, cyy float64
	for i := 0; i < nv; i++ {
		j := (i + 1) % nv
		vertices := mat.NewDense(2, 2, []float64{
			poly[i][0] - centroid[0], poly[j][0] - centroid[0],
			poly[i][1] - centroid[1], poly[j][1] - centroid[1],
		})

		// Rotate so the second vertex lies on the x' axis.
		phi := math.Atan2(vertices.At(1, 1), vertices.At(0, 1))
		c, s := math.Cos(phi), math.Sin(phi)
		rot := mat.NewDense(2, 2, []float64{c, s, -s, c})
		var rv mat.Dense
		rv.Mul(rot, vertices)

		x1, y1, x2 := rv.At(0, 0), rv.At(1, 0), rv.At(0, 1)
		darea := math.Abs(0.5 * y1 * x2)
		local := mat.NewSymDense(2, []float64{
			darea * (x1*x1 + x1*x2 + x2*x2) / 6., darea * y1 * (2.*x1 + x2) / 12.,
			darea * y1 * (2.*x1 + x2) / 12., darea * y1 * y1 / 6.,
		})

		var tmp, glb mat.Dense
		tmp.Mul(local, rot)
		glb.Mul(rot.T(), &tmp)
		cxx += glb.At(0, 0)
		cxy += glb.At(1, 0)
		cyy += glb.At(1, 1)
	}
	return mat.NewSymDense(2, []float64{
		cxx / area, cxy / area,
		cxy / area, cyy / area,
	})
}
