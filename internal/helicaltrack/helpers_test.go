package helicaltrack

import (
	"testing"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/testutil"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var barrel = HitInfo{Detector: "Tracker", Layer: 2, Flag: detector.Barrel}

func mustStrip(t *testing.T, origin, u, v r3.Vec, umeas, du, vmin, vmax float64) *Strip {
	t.Helper()
	s, err := NewStrip(origin, u, v, umeas, du, vmin, vmax, barrel)
	require.NoError(t, err)
	return s
}

// stereoPair returns two strips on the planes x = 100 and x = 105. The
// first measures y, the second z, and both span [-50, 50].
func stereoPair(t *testing.T, umeas1, umeas2 float64) (*Strip, *Strip) {
	t.Helper()
	s1 := mustStrip(t, r3.Vec{X: 100}, r3.Vec{Y: 1}, r3.Vec{Z: 1}, umeas1, 0.01, -50, 50)
	s2 := mustStrip(t, r3.Vec{X: 105}, r3.Vec{Z: 1}, r3.Vec{Y: -1}, umeas2, 0.01, -50, 50)
	return s1, s2
}

// helixPixels places barrel pixels on the helix at the given arc lengths.
func helixPixels(p Params, dz float64, s ...float64) []*Hit {
	pts := testutil.HelixPoints(p.DCA, p.Phi0, p.Curvature, p.Z0, p.Slope, s...)
	hits := make([]*Hit, len(pts))
	for i, pos := range pts {
		hits[i] = NewPixelHit(pos, PixelCovariance(pos.X, pos.Y, 1e-3, dz*dz), barrel)
	}
	return hits
}

func diag5(v float64) *mat.SymDense {
	s := mat.NewSymDense(NParams, nil)
	for i := 0; i < NParams; i++ {
		s.SetSym(i, i, v)
	}
	return s
}
