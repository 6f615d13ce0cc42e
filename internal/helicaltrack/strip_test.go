package helicaltrack

import (
	"math"
	"testing"

	"github.com/banshee-data/helicaltrack/internal/truth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewStripRecentresOrigin(t *testing.T) {
	t.Parallel()
	s := mustStrip(t, r3.Vec{X: 100}, r3.Vec{Y: 3}, r3.Vec{Z: 2}, 1.5, 0.01, -20, 80)

	assert.Equal(t, r3.Vec{X: 100, Z: 30}, s.Origin())
	assert.Equal(t, r3.Vec{Y: 1}, s.U())
	assert.Equal(t, r3.Vec{Z: 1}, s.V())
	assert.Equal(t, r3.Vec{X: 1}, s.W())
	assert.InDelta(t, -50, s.VMin(), 1e-12)
	assert.InDelta(t, 50, s.VMax(), 1e-12)
	assert.Equal(t, 1.5, s.UMeas())
	assert.Equal(t, 0.01, s.DU())
}

func TestNewStripInvariants(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name         string
		origin, u, v r3.Vec
		vmin, vmax   float64
	}{
		{"outward", r3.Vec{X: 100}, r3.Vec{Y: 1}, r3.Vec{Z: 1}, -50, 50},
		{"inward normal is flipped", r3.Vec{X: -100}, r3.Vec{Y: 1}, r3.Vec{Z: 1}, -50, 50},
		{"swapped bounds", r3.Vec{Y: 40}, r3.Vec{X: 1}, r3.Vec{Z: -1}, 30, -30},
		{"offset and tilted", r3.Vec{X: 30, Y: 30, Z: 5}, r3.Vec{X: 1, Y: -1}, r3.Vec{Z: 1, X: 0.1, Y: 0.1}, -10, 70},
		{"endcap", r3.Vec{X: 20, Z: 500}, r3.Vec{Y: 1}, r3.Vec{X: 1}, 5, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := mustStrip(t, tc.origin, tc.u, tc.v, 0, 0.01, tc.vmin, tc.vmax)
			assert.InDelta(t, -s.VMax(), s.VMin(), 2*stripEps)
			assert.LessOrEqual(t, s.VMin(), s.VMax())
			w := r3.Unit(r3.Cross(s.U(), s.V()))
			assert.InDelta(t, 0, r3.Norm(r3.Sub(w, s.W())), 1e-12)
			assert.GreaterOrEqual(t, r3.Dot(s.W(), s.Origin()), 0.)
			assert.InDelta(t, 1, r3.Norm(s.U()), 1e-12)
			assert.InDelta(t, 1, r3.Norm(s.V()), 1e-12)
		})
	}
}

func TestNewStripFlipKeepsStripExtent(t *testing.T) {
	t.Parallel()
	s := mustStrip(t, r3.Vec{X: -100}, r3.Vec{Y: 1}, r3.Vec{Z: 1}, 0, 0.01, -10, 30)
	// Midpoint moves to z = 10 regardless of the flip.
	assert.InDelta(t, 10, s.Origin().Z, 1e-12)
	assert.Equal(t, r3.Vec{Z: -1}, s.V())
	assert.Equal(t, r3.Vec{X: -1}, s.W())
	assert.InDelta(t, 20, s.VMax(), 1e-12)
	assert.False(t, math.IsNaN(s.VMin()))
}

func TestStripTruth(t *testing.T) {
	t.Parallel()
	s := mustStrip(t, r3.Vec{X: 100}, r3.Vec{Y: 1}, r3.Vec{Z: 1}, 0, 0.01, -1, 1)
	p := &truth.Particle{ID: 7}
	s.AddTruth(p)
	s.AddTruth(p)
	require.Len(t, s.Truth(), 1)
	assert.Same(t, p, s.Truth()[0])
	assert.Contains(t, s.String(), "Tracker2BARREL")
}
