package circle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arc returns points on a circle of radius r centred at (xc, yc), sampled
// clockwise starting from the angle a0 (measured about the centre).
func arc(xc, yc, r, a0 float64, steps []float64) (x, y, w []float64) {
	for _, da := range steps {
		a := a0 - da
		x = append(x, xc+r*math.Cos(a))
		y = append(y, yc+r*math.Sin(a))
		w = append(w, 1e4)
	}
	return x, y, w
}

func TestFitRejectsTooFewPoints(t *testing.T) {
	t.Parallel()
	c := NewFitter()
	assert.False(t, c.Fit([]float64{0, 1}, []float64{0, 1}, []float64{1, 1}))
	assert.False(t, c.Fit([]float64{0, 1, 2}, []float64{0, 1}, []float64{1, 1, 1}))
}

func TestFitThreePointsOnCircle(t *testing.T) {
	t.Parallel()
	// Clockwise from the origin, heading along +x, centre at (0, -100).
	x, y, w := arc(0, -100, 100, math.Pi/2, []float64{0.1, 0.3, 0.5})
	c := NewFitter()
	require.True(t, c.Fit(x, y, w))

	f := c.Result()
	assert.InDelta(t, 0.01, f.Curvature, 1e-9)
	assert.InDelta(t, 0, f.Chisq, 1e-9)
	xc, yc := f.Center()
	assert.InDelta(t, 0, xc, 1e-6)
	assert.InDelta(t, -100, yc, 1e-6)
	assert.InDelta(t, 0, f.DCA, 1e-6)
	assert.InDelta(t, 1, math.Cos(f.Phi), 1e-9)
	assert.GreaterOrEqual(t, f.Phi, 0.)
	assert.Less(t, f.Phi, 2*math.Pi)
	for _, i := range []int{CurvCurv, PhiPhi, DCADCA} {
		assert.Greater(t, f.Cov[i], 0., "diagonal %d", i)
	}
}

func TestFitDirectionFollowsPointOrder(t *testing.T) {
	t.Parallel()
	x, y, w := arc(0, -100, 100, math.Pi/2, []float64{0.1, 0.2, 0.3, 0.4})
	c := NewFitter()
	require.True(t, c.Fit(x, y, w))
	fwd := c.Result()

	// Reverse the traversal so the first point is the far end.
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
		y[i], y[j] = y[j], y[i]
	}
	require.True(t, c.Fit(x, y, w))
	rev := c.Result()

	assert.InDelta(t, -fwd.Curvature, rev.Curvature, 1e-9)
	assert.InDelta(t, -1, math.Cos(rev.Phi-fwd.Phi), 1e-9)
	xc1, yc1 := fwd.Center()
	xc2, yc2 := rev.Center()
	assert.InDelta(t, xc1, xc2, 1e-6)
	assert.InDelta(t, yc1, yc2, 1e-6)
}

func TestPropagateFitKeepsCircle(t *testing.T) {
	t.Parallel()
	x, y, w := arc(20, -80, 80, math.Pi/2+0.2, []float64{0.05, 0.25, 0.45, 0.65})
	c := NewFitter()
	require.True(t, c.Fit(x, y, w))
	before := c.Result()

	after := c.PropagateFit(15, 3)
	assert.Equal(t, 15., after.XRef)
	assert.Equal(t, 3., after.YRef)
	assert.InDelta(t, before.Curvature, after.Curvature, 1e-12)

	xc, yc := after.Center()
	assert.InDelta(t, 20, xc, 1e-6)
	assert.InDelta(t, -80, yc, 1e-6)

	// The propagated PCA lies on the circle.
	px, py := after.PCA()
	assert.InDelta(t, 80, math.Hypot(px-20, py+80), 1e-6)
	assert.InDelta(t, math.Abs(math.Hypot(15-20, 3+80)-80), math.Abs(after.DCA), 1e-6)
	rx, ry := c.ReferencePosition()
	assert.Equal(t, 15., rx)
	assert.Equal(t, 3., ry)
}

func TestReferencePositionBeforeFit(t *testing.T) {
	t.Parallel()
	x, y, w := arc(0, -50, 50, math.Pi/2, []float64{0.1, 0.4, 0.7})
	c := NewFitter()
	c.SetReferencePosition(0, -40)
	require.True(t, c.Fit(x, y, w))
	f := c.Result()
	// Ten units inside the circle along the y axis.
	assert.InDelta(t, 10, math.Abs(f.DCA), 1e-6)
	px, py := f.PCA()
	assert.InDelta(t, 0, px, 1e-6)
	assert.InDelta(t, 0, py, 1e-6)
	assert.Contains(t, f.String(), "CircleFit")
}

func TestSandwichIdentity(t *testing.T) {
	t.Parallel()
	b := [6]float64{1, 2, 3, 4, 5, 6}
	id := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	assert.Equal(t, b, sandwich(id, b))

	scale := [9]float64{2, 0, 0, 0, 1, 0, 0, 0, 1}
	got := sandwich(scale, b)
	assert.Equal(t, 4., got[CurvCurv])
	assert.Equal(t, 4., got[CurvPhi])
	assert.Equal(t, 8., got[CurvDCA])
	assert.Equal(t, 6., got[DCADCA])
}
