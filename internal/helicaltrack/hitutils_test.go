package helicaltrack

import (
	"math"
	"testing"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/geom"
	"github.com/banshee-data/helicaltrack/internal/truth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestStripCovariance(t *testing.T) {
	t.Parallel()
	s := mustStrip(t, r3.Vec{Y: 100}, r3.Vec{X: 1}, r3.Vec{Z: 1}, 0, 0.02, -10, 10)
	cov := StripCovariance(s)
	assert.InDelta(t, 4e-4, cov.At(0, 0), 1e-15)
	assert.Equal(t, 0., cov.At(0, 1))
	assert.Equal(t, 0., cov.At(1, 1))
	assert.Equal(t, 0., cov.At(2, 2))
}

func TestPixelCovariance(t *testing.T) {
	t.Parallel()
	cov := PixelCovariance(3, 4, 0.5, 0.7)
	assert.InDelta(t, 0.16, cov.At(0, 0), 1e-12)
	assert.InDelta(t, -0.12, cov.At(0, 1), 1e-12)
	assert.InDelta(t, 0.09, cov.At(1, 1), 1e-12)
	assert.Equal(t, 0.7, cov.At(2, 2), "zz is not squared")
	assert.InDelta(t, 0.5, drphiCalc(r3.Vec{X: 3, Y: 4}, cov), 1e-12)
}

func TestZRes(t *testing.T) {
	t.Parallel()
	bhit := NewPixelHit(r3.Vec{X: 30, Y: 40, Z: 10}, geom.Sym3(0.04, 0, 0.04, 0, 0, 0.09), barrel)
	endcap := barrel
	endcap.Flag = detector.EndcapNorth
	ehit := NewPixelHit(r3.Vec{X: 30, Y: 40, Z: 100}, geom.Sym3(0.04, 0, 0.04, 0, 0, 0.09), endcap)

	ms := ScatterMap{bhit: {DZ: 0.4}, ehit: {DZ: 0.3}}
	sharp := helix(Params{Curvature: 0.01, Slope: 0.5})
	loose := NewFit(Params{Curvature: 0.01, Slope: 0.5}, diag5(1), [2]float64{}, [2]int{}, nil, nil)

	tests := []struct {
		name  string
		hit   *Hit
		msmap ScatterMap
		helix *Fit
		want  float64
	}{
		{"barrel", bhit, nil, nil, 0.3},
		{"barrel with scattering", bhit, ms, sharp, 0.5},
		{"endcap uses z over r", ehit, nil, nil, 0.4},
		{"endcap with scattering", ehit, ms, nil, 0.5},
		{"endcap uses helix slope", ehit, nil, sharp, 0.1},
		{"endcap ignores insignificant slope", ehit, nil, loose, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ZRes(tt.hit, tt.msmap, tt.helix), 1e-12)
		})
	}
}

func TestNonZeroDot(t *testing.T) {
	t.Parallel()
	x := r3.Vec{X: 1}
	assert.Equal(t, dotEps, nonZeroDot(x, r3.Vec{X: 1e-8}))
	assert.Equal(t, -dotEps, nonZeroDot(x, r3.Vec{X: -1e-8}))
	assert.Equal(t, dotEps, nonZeroDot(x, r3.Vec{Y: 1}))
	assert.Equal(t, 0.5, nonZeroDot(x, r3.Vec{X: 0.5}))
}

func TestStereoGeometry(t *testing.T) {
	t.Parallel()
	s1, s2 := stereoPair(t, 3, 7)
	assert.Equal(t, 5., SensorSeparation(s1, s2))
	assert.Equal(t, -5., SensorSeparation(s2, s1))
	assert.Equal(t, 1., SinAlpha(s1, s2))
	assert.Equal(t, -1., SinAlpha(s2, s1))
	assert.Equal(t, 1., V1DotU2(s1, s2))
}

// radial returns the direction of a straight track from the origin through
// the stereo crossing of s1 and s2, with zero derivatives.
func radial(t *testing.T, s1, s2 *Strip) TrackDirection {
	t.Helper()
	td, err := NewTrackDirection(r3.Unit(PositionFromOrigin(s1, s2)), mat.NewDense(3, NParams, nil))
	require.NoError(t, err)
	return td
}

func TestPositionOnHelixRadial(t *testing.T) {
	t.Parallel()
	s1, s2 := stereoPair(t, 3, 7)
	td := radial(t, s1, s2)

	got := PositionOnHelix(td, s1, s2)
	want := PositionFromOrigin(s1, s2)
	assert.InDelta(t, 0, r3.Norm(r3.Sub(got, want)), 1e-9)
	assert.InDelta(t, 102.5, got.X, 1e-9)

	assert.InDelta(t, 7*100./105, UnmeasuredCoordinate(td, s1, s2), 1e-9)
	assert.InDelta(t, -3.15, UnmeasuredCoordinate(td, s2, s1), 1e-9)
}

func TestDVAndCovarianceWithoutHelixErrors(t *testing.T) {
	t.Parallel()
	s1, s2 := stereoPair(t, 3, 7)
	td := radial(t, s1, s2)
	zero := mat.NewSymDense(NParams, nil)

	assert.InDelta(t, 0.01, DV(td, zero, s1, s2), 1e-12)

	cov := CovarianceOnHelix(td, zero, s1, s2)
	assert.InDelta(t, 1e-4, cov.At(1, 1), 1e-15)
	assert.InDelta(t, 1e-4, cov.At(2, 2), 1e-15)
	assert.InDelta(t, 0, cov.At(0, 0), 1e-15)
	assert.InDelta(t, 0, cov.At(1, 2), 1e-15)
}

func TestCovarianceOnHelixGrowsWithHelixErrors(t *testing.T) {
	t.Parallel()
	s1, s2 := stereoPair(t, 3, 7)
	f := helix(Params{Phi0: math.Atan2(3, 100), Curvature: 1e-7, Slope: 0.066})
	td, err := CalculateTrackDirection(f, 100)
	require.NoError(t, err)

	base := CovarianceOnHelix(td, mat.NewSymDense(NParams, nil), s1, s2)
	wide := CovarianceOnHelix(td, diag5(1e-2), s1, s2)
	assert.Greater(t, wide.At(1, 1), base.At(1, 1))
	assert.Greater(t, DV(td, diag5(1e-2), s1, s2), DV(td, mat.NewSymDense(NParams, nil), s1, s2))
}

func TestPixelToStrip(t *testing.T) {
	t.Parallel()
	pix := NewPixelHit(r3.Vec{X: 30, Y: 40, Z: 10}, geom.Sym3(0.04, 0, 0.04, 0, 0, 0.09), barrel)
	p := &truth.Particle{ID: 7}
	pix.AddTruth(p)
	smap := PathMap{pix: 55}

	strip, err := PixelToStrip(pix, smap, nil, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, KindAxialStrip, strip.Kind())
	assert.InDelta(t, 9.1, strip.ZMin(), 1e-12)
	assert.InDelta(t, 10.9, strip.ZMax(), 1e-12)
	assert.Equal(t, 55., smap[strip])
	assert.Equal(t, []*truth.Particle{p}, strip.Truth())
	assert.Equal(t, pix.LayerIdentifier(), strip.LayerIdentifier())

	_, err = PixelToStrip(pix, PathMap{}, nil, nil, -1)
	assert.ErrorIs(t, err, ErrAxialBounds)
}
