package helicaltrack

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/helicaltrack/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func mustCross(t *testing.T, s1, s2 *Strip) *Hit {
	t.Helper()
	h, err := NewCross(s1, s2, DefaultEpsParallel, DefaultEpsStereoAngle)
	require.NoError(t, err)
	return h
}

func TestNewCrossFromOrigin(t *testing.T) {
	t.Parallel()
	s1, s2 := stereoPair(t, 3, 7)
	h := mustCross(t, s1, s2)

	assert.Equal(t, KindCross, h.Kind())
	assert.Equal(t, 3, h.Type())
	// Straight line from the origin through both measurements, evaluated
	// midway between the planes.
	assert.InDelta(t, 102.5, h.X(), 1e-9)
	assert.InDelta(t, 3.075, h.Y(), 1e-9)
	assert.InDelta(t, 7*102.5/105, h.Z(), 1e-9)
	assert.Nil(t, h.Helix())
	assert.Equal(t, []*Strip{s1, s2}, h.Strips())
	assert.Equal(t, "Tracker2BARREL", h.LayerIdentifier())
}

func TestNewCrossCovarianceFromOrigin(t *testing.T) {
	t.Parallel()
	s1, s2 := stereoPair(t, 0, 0)
	h := mustCross(t, s1, s2)
	cov := h.Covariance()

	factor := 2.05 * 2.05 / 4
	dv := 2 * 5 / math.Sqrt(12)
	want := factor*1e-4 + 0.25*dv*dv
	assert.InDelta(t, want, cov.At(2, 2), 1e-12)
	assert.InDelta(t, want, cov.At(1, 1), 1e-12)
	assert.InDelta(t, 0, cov.At(0, 0), 1e-15)
	assert.InDelta(t, 0, cov.At(1, 2), 1e-15)
}

func TestNewCrossSumsStripInfo(t *testing.T) {
	t.Parallel()
	shared := &RawHit{CellID: 1}
	info1 := barrel
	info1.DEdx, info1.Time = 1, 10
	info1.RawHits = []*RawHit{shared, {CellID: 2}}
	info2 := barrel
	info2.DEdx, info2.Time = 2, 20
	info2.RawHits = []*RawHit{shared}

	s1, err := NewStrip(r3.Vec{X: 100}, r3.Vec{Y: 1}, r3.Vec{Z: 1}, 0, 0.01, -50, 50, info1)
	require.NoError(t, err)
	s2, err := NewStrip(r3.Vec{X: 105}, r3.Vec{Z: 1}, r3.Vec{Y: -1}, 0, 0.01, -50, 50, info2)
	require.NoError(t, err)
	h := mustCross(t, s1, s2)

	assert.Equal(t, 3., h.DEdx())
	assert.Equal(t, 15., h.Time())
	assert.Len(t, h.RawHits(), 2)
}

func TestNewCrossRejectsBadGeometry(t *testing.T) {
	t.Parallel()
	s1, _ := stereoPair(t, 0, 0)
	tilt := 0.05
	tilted := mustStrip(t, r3.Vec{X: 105}, r3.Vec{Z: 1}, r3.Vec{X: math.Sin(tilt), Y: -math.Cos(tilt)}, 0, 0.01, -50, 50)
	opposite := mustStrip(t, r3.Vec{X: -100}, r3.Vec{Z: 1}, r3.Vec{Y: 1}, 0, 0.01, -50, 50)
	collinear := mustStrip(t, r3.Vec{X: 105}, r3.Vec{Y: 1}, r3.Vec{Z: 1}, 0, 0.01, -50, 50)

	cases := []struct {
		name  string
		other *Strip
		want  error
	}{
		{"tilted planes", tilted, ErrNotParallel},
		{"opposite normals", opposite, ErrOppositeNormals},
		{"collinear strips", collinear, ErrCollinearStrips},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCross(s1, tc.other, DefaultEpsParallel, DefaultEpsStereoAngle)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

// straightFit is a nearly straight helix from the origin heading along +x
// with pitch matching the stereo pair from stereoPair(t, 3, 7).
func straightFit(cross *Hit, hcov mat.Symmetric) *Fit {
	p := Params{Phi0: math.Atan2(3, 100), Curvature: 1e-7, Slope: 7 / math.Hypot(105, 3.15)}
	return NewFit(p, hcov, [2]float64{}, [2]int{}, PathMap{cross: math.Hypot(102.5, 3.075)}, nil)
}

func TestCrossSetTrackDirection(t *testing.T) {
	s1, s2 := stereoPair(t, 3, 7)
	h := mustCross(t, s1, s2)
	nominal := h.Correction()
	f := straightFit(h, diag5(1e-12))

	require.NoError(t, h.SetTrackDirection(f))
	assert.Same(t, f, h.Helix())
	assert.NotSame(t, nominal, h.Correction())
	// The earlier snapshot is untouched.
	assert.Equal(t, h.Position(), nominal.Position)

	// A straight track from the origin crosses where the from-origin
	// estimate put it, but with the stereo ambiguity resolved.
	assert.InDelta(t, 102.5, h.X(), 1e-3)
	assert.InDelta(t, 3.075, h.Y(), 1e-3)
	assert.InDelta(t, 7*102.5/105, h.Z(), 1e-3)
	assert.Less(t, h.CorrectedCovariance().At(2, 2), h.Covariance().At(2, 2))
	assert.InDelta(t, 0, h.Chisq(), 1e-12)

	corrected := h.Correction()
	require.NoError(t, h.SetTrackDirection(f))
	assert.Same(t, corrected, h.Correction(), "same helix must not recompute")

	require.NoError(t, h.SetTrackDirection(nil))
	assert.Nil(t, h.Helix())
	assert.Equal(t, h.Position(), h.CorrectedPosition())
	assert.Equal(t, 0., h.Chisq())
}

func TestCrossCorrectionRejectedResets(t *testing.T) {
	original := monitoring.Logf
	defer func() { monitoring.Logf = original }()
	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })

	s1, s2 := stereoPair(t, 3, 7)
	h := mustCross(t, s1, s2)
	f := straightFit(h, diag5(1e6))

	td, err := CalculateTrackDirection(f, f.PathMap()[h])
	require.NoError(t, err)
	_, err = h.CorrectedFor(td, f.Covariance())
	assert.True(t, errors.Is(err, ErrCorrectionRejected))

	require.NoError(t, h.SetTrackDirection(f))
	assert.Equal(t, 1, logged)
	assert.Equal(t, h.Position(), h.CorrectedPosition())
	// The helix is still recorded so the rejected correction is not retried.
	assert.Same(t, f, h.Helix())
}

func TestCrossOperationsOnOtherKinds(t *testing.T) {
	t.Parallel()
	pix := helixPixels(Params{Curvature: 0.01}, 0.1, 10)[0]
	f := NewFit(Params{Curvature: 0.01}, diag5(1), [2]float64{}, [2]int{}, nil, nil)
	assert.True(t, errors.Is(pix.SetTrackDirection(f), ErrNotCross))
	_, err := pix.CorrectedFor(TrackDirection{}, diag5(1))
	assert.True(t, errors.Is(err, ErrNotCross))
	assert.Nil(t, pix.Helix())
	pix.ResetTrackDirection()
}

func TestCrossNotInPathMap(t *testing.T) {
	t.Parallel()
	s1, s2 := stereoPair(t, 3, 7)
	h := mustCross(t, s1, s2)
	f := NewFit(Params{Curvature: 0.01}, diag5(1), [2]float64{}, [2]int{}, nil, nil)
	assert.True(t, errors.Is(h.SetTrackDirection(f), ErrNotInPathMap))
}

func TestBoundPenalty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0., boundPenalty(0, -1, 1, 0.5))
	assert.InDelta(t, 4, boundPenalty(2, -1, 1, 0.5), 1e-12)
	assert.InDelta(t, 16, boundPenalty(-3, -1, 1, 0.5), 1e-12)
}
