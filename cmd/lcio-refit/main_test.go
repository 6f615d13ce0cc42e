package main

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/geom"
	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/hitio"
	"github.com/banshee-data/helicaltrack/internal/testutil"
	"github.com/banshee-data/helicaltrack/internal/truth"
)

func lcioTrack(id string, withTruth bool) hitio.LCIOTrack {
	var t hitio.LCIOTrack
	t.Record.ID = id
	for i, p := range testutil.HelixPoints(0.05, 0.7, 0.002, 1, 0.3, 20, 45, 70, 95, 120, 145) {
		cov := helicaltrack.PixelCovariance(p.X, p.Y, hitio.DefaultPixelResolution, hitio.DefaultPixelResolution*hitio.DefaultPixelResolution)
		var packed [6]float64
		copy(packed[:], geom.Packed(cov))
		t.Record.Pixels = append(t.Record.Pixels, hitio.PixelRecord{
			Element: hitio.Element{Detector: "VXD", Layer: i + 1, Flag: detector.Barrel},
			Pos:     hitio.VecOf(p),
			Cov:     packed,
		})
	}
	if withTruth {
		p := hitio.ParticleRecord{ID: 1, PDG: 13, GenStatus: 1, Charge: -1, Momentum: hitio.Vec3{2, 1.5, 0.75}}
		t.Truth = &p
		t.Record.Particles = []hitio.ParticleRecord{p}
	}
	return t
}

func TestParseSystems(t *testing.T) {
	got, err := parseSystems("1:VXD, 3:SIT")
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "VXD", 3: "SIT"}, got)

	empty, err := parseSystems("  ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"VXD", "x:VXD", "1:"} {
		_, err := parseSystems(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultDescriptorResolves(t *testing.T) {
	res, err := detector.NewTableResolver(*descriptor, map[int64]string{1: "VXD"})
	require.NoError(t, err)
	id, err := res.Decoder().Encode(map[string]int64{"system": 1, "barrel": 0, "layer": 3})
	require.NoError(t, err)
	el, err := res.Resolve(id)
	require.NoError(t, err)
	assert.Equal(t, "VXD", el.Detector)
	assert.Equal(t, 3, el.Layer)
}

func TestPulls(t *testing.T) {
	cov := mat.NewSymDense(helicaltrack.NParams, nil)
	for i := 0; i < helicaltrack.NParams; i++ {
		cov.SetSym(i, i, 0.01)
	}
	cov.SetSym(helicaltrack.CurvatureIndex, helicaltrack.CurvatureIndex, 0)
	got := helicaltrack.Params{DCA: 0.2, Phi0: 0.05, Curvature: 0.003, Z0: 1, Slope: 0.5}
	fit := helicaltrack.NewFit(got, cov, [2]float64{}, [2]int{1, 1}, nil, nil)

	want := helicaltrack.Params{DCA: 0.1, Phi0: 2*math.Pi - 0.05, Curvature: 0.001, Z0: 1.3, Slope: 0.5}
	p := pulls(fit, want)
	assert.InDelta(t, 1, p[helicaltrack.DCAIndex], 1e-9)
	assert.InDelta(t, 1, p[helicaltrack.Phi0Index], 1e-9, "φ0 residual wraps")
	assert.Zero(t, p[helicaltrack.CurvatureIndex], "no pull without an error")
	assert.InDelta(t, -3, p[helicaltrack.Z0Index], 1e-9)
	assert.Zero(t, p[helicaltrack.SlopeIndex])
}

func TestTruthParamsMatchesHelix(t *testing.T) {
	p := &truth.Particle{Charge: 1, Momentum: r3.Vec{X: 1, Y: 1, Z: 0.5}}
	h := truth.HelixFor(p, 4)
	got := truthParams(p, 4)
	assert.Equal(t, h.Omega, got.Curvature)
	assert.Equal(t, h.TanLambda, got.Slope)
	assert.Equal(t, h.Phi0, got.Phi0)
}

func TestRefit(t *testing.T) {
	short := lcioTrack("short", false)
	short.Record.Pixels = short.Record.Pixels[:2]
	tracks := []hitio.LCIOTrack{lcioTrack("0/0", true), lcioTrack("0/1", false), short}

	sum, err := refit(helicaltrack.NewFitter(), tracks, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Tracks)
	assert.Equal(t, 2, sum.Fitted)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 2, sum.Status[helicaltrack.Success])
	assert.Equal(t, 1, sum.Status[helicaltrack.CircleFitFailed])
	require.Len(t, sum.Chi2NDF, 2)
	for i := range sum.Pulls {
		assert.Len(t, sum.Pulls[i], 1)
	}
}

func TestWriteHistograms(t *testing.T) {
	sum, err := refit(helicaltrack.NewFitter(), []hitio.LCIOTrack{lcioTrack("a", true)}, 5)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "refit.png")
	files, err := writeHistograms(out, sum)
	require.NoError(t, err)
	require.Len(t, files, 1+helicaltrack.NParams)
	for _, f := range files {
		assert.FileExists(t, f)
	}
	assert.Contains(t, files, filepath.Join(filepath.Dir(out), "refit_pull_phi0.png"))

	unmatched := &summary{Chi2NDF: []float64{1.1}}
	files, err = writeHistograms(filepath.Join(t.TempDir(), "only.png"), unmatched)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
