package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/testutil"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func fittedTrack(t *testing.T, id string) Track {
	t.Helper()
	info := helicaltrack.HitInfo{Detector: "VXD", Flag: detector.Barrel}
	pts := testutil.HelixPoints(0.2, 0.4, 0.004, 3, 0.6, 30, 60, 90, 120)
	hits := make([]*helicaltrack.Hit, len(pts))
	for i, p := range pts {
		info.Layer = i
		hits[i] = helicaltrack.NewPixelHit(p, helicaltrack.PixelCovariance(p.X, p.Y, 0.01, 0.01), info)
	}
	f := helicaltrack.NewFitter()
	status, err := f.FitHits(hits)
	require.NoError(t, err)
	require.Equal(t, helicaltrack.Success, status)
	return Track{ID: id, Fit: f.Result(), Hits: hits}
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic), "%s is not a PNG", path)
}

func TestPathRangeCoversHits(t *testing.T) {
	tr := fittedTrack(t, "a")
	smin, smax := tr.pathRange()
	assert.LessOrEqual(t, smin, 0.0)
	for _, h := range tr.Hits {
		s := tr.pathLength(h)
		assert.True(t, s >= smin && s <= smax, "s=%g outside [%g, %g]", s, smin, smax)
	}
}

func TestPlotBendPlaneAndSZ(t *testing.T) {
	tr := fittedTrack(t, "a")
	dir := t.TempDir()

	xy := filepath.Join(dir, "xy.png")
	require.NoError(t, PlotBendPlane(tr, xy))
	assertPNG(t, xy)

	sz := filepath.Join(dir, "sz.png")
	require.NoError(t, PlotSZ(tr, sz))
	assertPNG(t, sz)
}

func TestBendPlanePlotLegend(t *testing.T) {
	tr := fittedTrack(t, "a")
	p, err := BendPlanePlot(tr)
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "Track a")
	assert.Equal(t, "x (mm)", p.X.Label.Text)
}

func TestPlotTracks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	tracks := []Track{fittedTrack(t, "run/1"), {ID: "failed"}}

	files, err := PlotTracks(dir, tracks)
	require.NoError(t, err)
	require.Len(t, files, 2, "tracks without a fit are skipped")
	assert.Equal(t, filepath.Join(dir, "run_1_xy.png"), files[0])
	assert.Equal(t, filepath.Join(dir, "run_1_sz.png"), files[1])
	for _, f := range files {
		assertPNG(t, f)
	}
}

func TestWriteSZScatterHTML(t *testing.T) {
	var buf bytes.Buffer
	tracks := []Track{fittedTrack(t, "a"), fittedTrack(t, "b"), {ID: "none"}}
	require.NoError(t, WriteSZScatterHTML(&buf, tracks))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "Track a")
	assert.Contains(t, html, "Track b")
	assert.NotContains(t, html, "Track none")
	assert.GreaterOrEqual(t, strings.Count(html, "echarts.init("), 2)
}

func TestChi2Histogram(t *testing.T) {
	h := Chi2Histogram([]float64{0.5, 1.5, 1.7, 9.5}, 10, 10)
	assert.Equal(t, 10, h.Len())
	assert.Equal(t, 1.0, h.Value(0))
	assert.Equal(t, 2.0, h.Value(1))
	assert.Equal(t, 1.0, h.Value(9))
}

func TestPullHistogram(t *testing.T) {
	h := PullHistogram([]float64{-0.1, 0.1, 0.2, 4.9}, 10)
	assert.Equal(t, 1.0, h.Value(4))
	assert.Equal(t, 2.0, h.Value(5))
	assert.Equal(t, 1.0, h.Value(9))
}

func TestSaveH1D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chi2.png")
	h := Chi2Histogram([]float64{0.2, 0.4, 1.1, 2.5, 3.3}, 20, 10)
	require.NoError(t, SaveH1D(h, "fit χ²", "χ²", path))
	assertPNG(t, path)
}
