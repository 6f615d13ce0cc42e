// Command lcio-refit refits the tracker hits of reconstructed LCIO tracks
// and histograms the fit quality and the pulls against the generator
// particle each track is matched to.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/helicaltrack/internal/detector"
	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/hitio"
	"github.com/banshee-data/helicaltrack/internal/report"
	"github.com/banshee-data/helicaltrack/internal/truth"
	"github.com/banshee-data/helicaltrack/internal/units"
	"github.com/banshee-data/helicaltrack/internal/version"
)

var (
	input       = flag.String("input", "", "LCIO file to read")
	collection  = flag.String("collection", "Tracks", "Track collection whose tracker hits are refit")
	particles   = flag.String("particles", "MCParticle", "MC particle collection used as truth (empty to disable)")
	descriptor  = flag.String("descriptor", "system:5,barrel:3,layer:4,module:12,sensor:1", "Cell ID encoding of the tracker hits")
	systems     = flag.String("systems", "", "Comma-separated system:name pairs naming detectors, e.g. 1:VXD,3:SIT")
	bfield      = flag.Float64("bfield", 5, "Solenoid field in tesla")
	tolerance   = flag.Float64("tolerance", 3, "Fitter consistency tolerance")
	output      = flag.String("output", "chi2.png", "χ²/ndf histogram PNG; pull histograms are written beside it")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

const (
	nbins   = 50
	chi2Max = 10.0
)

var paramNames = [helicaltrack.NParams]string{"dca", "phi0", "curvature", "z0", "slope"}

// summary accumulates refit outcomes.
type summary struct {
	Tracks  int
	Fitted  int
	Matched int
	Status  map[helicaltrack.FitStatus]int
	Chi2NDF []float64
	Pulls   [helicaltrack.NParams][]float64
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("lcio-refit", version.String())
		return
	}
	if *input == "" {
		log.Fatalf("-input is required")
	}

	names, err := parseSystems(*systems)
	if err != nil {
		log.Fatalf("invalid -systems: %v", err)
	}
	res, err := detector.NewTableResolver(*descriptor, names)
	if err != nil {
		log.Fatalf("invalid -descriptor: %v", err)
	}

	tracks, err := hitio.ReadLCIO(*input, hitio.LCIOOptions{
		Tracks:    *collection,
		Particles: *particles,
		Resolver:  res,
	})
	if err != nil {
		log.Fatalf("failed to read %s: %v", *input, err)
	}

	fitter := helicaltrack.NewFitter()
	fitter.SetTolerance(*tolerance)
	sum, err := refit(fitter, tracks, *bfield)
	if err != nil {
		log.Fatalf("refit failed: %v", err)
	}
	log.Printf("refit %d/%d tracks, %d matched to truth, outcomes %v", sum.Fitted, sum.Tracks, sum.Matched, sum.Status)

	files, err := writeHistograms(*output, sum)
	if err != nil {
		log.Fatalf("failed to write histograms: %v", err)
	}
	for _, f := range files {
		log.Printf("wrote %s", f)
	}
}

// parseSystems parses "1:VXD,3:SIT" into a system ID table.
func parseSystems(s string) (map[int64]string, error) {
	out := map[int64]string{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		id, name, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected system:name, got %q", pair)
		}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("system %q: %w", id, err)
		}
		out[n] = name
	}
	return out, nil
}

// refit fits each track's hits afresh. Tracks with a truth particle also
// contribute pulls against the particle's ideal helix.
func refit(fitter *helicaltrack.Fitter, tracks []hitio.LCIOTrack, bfield float64) (*summary, error) {
	sum := &summary{Status: map[helicaltrack.FitStatus]int{}}
	for _, t := range tracks {
		sum.Tracks++
		ev, err := t.Record.Decode()
		if err != nil {
			return sum, err
		}
		status, err := fitter.FitHits(ev.Hits)
		if err != nil {
			return sum, fmt.Errorf("track %s: %w", t.Record.ID, err)
		}
		sum.Status[status]++
		fit := fitter.Result()
		if fit == nil {
			continue
		}
		sum.Fitted++
		if ndf := fit.NdfTotal(); ndf > 0 {
			sum.Chi2NDF = append(sum.Chi2NDF, fit.ChisqTotal()/float64(ndf))
		}
		if len(ev.Particles) == 0 {
			continue
		}
		sum.Matched++
		for i, p := range pulls(fit, truthParams(ev.Particles[0], bfield)) {
			sum.Pulls[i] = append(sum.Pulls[i], p)
		}
	}
	return sum, nil
}

func truthParams(p *truth.Particle, bfield float64) helicaltrack.Params {
	h := truth.HelixFor(p, bfield)
	return helicaltrack.Params{DCA: h.DCA, Phi0: h.Phi0, Curvature: h.Omega, Z0: h.Z0, Slope: h.TanLambda}
}

// pulls returns (fit - want)/σ for each helix parameter. The φ0
// residual is wrapped.
func pulls(fit *helicaltrack.Fit, want helicaltrack.Params) [helicaltrack.NParams]float64 {
	got, ref := fit.Params().Vector(), want.Vector()
	var out [helicaltrack.NParams]float64
	for i := range out {
		v := fit.Covariance().At(i, i)
		if !(v > 0) {
			continue
		}
		d := got[i] - ref[i]
		if i == helicaltrack.Phi0Index {
			d = units.WrapDeltaPhi(d)
		}
		out[i] = d / math.Sqrt(v)
	}
	return out
}

// writeHistograms saves the χ²/ndf histogram to path and, when any track
// was matched, one pull histogram per parameter beside it as
// <name>_pull_<param><ext>.
func writeHistograms(path string, sum *summary) ([]string, error) {
	files := []string{path}
	if err := report.SaveH1D(report.Chi2Histogram(sum.Chi2NDF, nbins, chi2Max), "Refit quality", "χ²/ndf", path); err != nil {
		return nil, err
	}
	if sum.Matched == 0 {
		return files, nil
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i, name := range paramNames {
		p := fmt.Sprintf("%s_pull_%s%s", base, name, ext)
		h := report.PullHistogram(sum.Pulls[i], nbins)
		if err := report.SaveH1D(h, name+" pull", "(fit - truth)/σ", p); err != nil {
			return files, err
		}
		files = append(files, p)
	}
	return files, nil
}
