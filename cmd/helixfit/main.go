// Command helixfit fits helices to the track candidates of a hit-set file,
// stores the results in SQLite and writes diagnostic plots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/helicaltrack/internal/api"
	"github.com/banshee-data/helicaltrack/internal/batch"
	"github.com/banshee-data/helicaltrack/internal/config"
	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/hitio"
	"github.com/banshee-data/helicaltrack/internal/metrics"
	"github.com/banshee-data/helicaltrack/internal/report"
	"github.com/banshee-data/helicaltrack/internal/scattering"
	"github.com/banshee-data/helicaltrack/internal/security"
	"github.com/banshee-data/helicaltrack/internal/store"
	"github.com/banshee-data/helicaltrack/internal/version"
)

var (
	input       = flag.String("input", "", "Hit-set JSON file to fit")
	configFile  = flag.String("config", "", "Fit configuration file (.json or .yaml); defaults are used when empty")
	dbFile      = flag.String("db", "helixfit.db", "SQLite database for fit results")
	plotsDir    = flag.String("plots", "", "Directory for PNG track plots (disabled when empty)")
	htmlFile    = flag.String("html", "", "Interactive s-z HTML page (disabled when empty)")
	workers     = flag.Int("workers", 0, "Number of fit workers (0 uses the configured value)")
	listen      = flag.String("listen", "", "Serve the results API, /metrics and /debug/ on this address after fitting")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// chi2Bins and chi2Max shape the χ²/ndf summary histogram.
const (
	chi2Bins = 50
	chi2Max  = 10.0
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("helixfit", version.String())
		return
	}
	if *input == "" {
		log.Fatalf("-input is required")
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	hitSets, err := hitio.LoadHitSets(*input)
	if err != nil {
		log.Fatalf("failed to load hit sets: %v", err)
	}
	jobs, err := buildJobs(hitSets, stereoMaker(cfg))
	if err != nil {
		log.Fatalf("failed to prepare hits: %v", err)
	}
	log.Printf("loaded %d track candidates from %s", len(jobs), *input)

	calc, err := scatterCalculator(cfg)
	if err != nil {
		log.Fatalf("failed to set up multiple scattering: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n := cfg.GetWorkers()
	if *workers > 0 {
		n = *workers
	}
	pool := newPool(cfg, n, slog.Default())
	results := fitJobs(ctx, pool, jobs, calc)

	st, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer st.Close()
	if err := st.MigrateUp(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	runID, err := recordResults(st, cfg, jobs, results)
	if err != nil {
		log.Fatalf("failed to record fits: %v", err)
	}
	counts, err := st.StatusCounts(runID)
	if err != nil {
		log.Fatalf("failed to count fits: %v", err)
	}
	log.Printf("run %s: %v", runID, counts)

	if err := writeReports(*plotsDir, *htmlFile, tracksOf(jobs, results)); err != nil {
		log.Fatalf("failed to write reports: %v", err)
	}

	if *listen == "" {
		return
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serve(ctx, *listen, st); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func loadConfig(path string) (*config.FitConfig, error) {
	if path == "" {
		return config.DefaultFitConfig(), nil
	}
	return config.LoadFitConfig(path)
}

func stereoMaker(cfg *config.FitConfig) *helicaltrack.StereoHitMaker {
	m := helicaltrack.NewStereoHitMaker()
	m.SetTolerance(cfg.GetStereoTolerance())
	m.SetMaxSeparation(cfg.GetMaxSeparation())
	m.SetEpsParallel(cfg.GetEpsParallel())
	m.SetEpsStereoAngle(cfg.GetEpsStereoAngle())
	return m
}

// buildJobs decodes every event and pairs its strips into stereo crosses.
// Crosses only ever belong to the job of their own event.
func buildJobs(f *hitio.HitSetFile, maker *helicaltrack.StereoHitMaker) ([]batch.Job, error) {
	jobs := make([]batch.Job, 0, len(f.Events))
	for _, rec := range f.Events {
		ev, err := rec.Decode()
		if err != nil {
			return nil, err
		}
		hits := ev.Hits
		if len(ev.Strips) > 0 {
			crosses, err := maker.MakeLayerHits(ev.Strips)
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", ev.ID, err)
			}
			hits = append(hits, crosses...)
		}
		jobs = append(jobs, batch.Job{ID: ev.ID, Hits: hits})
	}
	return jobs, nil
}

func scatterCalculator(cfg *config.FitConfig) (*scattering.Calculator, error) {
	if !cfg.GetMaterialScan() {
		return nil, nil
	}
	m, err := scattering.LoadMaterial(cfg.GetMaterialFile())
	if err != nil {
		return nil, err
	}
	return scattering.NewCalculator(*m, cfg.GetBField())
}

func newPool(cfg *config.FitConfig, n int, logger *slog.Logger) *batch.Pool {
	tol := cfg.GetFitTolerance()
	x, y := cfg.GetReferencePoint()
	return batch.NewPool(n, logger, batch.WithFitterSetup(func(f *helicaltrack.Fitter) {
		f.SetTolerance(tol)
		f.SetReferencePoint(x, y)
	}))
}

// fitJobs fits every job. With a scattering calculator, successful fits
// are refit seeded by the first pass, with the scattering errors it
// implies and with the stereo crosses corrected for its track direction.
// The refit records the crosses' out-of-strip penalty as its
// non-holonomic χ².
func fitJobs(ctx context.Context, pool *batch.Pool, jobs []batch.Job, calc *scattering.Calculator) []batch.Result {
	for _, job := range jobs {
		for _, h := range crossesOf(job.Hits) {
			h.ResetTrackDirection()
		}
	}
	results := pool.FitAll(ctx, jobs)
	if calc == nil {
		return results
	}

	var refit []batch.Job
	var index []int
	for i, res := range results {
		if res.Fit == nil {
			continue
		}
		job := jobs[i]
		if err := correctCrosses(job.Hits, res.Fit); err != nil {
			log.Printf("job %s: keeping first-pass fit: %v", job.ID, err)
			continue
		}
		job.Scatters = calc.ScatterMap(res.Fit, job.Hits)
		job.Seed = res.Fit
		refit = append(refit, job)
		index = append(index, i)
	}
	for k, res := range pool.FitAll(ctx, refit) {
		if res.Fit != nil {
			if err := res.Fit.SetNHChisq(crossPenalty(refit[k].Hits)); err != nil {
				log.Printf("job %s: %v", res.ID, err)
			}
		}
		results[index[k]] = res
	}
	return results
}

func crossesOf(hits []*helicaltrack.Hit) []*helicaltrack.Hit {
	var out []*helicaltrack.Hit
	for _, h := range hits {
		if h.Kind() == helicaltrack.KindCross {
			out = append(out, h)
		}
	}
	return out
}

// correctCrosses sets the track direction of every cross from f. On
// error the crosses are reset to their from-origin estimate.
func correctCrosses(hits []*helicaltrack.Hit, f *helicaltrack.Fit) error {
	crosses := crossesOf(hits)
	for _, h := range crosses {
		if err := h.SetTrackDirection(f); err != nil {
			for _, c := range crosses {
				c.ResetTrackDirection()
			}
			return fmt.Errorf("cross %s: %w", h.LayerIdentifier(), err)
		}
	}
	return nil
}

func crossPenalty(hits []*helicaltrack.Hit) float64 {
	var chisq float64
	for _, h := range crossesOf(hits) {
		chisq += h.Chisq()
	}
	return chisq
}

// recordResults stores a run holding every result, in job order.
func recordResults(st *store.Store, cfg *config.FitConfig, jobs []batch.Job, results []batch.Result) (string, error) {
	runID, err := st.CreateRun(cfg)
	if err != nil {
		return "", err
	}
	bfield := cfg.GetBField()
	for i, res := range results {
		if res.Err != nil {
			log.Printf("job %s: %v", res.ID, res.Err)
		}
		if _, err := st.RecordFit(runID, res.Status, res.Fit, jobs[i].Hits, bfield); err != nil {
			return runID, fmt.Errorf("job %s: %w", res.ID, err)
		}
	}
	return runID, nil
}

func tracksOf(jobs []batch.Job, results []batch.Result) []report.Track {
	tracks := make([]report.Track, 0, len(results))
	for i, res := range results {
		if res.Fit == nil {
			continue
		}
		tracks = append(tracks, report.Track{ID: res.ID, Fit: res.Fit, Hits: jobs[i].Hits})
	}
	return tracks
}

// writeReports writes per-track PNGs and a χ²/ndf histogram into plotsDir
// and the interactive page to htmlPath. Empty paths are skipped.
func writeReports(plotsDir, htmlPath string, tracks []report.Track) error {
	if plotsDir != "" {
		files, err := report.PlotTracks(plotsDir, tracks)
		if err != nil {
			return err
		}
		log.Printf("wrote %d track plots to %s", len(files), plotsDir)

		var chi2 []float64
		for _, t := range tracks {
			if ndf := t.Fit.NdfTotal(); ndf > 0 {
				chi2 = append(chi2, t.Fit.ChisqTotal()/float64(ndf))
			}
		}
		path, err := security.OutputPath(plotsDir, "chi2_ndf", ".png")
		if err != nil {
			return err
		}
		h := report.Chi2Histogram(chi2, chi2Bins, chi2Max)
		if err := report.SaveH1D(h, "Fit quality", "χ²/ndf", path); err != nil {
			return err
		}
	}

	if htmlPath != "" {
		if err := os.MkdirAll(filepath.Dir(htmlPath), 0o755); err != nil {
			return err
		}
		f, err := os.Create(htmlPath)
		if err != nil {
			return err
		}
		if err := report.WriteSZScatterHTML(f, tracks); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Printf("wrote %s", htmlPath)
	}
	return nil
}

// newMux mounts the results API, the metrics handler and the store's
// debug routes.
func newMux(st *store.Store) (*http.ServeMux, error) {
	mux := api.NewServer(st).ServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := st.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	return mux, nil
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, addr string, st *store.Store) error {
	mux, err := newMux(st)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving results on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}
