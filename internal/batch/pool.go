// Package batch fits many independent hit collections in parallel.
package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/metrics"
	"github.com/banshee-data/helicaltrack/internal/timeutil"
)

// Job is one hit collection to fit. Scatters and Seed may be nil.
//
// Cross hits cache a direction correction, so a cross must not appear in
// two jobs of the same FitAll call.
type Job struct {
	ID       string
	Hits     []*helicaltrack.Hit
	Scatters helicaltrack.ScatterMap
	Seed     *helicaltrack.Fit
}

// Result is the outcome of a Job. Fit is nil unless Status is Success and
// Err is nil.
type Result struct {
	ID     string
	Status helicaltrack.FitStatus
	Fit    *helicaltrack.Fit
	Err    error
}

// Pool runs fits on a fixed number of goroutines, each with its own
// Fitter.
type Pool struct {
	workers   int
	logger    *slog.Logger
	clock     timeutil.Clock
	configure func(*helicaltrack.Fitter)
}

// Option configures a Pool.
type Option func(*Pool)

// WithFitterSetup applies f to each worker's fitter before it starts.
func WithFitterSetup(f func(*helicaltrack.Fitter)) Option {
	return func(p *Pool) { p.configure = f }
}

// WithClock sets the clock used to time fits.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// NewPool creates a pool with the given number of workers. Fewer than one
// worker is treated as one.
func NewPool(workers int, logger *slog.Logger, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{workers: workers, logger: logger, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// FitAll fits every job and returns the results in job order. Once ctx is
// cancelled no further jobs are started; the results of jobs that never
// ran carry ctx.Err().
func (p *Pool) FitAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	started := make([]bool, len(jobs))

	indices := make(chan int, p.workers*2)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fitter := helicaltrack.NewFitter()
			if p.configure != nil {
				p.configure(fitter)
			}
			for idx := range indices {
				results[idx] = p.fitOne(fitter, jobs[idx])
			}
		}()
	}

	func() {
		defer close(indices)
		for i := range jobs {
			if ctx.Err() != nil {
				return
			}
			select {
			case indices <- i:
				started[i] = true
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()

	var dropped int
	for i, ok := range started {
		if !ok {
			results[i] = Result{ID: jobs[i].ID, Status: helicaltrack.CircleFitFailed, Err: ctx.Err()}
			dropped++
		}
	}
	if dropped > 0 {
		p.logger.Warn("batch cancelled", "dropped_jobs", dropped, "error", ctx.Err())
	}
	return results
}

func (p *Pool) fitOne(fitter *helicaltrack.Fitter, job Job) Result {
	start := p.clock.Now()
	status, err := fitter.Fit(job.Hits, job.Scatters, job.Seed)
	elapsed := p.clock.Since(start)

	res := Result{ID: job.ID, Status: status, Err: err}
	if err != nil {
		p.logger.Warn("fit rejected input", "job", job.ID, "status", status.String(), "error", err)
		metrics.RecordFit(status.String(), false, 0, elapsed)
		return res
	}
	res.Fit = fitter.Result()
	if res.Fit == nil {
		p.logger.Debug("fit failed", "job", job.ID, "status", status.String(), "hits", len(job.Hits))
		metrics.RecordFit(status.String(), false, 0, elapsed)
		return res
	}
	metrics.RecordFit(status.String(), true, res.Fit.ChisqTotal(), elapsed)
	return res
}
