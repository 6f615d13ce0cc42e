// Package store persists fit runs, fitted helices and the hits behind them
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/helicaltrack/internal/config"
	"github.com/banshee-data/helicaltrack/internal/geom"
	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/timeutil"
)

// ErrNotFound is returned when a run or fit does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite handle holding fit results.
type Store struct {
	*sql.DB
	path  string
	clock timeutil.Clock
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp runs and fits.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator replaces the UUID generator for run and fit IDs.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// Open opens the database at path. The schema is not touched; call
// MigrateUp before use.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	s := &Store{DB: db, path: path, clock: timeutil.RealClock{}, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run is one invocation of the fitter over a set of inputs.
type Run struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	ConfigJSON string    `json:"config_json"`
}

// HitRecord is a hit used in a fit, in hit_index order.
type HitRecord struct {
	Index      int      `json:"index"`
	Kind       string   `json:"kind"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	PathLength *float64 `json:"path_length,omitempty"`
}

// FitRecord is a stored fit outcome. Params and the fields after it are
// only meaningful when HasFit is set.
type FitRecord struct {
	FitID     string              `json:"fit_id"`
	RunID     string              `json:"run_id"`
	Status    string              `json:"status"`
	HasFit    bool                `json:"has_fit"`
	Params    helicaltrack.Params `json:"params"`
	Cov       []float64           `json:"cov,omitempty"`
	Chisq     [2]float64          `json:"chisq"`
	Ndf       [2]int              `json:"ndf"`
	NHChisq   float64             `json:"nh_chisq"`
	PT        float64             `json:"pt"`
	CreatedAt time.Time           `json:"created_at"`
	Hits      []HitRecord         `json:"hits,omitempty"`
}

// CreateRun records a new run with its configuration and returns its ID.
// cfg may be nil.
func (s *Store) CreateRun(cfg *config.FitConfig) (string, error) {
	if cfg == nil {
		cfg = config.EmptyFitConfig()
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode run config: %w", err)
	}
	id := s.newID()
	_, err = s.Exec(`INSERT INTO fit_runs (run_id, started_at, config_json) VALUES (?, ?, ?)`,
		id, s.clock.Now().UnixNano(), string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	var r Run
	var started int64
	err := s.QueryRow(`SELECT run_id, started_at, config_json FROM fit_runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &started, &r.ConfigJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	return &r, nil
}

// ListRuns returns every run, most recent first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.Query(`SELECT run_id, started_at, config_json FROM fit_runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.RunID, &started, &r.ConfigJSON); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordFit stores the outcome of fitting hits under runID and returns the
// new fit ID. fit may be nil for a failed fit; the hits are still stored.
// bfield is in tesla and is used for the stored pT.
func (s *Store) RecordFit(runID string, status helicaltrack.FitStatus, fit *helicaltrack.Fit, hits []*helicaltrack.Hit, bfield float64) (string, error) {
	ctx := context.Background()
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := s.newID()
	created := s.clock.Now().UnixNano()

	if fit == nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO track_fits (fit_id, run_id, status, created_at) VALUES (?, ?, ?, ?)`,
			id, runID, status.String(), created)
	} else {
		var cov []byte
		cov, err = json.Marshal(geom.Packed(fit.Covariance()))
		if err != nil {
			return "", fmt.Errorf("failed to encode covariance: %w", err)
		}
		p := fit.Params()
		chisq, ndf := fit.Chisq(), fit.Ndf()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO track_fits (
				fit_id, run_id, status, dca, phi0, curvature, z0, slope, cov_json,
				chisq_circle, chisq_sz, ndf_circle, ndf_sz, nh_chisq, pt, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, runID, status.String(), p.DCA, p.Phi0, p.Curvature, p.Z0, p.Slope, string(cov),
			chisq[0], chisq[1], ndf[0], ndf[1], fit.NHChisq(), fit.PT(bfield), created)
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert fit: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fit_hits (fit_id, hit_index, kind, x, y, z, path_length) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, h := range hits {
		var path sql.NullFloat64
		if fit != nil {
			if sp, ok := fit.PathMap()[h]; ok {
				path = sql.NullFloat64{Float64: sp, Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, id, i, h.Kind().String(), h.X(), h.Y(), h.Z(), path); err != nil {
			return "", fmt.Errorf("failed to insert hit %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

const fitColumns = `fit_id, run_id, status, dca, phi0, curvature, z0, slope, cov_json,
	chisq_circle, chisq_sz, ndf_circle, ndf_sz, nh_chisq, pt, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFit(row scanner) (*FitRecord, error) {
	var (
		r                          FitRecord
		dca, phi0, curv, z0, slope sql.NullFloat64
		chi0, chi1, nh, pt         sql.NullFloat64
		ndf0, ndf1                 sql.NullInt64
		cov                        sql.NullString
		created                    int64
	)
	if err := row.Scan(&r.FitID, &r.RunID, &r.Status, &dca, &phi0, &curv, &z0, &slope, &cov,
		&chi0, &chi1, &ndf0, &ndf1, &nh, &pt, &created); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.HasFit = curv.Valid
	if !r.HasFit {
		return &r, nil
	}
	r.Params = helicaltrack.Params{
		DCA:       dca.Float64,
		Phi0:      phi0.Float64,
		Curvature: curv.Float64,
		Z0:        z0.Float64,
		Slope:     slope.Float64,
	}
	if cov.Valid {
		if err := json.Unmarshal([]byte(cov.String), &r.Cov); err != nil {
			return nil, fmt.Errorf("fit %s: bad cov_json: %w", r.FitID, err)
		}
	}
	r.Chisq = [2]float64{chi0.Float64, chi1.Float64}
	r.Ndf = [2]int{int(ndf0.Int64), int(ndf1.Int64)}
	r.NHChisq = nh.Float64
	r.PT = pt.Float64
	return &r, nil
}

// GetFit returns the fit with the given ID together with its hits.
func (s *Store) GetFit(fitID string) (*FitRecord, error) {
	r, err := scanFit(s.QueryRow(`SELECT `+fitColumns+` FROM track_fits WHERE fit_id = ?`, fitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fit %s: %w", fitID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.Query(`SELECT hit_index, kind, x, y, z, path_length FROM fit_hits WHERE fit_id = ? ORDER BY hit_index`, fitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var h HitRecord
		var path sql.NullFloat64
		if err := rows.Scan(&h.Index, &h.Kind, &h.X, &h.Y, &h.Z, &path); err != nil {
			return nil, err
		}
		if path.Valid {
			v := path.Float64
			h.PathLength = &v
		}
		r.Hits = append(r.Hits, h)
	}
	return r, rows.Err()
}

// ListFits returns the fits of a run in insertion order, without hits.
func (s *Store) ListFits(runID string) ([]FitRecord, error) {
	rows, err := s.Query(`SELECT `+fitColumns+` FROM track_fits WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fits []FitRecord
	for rows.Next() {
		r, err := scanFit(rows)
		if err != nil {
			return nil, err
		}
		fits = append(fits, *r)
	}
	return fits, rows.Err()
}

// StatusCounts returns the number of fits in a run per status name.
func (s *Store) StatusCounts(runID string) (map[string]int, error) {
	rows, err := s.Query(`SELECT status, COUNT(*) FROM track_fits WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Path returns the database file the store was opened on.
func (s *Store) Path() string { return s.path }
