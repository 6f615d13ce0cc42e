package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/helicaltrack/internal/helicaltrack"
	"github.com/banshee-data/helicaltrack/internal/monitoring"
	"github.com/banshee-data/helicaltrack/internal/store"
	"github.com/banshee-data/helicaltrack/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeStore struct {
	runs   []store.Run
	fits   map[string][]store.FitRecord
	counts map[string]map[string]int
	err    error
}

func (f *fakeStore) ListRuns() ([]store.Run, error) { return f.runs, f.err }

func (f *fakeStore) GetRun(runID string) (*store.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.runs {
		if f.runs[i].RunID == runID {
			return &f.runs[i], nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
}

func (f *fakeStore) ListFits(runID string) ([]store.FitRecord, error) { return f.fits[runID], f.err }

func (f *fakeStore) StatusCounts(runID string) (map[string]int, error) {
	return f.counts[runID], f.err
}

func (f *fakeStore) GetFit(fitID string) (*store.FitRecord, error) {
	for _, fits := range f.fits {
		for i := range fits {
			if fits[i].FitID == fitID {
				return &fits[i], nil
			}
		}
	}
	return nil, fmt.Errorf("fit %s: %w", fitID, store.ErrNotFound)
}

func newFake() *fakeStore {
	return &fakeStore{
		runs: []store.Run{{RunID: "r2"}, {RunID: "r1"}},
		fits: map[string][]store.FitRecord{
			"r1": {
				{FitID: "f1", RunID: "r1", Status: "Success", HasFit: true},
				{FitID: "f2", RunID: "r1", Status: "LineFitFailed"},
				{FitID: "f3", RunID: "r1", Status: "Success", HasFit: true},
			},
		},
		counts: map[string]map[string]int{"r1": {"Success": 2, "LineFitFailed": 1}},
	}
}

func serve(s FitStore, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	NewServer(s).ServeMux().ServeHTTP(rec, testutil.NewTestRequest(method, path))
	return rec
}

func TestListRuns(t *testing.T) {
	rec := serve(newFake(), http.MethodGet, "/api/runs?limit=1")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var runs []store.Run
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "r2" {
		t.Errorf("runs = %+v, want only r2", runs)
	}
}

func TestListRunsEmptyIsArray(t *testing.T) {
	rec := serve(&fakeStore{}, http.MethodGet, "/api/runs")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListFits(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/api/runs/r1/fits", []string{"f1", "f2", "f3"}},
		{"/api/runs/r1/fits?status=Success", []string{"f1", "f3"}},
		{"/api/runs/r1/fits?status=Success&limit=1", []string{"f1"}},
		{"/api/runs/r2/fits", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(newFake(), http.MethodGet, tt.path)
			testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
			var fits []store.FitRecord
			if err := json.NewDecoder(rec.Body).Decode(&fits); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			got := make([]string, len(fits))
			for i, f := range fits {
				got[i] = f.FitID
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("fits = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStatus(t *testing.T) {
	rec := serve(newFake(), http.MethodGet, "/api/runs/r1/status")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp runStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Total != 3 || resp.Counts["Success"] != 2 {
		t.Errorf("status = %+v, want total 3 with 2 successes", resp)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		store  FitStore
		method string
		path   string
		status int
	}{
		{"unknown run fits", newFake(), http.MethodGet, "/api/runs/zz/fits", http.StatusNotFound},
		{"unknown run status", newFake(), http.MethodGet, "/api/runs/zz/status", http.StatusNotFound},
		{"unknown fit", newFake(), http.MethodGet, "/api/fits/zz", http.StatusNotFound},
		{"bad limit", newFake(), http.MethodGet, "/api/runs?limit=x", http.StatusBadRequest},
		{"bad fits limit", newFake(), http.MethodGet, "/api/runs/r1/fits?limit=-3", http.StatusBadRequest},
		{"store failure", &fakeStore{err: errors.New("disk")}, http.MethodGet, "/api/runs", http.StatusInternalServerError},
		{"store failure on run", &fakeStore{err: errors.New("disk")}, http.MethodGet, "/api/runs/r1/status", http.StatusInternalServerError},
		{"wrong method", newFake(), http.MethodPost, "/api/runs", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.store, tt.method, tt.path)
			testutil.AssertStatusCode(t, rec.Code, tt.status)
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := serve(newFake(), http.MethodGet, "/healthz")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestStatusCodeColor(t *testing.T) {
	if got := statusCodeColor(204); !strings.Contains(got, colorBoldGreen) {
		t.Errorf("204 should be green, got %q", got)
	}
	if got := statusCodeColor(302); !strings.Contains(got, colorYellow) {
		t.Errorf("302 should be yellow, got %q", got)
	}
	if got := statusCodeColor(503); !strings.Contains(got, colorBoldRed) {
		t.Errorf("503 should be red, got %q", got)
	}
	if got := statusCodeColor(101); got != "101" {
		t.Errorf("101 = %q, want plain", got)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var logged string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = fmt.Sprintf(format, v...) })
	defer monitoring.SetLogger(nil)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/runs"))

	testutil.AssertStatusCode(t, rec.Code, http.StatusTeapot)
	if !strings.Contains(logged, "418") || !strings.Contains(logged, "/api/runs") {
		t.Errorf("log line = %q, want status and path", logged)
	}
}

func TestAgainstSQLiteStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	testutil.AssertNoError(t, err)
	defer s.Close()
	testutil.AssertNoError(t, s.MigrateUp())

	runID, err := s.CreateRun(nil)
	testutil.AssertNoError(t, err)
	fitID, err := s.RecordFit(runID, helicaltrack.ZSegmentFitFailed, nil, nil, 5)
	testutil.AssertNoError(t, err)

	rec := serve(s, http.MethodGet, "/api/fits/"+fitID)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var fit store.FitRecord
	if err := json.NewDecoder(rec.Body).Decode(&fit); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if fit.Status != "ZSegmentFitFailed" || fit.RunID != runID {
		t.Errorf("fit = %+v", fit)
	}
}
