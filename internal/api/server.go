// Package api serves stored fit results as JSON.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/helicaltrack/internal/httputil"
	"github.com/banshee-data/helicaltrack/internal/metrics"
	"github.com/banshee-data/helicaltrack/internal/monitoring"
	"github.com/banshee-data/helicaltrack/internal/store"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const defaultLimit = 100

// FitStore is the read side of store.Store used by the handlers.
type FitStore interface {
	ListRuns() ([]store.Run, error)
	GetRun(runID string) (*store.Run, error)
	ListFits(runID string) ([]store.FitRecord, error)
	StatusCounts(runID string) (map[string]int, error)
	GetFit(fitID string) (*store.FitRecord, error)
}

type Server struct {
	store FitStore
}

func NewServer(s FitStore) *Server {
	return &Server{store: s}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes wrapped in request metrics.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{run_id}/fits", s.listFits)
	mux.HandleFunc("GET /api/runs/{run_id}/status", s.runStatus)
	mux.HandleFunc("GET /api/fits/{fit_id}", s.getFit)

	outer := http.NewServeMux()
	outer.Handle("/", metrics.Middleware(mux))
	return outer
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", defaultLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	if runs == nil {
		runs = []store.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// lookupRun writes a 404 and returns false when the run does not exist.
func (s *Server) lookupRun(w http.ResponseWriter, runID string) bool {
	if _, err := s.store.GetRun(runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("run %s not found", runID))
		} else {
			httputil.InternalServerError(w, fmt.Sprintf("failed to load run: %v", err))
		}
		return false
	}
	return true
}

func (s *Server) listFits(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	limit, err := httputil.QueryInt(r, "limit", defaultLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if !s.lookupRun(w, runID) {
		return
	}
	fits, err := s.store.ListFits(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list fits: %v", err))
		return
	}

	status := r.URL.Query().Get("status")
	out := make([]store.FitRecord, 0, len(fits))
	for _, f := range fits {
		if status != "" && f.Status != status {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, f)
	}
	httputil.WriteJSONOK(w, out)
}

type runStatusResponse struct {
	RunID  string         `json:"run_id"`
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

func (s *Server) runStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if !s.lookupRun(w, runID) {
		return
	}
	counts, err := s.store.StatusCounts(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count fits: %v", err))
		return
	}
	resp := runStatusResponse{RunID: runID, Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) getFit(w http.ResponseWriter, r *http.Request) {
	fitID := r.PathValue("fit_id")
	fit, err := s.store.GetFit(fitID)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("fit %s not found", fitID))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load fit: %v", err))
		return
	}
	httputil.WriteJSONOK(w, fit)
}
