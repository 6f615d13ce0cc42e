package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helicaltrack_fits_total",
			Help: "Total number of helix fit attempts by outcome.",
		},
		[]string{"status"},
	)

	fitChisq = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helicaltrack_fit_chisq",
			Help:    "Total chi-square of successful helix fits.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	fitDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helicaltrack_fit_duration_seconds",
			Help:    "Wall time of a single helix fit.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helicaltrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)
)

func init() {
	prometheus.MustRegister(fitsTotal)
	prometheus.MustRegister(fitChisq)
	prometheus.MustRegister(fitDurationSeconds)
	prometheus.MustRegister(httpRequestsTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFit counts a fit outcome. chisq is observed only for successful
// fits, which callers mark with ok.
func RecordFit(status string, ok bool, chisq float64, elapsed time.Duration) {
	fitsTotal.WithLabelValues(status).Inc()
	fitDurationSeconds.Observe(elapsed.Seconds())
	if ok {
		fitChisq.Observe(chisq)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(normalizeRoute(r.URL.Path), r.Method, strconv.Itoa(rw.statusCode)).Inc()
	})
}

// normalizeRoute collapses IDs in API paths so that label cardinality
// stays bounded.
func normalizeRoute(path string) string {
	switch {
	case path == "/metrics" || path == "/healthz":
		return path
	case strings.HasPrefix(path, "/api/fits/"):
		return "/api/fits/{fit_id}"
	case strings.HasPrefix(path, "/api/runs/") && strings.HasSuffix(path, "/fits"):
		return "/api/runs/{run_id}/fits"
	case strings.HasPrefix(path, "/api/runs/") && strings.HasSuffix(path, "/status"):
		return "/api/runs/{run_id}/status"
	case path == "/api/runs":
		return path
	case strings.HasPrefix(path, "/debug/"):
		return "/debug/"
	}
	return "other"
}
