package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"

	// SchemeUnknown labels results for scheme ids the catalog does not carry.
	SchemeUnknown = "unknown"
)

var (
	scoringResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_results_total",
			Help: "Score results produced, by scheme and outcome",
		},
		[]string{"scheme", "status"},
	)

	scoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scoring_duration_seconds",
			Help:    "Time to score one admission under one scheme",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"scheme"},
	)

	unmappedCodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_unmapped_codes_total",
			Help: "Diagnosis codes that matched no category",
		},
		[]string{"scheme", "icd_version"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_batch_size",
			Help:    "Number of score requests per batch run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResult records one scored (admission, scheme) pair.
func ObserveResult(scheme string, failed bool, duration time.Duration) {
	status := StatusOK
	if failed {
		status = StatusFailed
	}
	scoringResultsTotal.WithLabelValues(scheme, status).Inc()
	scoringDuration.WithLabelValues(scheme).Observe(duration.Seconds())
}

func ObserveUnmapped(scheme, icdVersion string, count int) {
	if count <= 0 {
		return
	}
	unmappedCodesTotal.WithLabelValues(scheme, icdVersion).Add(float64(count))
}

func ObserveBatch(size int) {
	batchSize.Observe(float64(size))
}

// Middleware records request counts and latency keyed by the matched route
// template, so admission ids in paths do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routeTemplate(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
