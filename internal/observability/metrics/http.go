package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics holds the API's request and upload series. Every series
// carries a constant service label.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	uploadFiles     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": service}

	return &HTTPServerMetrics{
		registry: registry,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "intake",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "intake",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds. Inline uploads wait for the whole batch.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5, 30, 60, 300},
			ConstLabels: labels,
		}, []string{"method", "route"}),
		requestInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "intake",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "HTTP requests currently being served.",
			ConstLabels: labels,
		}),
		uploadFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "intake",
			Subsystem:   "upload",
			Name:        "files_total",
			Help:        "Uploaded files by validation result.",
			ConstLabels: labels,
		}, []string{"result"}),
	}
}

// MustRegister adds further collectors, such as the intake pipeline series
// when the API runs batches inline.
func (m *HTTPServerMetrics) MustRegister(collectors ...prometheus.Collector) {
	m.registry.MustRegister(collectors...)
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordUpload(accepted, rejected int) {
	if accepted > 0 {
		m.uploadFiles.WithLabelValues("accepted").Add(float64(accepted))
	}
	if rejected > 0 {
		m.uploadFiles.WithLabelValues("rejected").Add(float64(rejected))
	}
}

// routeLabel prefers the pattern the mux matched and falls back to
// collapsing ids out of the path.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/cases/") && strings.HasSuffix(path, "/documents"):
		return "/v1/cases/{caseID}/documents"
	case strings.HasPrefix(path, "/v1/cases/"):
		return "/v1/cases/{caseID}"
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{documentID}"
	case strings.HasPrefix(path, "/v1/batches/"):
		return "/v1/batches/{batchID}"
	case path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
