// Package metrics exposes Prometheus instrumentation for the API
// server and the extraction worker.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	extractionJobsTotal *prometheus.CounterVec
	extractionDuration  prometheus.Histogram
	emailsSentTotal     *prometheus.CounterVec
	uploadsTotal        prometheus.Counter
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoiced",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "invoiced",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "invoiced",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	extractionJobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoiced",
			Subsystem: "extraction",
			Name:      "jobs_total",
			Help:      "Total extraction jobs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	extractionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "invoiced",
			Subsystem:   "extraction",
			Name:        "duration_seconds",
			Help:        "Extraction job duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	emailsSentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoiced",
			Subsystem: "mail",
			Name:      "sent_total",
			Help:      "Total invoice emails by outcome.",
		},
		[]string{"service", "outcome"},
	)
	uploadsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "invoiced",
			Subsystem:   "files",
			Name:        "uploads_total",
			Help:        "Total uploaded invoice documents.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		extractionJobsTotal,
		extractionDuration,
		emailsSentTotal,
		uploadsTotal,
	)

	return &Metrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		extractionJobsTotal: extractionJobsTotal,
		extractionDuration:  extractionDuration,
		emailsSentTotal:     emailsSentTotal,
		uploadsTotal:        uploadsTotal,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses resource IDs so label cardinality stays
// flat. Routes look like /api/<collection>/<id>/<collection>/<id>, so
// every second segment after the prefix is an identifier.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i := 3; i < len(parts); i += 2 {
		if parts[i] != "" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func (m *Metrics) RecordExtraction(service, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.extractionJobsTotal.WithLabelValues(service, outcome).Inc()
	m.extractionDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordEmail(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.emailsSentTotal.WithLabelValues(service, outcome).Inc()
}

func (m *Metrics) RecordUpload() {
	m.uploadsTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
