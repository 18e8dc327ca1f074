// Package metrics exposes Prometheus collectors for the annotatrix server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"annotatrix/internal/annotatrix"
)

const namespace = "annotatrix"

// Metrics holds the server's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	corpusOps *prometheus.CounterVec
	logins    *prometheus.CounterVec

	converterRuns     *prometheus.CounterVec
	converterDuration prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),

		corpusOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corpus",
			Name:      "operations_total",
			Help:      "Corpus operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "logins_total",
			Help:      "Completed OAuth callbacks by outcome.",
		}, []string{"outcome"}),

		converterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "converter",
			Name:      "runs_total",
			Help:      "External converter runs by outcome.",
		}, []string{"outcome"}),
		converterDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "converter",
			Name:      "run_duration_seconds",
			Help:      "Duration of external converter runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.corpusOps,
		m.logins,
		m.converterRuns,
		m.converterDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics. pathLabel maps a request
// to a low-cardinality path, typically its route template.
func (m *Metrics) InstrumentHandler(next http.Handler, pathLabel func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := pathLabel(r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordCorpusOp counts a save, load, download or upload.
func (m *Metrics) RecordCorpusOp(op string, err error) {
	m.corpusOps.WithLabelValues(op, Outcome(err)).Inc()
}

// RecordLogin counts a completed OAuth callback.
func (m *Metrics) RecordLogin(err error) {
	m.logins.WithLabelValues(Outcome(err)).Inc()
}

// Outcome classifies err into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, annotatrix.ErrValidation):
		return "invalid"
	case errors.Is(err, annotatrix.ErrNotFound):
		return "not_found"
	case errors.Is(err, annotatrix.ErrSessionState):
		return "session_state"
	case errors.Is(err, annotatrix.ErrExternalTool):
		var toolErr *annotatrix.ExternalToolError
		if errors.As(err, &toolErr) && toolErr.TimedOut {
			return "timeout"
		}
		return "tool_failure"
	default:
		return "error"
	}
}

// InstrumentConverter wraps c so every run is counted and timed.
func (m *Metrics) InstrumentConverter(c annotatrix.Converter) annotatrix.Converter {
	return &instrumentedConverter{next: c, m: m}
}

type instrumentedConverter struct {
	next annotatrix.Converter
	m    *Metrics
}

func (c *instrumentedConverter) Convert(ctx context.Context, input []byte) ([]byte, error) {
	start := time.Now()
	out, err := c.next.Convert(ctx, input)
	c.m.converterDuration.Observe(time.Since(start).Seconds())
	c.m.converterRuns.WithLabelValues(Outcome(err)).Inc()
	return out, err
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
