// Package metrics provides Prometheus metrics for the listener, probe and dispatcher.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Body size buckets, 64 B to 16 MiB.
var bodyBuckets = prometheus.ExponentialBuckets(64, 4, 10)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	AcksTotal     prometheus.Counter
	AckBodyBytes  prometheus.Histogram
	ParkedNonPost prometheus.Gauge

	ProbeDuration prometheus.Histogram
	ProbeResults  *prometheus.CounterVec

	DispatchTotal *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commproto_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commproto_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commproto_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		AcksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commproto_acks_total",
			Help: "Total POST bodies fully received and acknowledged.",
		}),

		AckBodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commproto_ack_body_bytes",
			Help:    "Size of acknowledged POST bodies in bytes.",
			Buckets: bodyBuckets,
		}),

		ParkedNonPost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commproto_parked_non_post_requests",
			Help: "Non-POST requests currently held open without a response.",
		}),

		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commproto_probe_duration_seconds",
			Help:    "Startup probe round-trip latency in seconds.",
			Buckets: defaultBuckets,
		}),

		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commproto_probe_results_total",
			Help: "Probe runs by outcome.",
		}, []string{"outcome"}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commproto_dispatch_messages_total",
			Help: "Dispatched datagram messages by target, level and result.",
		}, []string{"target", "level", "result"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.AcksTotal,
		m.AckBodyBytes,
		m.ParkedNonPost,
		m.ProbeDuration,
		m.ProbeResults,
		m.DispatchTotal,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the admin path label values. Every other path is an ack path.
var knownPrefixes = []string{"/healthz", "/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "ack"
}
