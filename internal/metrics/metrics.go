// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	GuardDenials   *prometheus.CounterVec
	LinksRewritten prometheus.Counter
	PagesRewritten prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageproxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pageproxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pageproxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pageproxy_upstream_request_duration_seconds",
			Help:    "Upstream fetch latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"scheme"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageproxy_upstream_responses_total",
			Help: "Total upstream responses by scheme and status code.",
		}, []string{"scheme", "status_code"}),

		GuardDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageproxy_guard_denials_total",
			Help: "Requests denied by the SSRF guard.",
		}, []string{"reason"}),

		LinksRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageproxy_links_rewritten_total",
			Help: "Total attributes rewritten across all proxied pages.",
		}),

		PagesRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageproxy_pages_rewritten_total",
			Help: "Total HTML documents rewritten.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.GuardDenials,
		m.LinksRewritten,
		m.PagesRewritten,
	)

	return m
}

// DenialReason buckets guard denial reasons into bounded label values.
func DenialReason(reason string) string {
	switch {
	case strings.Contains(reason, "allowlist"):
		return "allowlist"
	case strings.Contains(reason, "private"):
		return "private_address"
	case strings.Contains(reason, "resolve"):
		return "resolution"
	default:
		return "other"
	}
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

// PathNormalizer maps request paths onto a bounded label set built from the
// configured route layout, so a non-default proxy mount path still labels
// correctly.
type PathNormalizer struct {
	prefixes []string
}

// NewPathNormalizer creates a PathNormalizer for the given proxy mount path.
func NewPathNormalizer(mountPath string) *PathNormalizer {
	prefixes := []string{"/proxy/status"}
	if mountPath != "" {
		prefixes = append(prefixes, mountPath)
	}
	prefixes = append(prefixes, "/healthz", "/metrics", "/")
	return &PathNormalizer{prefixes: prefixes}
}

// Normalize returns a bounded path label for Prometheus metrics.
func (n *PathNormalizer) Normalize(path string) string {
	for _, prefix := range n.prefixes {
		if path == prefix || (prefix != "/" && (strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?"))) {
			return prefix
		}
	}
	return "other"
}
