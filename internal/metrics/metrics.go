// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimited      *prometheus.CounterVec
	PostsCreated     prometheus.Counter
	FeedsClaimed     prometheus.Counter
	RecoveryOutcomes *prometheus.CounterVec
}

// New registers all collectors, plus the Go runtime and process
// collectors, in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "buildlog",
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "buildlog",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route pattern.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "buildlog",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by a rate limit, by reason.",
			},
			[]string{"reason"},
		),
		PostsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildlog",
			Name:      "posts_created_total",
			Help:      "Updates accepted.",
		}),
		FeedsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "buildlog",
			Name:      "feeds_claimed_total",
			Help:      "Slugs claimed.",
		}),
		RecoveryOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "buildlog",
				Name:      "recovery_outcomes_total",
				Help:      "Recovery request and verify outcomes.",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.RequestDuration,
		m.RateLimited,
		m.PostsCreated,
		m.FeedsClaimed,
		m.RecoveryOutcomes,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveRecovery counts one recovery outcome.
func (m *Metrics) ObserveRecovery(outcome string) {
	m.RecoveryOutcomes.WithLabelValues(outcome).Inc()
}
