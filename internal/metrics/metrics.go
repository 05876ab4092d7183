// Package metrics provides Prometheus metrics for case intake, scoring and linking.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Link outcomes.
const (
	LinkNone    = "none"
	LinkJoined  = "joined"
	LinkCreated = "created"
	LinkMerged  = "merged"
	LinkError   = "error"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	casesCreated    *prometheus.CounterVec
	scoreDuration   prometheus.Histogram
	priorityScores  prometheus.Histogram
	linkOutcomes    *prometheus.CounterVec
	groupsCreated   prometheus.Counter
	groupsMerged    prometheus.Counter
	retrainOutcomes *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.casesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cases_created_total",
			Help: "Total number of case submissions by outcome",
		},
		[]string{"status"}, // status: success, rejected, error
	)

	m.scoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "priority_score_duration_seconds",
			Help:    "Time taken to score a case",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
	)

	m.priorityScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "priority_score_value",
			Help:    "Distribution of assigned priority scores",
			Buckets: prometheus.LinearBuckets(10, 10, 9),
		},
	)

	m.linkOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_link_operations_total",
			Help: "Total number of case linking runs by outcome",
		},
		[]string{"outcome"},
	)

	m.groupsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "case_groups_created_total",
		Help: "Total number of case groups created by linking",
	})

	m.groupsMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "case_groups_merged_total",
		Help: "Total number of case groups retired by merging into another group",
	})

	m.retrainOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_retrain_total",
			Help: "Total number of model retrain requests by outcome",
		},
		[]string{"outcome"}, // outcome: success, insufficient_data, error
	)

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	for _, c := range []prometheus.Collector{
		m.casesCreated, m.scoreDuration, m.priorityScores, m.linkOutcomes,
		m.groupsCreated, m.groupsMerged, m.retrainOutcomes, m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CaseCreated(status string) {
	if m == nil {
		return
	}
	m.casesCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveScore(score float64, took time.Duration) {
	if m == nil {
		return
	}
	m.scoreDuration.Observe(took.Seconds())
	m.priorityScores.Observe(score)
}

func (m *Metrics) LinkOutcome(outcome string) {
	if m == nil {
		return
	}
	m.linkOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GroupCreated() {
	if m == nil {
		return
	}
	m.groupsCreated.Inc()
}

func (m *Metrics) GroupsMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.groupsMerged.Add(float64(n))
}

func (m *Metrics) RetrainOutcome(outcome string) {
	if m == nil {
		return
	}
	m.retrainOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
