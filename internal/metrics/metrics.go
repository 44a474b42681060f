package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry        *prometheus.Registry
	runDuration     prometheus.Histogram   // time for one command
	reconciliations *prometheus.CounterVec // reconciliations by terminal state
	operations      *prometheus.CounterVec // plan operations applied
	remoteRequests  *prometheus.CounterVec // cloudflare requests
	cacheRequests   *prometheus.CounterVec // badgerdb requests
}

func (m *Metrics) SetRunDuration(duration time.Duration) {
	m.runDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncReconcile(resource, state string) {
	if !isValidResource(resource) || state == "" {
		return
	}
	m.reconciliations.WithLabelValues(resource, state).Inc()
}

func (m *Metrics) IncOperation(operation, zone string, success bool) {
	if !isValidOperation(operation) || zone == "" {
		return
	}
	status := boolToResult(success)
	m.operations.WithLabelValues(operation, zone, status).Inc()
}

func (m *Metrics) IncRemoteRequest(operation, resource string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.remoteRequests.WithLabelValues(operation, resource, status).Inc()
}

func (m *Metrics) IncCacheRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.cacheRequests.WithLabelValues(operation, status).Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Gatherer exposes the registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidOperation(op string) bool {
	switch op {
	case "create", "read", "update", "delete":
		return true
	}
	return false
}

func isValidResource(r string) bool {
	switch r {
	case "settings", "redirects":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "cf_zone_sync"

	m := &Metrics{
		registry: registry,

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a command run in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliations by resource kind and terminal state",
		}, []string{"resource", "state"}),

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Plan operations submitted to the provider",
		}, []string{"operation", "zone", "status"}),

		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Total Cloudflare API requests",
		}, []string{"operation", "resource", "status"}),

		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badgerdb_requests_total",
			Help:      "Total zone cache requests",
		}, []string{"operation", "status"}),
	}

	if register {
		registry.MustRegister(
			m.runDuration,
			m.reconciliations,
			m.operations,
			m.remoteRequests,
			m.cacheRequests,
		)
	}
	return m
}
