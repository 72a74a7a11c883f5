package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Record Store metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Schema metrics
	MigrationsApplied prometheus.Counter

	// Reactive store metrics
	StoreMutations *prometheus.CounterVec
}

// New creates all application metrics and registers them with reg.
// A nil reg leaves them unregistered, which is what tests usually want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of Record Store operations",
		}, []string{"collection", "operation", "status"}),
		DatabaseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of Record Store operations",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"collection", "operation"}),
		MigrationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_migrations_applied_total",
			Help:      "Total number of schema versions applied",
		}),
		StoreMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_mutations_total",
			Help:      "Total number of reactive store mutations",
		}, []string{"store", "operation", "status"}),
	}

	if reg != nil {
		reg.MustRegister(m.DatabaseOperations, m.DatabaseLatency, m.MigrationsApplied, m.StoreMutations)
	}
	return m
}

// ObserveDB records one Record Store call.
func (m *Metrics) ObserveDB(collection, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DatabaseOperations.WithLabelValues(collection, operation, status).Inc()
	m.DatabaseLatency.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}

// ObserveMutation records one reactive store mutation.
func (m *Metrics) ObserveMutation(store, operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreMutations.WithLabelValues(store, operation, status).Inc()
}
