package s3store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// storeMetrics holds Prometheus metrics for data store operations.
// A nil *storeMetrics records nothing.
type storeMetrics struct {
	operations *prometheus.CounterVec   // by operation, outcome
	duration   *prometheus.HistogramVec // by operation
	retries    *prometheus.CounterVec   // by operation
}

// newStoreMetrics creates and registers the metrics with reg. A nil reg
// disables metrics. Collectors already registered by another store for the
// same bucket are shared.
func newStoreMetrics(reg prometheus.Registerer, bucket string) (*storeMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"bucket": bucket}
	m := &storeMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contentstore",
			Subsystem:   "s3store",
			Name:        "operations_total",
			Help:        "Total number of data store operations",
			ConstLabels: labels,
		}, []string{"operation", "outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "contentstore",
			Subsystem:   "s3store",
			Name:        "operation_duration_seconds",
			Help:        "Data store operation duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"operation"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "contentstore",
			Subsystem:   "s3store",
			Name:        "retries_total",
			Help:        "Operations retried after a connection failure",
			ConstLabels: labels,
		}, []string{"operation"}),
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *storeMetrics) recordOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *storeMetrics) recordRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}
