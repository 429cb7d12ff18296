package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "rdss_metadata_catalog"

// Metrics are the counters maintained by the lifecycle service.
type Metrics struct {
	Operations      *prometheus.CounterVec
	PIDRequests     *prometheus.CounterVec
	LockUnavailable prometheus.Counter
}

// NewMetrics returns unregistered counters.
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dataset_operations_total",
			Help:      "The total number of dataset lifecycle operations by outcome.",
		}, []string{"operation", "outcome"}),
		PIDRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pid_requests_total",
			Help:      "The total number of persistent identifier requests by type and outcome.",
		}, []string{"type", "outcome"}),
		LockUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lock_unavailable_total",
			Help:      "The total number of operations that could not acquire a row lock.",
		}),
	}
}

// MustRegister registers every counter with r.
func (m *Metrics) MustRegister(r prometheus.Registerer) {
	r.MustRegister(m.Operations, m.PIDRequests, m.LockUnavailable)
}

func (m *Metrics) observe(op string, err error) {
	kind := ErrorKind(err)
	m.Operations.WithLabelValues(op, kind).Inc()
	if kind == "lock_unavailable" {
		m.LockUnavailable.Inc()
	}
}

func (m *Metrics) observePID(t PIDType, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.PIDRequests.WithLabelValues(string(t), outcome).Inc()
}
