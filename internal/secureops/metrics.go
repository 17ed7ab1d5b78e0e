package secureops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the gateway.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	AuditWriteErrors  prometheus.Counter
}

// NewMetrics creates and registers the gateway metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secureops_operations_total",
			Help: "Privileged operations by target and outcome",
		}, []string{"target", "outcome"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "secureops_operation_duration_seconds",
			Help:    "Latency of privileged operations including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		AuditWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secureops_audit_write_errors_total",
			Help: "Audit sink writes that failed and were only logged",
		}),
	}
}
