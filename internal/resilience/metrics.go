package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secureops_retries_total",
		Help: "Retry attempts per dependency after a transient failure",
	}, []string{"dependency"})

	circuitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secureops_circuit_rejections_total",
		Help: "Calls rejected without execution because the breaker was open",
	}, []string{"dependency"})

	fallbackServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secureops_fallback_served_total",
		Help: "Operations answered from the fallback path instead of the primary",
	}, []string{"dependency"})
)
