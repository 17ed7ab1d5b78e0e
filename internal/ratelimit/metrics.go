package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "secureops_ratelimit_allowed_total",
		Help: "Requests admitted by the rate limiter",
	})
	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "secureops_ratelimit_rejected_total",
		Help: "Requests rejected because the window limit was reached",
	})
	evictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "secureops_ratelimit_evicted_total",
		Help: "Rate limit entries evicted by expiry or the entry cap",
	})
)
