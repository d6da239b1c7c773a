package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(backendRequestsTotal, backendLatency)
}

var (
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_backend_requests_total",
			Help: "Inference backend calls by call and result.",
		},
		[]string{"call", "result"}, // call: create_session|chat|upload
	)

	backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docchat_backend_latency_seconds",
			Help:    "Inference backend call latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"call"},
	)
)

func ObserveBackend(call string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	backendRequestsTotal.WithLabelValues(norm(call), result).Inc()
	backendLatency.WithLabelValues(norm(call)).Observe(time.Since(start).Seconds())
}
