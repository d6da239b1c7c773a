package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(storeOpsTotal, persistWritesTotal, persistReadsTotal, bridgeSuppressedTotal, sessionsGauge)
}

var (
	storeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_store_ops_total",
			Help: "Session store operations that changed state.",
		},
		[]string{"op"}, // create|select|update|append|delete|hydrate
	)

	persistWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_persist_writes_total",
			Help: "Full-collection writes to the persistence medium.",
		},
		[]string{"result"}, // ok|error
	)

	persistReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_persist_reads_total",
			Help: "Collection loads by outcome.",
		},
		[]string{"result"}, // ok|absent|corrupt|unavailable
	)

	bridgeSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_bridge_suppressed_total",
			Help: "Message-log propagations dropped because nothing changed.",
		},
		[]string{"direction"}, // to_store|to_editor
	)

	sessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docchat_sessions",
			Help: "Sessions currently held by the store.",
		},
	)
)

func IncStoreOp(op string) {
	storeOpsTotal.WithLabelValues(norm(op)).Inc()
}

func IncPersistWrite(result string) {
	persistWritesTotal.WithLabelValues(norm(result)).Inc()
}

func IncPersistRead(result string) {
	persistReadsTotal.WithLabelValues(norm(result)).Inc()
}

func IncBridgeSuppressed(direction string) {
	bridgeSuppressedTotal.WithLabelValues(norm(direction)).Inc()
}

func SetSessions(n int) {
	sessionsGauge.Set(float64(n))
}
