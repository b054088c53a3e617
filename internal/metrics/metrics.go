// Package metrics holds the Prometheus collectors of lashd.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lashd"

var (
	ElectrumCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "electrum",
			Name:      "calls_total",
			Help:      "Electrum calls by method and result",
		},
		[]string{"method", "result"},
	)

	ElectrumDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "electrum",
			Name:      "call_duration_seconds",
			Help:      "Duration of Electrum calls, dial included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Rate gate decisions (eligible, limited, degraded)",
		},
		[]string{"decision"},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "broadcasts_total",
			Help:      "Transaction send attempts by error kind (ok on success)",
		},
		[]string{"kind"},
	)

	BroadcastAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "sent_base_units_total",
			Help:      "Sum of recipient amounts of successful broadcasts",
		},
	)

	RelayPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "publishes_total",
			Help:      "Event publish calls by result (published, unpublished)",
		},
		[]string{"result"},
	)

	RelayLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "ack_latency_seconds",
			Help:      "Per-relay time to OK",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	QueueSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "sweeps_total",
			Help:      "Completed retry sweeps",
		},
	)

	QueueAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "attempts_total",
			Help:      "Queued event publish attempts by result",
		},
		[]string{"result"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_events",
			Help:      "Events in pending status after the last sweep",
		},
	)
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Result returns ResultOK for a nil error and ResultError otherwise.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Health is a liveness handler.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
