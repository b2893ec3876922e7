package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speedwatch"

var (
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Vessel polls by result (success, failure, timeout)",
		},
		[]string{"result"},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of data source fetches",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert transitions by kind and outcome (dispatched, suppressed, failed)",
		},
		[]string{"kind", "outcome"},
	)

	VesselsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vessels_registered",
			Help:      "Number of vessels currently registered with the fleet",
		},
	)

	VesselState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vessel_state",
			Help:      "1 for the current classified state of each vessel, 0 otherwise",
		},
		[]string{"vessel", "state"},
	)

	LoopHalts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_halts_total",
			Help:      "Monitor loops terminated by an internal classifier error",
		},
	)

	HistoryDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_drops_total",
			Help:      "Status records dropped because a history channel was full",
		},
		[]string{"sink"},
	)

	DBWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_writes_total",
			Help:      "Reading rows written to TimescaleDB by result",
		},
		[]string{"result"},
	)
)

// ClearVessel removes every per-vessel series after deregistration.
func ClearVessel(id string) {
	VesselState.DeletePartialMatch(prometheus.Labels{"vessel": id})
}
