package definition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and gauges every peer reports.
type Metrics struct {
	RoundsTotal         prometheus.Counter
	RoundOutcomeTotal   *prometheus.CounterVec
	QuorumViolations    prometheus.Counter
	FaultyPeers         prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors against reg. Passing a
// dedicated registry (rather than the global default) lets tests and
// multiple in-process peers coexist without a "duplicate metrics
// collector registration" panic.
func NewMetrics(reg prometheus.Registerer, peerID string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"peer_id": peerID}
	return &Metrics{
		RoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "byzgen",
			Name:        "rounds_total",
			Help:        "Number of client rounds this peer has driven as primary.",
			ConstLabels: labels,
		}),
		RoundOutcomeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "byzgen",
			Name:        "round_outcome_total",
			Help:        "Number of rounds by final decision.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		QuorumViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "byzgen",
			Name:        "quorum_violations_total",
			Help:        "Number of times the quorum bound 3*faulty+1 > peers was observed violated.",
			ConstLabels: labels,
		}),
		FaultyPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "byzgen",
			Name:        "faulty_peers",
			Help:        "Count of tracked peers currently marked faulty.",
			ConstLabels: labels,
		}),
	}
}
