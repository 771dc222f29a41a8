// Package metrics registers the coordination core's Prometheus collectors
// and exposes small helper functions so callers don't reach for the raw
// vector/counter API at every call site.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	quorumOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dynamokv_quorum_outcomes_total",
		Help: "Count of mediator operations by op and outcome (met/unmet).",
	}, []string{"op", "outcome"})

	gossipRounds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dynamokv_gossip_rounds_total",
		Help: "Count of gossip rounds by outcome (converged/merged/unreachable).",
	}, []string{"outcome"})

	PartitionOwnershipChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynamokv_partition_ownership_changes_total",
		Help: "Count of installed membership states that changed partition ownership.",
	})

	NodeCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dynamokv_node_count",
		Help: "Current number of nodes in the installed membership state.",
	})
)

func init() {
	prometheus.MustRegister(quorumOutcomes, gossipRounds, PartitionOwnershipChanges, NodeCount)
}

// ObserveQuorum records the outcome of a single mediator operation.
func ObserveQuorum(op string, met bool) {
	outcome := "unmet"
	if met {
		outcome = "met"
	}
	quorumOutcomes.WithLabelValues(op, outcome).Inc()
}

// ObserveGossipRound records the outcome of a single gossip round.
func ObserveGossipRound(outcome string) {
	gossipRounds.WithLabelValues(outcome).Inc()
}
