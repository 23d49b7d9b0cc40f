package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicationMetrics() {
	r.ReplicationLagBytes = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repliguard_replication_lag_bytes",
			Help: "Replication lag in bytes, per peer node",
		},
		[]string{"peer_node_id"},
	)

	r.ReplicationLagSeconds = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repliguard_replication_lag_seconds",
			Help: "Seconds since the peer's last replayed transaction",
		},
		[]string{"peer_node_id"},
	)

	r.ReplicationConnectedPeers = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "repliguard_replication_connected_peers",
			Help: "Number of peers PeerClient currently reports reachable",
		},
	)

	r.ReplicationReconnectsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "repliguard_replication_reconnects_total",
			Help: "Total number of peer reconnect attempts",
		},
		[]string{"peer_node_id", "result"}, // result: ok, down, rejected
	)
}
