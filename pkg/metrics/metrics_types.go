package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics the daemon exposes. Adapted from the
// teacher's metrics.Registry: HTTP/System carried as ambient concerns,
// Storage/Query/Licensing/Security dropped (no component in this domain
// produces them — see DESIGN.md), Cluster/Replication repurposed for
// election and peer-replication tracking.
type Registry struct {
	// HTTP Metrics (status dashboard's HTTP endpoint, if enabled)
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Replication Metrics — per-peer lag and connectivity, fed by PeerClient.
	ReplicationLagBytes         *prometheus.GaugeVec
	ReplicationLagSeconds       *prometheus.GaugeVec
	ReplicationConnectedPeers   prometheus.Gauge
	ReplicationReconnectsTotal  *prometheus.CounterVec

	// Cluster Metrics (HA) — election, quorum, role.
	ClusterNodesTotal        prometheus.Gauge
	ClusterHealthyNodesTotal prometheus.Gauge
	ClusterHasQuorum         prometheus.Gauge
	ClusterElectionsTotal    *prometheus.CounterVec
	ClusterElectionDuration  prometheus.Histogram
	ClusterEpoch             prometheus.Gauge
	ClusterTerm              prometheus.Gauge
	ClusterRole              *prometheus.GaugeVec

	// Failover/split-brain metrics.
	FailoverEventsTotal        *prometheus.CounterVec
	SplitBrainDetectionsTotal  *prometheus.CounterVec
	MonitoringState            *prometheus.GaugeVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{registry: reg}

	r.initHTTPMetrics()
	r.initReplicationMetrics()
	r.initClusterMetrics()
	r.initFailoverMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
