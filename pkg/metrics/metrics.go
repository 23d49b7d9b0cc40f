package metrics

import "time"

// RecordHTTPRequest records an HTTP request with its duration.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordPeerLag updates the per-peer lag gauges fed by PeerClient.
func (r *Registry) RecordPeerLag(peerNodeID string, lagBytes uint64, lagSeconds float64) {
	r.ReplicationLagBytes.WithLabelValues(peerNodeID).Set(float64(lagBytes))
	r.ReplicationLagSeconds.WithLabelValues(peerNodeID).Set(lagSeconds)
}

// RecordReconnect records the outcome of a PeerClient.EnsureConnected call.
func (r *Registry) RecordReconnect(peerNodeID, result string) {
	r.ReplicationReconnectsTotal.WithLabelValues(peerNodeID, result).Inc()
}

// UpdateClusterMetrics updates cluster-related metrics.
func (r *Registry) UpdateClusterMetrics(totalNodes, healthyNodes int, hasQuorum bool, epoch, term uint64) {
	r.ClusterNodesTotal.Set(float64(totalNodes))
	r.ClusterHealthyNodesTotal.Set(float64(healthyNodes))
	if hasQuorum {
		r.ClusterHasQuorum.Set(1)
	} else {
		r.ClusterHasQuorum.Set(0)
	}
	r.ClusterEpoch.Set(float64(epoch))
	r.ClusterTerm.Set(float64(term))
}

// SetClusterRole sets the current cluster role.
func (r *Registry) SetClusterRole(role string) {
	r.ClusterRole.WithLabelValues("primary-monitor").Set(0)
	r.ClusterRole.WithLabelValues("standby-monitor").Set(0)
	r.ClusterRole.WithLabelValues("witness-monitor").Set(0)
	r.ClusterRole.WithLabelValues(role).Set(1)
}

// RecordElection records the outcome and duration of one election round.
func (r *Registry) RecordElection(result string, duration time.Duration) {
	r.ClusterElectionsTotal.WithLabelValues(result).Inc()
	r.ClusterElectionDuration.Observe(duration.Seconds())
}

// RecordFailoverEvent records one FailoverState transition.
func (r *Registry) RecordFailoverEvent(state string) {
	r.FailoverEventsTotal.WithLabelValues(state).Inc()
}

// RecordSplitBrainDetection records one SplitBrainGuard decision.
func (r *Registry) RecordSplitBrainDetection(decision string) {
	r.SplitBrainDetectionsTotal.WithLabelValues(decision).Inc()
}

// SetMonitoringState sets the current MonitoringState gauge.
func (r *Registry) SetMonitoringState(state string) {
	r.MonitoringState.WithLabelValues("normal").Set(0)
	r.MonitoringState.WithLabelValues("degraded").Set(0)
	r.MonitoringState.WithLabelValues(state).Set(1)
}
