package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initFailoverMetrics() {
	r.FailoverEventsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "repliguard_failover_events_total",
			Help: "Total number of failover state transitions, by resulting state",
		},
		[]string{"state"},
	)

	r.SplitBrainDetectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "repliguard_split_brain_detections_total",
			Help: "Total number of split-brain detections, by decision taken",
		},
		[]string{"decision"}, // do_nothing, do_rejoin, do_stop
	)

	r.MonitoringState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "repliguard_monitoring_state",
			Help: "Current monitoring state (1 for current state, 0 otherwise)",
		},
		[]string{"state"}, // normal, degraded
	)
}
