package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/repliguard/pkg/csvmatrix"
	"github.com/dd0wney/repliguard/pkg/health"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// httpServer exposes the daemon's operational surface: Prometheus metrics,
// Kubernetes-style health probes, and the crosscheck matrix peers use to
// reconcile split-brain views (SPEC_FULL.md §6).
type httpServer struct {
	d      *daemon
	hc     *health.HealthChecker
	server *http.Server
}

// newHTTPServer wires a HealthChecker against the daemon's live state and
// builds (but does not start) the listener.
func newHTTPServer(d *daemon) *httpServer {
	hc := health.NewHealthChecker()

	hc.RegisterLivenessCheck("repmgrd", func() health.Check {
		return health.SimpleCheck("repmgrd")
	})

	hc.RegisterReadinessCheck("database", health.DatabaseCheck(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return d.rawPool.Ping(ctx)
	}))

	hc.RegisterCheck("replication", health.ReplicationCheck(func() (bool, int64, int) {
		ctx, cancel := context.WithTimeout(context.Background(), surveyReplInfoTimeout)
		defer cancel()
		info, err := d.local.ReplicationInfo(ctx)
		if err != nil {
			return false, 0, 0
		}
		replicas := 0
		for _, c := range d.clients {
			if c.LastKnownStatus() == model.NodeStatusUp {
				replicas++
			}
		}
		return info.ReceivingStreamedWAL, int64(info.LagBytes()), replicas
	}))

	hc.RegisterCheck("cluster", health.ClusterCheck(func() (bool, int, int) {
		total := d.siblings.NodeCount()
		healthy := 1 // self
		for _, c := range d.clients {
			if c.LastKnownStatus() == model.NodeStatusUp {
				healthy++
			}
		}
		quorum := total == 0 || healthy*2 > total
		return quorum, healthy, total
	}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.reg.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.Handle("/healthz", hc.HTTPHandler())
	mux.Handle("/readyz", hc.ReadinessHandler())
	mux.Handle("/livez", hc.LivenessHandler())

	s := &httpServer{d: d, hc: hc}
	mux.HandleFunc("/crosscheck", s.handleCrosscheck)

	s.server = &http.Server{
		Addr:         d.cfg.MetricsListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// handleCrosscheck reports this node's view of every other node's
// reachability in the csvmatrix wire format, so a remote node can diff its
// own view against this one when resolving a suspected split brain.
func (s *httpServer) handleCrosscheck(w http.ResponseWriter, r *http.Request) {
	entries := make([]csvmatrix.Entry, 0, len(s.d.clients)+1)
	entries = append(entries, csvmatrix.Entry{
		SourceID: s.d.cfg.NodeID,
		TargetID: s.d.cfg.NodeID,
		Status:   csvmatrix.StatusUp,
	})
	for id, c := range s.d.clients {
		entries = append(entries, csvmatrix.Entry{
			SourceID: s.d.cfg.NodeID,
			TargetID: id,
			Status:   crosscheckStatus(c.LastKnownStatus()),
		})
	}

	w.Header().Set("Content-Type", "text/csv")
	if err := csvmatrix.Encode(w, entries); err != nil {
		s.d.logger.Warn("failed to encode crosscheck matrix", logging.Error(err))
	}
}

func crosscheckStatus(s model.NodeStatus) csvmatrix.Status {
	switch s {
	case model.NodeStatusUp:
		return csvmatrix.StatusUp
	case model.NodeStatusDown, model.NodeStatusRejected, model.NodeStatusUncleanShutdown:
		return csvmatrix.StatusDown
	default:
		return csvmatrix.StatusUnknown
	}
}

// start runs the HTTP server until the listener fails or is closed by stop.
func (s *httpServer) start() error {
	if s.d.cfg.MetricsListenAddr == "" {
		return nil
	}
	s.d.logger.Info("http server listening",
		logging.String("addr", s.d.cfg.MetricsListenAddr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *httpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
