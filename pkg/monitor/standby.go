package monitor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

var errNoUpstreamClient = errors.New("no client configured for current upstream node")

// runStandbyLoop implements spec.md §4.4's standby loop: resolve and probe
// the upstream primary, fall into an election/failover round on persistent
// upstream loss, attempt auto-rejoin on persistent local loss, optionally
// record monitoring history, and restart the monitor if the recorded
// upstream changes out from under it.
func (m *Monitor) runStandbyLoop(ctx context.Context) RestartReason {
	if m.upstreamID == 0 {
		if resolved, ok := m.resolveUpstream(ctx); ok {
			m.upstreamID = resolved
		}
	}

	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return RestartNone
		case <-ticker.C:
		}

		if m.probe != nil {
			if result := m.probe.Run(ctx); !result.Healthy() {
				m.enterDegraded(ctx, "local_health_probe_failed")
				if m.budget.Exceeded(time.Now()) {
					m.attemptAutoRejoin(ctx, "local_health_probe_failed")
				}
				continue
			}
			m.recoverFromDegraded(ctx)
		}

		upstream := m.clients[m.upstreamID]
		if upstream == nil {
			m.enterDegraded(ctx, "upstream_unknown")
			if m.budget.Exceeded(time.Now()) {
				m.logger.Error("degraded monitoring timeout exceeded on standby, giving up local node")
				m.emit(ctx, "degraded_monitoring_timeout", model.SeverityCritical, "standby")
				return RestartDegradedTimeout
			}
			continue
		}

		status := upstream.EnsureConnected(ctx)
		if status != model.NodeStatusUp {
			m.enterDegraded(ctx, "upstream_unreachable")
			if m.metrics != nil {
				m.metrics.RecordReconnect(strconv.Itoa(m.upstreamID), status.String())
			}
			if m.budget.Exceeded(time.Now()) {
				return m.runElectionAndFailover(ctx)
			}
			continue
		}
		m.recoverFromDegraded(ctx)
		if m.metrics != nil {
			m.metrics.RecordReconnect(strconv.Itoa(m.upstreamID), "ok")
		}

		if m.cfg.MonitoringHistoryEnabled {
			m.recordMonitoringHistory(ctx)
		}

		if reason, changed := m.checkUpstreamChanged(ctx); changed {
			return reason
		}
	}
}

// resolveUpstream finds the current primary among active siblings when the
// local record has no upstream_node_id set at startup, tolerating its
// absence by polling for up to StandbyWaitTimeout (spec.md §4.4 standby
// item 1).
func (m *Monitor) resolveUpstream(ctx context.Context) (int, bool) {
	deadline := time.Now().Add(m.cfg.StandbyWaitTimeout)
	for {
		if primary, ok := m.siblings.GetPrimary(); ok {
			return primary.NodeID, true
		}
		if time.Now().After(deadline) {
			m.logger.Warn("timed out waiting for a primary to appear")
			return 0, false
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(m.cfg.MonitorInterval):
		}
		if err := m.siblings.Refresh(ctx); err != nil {
			m.logger.Warn("failed to refresh cluster membership while resolving upstream", logging.Error(err))
		}
	}
}

// runElectionAndFailover runs one ElectionCoordinator round followed by
// whatever FailoverDriver transition it leads to (spec.md §4.4 standby
// item 2, §4.5, §4.6), translating the terminal FailoverState into a
// RestartReason for the outer orchestrator.
func (m *Monitor) runElectionAndFailover(ctx context.Context) RestartReason {
	local, err := m.meta.GetNode(ctx, m.cfg.LocalNodeID)
	if err != nil {
		m.logger.Error("failed to read local node record before election", logging.Error(err))
		return RestartNone
	}

	localRepl, err := m.local.ReplicationInfo(ctx)
	if err != nil {
		m.logger.Warn("failed to read local replication info before election", logging.Error(err))
	}

	decision := m.election.Run(ctx, local, localRepl, m.cfg.ManualFailoverMode)
	state := m.driver.Run(ctx, decision.Result, decision.NewPrimaryID)

	m.logger.Info("failover round complete", logging.String("state", state.String()))

	switch state {
	case model.FSPromoted:
		return RestartRoleChanged
	case model.FSFollowedNewPrimary, model.FSFollowingOriginalPrimary:
		return RestartUpstreamChanged
	default:
		return RestartNone
	}
}

// recordMonitoringHistory appends one row per spec.md §4.4 standby item 4.
func (m *Monitor) recordMonitoringHistory(ctx context.Context) {
	repl, err := m.upstreamReplInfo(ctx)
	if err != nil {
		return
	}
	rec := model.MonitoringRecord{
		NodeID:            m.cfg.LocalNodeID,
		State:             model.MSNormal,
		UpstreamNodeID:    m.upstreamID,
		LastWALReceiveLSN: repl.LastWALReceiveLSN,
		LastWALReplayLSN:  repl.LastWALReplayLSN,
	}
	if m.degraded {
		rec.State = model.MSDegraded
	}
	if err := m.meta.RecordMonitoringHistory(ctx, rec); err != nil {
		m.logger.Warn("failed to record monitoring history", logging.Error(err))
	}
}

func (m *Monitor) upstreamReplInfo(ctx context.Context) (model.ReplInfo, error) {
	client := m.clients[m.upstreamID]
	if client == nil {
		return model.ReplInfo{}, errNoUpstreamClient
	}
	return client.ReplicationInfo(ctx, 2*time.Second)
}

// checkUpstreamChanged detects the self row's upstream_node_id diverging
// from what this loop currently tracks (spec.md §4.4 standby item 5).
func (m *Monitor) checkUpstreamChanged(ctx context.Context) (RestartReason, bool) {
	self, err := m.meta.GetNode(ctx, m.cfg.LocalNodeID)
	if err != nil {
		return RestartNone, false
	}
	if self.UpstreamNodeID != 0 && self.UpstreamNodeID != m.upstreamID {
		m.logger.Info("recorded upstream changed, restarting monitor",
			logging.Int("old_upstream", m.upstreamID), logging.Int("new_upstream", self.UpstreamNodeID))
		return RestartUpstreamChanged, true
	}
	return RestartNone, false
}
