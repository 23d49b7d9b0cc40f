package monitor

import (
	"context"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// stopLocalDB performs the one action HealthProbe and SplitBrainGuard are
// both allowed to trigger: fast-stop the local database, force-killing if
// it does not complete in time (spec.md §4.4 primary item 1, §4.7).
func (m *Monitor) stopLocalDB(ctx context.Context, reason string) {
	if m.stopper == nil {
		return
	}
	m.logger.Error("stopping local database", logging.String("reason", reason))
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.stopper.FastStop(stopCtx, 10*time.Second); err != nil {
		m.logger.Error("fast-stop failed, forcing kill", logging.Error(err))
		if err := m.stopper.ForceKill(ctx); err != nil {
			m.logger.Error("force kill failed", logging.Error(err))
		}
	}
	m.emit(ctx, "local_database_stopped", model.SeverityCritical, reason)
}

// runRejoin tries RejoinCmd against each known peer once, in order, until
// one accepts, reporting whether the local node should restart as a standby.
func (m *Monitor) runRejoin(ctx context.Context, reason string) bool {
	if m.rejoiner == nil || len(m.rejoinTargets) == 0 {
		return false
	}
	acceptedBy, ok := m.rejoiner.Run(ctx, m.rejoinTargets)
	if !ok {
		m.logger.Error("auto-rejoin exhausted all targets")
		m.emit(ctx, "auto_rejoin_failed", model.SeverityCritical, "")
		return false
	}
	m.logger.Warn("auto-rejoin accepted", logging.Int("accepted_by", acceptedBy))
	m.emit(ctx, "auto_rejoin_accepted", model.SeverityWarning, reason)
	return true
}

// attemptAutoRejoin stops the local database and attempts auto-rejoin in
// one step (spec.md §4.4 primary item 1: probe failure ⇒ stop ⇒ rejoin,
// with no intervening wait).
func (m *Monitor) attemptAutoRejoin(ctx context.Context, reason string) bool {
	m.stopLocalDB(ctx, reason)
	return m.runRejoin(ctx, reason)
}

// runPrimaryLoop implements spec.md §4.4's primary loop: probe local
// health, recover-or-degrade (escalating to stop+auto-rejoin on persistent
// failure, and to RestartDegradedTimeout once the cumulative degraded
// budget runs out), run the sync/async standby watchdog, verify the node
// hasn't silently become a standby, then refresh membership and run
// SplitBrainGuard.
func (m *Monitor) runPrimaryLoop(ctx context.Context) RestartReason {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return RestartNone
		case <-ticker.C:
		}

		result := m.probe.Run(ctx)
		if !result.Healthy() {
			m.enterDegraded(ctx, "local_health_probe_failed")

			if m.attemptAutoRejoin(ctx, "local_health_probe_failed") {
				return RestartRoleChanged
			}

			if m.budget.Exceeded(time.Now()) {
				m.logger.Error("degraded monitoring timeout exceeded on primary, giving up local node")
				m.emit(ctx, "degraded_monitoring_timeout", model.SeverityCritical, "primary")
				return RestartDegradedTimeout
			}
			continue
		}
		m.recoverFromDegraded(ctx)

		if m.syncStandby != nil {
			if _, err := m.syncStandby.Check(ctx); err != nil {
				m.logger.Warn("sync standby watchdog check failed", logging.Error(err))
			}
		}

		isPrimary, err := m.local.IsPrimary(ctx)
		if err != nil {
			m.logger.Warn("failed to verify local recovery mode", logging.Error(err))
			continue
		}
		if !isPrimary {
			m.logger.Warn("local node silently became a standby, restarting monitor in standby mode")
			return RestartRoleChanged
		}

		if err := m.siblings.Refresh(ctx); err != nil {
			m.logger.Warn("failed to refresh cluster membership", logging.Error(err))
		}

		if m.cfg.CheckBrainSplit && m.guard != nil {
			decision, err := m.guard.Check()
			if err != nil {
				m.logger.Warn("split brain check failed", logging.Error(err))
				continue
			}
			if reason := m.handleSplitBrainDecision(ctx, decision); reason != RestartNone {
				return reason
			}
		}
	}
}

// handleSplitBrainDecision carries out SplitBrainGuard's verdict (spec.md
// §4.7): DO_REJOIN stops the local database, waits out
// primary_notification_timeout so the surviving primary settles, then
// attempts auto-rejoin; DO_STOP unconditionally stops the local database as
// a non-recoverable, operator-visible fault and reports RestartBrainSplit so
// the outer orchestrator exits the process instead of rebuilding (spec.md
// §8 scenario 7) rather than looping against a database it just stopped.
func (m *Monitor) handleSplitBrainDecision(ctx context.Context, decision model.SplitBrainDecision) RestartReason {
	if m.metrics != nil {
		m.metrics.RecordSplitBrainDetection(decision.String())
	}

	switch decision {
	case model.SplitBrainDoRejoin:
		m.logger.Error("split brain detected, rejoining as standby")
		m.emit(ctx, "split_brain_detected", model.SeverityCritical, decision.String())
		m.stopLocalDB(ctx, "split_brain_do_rejoin")

		select {
		case <-ctx.Done():
			return RestartNone
		case <-time.After(m.cfg.PrimaryNotificationTimeout):
		}

		if m.runRejoin(ctx, "split_brain_do_rejoin") {
			return RestartRoleChanged
		}
		return RestartNone

	case model.SplitBrainDoStop:
		m.logger.Error("split brain detected with multiple competing primaries, stopping local database")
		m.emit(ctx, "split_brain_detected", model.SeverityCritical, decision.String())
		m.stopLocalDB(ctx, "split_brain_do_stop")
		return RestartBrainSplit

	default:
		return RestartNone
	}
}
