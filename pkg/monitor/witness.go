package monitor

import (
	"context"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// runWitnessLoop implements spec.md §4.4's witness loop: a witness casts no
// votes, so on primary loss it only waits for a surviving standby to
// notify a new primary and then follows as witness. Table mirroring
// (SPEC_FULL.md §C.1) runs as its own goroutine (store.WitnessMirror),
// started by the daemon alongside this loop, not by Monitor itself.
func (m *Monitor) runWitnessLoop(ctx context.Context) RestartReason {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return RestartNone
		case <-ticker.C:
		}

		primary := m.clients[m.upstreamID]
		if primary == nil {
			m.enterDegraded(ctx, "primary_unknown")
			continue
		}

		status := primary.EnsureConnected(ctx)
		if status == model.NodeStatusUp {
			m.recoverFromDegraded(ctx)
			continue
		}

		m.enterDegraded(ctx, "primary_unreachable")
		m.logger.Warn("witness lost primary, waiting for a new-primary notification without voting")

		state := m.driver.Run(ctx, model.ElectionNotCandidate, 0)
		m.logger.Info("witness failover wait complete", logging.String("state", state.String()))

		switch state {
		case model.FSFollowedNewPrimary, model.FSFollowingOriginalPrimary:
			return RestartUpstreamChanged
		default:
			continue
		}
	}
}
