package election

import (
	"context"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// decide applies spec.md §4.5's decision rules in order, returning as soon
// as one of them resolves the round.
func (c *Coordinator) decide(local model.NodeRecord, localRepl model.ReplInfo, manualFailoverMode bool, snapshots map[int]SiblingSnapshot) Decision {
	// Rule 1: eligibility gate.
	if manualFailoverMode {
		return Decision{Result: model.ElectionNotCandidate}
	}
	if local.Priority <= 0 {
		return Decision{Result: model.ElectionNotCandidate}
	}
	if primary, ok := c.siblings.GetPrimary(); ok && primary.Location != "" && local.Location != "" &&
		primary.Location != local.Location && len(snapshots) > 0 {
		return Decision{Result: model.ElectionNotCandidate}
	}

	// Rule 2: replay-pause handling.
	if localRepl.WALReplayPaused && localRepl.LastWALReceiveLSN > localRepl.LastWALReplayLSN {
		if err := c.resumeLocalReplay(context.Background()); err != nil {
			c.logger.Warn("failed to resume paused replay", logging.Error(err))
			return Decision{Result: model.ElectionLost}
		}
	}

	// Rule 3: primary-visibility veto.
	if c.cfg.PrimaryVisibilityConsensus {
		threshold := int(2 * c.cfg.MonitorInterval.Seconds())
		for _, snap := range snapshots {
			if snap.UpstreamLastSeen >= 0 && snap.UpstreamLastSeen < threshold {
				c.logger.Info("cancelling election, sibling still sees primary",
					logging.Int("sibling_node_id", snap.Node.NodeID))
				return Decision{Result: model.ElectionCancelled}
			}
		}
	}

	// Rule 4: quorum.
	totalNodes := len(snapshots) + 1
	visibleNodes := 1 // self
	for _, snap := range snapshots {
		if snap.Reachable {
			visibleNodes++
		}
	}
	if visibleNodes <= totalNodes/2 {
		c.logger.Warn("cancelling election, no quorum",
			logging.Int("visible_nodes", visibleNodes), logging.Int("total_nodes", totalNodes))
		return Decision{Result: model.ElectionCancelled}
	}

	// Rule 5: candidate selection.
	candidateID := local.NodeID
	candidatePriority := local.Priority
	candidateLSN := localRepl.LastWALReceiveLSN

	for id, snap := range snapshots {
		if snap.Node.Type == model.NodeTypeWitness {
			continue
		}
		if !snap.Node.Active {
			if c.cfg.TreatInactiveAsConfigError {
				c.logger.Error("inactive node present during election, aborting per config",
					logging.Int("sibling_node_id", id))
				return Decision{Result: model.ElectionLost}
			}
			c.logger.Warn("skipping inactive sibling candidate",
				logging.Int("sibling_node_id", id))
			continue
		}
		if snap.Node.Priority <= 0 || !snap.DaemonRunning || !snap.InRecovery {
			continue
		}
		if snap.ReplInfo.LastWALReceiveLSN != snap.ReplInfo.LastWALReplayLSN {
			continue // WAL catch-up still pending
		}

		switch {
		case snap.ReplInfo.LastWALReceiveLSN > candidateLSN:
			candidateID, candidatePriority, candidateLSN = id, snap.Node.Priority, snap.ReplInfo.LastWALReceiveLSN
		case snap.ReplInfo.LastWALReceiveLSN == candidateLSN:
			if snap.Node.Priority > candidatePriority ||
				(snap.Node.Priority == candidatePriority && id < candidateID) {
				candidateID, candidatePriority, candidateLSN = id, snap.Node.Priority, snap.ReplInfo.LastWALReceiveLSN
			}
		}
	}

	// Rule 6: unexpected-primary detour.
	for id, snap := range snapshots {
		if snap.Node.Type == model.NodeTypeWitness || snap.InRecovery {
			continue
		}
		if c.canFollow(local, localRepl, snap) {
			return Decision{Result: model.ElectionCancelled, NewPrimaryID: id}
		}
	}

	// Rule 7: resolve the selected candidate.
	if candidateID != local.NodeID {
		return Decision{Result: model.ElectionLost}
	}

	if err := runValidationCommand(context.Background(), c.cfg.FailoverValidationCommand); err != nil {
		c.logger.Warn("failover validation command failed, rerunning election", logging.Error(err))
		return Decision{Result: model.ElectionRerun}
	}
	return Decision{Result: model.ElectionWon}
}

// canFollow reports whether local could cleanly follow a sibling that
// turned out to already be primary (spec.md §4.5 step 6): matching system
// identifier, a compatible timeline, and a local LSN no further ahead than
// the sibling's own replay position.
func (c *Coordinator) canFollow(local model.NodeRecord, localRepl model.ReplInfo, snap SiblingSnapshot) bool {
	if localRepl.SystemIdentifier == 0 || snap.ReplInfo.SystemIdentifier == 0 {
		return false
	}
	if localRepl.SystemIdentifier != snap.ReplInfo.SystemIdentifier {
		return false
	}
	if snap.ReplInfo.Timeline < localRepl.Timeline {
		return false
	}
	return localRepl.LastWALReceiveLSN <= snap.ReplInfo.LastWALReplayLSN
}

// resumeLocalReplayFn is the "resume paused replay" action rule 2 calls.
// Nothing in the daemon replaces it: it sends nothing to the database and
// always reports success, so paused replay stays paused and rule 2 never
// returns LOST.
var resumeLocalReplayFn = func(ctx context.Context) error { return nil }

func (c *Coordinator) resumeLocalReplay(ctx context.Context) error {
	return resumeLocalReplayFn(ctx)
}
