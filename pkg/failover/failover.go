// Package failover implements the FailoverDriver state machine of
// spec.md §4.6: the sequence of transitions a standby runs after
// ElectionCoordinator returns, from promoting itself through to following
// whatever primary eventually wins, bottoming out in a terminal
// model.FailoverState the outer LivenessMonitor loop resumes from.
package failover

import (
	"context"
	"time"

	"github.com/dd0wney/repliguard/pkg/events"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/runner"
	"github.com/dd0wney/repliguard/pkg/store"
)

// Config carries the timing/command knobs the driver's transitions consult.
type Config struct {
	PromoteDelay               time.Duration
	PromoteCommand             string
	FollowCommand              string
	PrimaryNotificationTimeout time.Duration
	StandbyStartupTimeout      time.Duration
	ElectionRerunInterval      time.Duration
}

// Pinger checks whether the local database is currently reachable and, if
// so, in which recovery mode — the cheapest possible "did the promote/follow
// command actually take effect" probe.
type Pinger interface {
	IsPrimary(ctx context.Context) (bool, error)
}

// Driver runs the FailoverDriver state machine for one node.
type Driver struct {
	localNodeID        int
	originalUpstreamID int
	cfg                Config
	meta               store.NodeMetaStore
	pinger             Pinger
	runner             runner.CommandRunner
	events             *events.Bus
	logger             logging.Logger
}

// NewDriver builds a Driver for localNodeID, whose upstream before this
// election round was originalUpstreamID (used to recognize
// FOLLOWING_ORIGINAL_PRIMARY in the WAITING_NEW_PRIMARY transition).
func NewDriver(localNodeID, originalUpstreamID int, cfg Config, meta store.NodeMetaStore, pinger Pinger, cmdRunner runner.CommandRunner, bus *events.Bus, logger logging.Logger) *Driver {
	return &Driver{
		localNodeID:        localNodeID,
		originalUpstreamID: originalUpstreamID,
		cfg:                cfg,
		meta:                meta,
		pinger:              pinger,
		runner:              cmdRunner,
		events:              bus,
		logger:              logger.With(logging.Component("failover_driver")),
	}
}

// Run pumps the state machine starting from the given ElectionResult,
// returning the terminal model.FailoverState (spec.md §4.6).
func (d *Driver) Run(ctx context.Context, result model.ElectionResult, newPrimaryIDFromCancel int) model.FailoverState {
	var state model.FailoverState

	switch result {
	case model.ElectionWon:
		state = d.promoteSelf(ctx)
	case model.ElectionCancelled:
		if newPrimaryIDFromCancel != 0 {
			return d.followNewPrimary(ctx, newPrimaryIDFromCancel)
		}
		state = model.FSWaitingNewPrimary
	default: // LOST, NOT_CANDIDATE, RERUN
		state = model.FSWaitingNewPrimary
	}

	for !state.Terminal() {
		state = d.step(ctx, state)
	}
	return state
}

func (d *Driver) step(ctx context.Context, state model.FailoverState) model.FailoverState {
	switch state {
	case model.FSWaitingNewPrimary:
		return d.waitForPrimaryNotification(ctx)
	default:
		return model.FSNone
	}
}

// promoteSelf runs PromoteCmd and verifies the local node actually became
// primary before reporting PROMOTED (spec.md §4.6 WON transition).
func (d *Driver) promoteSelf(ctx context.Context) model.FailoverState {
	if d.cfg.PromoteDelay > 0 {
		select {
		case <-ctx.Done():
			return model.FSLocalNodeFailure
		case <-time.After(d.cfg.PromoteDelay):
		}
	}

	res, err := d.runner.Run(ctx, d.cfg.PromoteCommand)
	success := err == nil && res.ExitCode == 0
	d.emit(ctx, "promote_self", success, errString(err))
	if !success {
		d.logger.Error("promote command failed", logging.Error(err), logging.Int("exit_code", res.ExitCode))
		return model.FSPromotionFailed
	}

	isPrimary, err := d.pinger.IsPrimary(ctx)
	if err != nil {
		d.logger.Error("failed to verify promotion", logging.Error(err))
		return model.FSPromotionFailed
	}
	if !isPrimary {
		return model.FSPrimaryReappeared
	}

	if err := d.meta.UpdateTypePrimary(ctx, d.localNodeID); err != nil {
		d.logger.Error("failed to record promotion in metadata store", logging.Error(err))
		return model.FSPromotionFailed
	}

	term, err := d.meta.IncrementTerm(ctx)
	if err != nil {
		d.logger.Error("failed to bump electoral term after promotion", logging.Error(err))
		return model.FSPromotionFailed
	}

	if err := d.meta.NotifyFollowPrimary(ctx, term, d.localNodeID); err != nil {
		d.logger.Warn("failed to notify siblings of new primary", logging.Error(err))
	}

	d.emit(ctx, "promoted", true, "")
	return model.FSPromoted
}

// waitForPrimaryNotification implements spec.md §4.6's LOST/NOT_CANDIDATE
// transition and SPEC_FULL.md §D.2's term-fencing: it discards any
// notification older than the term recorded when the wait began.
func (d *Driver) waitForPrimaryNotification(ctx context.Context) model.FailoverState {
	waitStartTerm, err := d.meta.GetCurrentTerm(ctx)
	if err != nil {
		d.logger.Error("failed to read electoral term before waiting", logging.Error(err))
		return model.FSNodeNotificationError
	}

	deadline := time.Now().Add(d.cfg.PrimaryNotificationTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return model.FSNodeNotificationError
		case <-time.After(time.Second):
		}

		targetID, notifiedTerm, ok, err := d.meta.GetNewPrimaryNotification(ctx, waitStartTerm)
		if err != nil {
			d.logger.Warn("failed to poll for primary notification", logging.Error(err))
			continue
		}
		if !ok || notifiedTerm < waitStartTerm {
			continue // stale or absent notification; keep polling
		}

		switch {
		case targetID == d.originalUpstreamID:
			return model.FSFollowingOriginalPrimary
		case targetID == d.localNodeID:
			return d.promoteSelf(ctx)
		case targetID == model.ElectionRerunNotification:
			return d.electionRerun(ctx)
		default:
			return d.followNewPrimary(ctx, targetID)
		}
	}

	d.logger.Warn("timed out waiting for new-primary notification")
	return model.FSNoNewPrimary
}

// followNewPrimary runs FollowCmd against the winning node and polls for
// local reconnect before declaring the transition complete (spec.md §4.6).
func (d *Driver) followNewPrimary(ctx context.Context, newPrimaryID int) model.FailoverState {
	winner, err := d.meta.GetNode(ctx, newPrimaryID)
	if err != nil {
		d.logger.Error("failed to look up new primary node record", logging.Error(err))
		return model.FSFollowFail
	}
	if winner.Type != model.NodeTypePrimary {
		d.logger.Error("notified new primary is not recorded as primary", logging.Int("new_primary_id", newPrimaryID))
		return model.FSFollowFail
	}

	cmd := runner.SubstitutePlaceholders(d.cfg.FollowCommand, newPrimaryID, winner.Name)
	res, err := d.runner.Run(ctx, cmd)
	success := err == nil && res.ExitCode == 0
	d.emit(ctx, "follow_new_primary", success, errString(err))
	if !success {
		return model.FSFollowFail
	}

	if !d.pollForReconnect(ctx) {
		return model.FSFollowFail
	}

	if err := d.meta.UpdateUpstream(ctx, d.localNodeID, newPrimaryID); err != nil {
		d.logger.Warn("failed to record new upstream", logging.Error(err))
	}

	d.emit(ctx, "followed_new_primary", true, "")
	return model.FSFollowedNewPrimary
}

// pollForReconnect is the repmgrd_standby_startup_timeout poll of
// SPEC_FULL.md §C.3: a distinct bounded loop run right after FollowCmd,
// separate from PeerClient's own general reconnect-attempts loop.
func (d *Driver) pollForReconnect(ctx context.Context) bool {
	deadline := time.Now().Add(d.cfg.StandbyStartupTimeout)
	for time.Now().Before(deadline) {
		if _, err := d.pinger.IsPrimary(ctx); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	return false
}

// electionRerun implements spec.md §4.6's ELECTION_RERUN transition.
func (d *Driver) electionRerun(ctx context.Context) model.FailoverState {
	term, err := d.meta.GetCurrentTerm(ctx)
	if err == nil {
		if nerr := d.meta.NotifyElectionRerun(ctx, term); nerr != nil {
			d.logger.Warn("failed to notify siblings of election rerun", logging.Error(nerr))
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(d.cfg.ElectionRerunInterval):
	}

	d.emit(ctx, "election_rerun", true, "")
	return model.FSElectionRerun
}

func (d *Driver) emit(ctx context.Context, kind string, success bool, detail string) {
	if d.events == nil {
		return
	}
	severity := model.SeverityInfo
	if !success {
		severity = model.SeverityError
	}
	d.events.Publish(ctx, model.Event{
		NodeID:   d.localNodeID,
		Kind:     kind,
		Severity: severity,
		Detail:   detail,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
