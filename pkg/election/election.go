// Package election runs the standby daemon's leadership election
// (spec.md §4.5): gathering sibling positions, applying the eligibility,
// visibility, quorum and candidate-selection rules in order, and returning
// one of model.ElectionResult{NOT_CANDIDATE, WON, LOST, CANCELLED, RERUN}.
//
// Unlike the teacher's Raft-style cluster.ElectionManager (term-bound vote
// requests exchanged between peers), this is a single-node decision
// procedure: one sibling's snapshot of the whole cluster, evaluated
// locally against rules that never require a remote vote round-trip. It
// is grounded on the teacher's ElectionManager only for its general shape
// (a small state value plus a handful of pure decision functions run
// under one mutex-free pass) — the actual rules come from spec.md §4.5.
package election

import (
	"context"
	"os/exec"
	"time"

	"github.com/dd0wney/repliguard/pkg/cluster"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/metrics"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/peer"
	"github.com/dd0wney/repliguard/pkg/store"
)

// SiblingSnapshot is one sibling's contribution to an election round,
// gathered by Coordinator.gatherInputs before any rule is applied.
type SiblingSnapshot struct {
	Node             model.NodeRecord
	Reachable        bool
	DaemonRunning    bool // survey response received within the window
	ReplInfo         model.ReplInfo
	UpstreamLastSeen int // seconds since the sibling last saw the primary, -1 unknown
	InRecovery       bool
}

// Decision is the full outcome of one election round: the result plus,
// for CANCELLED-with-new-primary, the node id to follow (spec.md §4.5 step 6).
type Decision struct {
	Result       model.ElectionResult
	NewPrimaryID int // set only when Result == ElectionCancelled via step 6
}

// Coordinator runs do_election for one local node.
type Coordinator struct {
	localNodeID int
	cfg         Config
	siblings    *cluster.Siblings
	meta        store.NodeMetaStore
	surveyor    *peer.HealthSurveyor
	clients     map[int]*peer.Client // by sibling node id
	receiver    LocalReceiverController
	metrics     *metrics.Registry
	logger      logging.Logger
}

// Config carries the subset of config.DaemonConfig the election rules
// consult, kept narrow so this package does not import pkg/config directly.
type Config struct {
	MonitorInterval            time.Duration
	PrimaryVisibilityConsensus bool
	FailoverValidationCommand  string
	TreatInactiveAsConfigError bool

	// StandbyDisconnectOnFailover and SiblingDisconnectTimeout configure the
	// optional pre-election step (spec.md §4.5): disable the local WAL
	// receiver and wait for siblings to also go idle before comparing
	// positions, re-enabling once the round resolves.
	StandbyDisconnectOnFailover bool
	SiblingDisconnectTimeout    time.Duration
}

// NewCoordinator builds an election Coordinator for localNodeID. receiver
// may be nil, in which case StandbyDisconnectOnFailover is ignored and the
// pre-election step is skipped.
func NewCoordinator(localNodeID int, cfg Config, siblings *cluster.Siblings, meta store.NodeMetaStore, surveyor *peer.HealthSurveyor, clients map[int]*peer.Client, receiver LocalReceiverController, reg *metrics.Registry, logger logging.Logger) *Coordinator {
	return &Coordinator{
		localNodeID: localNodeID,
		cfg:         cfg,
		siblings:    siblings,
		meta:        meta,
		surveyor:    surveyor,
		clients:     clients,
		receiver:    receiver,
		metrics:     reg,
		logger:      logger.With(logging.Component("election_coordinator")),
	}
}

// Run executes do_election (spec.md §4.5), gathering sibling state and
// applying the decision rules in order. local is this node's own current
// replication snapshot.
func (c *Coordinator) Run(ctx context.Context, local model.NodeRecord, localRepl model.ReplInfo, manualFailoverMode bool) Decision {
	start := time.Now()
	term, err := c.meta.GetCurrentTerm(ctx)
	if err != nil {
		c.logger.Warn("failed to read electoral term, treating as not candidate", logging.Error(err))
		return Decision{Result: model.ElectionNotCandidate}
	}
	if err := c.meta.ResetVotingStatus(ctx, term); err != nil {
		c.logger.Warn("failed to reset voting status", logging.Error(err))
	}

	if c.cfg.StandbyDisconnectOnFailover && c.receiver != nil {
		c.runPreElectionDisconnect(ctx)
		defer c.reenableReceiver(ctx)
	}

	snapshots := c.gatherInputs(ctx)

	decision := c.decide(local, localRepl, manualFailoverMode, snapshots)

	if c.metrics != nil {
		c.metrics.RecordElection(decision.Result.String(), time.Since(start))
	}
	c.logger.Info("election round complete",
		logging.String("result", decision.Result.String()),
		logging.Int("new_primary_id", decision.NewPrimaryID),
		logging.Duration("elapsed", time.Since(start)))

	return decision
}

// gatherInputs collects a SiblingSnapshot for every active sibling,
// combining the store-backed membership view with a live survey round
// for daemon-running proof and reported role/position (spec.md §4.5 inputs).
func (c *Coordinator) gatherInputs(ctx context.Context) map[int]SiblingSnapshot {
	out := make(map[int]SiblingSnapshot)

	var survey []peer.SurveyResponse
	if c.surveyor != nil {
		var err error
		survey, err = c.surveyor.Survey()
		if err != nil {
			c.logger.Warn("health survey failed", logging.Error(err))
		}
	}
	bySurvey := make(map[int]peer.SurveyResponse, len(survey))
	for _, r := range survey {
		bySurvey[r.NodeID] = r
	}

	for _, sib := range c.siblings.GetActiveSiblings(c.localNodeID) {
		snap := SiblingSnapshot{Node: sib, UpstreamLastSeen: -1}

		client := c.clients[sib.NodeID]
		if client != nil {
			snap.Reachable = client.Reachable()
			if repl, err := client.ReplicationInfo(ctx, 2*time.Second); err == nil {
				snap.ReplInfo = repl
				snap.UpstreamLastSeen = repl.UpstreamLastSeen
				snap.InRecovery = repl.InRecovery
			}
		}
		if resp, ok := bySurvey[sib.NodeID]; ok {
			snap.DaemonRunning = true
			snap.ReplInfo.LastWALReplayLSN = model.LSN(resp.LSN)
			snap.ReplInfo.Timeline = model.TimelineID(resp.Timeline)
		}

		out[sib.NodeID] = snap
	}

	return out
}

// runValidationCommand executes the operator-supplied failover validation
// hook (spec.md §4.5 step 7): zero exit means the local candidacy is
// confirmed, non-zero asks for a rerun instead of an outright loss.
func runValidationCommand(ctx context.Context, cmd string) error {
	if cmd == "" {
		return nil
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", cmd).Run()
}
