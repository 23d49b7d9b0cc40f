package failover

import (
	"context"
	"math/rand"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/runner"
)

// RejoinTarget is one candidate peer the Rejoiner tries in turn.
type RejoinTarget struct {
	NodeID int
	Name   string
}

// Rejoiner implements the SPEC_FULL.md §C.5 auto-rejoin behavior: after the
// local database is stopped following repeated probe failure, it runs
// RejoinCmd with --force-rewind semantics against each known peer in turn,
// once each, until one of them accepts, backing off with jitter between
// attempts the way the teacher's electionTimerLoop staggers retries.
type Rejoiner struct {
	cmdTemplate string
	runner      runner.CommandRunner
	backoff     time.Duration
	logger      logging.Logger
}

// NewRejoiner builds a Rejoiner. cmdTemplate is RejoinCmd with %n/%a tokens
// substituted per target (spec.md §6).
func NewRejoiner(cmdTemplate string, r runner.CommandRunner, backoff time.Duration, logger logging.Logger) *Rejoiner {
	return &Rejoiner{
		cmdTemplate: cmdTemplate,
		runner:      r,
		backoff:     backoff,
		logger:      logger.With(logging.Component("rejoiner")),
	}
}

// Run tries each target once, in order, returning the node id that accepted
// the rejoin, or ok=false if every target rejected it or ctx was cancelled
// first.
func (rj *Rejoiner) Run(ctx context.Context, targets []RejoinTarget) (acceptedBy int, ok bool) {
	for i, t := range targets {
		if ctx.Err() != nil {
			return 0, false
		}

		cmd := runner.SubstitutePlaceholders(rj.cmdTemplate, t.NodeID, t.Name)
		res, err := rj.runner.Run(ctx, cmd)
		if err == nil && res.ExitCode == 0 {
			rj.logger.Info("rejoin accepted", logging.Int("target_node_id", t.NodeID))
			return t.NodeID, true
		}

		rj.logger.Warn("rejoin rejected, trying next peer",
			logging.Int("target_node_id", t.NodeID), logging.Error(err))

		if i == len(targets)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(rj.jitteredBackoff()):
		}
	}
	return 0, false
}

func (rj *Rejoiner) jitteredBackoff() time.Duration {
	if rj.backoff <= 0 {
		return 0
	}
	return rj.backoff + time.Duration(rand.Int63n(int64(rj.backoff)))
}
