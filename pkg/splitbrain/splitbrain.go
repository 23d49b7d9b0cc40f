// Package splitbrain implements SplitBrainGuard (spec.md §4.7): the
// primary-loop check that counts how many peers currently believe
// themselves to be primary and decides whether to do nothing, reconcile by
// rejoining as a standby, or stop the local database outright.
package splitbrain

import (
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/peer"
)

// PriorityLookup resolves a sibling's configured priority, the way
// cluster.Siblings.GetNode would — kept as a function so this package
// doesn't need to import pkg/cluster directly.
type PriorityLookup func(nodeID int) (priority int, ok bool)

// Guard runs the split-brain check for one primary node.
type Guard struct {
	localNodeID   int
	localPriority int
	localTimeline func() model.TimelineID
	surveyor      *peer.HealthSurveyor
	priorityOf    PriorityLookup
	logger        logging.Logger
}

// NewGuard builds a Guard for the local primary. localTimeline is called
// fresh on every Check so it always reflects the current WAL position.
func NewGuard(localNodeID, localPriority int, localTimeline func() model.TimelineID, surveyor *peer.HealthSurveyor, priorityOf PriorityLookup, logger logging.Logger) *Guard {
	return &Guard{
		localNodeID:   localNodeID,
		localPriority: localPriority,
		localTimeline: localTimeline,
		surveyor:      surveyor,
		priorityOf:    priorityOf,
		logger:        logger.With(logging.Component("split_brain_guard")),
	}
}

// Check surveys the cluster and applies spec.md §4.7's decision rules.
func (g *Guard) Check() (model.SplitBrainDecision, error) {
	responses, err := g.surveyor.Survey()
	if err != nil {
		return model.SplitBrainDoNothing, err
	}

	var otherPrimaries []peer.SurveyResponse
	for _, r := range responses {
		if r.NodeID == g.localNodeID {
			continue
		}
		if r.Role != model.RolePrimaryMonitor.String() {
			continue
		}
		otherPrimaries = append(otherPrimaries, r)
	}

	switch {
	case len(otherPrimaries) == 0:
		return model.SplitBrainDoNothing, nil
	case len(otherPrimaries) >= 2:
		g.logger.Error("split brain: three or more primaries detected, stopping",
			logging.Int("other_primary_count", len(otherPrimaries)))
		return model.SplitBrainDoStop, nil
	default:
		return g.resolveAgainstOne(otherPrimaries[0]), nil
	}
}

// resolveAgainstOne applies the timeline/priority/node_id tie-break of
// spec.md §4.7 step 4 against exactly one other reported primary.
func (g *Guard) resolveAgainstOne(other peer.SurveyResponse) model.SplitBrainDecision {
	localTimeline := g.localTimeline()
	remoteTimeline := model.TimelineID(other.Timeline)

	switch {
	case localTimeline < remoteTimeline:
		return model.SplitBrainDoRejoin
	case localTimeline > remoteTimeline:
		return model.SplitBrainDoNothing
	}

	remotePriority, ok := g.priorityOf(other.NodeID)
	if !ok {
		remotePriority = g.localPriority // unknown priority never breaks the tie on its own
	}

	switch {
	case g.localPriority < remotePriority:
		return model.SplitBrainDoRejoin
	case g.localPriority > remotePriority:
		return model.SplitBrainDoNothing
	}

	if g.localNodeID > other.NodeID {
		return model.SplitBrainDoRejoin
	}
	return model.SplitBrainDoNothing
}
