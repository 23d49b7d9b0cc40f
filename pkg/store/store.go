// Package store is the metadata layer the rest of the daemon is built on:
// the shared `nodes` table every sibling reads and writes (spec.md §4.1),
// plus the event log, monitoring history and voting-term bookkeeping that
// back the election and split-brain packages. Grounded on the teacher's
// pgx-backed persistence (pkg/licensing/store_pg*.go).
package store

import (
	"context"

	"github.com/dd0wney/repliguard/pkg/model"
)

// NodeMetaStore is the shared-state contract spec.md §4.1 requires: every
// sibling daemon observes and mutates the same rows through this interface,
// whether it is backed by Postgres or (in tests) an in-memory fake.
type NodeMetaStore interface {
	// GetAllNodes returns every row of the nodes table, in node_id order.
	GetAllNodes(ctx context.Context) ([]model.NodeRecord, error)

	// GetNode returns a single node by id.
	GetNode(ctx context.Context, nodeID int) (model.NodeRecord, error)

	// GetActiveSiblings returns every active node other than excludeID.
	GetActiveSiblings(ctx context.Context, excludeID int) ([]model.NodeRecord, error)

	// UpdateUpstream rewrites a node's upstream_node_id (used by Follow).
	UpdateUpstream(ctx context.Context, nodeID, upstreamNodeID int) error

	// UpdateActive marks a node active or inactive.
	UpdateActive(ctx context.Context, nodeID int, active bool) error

	// UpdateTypePrimary retypes a node as primary with no upstream, the
	// metadata-side effect of a successful promotion.
	UpdateTypePrimary(ctx context.Context, nodeID int) error

	// GetCurrentTerm returns the cluster's current electoral term.
	GetCurrentTerm(ctx context.Context) (model.ElectoralTerm, error)

	// IncrementTerm atomically bumps and returns the new electoral term.
	IncrementTerm(ctx context.Context) (model.ElectoralTerm, error)

	// NotifyFollowPrimary records the winner's own node_id as the cluster's
	// new-primary notification for the given term (spec.md §4.1, §4.6).
	NotifyFollowPrimary(ctx context.Context, term model.ElectoralTerm, newPrimaryNodeID int) error

	// NotifyElectionRerun writes the reserved ElectionRerunNotification
	// target for the given term.
	NotifyElectionRerun(ctx context.Context, term model.ElectoralTerm) error

	// GetNewPrimaryNotification polls for a notification at term or later;
	// ok is false if none has been written yet for that term.
	GetNewPrimaryNotification(ctx context.Context, term model.ElectoralTerm) (targetID int, notifiedTerm model.ElectoralTerm, ok bool, err error)

	// ResetVotingStatus clears any outstanding notification row, called at
	// the start of a fresh election (spec.md §4.5 step 0).
	ResetVotingStatus(ctx context.Context, term model.ElectoralTerm) error

	// RecordEvent appends a row to the audit/event log (spec.md §4.8).
	RecordEvent(ctx context.Context, ev model.Event) error

	// GetRecentEvents returns the most recent limit events, newest first.
	GetRecentEvents(ctx context.Context, limit int) ([]model.Event, error)

	// RecordMonitoringHistory appends a row of periodic health-snapshot
	// data, when MonitoringHistoryEnabled is set.
	RecordMonitoringHistory(ctx context.Context, rec model.MonitoringRecord) error

	Close()
}
