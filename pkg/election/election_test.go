package election

import (
	"context"
	"testing"
	"time"

	"github.com/dd0wney/repliguard/pkg/cluster"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/metrics"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/store"
)

type fakeMetaStore struct {
	store.NodeMetaStore
	nodes []model.NodeRecord
	term  model.ElectoralTerm
}

func (f *fakeMetaStore) GetAllNodes(ctx context.Context) ([]model.NodeRecord, error) {
	return f.nodes, nil
}

func (f *fakeMetaStore) GetCurrentTerm(ctx context.Context) (model.ElectoralTerm, error) {
	return f.term, nil
}

func (f *fakeMetaStore) ResetVotingStatus(ctx context.Context, term model.ElectoralTerm) error {
	return nil
}

func newTestCoordinator(localID int, cfg Config, nodes []model.NodeRecord) *Coordinator {
	meta := &fakeMetaStore{nodes: nodes, term: 1}
	sib := cluster.NewSiblings(localID, meta, metrics.NewRegistry(), logging.NewNopLogger())
	sib.Refresh(context.Background())
	return NewCoordinator(localID, cfg, sib, meta, nil, nil, nil, metrics.NewRegistry(), logging.NewNopLogger())
}

func TestDecideScenario1_EqualLSNLowerIDWins(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: true, Priority: 100},
	}
	c := newTestCoordinator(2, Config{}, nodes)

	snapshots := map[int]SiblingSnapshot{
		3: {
			Node:          nodes[2],
			Reachable:     true,
			DaemonRunning: true,
			InRecovery:    true,
			ReplInfo:      model.ReplInfo{LastWALReceiveLSN: 0x200, LastWALReplayLSN: 0x200},
		},
	}
	local := nodes[1]
	localRepl := model.ReplInfo{LastWALReceiveLSN: 0x200, LastWALReplayLSN: 0x200}

	decision := c.decide(local, localRepl, false, snapshots)
	if decision.Result != model.ElectionWon {
		t.Fatalf("Result = %v, want WON", decision.Result)
	}
}

func TestDecideScenario2_HigherLSNWins(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: true, Priority: 100},
	}
	c := newTestCoordinator(2, Config{}, nodes)

	snapshots := map[int]SiblingSnapshot{
		3: {
			Node:          nodes[2],
			Reachable:     true,
			DaemonRunning: true,
			InRecovery:    true,
			ReplInfo:      model.ReplInfo{LastWALReceiveLSN: 0x200, LastWALReplayLSN: 0x200},
		},
	}
	local := nodes[1]
	localRepl := model.ReplInfo{LastWALReceiveLSN: 0x150, LastWALReplayLSN: 0x150}

	decision := c.decide(local, localRepl, false, snapshots)
	if decision.Result != model.ElectionLost {
		t.Fatalf("Result = %v, want LOST (node 3 should have won)", decision.Result)
	}
}

func TestDecideScenario3_PriorityTieBreak(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 50},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: true, Priority: 100},
	}
	c := newTestCoordinator(2, Config{}, nodes)

	snapshots := map[int]SiblingSnapshot{
		3: {
			Node:          nodes[2],
			Reachable:     true,
			DaemonRunning: true,
			InRecovery:    true,
			ReplInfo:      model.ReplInfo{LastWALReceiveLSN: 0x200, LastWALReplayLSN: 0x200},
		},
	}
	local := nodes[1]
	localRepl := model.ReplInfo{LastWALReceiveLSN: 0x200, LastWALReplayLSN: 0x200}

	decision := c.decide(local, localRepl, false, snapshots)
	if decision.Result != model.ElectionLost {
		t.Fatalf("Result = %v, want LOST (node 3 has higher priority)", decision.Result)
	}
}

func TestDecideScenario4_MinorityVeto(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 4, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 5, Type: model.NodeTypeStandby, Active: true, Priority: 100},
	}
	c := newTestCoordinator(2, Config{}, nodes)

	// Candidate (node 2) can only see one of its four siblings.
	snapshots := map[int]SiblingSnapshot{
		3: {Node: nodes[2], Reachable: true},
		4: {Node: nodes[3], Reachable: false},
		5: {Node: nodes[4], Reachable: false},
	}
	local := nodes[1]
	localRepl := model.ReplInfo{}

	decision := c.decide(local, localRepl, false, snapshots)
	if decision.Result != model.ElectionCancelled {
		t.Fatalf("Result = %v, want CANCELLED (no quorum)", decision.Result)
	}
}

func TestDecideScenario5_PrimaryVisibilityConsensus(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: true, Priority: 100},
	}
	cfg := Config{
		MonitorInterval:            2 * time.Second,
		PrimaryVisibilityConsensus: true,
	}
	c := newTestCoordinator(2, cfg, nodes)

	snapshots := map[int]SiblingSnapshot{
		3: {Node: nodes[2], Reachable: true, UpstreamLastSeen: 1},
	}
	local := nodes[1]

	decision := c.decide(local, model.ReplInfo{}, false, snapshots)
	if decision.Result != model.ElectionCancelled {
		t.Fatalf("Result = %v, want CANCELLED (sibling still sees primary)", decision.Result)
	}
}

func TestDecideEligibilityGate_ManualFailoverMode(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 100},
	}
	c := newTestCoordinator(2, Config{}, nodes)

	decision := c.decide(nodes[1], model.ReplInfo{}, true, nil)
	if decision.Result != model.ElectionNotCandidate {
		t.Fatalf("Result = %v, want NOT_CANDIDATE (manual failover mode)", decision.Result)
	}
}

func TestDecideEligibilityGate_ZeroPriority(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 0},
	}
	c := newTestCoordinator(2, Config{}, nodes)

	decision := c.decide(nodes[1], model.ReplInfo{}, false, nil)
	if decision.Result != model.ElectionNotCandidate {
		t.Fatalf("Result = %v, want NOT_CANDIDATE (priority <= 0)", decision.Result)
	}
}

func TestDecideSkipsInactiveCandidateByDefault(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: false, Priority: 100},
	}
	c := newTestCoordinator(2, Config{}, nodes)

	snapshots := map[int]SiblingSnapshot{
		3: {
			Node:          nodes[2],
			Reachable:     true,
			DaemonRunning: true,
			InRecovery:    true,
			ReplInfo:      model.ReplInfo{LastWALReceiveLSN: 0x500, LastWALReplayLSN: 0x500},
		},
	}
	local := nodes[1]
	localRepl := model.ReplInfo{LastWALReceiveLSN: 0x100, LastWALReplayLSN: 0x100}

	decision := c.decide(local, localRepl, false, snapshots)
	if decision.Result != model.ElectionWon {
		t.Fatalf("Result = %v, want WON (inactive sibling must be skipped despite higher LSN)", decision.Result)
	}
}

func TestDecideTreatInactiveAsConfigError(t *testing.T) {
	nodes := []model.NodeRecord{
		{NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		{NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 100},
		{NodeID: 3, Type: model.NodeTypeStandby, Active: false, Priority: 100},
	}
	cfg := Config{TreatInactiveAsConfigError: true}
	c := newTestCoordinator(2, cfg, nodes)

	snapshots := map[int]SiblingSnapshot{
		3: {Node: nodes[2], Reachable: true, DaemonRunning: true, InRecovery: true},
	}
	local := nodes[1]

	decision := c.decide(local, model.ReplInfo{}, false, snapshots)
	if decision.Result != model.ElectionLost {
		t.Fatalf("Result = %v, want LOST (strict inactive handling aborts)", decision.Result)
	}
}
