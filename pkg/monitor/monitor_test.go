package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/dd0wney/repliguard/pkg/cluster"
	"github.com/dd0wney/repliguard/pkg/election"
	"github.com/dd0wney/repliguard/pkg/events"
	"github.com/dd0wney/repliguard/pkg/failover"
	"github.com/dd0wney/repliguard/pkg/health"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/metrics"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/runner"
	"github.com/dd0wney/repliguard/pkg/splitbrain"
	"github.com/dd0wney/repliguard/pkg/store"
)

type fakeMetaStore struct {
	store.NodeMetaStore
	nodes map[int]model.NodeRecord
	term  model.ElectoralTerm
}

func (f *fakeMetaStore) GetAllNodes(ctx context.Context) ([]model.NodeRecord, error) {
	out := make([]model.NodeRecord, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeMetaStore) GetNode(ctx context.Context, nodeID int) (model.NodeRecord, error) {
	return f.nodes[nodeID], nil
}

func (f *fakeMetaStore) GetCurrentTerm(ctx context.Context) (model.ElectoralTerm, error) {
	return f.term, nil
}

func (f *fakeMetaStore) ResetVotingStatus(ctx context.Context, term model.ElectoralTerm) error {
	return nil
}

func (f *fakeMetaStore) RecordMonitoringHistory(ctx context.Context, rec model.MonitoringRecord) error {
	return nil
}

func (f *fakeMetaStore) RecordEvent(ctx context.Context, ev model.Event) error {
	return nil
}

type fakeProber struct {
	result health.Result
}

func (p *fakeProber) Run(ctx context.Context) health.Result { return p.result }

type fakeLocal struct {
	isPrimary bool
	repl      model.ReplInfo
}

func (f *fakeLocal) IsPrimary(ctx context.Context) (bool, error) { return f.isPrimary, nil }
func (f *fakeLocal) ReplicationInfo(ctx context.Context) (model.ReplInfo, error) {
	return f.repl, nil
}

type fakeUpstream struct {
	status model.NodeStatus
}

func (u *fakeUpstream) EnsureConnected(ctx context.Context) model.NodeStatus { return u.status }
func (u *fakeUpstream) ReplicationInfo(ctx context.Context, timeout time.Duration) (model.ReplInfo, error) {
	return model.ReplInfo{}, nil
}

func newTestMonitor(cfg Config, nodes map[int]model.NodeRecord, prober Prober, local LocalProbe, clients map[int]UpstreamClient) (*Monitor, *fakeMetaStore) {
	meta := &fakeMetaStore{nodes: nodes, term: 1}
	reg := metrics.NewRegistry()
	logger := logging.NewNopLogger()

	sib := cluster.NewSiblings(cfg.LocalNodeID, meta, reg, logger)
	sib.Refresh(context.Background())

	coord := election.NewCoordinator(cfg.LocalNodeID, election.Config{MonitorInterval: cfg.MonitorInterval}, sib, meta, nil, nil, nil, reg, logger)
	guard := splitbrain.NewGuard(cfg.LocalNodeID, 100, func() model.TimelineID { return 0 }, nil, func(int) (int, bool) { return 0, false }, logger)
	bus := events.NewBus(nil, logger)
	driver := failover.NewDriver(cfg.LocalNodeID, cfg.OriginalUpstreamID, failover.Config{PrimaryNotificationTimeout: 1100 * time.Millisecond}, meta, local, &runner.ScriptedRunner{}, bus, logger)

	m := NewMonitor(cfg, sib, meta, prober, local, clients, coord, guard, driver, bus, reg, nil, nil, nil, nil, nil, logger)
	return m, meta
}

func TestRunPrimaryLoop_StopsOnContextCancel(t *testing.T) {
	cfg := Config{LocalNodeID: 1, MonitorInterval: 10 * time.Millisecond}
	prober := &fakeProber{result: health.Result{DBStatus: model.NodeStatusUp, DiskOK: true, InterfaceUp: true}}
	local := &fakeLocal{isPrimary: true}
	m, _ := newTestMonitor(cfg, map[int]model.NodeRecord{1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true}}, prober, local, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	reason := m.Run(ctx, model.RolePrimaryMonitor)
	if reason != RestartNone {
		t.Fatalf("reason = %v, want RestartNone on context cancellation", reason)
	}
}

func TestRunPrimaryLoop_RoleChangedWhenNoLongerPrimary(t *testing.T) {
	cfg := Config{LocalNodeID: 1, MonitorInterval: 10 * time.Millisecond}
	prober := &fakeProber{result: health.Result{DBStatus: model.NodeStatusUp, DiskOK: true, InterfaceUp: true}}
	local := &fakeLocal{isPrimary: false}
	m, _ := newTestMonitor(cfg, map[int]model.NodeRecord{1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true}}, prober, local, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reason := m.Run(ctx, model.RolePrimaryMonitor)
	if reason != RestartRoleChanged {
		t.Fatalf("reason = %v, want RestartRoleChanged when local node silently became standby", reason)
	}
}

func TestRunPrimaryLoop_DegradedTimeoutExceeded(t *testing.T) {
	cfg := Config{LocalNodeID: 1, MonitorInterval: 5 * time.Millisecond, DegradedTimeout: 15 * time.Millisecond}
	prober := &fakeProber{result: health.Result{DBStatus: model.NodeStatusDown}}
	local := &fakeLocal{isPrimary: true}
	m, _ := newTestMonitor(cfg, map[int]model.NodeRecord{1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true}}, prober, local, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reason := m.Run(ctx, model.RolePrimaryMonitor)
	if reason != RestartDegradedTimeout {
		t.Fatalf("reason = %v, want RestartDegradedTimeout once the degraded budget is exhausted", reason)
	}
}

func TestRunStandbyLoop_UpstreamUnreachableTriggersElection(t *testing.T) {
	cfg := Config{
		LocalNodeID:        2,
		OriginalUpstreamID: 1,
		MonitorInterval:    5 * time.Millisecond,
		DegradedTimeout:    10 * time.Millisecond,
	}
	local := &fakeLocal{isPrimary: false}
	clients := map[int]UpstreamClient{1: &fakeUpstream{status: model.NodeStatusDown}}
	nodes := map[int]model.NodeRecord{
		1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true, Priority: 100},
		2: {NodeID: 2, Type: model.NodeTypeStandby, Active: true, Priority: 0},
	}
	m, _ := newTestMonitor(cfg, nodes, nil, local, clients)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reason := m.Run(ctx, model.RoleStandbyMonitor)
	if reason != RestartNone {
		t.Fatalf("reason = %v, want RestartNone (priority 0 standby cannot win, falls through to timeout)", reason)
	}
}

func TestRunStandbyLoop_StaysNormalWhileUpstreamHealthy(t *testing.T) {
	cfg := Config{
		LocalNodeID:        2,
		OriginalUpstreamID: 1,
		MonitorInterval:    5 * time.Millisecond,
		DegradedTimeout:    time.Second,
	}
	local := &fakeLocal{isPrimary: false}
	clients := map[int]UpstreamClient{1: &fakeUpstream{status: model.NodeStatusUp}}
	nodes := map[int]model.NodeRecord{
		1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true, UpstreamNodeID: 0},
		2: {NodeID: 2, Type: model.NodeTypeStandby, Active: true, UpstreamNodeID: 1},
	}
	m, _ := newTestMonitor(cfg, nodes, nil, local, clients)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	reason := m.Run(ctx, model.RoleStandbyMonitor)
	if reason != RestartNone {
		t.Fatalf("reason = %v, want RestartNone while upstream stays healthy", reason)
	}
}

type fakeStopper struct {
	fastStopCalls int
	forceKillErr  error
}

func (s *fakeStopper) FastStop(ctx context.Context, timeout time.Duration) error {
	s.fastStopCalls++
	return nil
}

func (s *fakeStopper) ForceKill(ctx context.Context) error { return s.forceKillErr }

func TestRunPrimaryLoop_ProbeFailureTriggersStopAndRejoin(t *testing.T) {
	cfg := Config{LocalNodeID: 1, MonitorInterval: 5 * time.Millisecond, DegradedTimeout: time.Second}
	prober := &fakeProber{result: health.Result{DBStatus: model.NodeStatusDown}}
	local := &fakeLocal{isPrimary: true}
	nodes := map[int]model.NodeRecord{1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true}}

	meta := &fakeMetaStore{nodes: nodes, term: 1}
	reg := metrics.NewRegistry()
	logger := logging.NewNopLogger()
	sib := cluster.NewSiblings(cfg.LocalNodeID, meta, reg, logger)
	sib.Refresh(context.Background())
	coord := election.NewCoordinator(cfg.LocalNodeID, election.Config{MonitorInterval: cfg.MonitorInterval}, sib, meta, nil, nil, nil, reg, logger)
	guard := splitbrain.NewGuard(cfg.LocalNodeID, 100, func() model.TimelineID { return 0 }, nil, func(int) (int, bool) { return 0, false }, logger)
	bus := events.NewBus(nil, logger)
	driver := failover.NewDriver(cfg.LocalNodeID, 0, failover.Config{PrimaryNotificationTimeout: 1100 * time.Millisecond}, meta, local, &runner.ScriptedRunner{}, bus, logger)

	stopper := &fakeStopper{}
	rejoiner := failover.NewRejoiner("rejoin --force-rewind --node %n", &runner.ScriptedRunner{
		Responses: map[string]runner.Result{
			"rejoin --force-rewind --node 2": {ExitCode: 0},
		},
	}, time.Millisecond, logger)
	targets := []failover.RejoinTarget{{NodeID: 2, Name: "node2"}}

	m := NewMonitor(cfg, sib, meta, prober, local, nil, coord, guard, driver, bus, reg, stopper, rejoiner, targets, nil, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reason := m.Run(ctx, model.RolePrimaryMonitor)
	if reason != RestartRoleChanged {
		t.Fatalf("reason = %v, want RestartRoleChanged after successful auto-rejoin", reason)
	}
	if stopper.fastStopCalls == 0 {
		t.Error("expected FastStop to be called before auto-rejoin")
	}
}

func TestRunWitnessLoop_StaysNormalWhilePrimaryHealthy(t *testing.T) {
	cfg := Config{
		LocalNodeID:        3,
		OriginalUpstreamID: 1,
		MonitorInterval:    5 * time.Millisecond,
	}
	local := &fakeLocal{isPrimary: false}
	clients := map[int]UpstreamClient{1: &fakeUpstream{status: model.NodeStatusUp}}
	nodes := map[int]model.NodeRecord{1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true}}
	m, _ := newTestMonitor(cfg, nodes, nil, local, clients)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	reason := m.Run(ctx, model.RoleWitnessMonitor)
	if reason != RestartNone {
		t.Fatalf("reason = %v, want RestartNone", reason)
	}
}

func TestHandleSplitBrainDecision_DoStopIsTerminal(t *testing.T) {
	cfg := Config{LocalNodeID: 1, MonitorInterval: 5 * time.Millisecond}
	local := &fakeLocal{isPrimary: true}
	nodes := map[int]model.NodeRecord{1: {NodeID: 1, Type: model.NodeTypePrimary, Active: true}}
	m, _ := newTestMonitor(cfg, nodes, nil, local, nil)
	stopper := &fakeStopper{}
	m.stopper = stopper

	reason := m.handleSplitBrainDecision(context.Background(), model.SplitBrainDoStop)
	if reason != RestartBrainSplit {
		t.Fatalf("reason = %v, want RestartBrainSplit so the daemon exits instead of looping", reason)
	}
	if stopper.fastStopCalls == 0 {
		t.Error("expected FastStop to be called on DO_STOP")
	}
}
