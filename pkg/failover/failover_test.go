package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dd0wney/repliguard/pkg/events"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/runner"
	"github.com/dd0wney/repliguard/pkg/store"
)

type fakeMetaStore struct {
	store.NodeMetaStore

	nodes map[int]model.NodeRecord
	term  model.ElectoralTerm

	notifyTargetID int
	notifyTerm     model.ElectoralTerm
	notified       bool

	updateTypePrimaryErr error
	updateUpstreamCalls  []int
	incrementTermErr     error
}

func (f *fakeMetaStore) GetNode(ctx context.Context, nodeID int) (model.NodeRecord, error) {
	n, ok := f.nodes[nodeID]
	if !ok {
		return model.NodeRecord{}, errors.New("node not found")
	}
	return n, nil
}

func (f *fakeMetaStore) UpdateTypePrimary(ctx context.Context, nodeID int) error {
	return f.updateTypePrimaryErr
}

func (f *fakeMetaStore) UpdateUpstream(ctx context.Context, nodeID, upstreamNodeID int) error {
	f.updateUpstreamCalls = append(f.updateUpstreamCalls, upstreamNodeID)
	return nil
}

func (f *fakeMetaStore) GetCurrentTerm(ctx context.Context) (model.ElectoralTerm, error) {
	return f.term, nil
}

func (f *fakeMetaStore) IncrementTerm(ctx context.Context) (model.ElectoralTerm, error) {
	if f.incrementTermErr != nil {
		return 0, f.incrementTermErr
	}
	f.term++
	return f.term, nil
}

func (f *fakeMetaStore) NotifyFollowPrimary(ctx context.Context, term model.ElectoralTerm, newPrimaryNodeID int) error {
	return nil
}

func (f *fakeMetaStore) NotifyElectionRerun(ctx context.Context, term model.ElectoralTerm) error {
	return nil
}

func (f *fakeMetaStore) GetNewPrimaryNotification(ctx context.Context, term model.ElectoralTerm) (int, model.ElectoralTerm, bool, error) {
	if !f.notified {
		return 0, 0, false, nil
	}
	return f.notifyTargetID, f.notifyTerm, true, nil
}

func (f *fakeMetaStore) RecordEvent(ctx context.Context, ev model.Event) error {
	return nil
}

type fakePinger struct {
	isPrimary bool
	err       error
}

func (p *fakePinger) IsPrimary(ctx context.Context) (bool, error) {
	return p.isPrimary, p.err
}

func newTestDriver(localNodeID, originalUpstreamID int, cfg Config, meta *fakeMetaStore, pinger *fakePinger, r runner.CommandRunner) *Driver {
	bus := events.NewBus(nil, logging.NewNopLogger())
	return NewDriver(localNodeID, originalUpstreamID, cfg, meta, pinger, r, bus, logging.NewNopLogger())
}

func TestRun_Won_PromoteSucceeds(t *testing.T) {
	meta := &fakeMetaStore{term: 1}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"promote.sh": {ExitCode: 0},
	}}
	cfg := Config{PromoteCommand: "promote.sh"}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionWon, 0)
	if state != model.FSPromoted {
		t.Fatalf("state = %v, want FSPromoted", state)
	}
	if meta.term != 2 {
		t.Fatalf("term = %d, want 2 after IncrementTerm", meta.term)
	}
}

func TestRun_Won_PromoteCommandFails(t *testing.T) {
	meta := &fakeMetaStore{term: 1}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"promote.sh": {ExitCode: 1},
	}}
	cfg := Config{PromoteCommand: "promote.sh"}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionWon, 0)
	if state != model.FSPromotionFailed {
		t.Fatalf("state = %v, want FSPromotionFailed", state)
	}
}

func TestRun_Won_PinguerVerificationFails(t *testing.T) {
	meta := &fakeMetaStore{term: 1}
	pinger := &fakePinger{isPrimary: false}
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"promote.sh": {ExitCode: 0},
	}}
	cfg := Config{PromoteCommand: "promote.sh"}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionWon, 0)
	if state != model.FSPrimaryReappeared {
		t.Fatalf("state = %v, want FSPrimaryReappeared", state)
	}
}

func TestRun_Cancelled_WithNewPrimary_DispatchesDirectly(t *testing.T) {
	meta := &fakeMetaStore{
		term: 1,
		nodes: map[int]model.NodeRecord{
			3: {NodeID: 3, Name: "node3", Type: model.NodeTypePrimary},
		},
	}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"follow.sh 3 node3": {ExitCode: 0},
	}}
	cfg := Config{FollowCommand: "follow.sh %n %a", StandbyStartupTimeout: 2 * time.Second}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionCancelled, 3)
	if state != model.FSFollowedNewPrimary {
		t.Fatalf("state = %v, want FSFollowedNewPrimary", state)
	}
	if len(meta.updateUpstreamCalls) != 1 || meta.updateUpstreamCalls[0] != 3 {
		t.Fatalf("updateUpstreamCalls = %v, want [3]", meta.updateUpstreamCalls)
	}
}

func TestRun_Lost_WaitsThenFollowsOriginalPrimary(t *testing.T) {
	meta := &fakeMetaStore{term: 1, notified: true, notifyTargetID: 1, notifyTerm: 1}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{}
	cfg := Config{PrimaryNotificationTimeout: 5 * time.Second}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionLost, 0)
	if state != model.FSFollowingOriginalPrimary {
		t.Fatalf("state = %v, want FSFollowingOriginalPrimary", state)
	}
}

func TestRun_Lost_StaleNotificationIsDiscarded(t *testing.T) {
	meta := &fakeMetaStore{term: 3, notified: true, notifyTargetID: 1, notifyTerm: 1}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{}
	cfg := Config{PrimaryNotificationTimeout: 2 * time.Second}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionLost, 0)
	if state != model.FSNoNewPrimary {
		t.Fatalf("state = %v, want FSNoNewPrimary (stale notification from an earlier term must be ignored)", state)
	}
}

func TestRun_Lost_NotificationTargetsSelf_Promotes(t *testing.T) {
	meta := &fakeMetaStore{term: 1, notified: true, notifyTargetID: 2, notifyTerm: 1}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"promote.sh": {ExitCode: 0},
	}}
	cfg := Config{PromoteCommand: "promote.sh", PrimaryNotificationTimeout: 5 * time.Second}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionLost, 0)
	if state != model.FSPromoted {
		t.Fatalf("state = %v, want FSPromoted", state)
	}
}

func TestRun_Lost_NotificationTargetsElectionRerun(t *testing.T) {
	meta := &fakeMetaStore{term: 1, notified: true, notifyTargetID: model.ElectionRerunNotification, notifyTerm: 1}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{}
	cfg := Config{PrimaryNotificationTimeout: 5 * time.Second, ElectionRerunInterval: 10 * time.Millisecond}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionLost, 0)
	if state != model.FSElectionRerun {
		t.Fatalf("state = %v, want FSElectionRerun", state)
	}
}

func TestRun_Lost_TimesOutWithNoNotification(t *testing.T) {
	meta := &fakeMetaStore{term: 1}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{}
	cfg := Config{PrimaryNotificationTimeout: 1100 * time.Millisecond}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.Run(context.Background(), model.ElectionLost, 0)
	if state != model.FSNoNewPrimary {
		t.Fatalf("state = %v, want FSNoNewPrimary", state)
	}
}

func TestFollowNewPrimary_RejectsNonPrimaryWinner(t *testing.T) {
	meta := &fakeMetaStore{
		term: 1,
		nodes: map[int]model.NodeRecord{
			3: {NodeID: 3, Name: "node3", Type: model.NodeTypeStandby},
		},
	}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{}
	cfg := Config{FollowCommand: "follow.sh %n %a"}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.followNewPrimary(context.Background(), 3)
	if state != model.FSFollowFail {
		t.Fatalf("state = %v, want FSFollowFail for a winner not recorded as primary", state)
	}
}

func TestFollowNewPrimary_FollowCommandFails(t *testing.T) {
	meta := &fakeMetaStore{
		term: 1,
		nodes: map[int]model.NodeRecord{
			3: {NodeID: 3, Name: "node3", Type: model.NodeTypePrimary},
		},
	}
	pinger := &fakePinger{isPrimary: true}
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"follow.sh 3 node3": {ExitCode: 1},
	}}
	cfg := Config{FollowCommand: "follow.sh %n %a"}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	state := d.followNewPrimary(context.Background(), 3)
	if state != model.FSFollowFail {
		t.Fatalf("state = %v, want FSFollowFail", state)
	}
}

func TestPollForReconnect_TimesOutWhenPingerNeverSucceeds(t *testing.T) {
	meta := &fakeMetaStore{term: 1}
	pinger := &fakePinger{isPrimary: false, err: errors.New("connection refused")}
	r := &runner.ScriptedRunner{}
	cfg := Config{StandbyStartupTimeout: 1100 * time.Millisecond}
	d := newTestDriver(2, 1, cfg, meta, pinger, r)

	if d.pollForReconnect(context.Background()) {
		t.Fatalf("pollForReconnect() = true, want false when the pinger never succeeds")
	}
}
