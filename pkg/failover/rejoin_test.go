package failover

import (
	"context"
	"testing"
	"time"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/runner"
)

func TestRejoiner_FirstTargetAccepts(t *testing.T) {
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"rejoin.sh 2 node2": {ExitCode: 0},
	}}
	rj := NewRejoiner("rejoin.sh %n %a", r, time.Millisecond, logging.NewNopLogger())

	targets := []RejoinTarget{{NodeID: 2, Name: "node2"}, {NodeID: 3, Name: "node3"}}
	accepted, ok := rj.Run(context.Background(), targets)
	if !ok || accepted != 2 {
		t.Fatalf("Run() = (%d, %v), want (2, true)", accepted, ok)
	}
	if len(r.Calls) != 1 {
		t.Fatalf("Calls = %v, want exactly one attempt", r.Calls)
	}
}

func TestRejoiner_FallsThroughToSecondTarget(t *testing.T) {
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"rejoin.sh 2 node2": {ExitCode: 1},
		"rejoin.sh 3 node3": {ExitCode: 0},
	}}
	rj := NewRejoiner("rejoin.sh %n %a", r, time.Millisecond, logging.NewNopLogger())

	targets := []RejoinTarget{{NodeID: 2, Name: "node2"}, {NodeID: 3, Name: "node3"}}
	accepted, ok := rj.Run(context.Background(), targets)
	if !ok || accepted != 3 {
		t.Fatalf("Run() = (%d, %v), want (3, true)", accepted, ok)
	}
}

func TestRejoiner_NoTargetAccepts(t *testing.T) {
	r := &runner.ScriptedRunner{Responses: map[string]runner.Result{
		"rejoin.sh 2 node2": {ExitCode: 1},
		"rejoin.sh 3 node3": {ExitCode: 1},
	}}
	rj := NewRejoiner("rejoin.sh %n %a", r, time.Millisecond, logging.NewNopLogger())

	targets := []RejoinTarget{{NodeID: 2, Name: "node2"}, {NodeID: 3, Name: "node3"}}
	_, ok := rj.Run(context.Background(), targets)
	if ok {
		t.Fatalf("Run() ok = true, want false when every target rejects")
	}
}
