package health

import (
	"context"
	"testing"
	"time"

	"github.com/dd0wney/repliguard/pkg/runner"
)

func TestPGCtlStopper_FastStop_Success(t *testing.T) {
	r := &runner.ScriptedRunner{
		Responses: map[string]runner.Result{
			"pg_ctl -D /data -t 10 stop -m fast": {ExitCode: 0},
		},
	}
	s := NewPGCtlStopper("/data", r)
	if err := s.FastStop(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("FastStop returned error: %v", err)
	}
}

func TestPGCtlStopper_FastStop_NonZeroExit(t *testing.T) {
	r := &runner.ScriptedRunner{
		Responses: map[string]runner.Result{
			"pg_ctl -D /data -t 5 stop -m fast": {ExitCode: 1, Output: "could not stop"},
		},
	}
	s := NewPGCtlStopper("/data", r)
	if err := s.FastStop(context.Background(), 5*time.Second); err == nil {
		t.Fatal("expected error on non-zero exit")
	}
}

func TestPGCtlStopper_ForceKill_Success(t *testing.T) {
	r := &runner.ScriptedRunner{
		Responses: map[string]runner.Result{
			"pg_ctl -D /data stop -m immediate": {ExitCode: 0},
		},
	}
	s := NewPGCtlStopper("/data", r)
	if err := s.ForceKill(context.Background()); err != nil {
		t.Fatalf("ForceKill returned error: %v", err)
	}
}
