package runner

import (
	"context"
	"testing"
)

func TestShellRunner_Success(t *testing.T) {
	r := NewShellRunner()
	res, err := r.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Output != "hello\n" {
		t.Errorf("Output = %q, want %q", res.Output, "hello\n")
	}
}

func TestShellRunner_NonZeroExit(t *testing.T) {
	r := NewShellRunner()
	res, err := r.Run(context.Background(), "exit 3")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestShellRunner_EmptyCommand(t *testing.T) {
	r := NewShellRunner()
	res, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0 for empty command", res.ExitCode)
	}
}

func TestSubstitutePlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		nodeID   int
		nodeName string
		want     string
	}{
		{"node id only", "repmgr standby follow -f repmgr.conf --upstream-node-id=%n", 4, "node4", "repmgr standby follow -f repmgr.conf --upstream-node-id=4"},
		{"both tokens", "validate.sh %n %a", 2, "node2", "validate.sh 2 node2"},
		{"no tokens", "true", 2, "node2", "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubstitutePlaceholders(tt.cmd, tt.nodeID, tt.nodeName)
			if got != tt.want {
				t.Errorf("SubstitutePlaceholders() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ScriptedRunner is a deterministic CommandRunner test double: it returns
// canned Results for specific commands, letting higher-level state-machine
// tests (failover.Driver, election.Coordinator) drive spec.md §8's literal
// scenarios without shelling out.
type ScriptedRunner struct {
	Responses map[string]Result
	Calls     []string
}

func (s *ScriptedRunner) Run(ctx context.Context, cmd string) (Result, error) {
	s.Calls = append(s.Calls, cmd)
	if res, ok := s.Responses[cmd]; ok {
		return res, nil
	}
	return Result{ExitCode: 0}, nil
}
