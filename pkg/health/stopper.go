package health

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/repliguard/pkg/runner"
)

// PGCtlStopper implements DBStopper by shelling out to pg_ctl, the same
// stop mechanism the original daemon invokes (repmgrd-physical.c: "pg_ctl
// -D %s stop -m fast" / "-m immediate").
type PGCtlStopper struct {
	dataDir string
	runner  runner.CommandRunner
}

// NewPGCtlStopper builds a PGCtlStopper for the Postgres instance rooted
// at dataDir.
func NewPGCtlStopper(dataDir string, cmdRunner runner.CommandRunner) *PGCtlStopper {
	return &PGCtlStopper{dataDir: dataDir, runner: cmdRunner}
}

// FastStop runs `pg_ctl stop -m fast`, which disconnects clients and rolls
// back in-flight transactions but waits for a clean shutdown checkpoint.
func (s *PGCtlStopper) FastStop(ctx context.Context, timeout time.Duration) error {
	cmd := fmt.Sprintf("pg_ctl -D %s -t %d stop -m fast", s.dataDir, int(timeout.Seconds()))
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("pg_ctl fast stop failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("pg_ctl fast stop exited %d: %s", res.ExitCode, res.Output)
	}
	return nil
}

// ForceKill runs `pg_ctl stop -m immediate`, used when FastStop does not
// complete in time — aborts all backends without a checkpoint.
func (s *PGCtlStopper) ForceKill(ctx context.Context) error {
	cmd := fmt.Sprintf("pg_ctl -D %s stop -m immediate", s.dataDir)
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("pg_ctl immediate stop failed: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("pg_ctl immediate stop exited %d: %s", res.ExitCode, res.Output)
	}
	return nil
}
