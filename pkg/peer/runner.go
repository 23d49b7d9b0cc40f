package peer

import "context"

// RemoteResult is the outcome of RunRemote. Unreachable is set when the
// shell transport itself could not reach the peer (SSH connect/auth
// failure) — this MUST be distinguished from a zero-exit command that
// simply produced no output (spec.md §4.3).
type RemoteResult struct {
	Output      string
	ExitCode    int
	Unreachable bool
}

// CommandRunner executes cmd as the given user on host via whatever shell
// transport is configured. The production implementation is SSHRunner;
// tests use a scripted fake.
type CommandRunner interface {
	Run(ctx context.Context, host, user, cmd string) (RemoteResult, error)
}
