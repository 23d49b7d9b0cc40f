// Package runner executes the daemon's configured shell commands — Promote,
// Follow, Rejoin, and the failover validation hook (spec.md §4, §6) — on
// the local host. It is distinct from pkg/peer's CommandRunner, which runs
// commands on a remote sibling over SSH; this one always runs locally.
//
// Local process execution has no idiomatic third-party replacement in the
// retrieval pack or the wider ecosystem — os/exec is itself the standard
// way Go programs shell out, so this package is deliberately stdlib-only.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Result is the outcome of running one local command.
type Result struct {
	Output   string
	ExitCode int
}

// CommandRunner executes a fully-substituted shell command locally.
type CommandRunner interface {
	Run(ctx context.Context, cmd string) (Result, error)
}

// ShellRunner runs commands via /bin/sh -c, the way the teacher's deploy
// tooling and cmd/* scripts invoke external processes.
type ShellRunner struct{}

// NewShellRunner builds the default local CommandRunner.
func NewShellRunner() *ShellRunner { return &ShellRunner{} }

// Run executes cmd and reports its exit code. A non-zero exit is not
// itself a Go error — it is recorded on Result.ExitCode, per spec.md §4.6's
// "zero exit means success" commands — only a failure to start the process
// at all returns an error.
func (r *ShellRunner) Run(ctx context.Context, cmd string) (Result, error) {
	if cmd == "" {
		return Result{ExitCode: 0}, nil
	}

	c := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	err := c.Run()
	if err == nil {
		return Result{Output: buf.String(), ExitCode: 0}, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return Result{Output: buf.String(), ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{Output: buf.String()}, fmt.Errorf("failed to run command: %w", err)
}

// SubstitutePlaceholders replaces the `%n`/`%a` tokens spec.md §6 defines
// for PromoteCmd/FollowCmd/failover_validation_command with the candidate's
// node id and name.
func SubstitutePlaceholders(cmd string, nodeID int, nodeName string) string {
	cmd = strings.ReplaceAll(cmd, "%n", strconv.Itoa(nodeID))
	cmd = strings.ReplaceAll(cmd, "%a", nodeName)
	return cmd
}
