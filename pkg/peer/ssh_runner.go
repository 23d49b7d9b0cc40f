package peer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/dd0wney/repliguard/pkg/logging"
)

// SSHOptions models the subset of ssh(1)'s option surface spec.md §4.3
// requires: batch mode (no interactive prompts), a user@host target, and a
// configurable options string (here, a struct instead of a literal `-o`
// string — same semantics, typed).
type SSHOptions struct {
	Port           int
	PrivateKeyPath string
	ConnectTimeout time.Duration
	BatchMode      bool // true: never fall back to interactive auth
}

// DefaultSSHOptions mirrors repmgr's own ssh defaults: batch mode on, a
// short connect timeout, no interactive auth.
func DefaultSSHOptions() SSHOptions {
	return SSHOptions{
		Port:           22,
		ConnectTimeout: 5 * time.Second,
		BatchMode:      true,
	}
}

// SSHRunner is the production CommandRunner: it shells out over SSH using
// key-based auth only, the way repmgrd's `run_remote` wraps the system
// ssh(1) client in batch mode.
type SSHRunner struct {
	opts   SSHOptions
	logger logging.Logger
}

var _ CommandRunner = (*SSHRunner)(nil)

// NewSSHRunner builds an SSHRunner.
func NewSSHRunner(opts SSHOptions, logger logging.Logger) *SSHRunner {
	return &SSHRunner{opts: opts, logger: logger.With(logging.Component("ssh_runner"))}
}

func (r *SSHRunner) clientConfig(user string) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(r.opts.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Host-key pinning is an operator/deployment concern (provisioned
		// known_hosts, CA-signed keys); not re-implemented here.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.opts.ConnectTimeout,
	}, nil
}

// Run dials host via SSH, executes cmd in a single session and returns its
// combined stdout/stderr. Connection and auth failures set
// RemoteResult.Unreachable rather than returning the raw dial error, the
// spec's "unreachable-via-shell" case (spec.md §4.3).
func (r *SSHRunner) Run(ctx context.Context, host, user, cmd string) (RemoteResult, error) {
	cfg, err := r.clientConfig(user)
	if err != nil {
		return RemoteResult{Unreachable: true}, fmt.Errorf("failed to build ssh config: %w", err)
	}

	addr := net.JoinHostPort(host, portString(r.opts.Port))

	dialer := net.Dialer{Timeout: r.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return RemoteResult{Unreachable: true}, fmt.Errorf("failed to reach %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return RemoteResult{Unreachable: true}, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return RemoteResult{Unreachable: true}, fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(cmd)

	result := RemoteResult{Output: stdout.String() + stderr.String()}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
		return result, nil
	}
	if runErr != nil {
		return RemoteResult{Unreachable: true}, fmt.Errorf("ssh command failed on %s: %w", addr, runErr)
	}

	return result, nil
}

func portString(p int) string {
	if p <= 0 {
		p = 22
	}
	return fmt.Sprintf("%d", p)
}
