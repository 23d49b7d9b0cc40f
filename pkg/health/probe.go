// Package health adapts the teacher's Check/CheckFunc health-check
// framework (health_checks.go) into the three local probes spec.md §4.2
// requires: DB reachability, data-directory writability and
// network-interface carrier state.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
)

// Pinger is the minimal DB dependency HealthProbe needs; satisfied by
// *pgxpool.Pool and by test doubles.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DBStopper stops the local database process. It is the single action
// HealthProbe is authorized to take, and only on repeated disk failure
// (spec.md §4.2).
type DBStopper interface {
	// FastStop attempts a graceful shutdown within timeout.
	FastStop(ctx context.Context, timeout time.Duration) error
	// ForceKill sends a SIGKILL-class stop, used if FastStop does not
	// complete in time.
	ForceKill(ctx context.Context) error
}

// Probe runs the three local liveness checks a LivenessMonitor polls every
// cycle (spec.md §4.2).
type Probe struct {
	db       Pinger
	stopper  DBStopper
	dataDir  string
	iface    string
	attempts int
	attemptTimeout time.Duration

	logger logging.Logger

	consecutiveDiskFailures int
}

// NewProbe builds a Probe. attempts/attemptTimeout govern the disk-writable
// check (device_check_times / device_check_timeout in spec.md §4.2).
func NewProbe(db Pinger, stopper DBStopper, dataDir, iface string, attempts int, attemptTimeout time.Duration, logger logging.Logger) *Probe {
	return &Probe{
		db:             db,
		stopper:        stopper,
		dataDir:        dataDir,
		iface:          iface,
		attempts:       attempts,
		attemptTimeout: attemptTimeout,
		logger:         logger.With(logging.Component("health_probe")),
	}
}

// CheckDB runs `SELECT 1`-equivalent reachability via Ping, classifying the
// result as UP, DOWN or REJECTED the way PeerClient's failure semantics
// require (spec.md §4.2, §4.3): auth/permission errors are REJECTED,
// anything else that fails to connect is DOWN.
func (p *Probe) CheckDB(ctx context.Context) model.NodeStatus {
	err := p.db.Ping(ctx)
	if err == nil {
		return model.NodeStatusUp
	}

	if isAuthError(err) {
		return model.NodeStatusRejected
	}
	return model.NodeStatusDown
}

func isAuthError(err error) bool {
	var pgErr *pgx.PgError
	if errors.As(err, &pgErr) {
		// Postgres class 28 = invalid_authorization_specification.
		return strings.HasPrefix(pgErr.Code, "28")
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password authentication failed") ||
		strings.Contains(msg, "permission denied")
}

// CheckDiskWritable attempts to create a throwaway file under dataDir,
// device_check_times times, each bounded by attemptTimeout. A single
// attempt that does not return within its timeout ("hangs") counts as a
// failure without waiting for further attempts to also time out.
func (p *Probe) CheckDiskWritable(ctx context.Context) (ok bool, stopped bool) {
	for i := 0; i < p.attempts; i++ {
		start := time.Now()
		if p.tryWriteOnce(ctx) {
			p.consecutiveDiskFailures = 0
			return true, false
		}
		if time.Since(start) >= p.attemptTimeout {
			break
		}
	}

	p.consecutiveDiskFailures++
	p.logger.Warn("disk writable check failed",
		logging.Int("consecutive_failures", p.consecutiveDiskFailures),
		logging.String("data_directory", p.dataDir))

	if p.stopper != nil {
		p.stopLocalDatabase(ctx)
		return false, true
	}
	return false, false
}

func (p *Probe) tryWriteOnce(ctx context.Context) bool {
	done := make(chan bool, 1)

	go func() {
		name := filepath.Join(p.dataDir, fmt.Sprintf(".health_probe_%d", time.Now().UnixNano()))
		f, err := os.Create(name)
		if err != nil {
			done <- false
			return
		}
		f.Close()
		os.Remove(name)
		done <- true
	}()

	select {
	case ok := <-done:
		return ok
	case <-time.After(p.attemptTimeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// stopLocalDatabase performs the one action a HealthProbe is authorized to
// take: fast-stop the local database, then force-kill if it does not
// complete within a bounded grace period.
func (p *Probe) stopLocalDatabase(ctx context.Context) {
	p.logger.Error("stopping local database after repeated disk failure")

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.stopper.FastStop(stopCtx, 10*time.Second); err != nil {
		p.logger.Error("fast-stop failed, forcing kill", logging.Error(err))
		if err := p.stopper.ForceKill(ctx); err != nil {
			p.logger.Error("force kill failed", logging.Error(err))
		}
	}
}

// CheckInterfaceUp reads the Linux carrier file for the configured
// interface; carrier=1 means up.
func (p *Probe) CheckInterfaceUp() (bool, error) {
	path := fmt.Sprintf("/sys/class/net/%s/carrier", p.iface)
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read carrier state for %s: %w", p.iface, err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

// Result is the combined outcome of a single probe pass, consumed by
// LivenessMonitor.
type Result struct {
	DBStatus       model.NodeStatus
	DiskOK         bool
	DiskStopped    bool
	InterfaceUp    bool
	InterfaceError error
}

// Healthy reports whether every check passed.
func (r Result) Healthy() bool {
	return r.DBStatus == model.NodeStatusUp && r.DiskOK && r.InterfaceUp
}

// Run executes all three checks once.
func (p *Probe) Run(ctx context.Context) Result {
	var r Result
	r.DBStatus = p.CheckDB(ctx)
	r.DiskOK, r.DiskStopped = p.CheckDiskWritable(ctx)
	r.InterfaceUp, r.InterfaceError = p.CheckInterfaceUp()
	return r
}

var _ Pinger = (*pgxpool.Pool)(nil)
