// Package monitor implements LivenessMonitor (spec.md §4.4): the three
// role-specific loops — primary, standby, witness — that share one outer
// shape (probe, reconnect-or-degrade, periodic housekeeping, sleep) but
// diverge in what "housekeeping" means for each role. It is the component
// that drives ElectionCoordinator, FailoverDriver and SplitBrainGuard, and
// owns the DegradedBudget accounting SPEC_FULL.md §C.4 adds on top of the
// distilled spec.
package monitor

import (
	"context"
	"time"

	"github.com/dd0wney/repliguard/pkg/cluster"
	"github.com/dd0wney/repliguard/pkg/election"
	"github.com/dd0wney/repliguard/pkg/events"
	"github.com/dd0wney/repliguard/pkg/failover"
	"github.com/dd0wney/repliguard/pkg/health"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/metrics"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/splitbrain"
	"github.com/dd0wney/repliguard/pkg/store"
	"github.com/dd0wney/repliguard/pkg/syncstandby"
)

// RestartReason tells the outer daemon orchestrator why a loop returned, so
// it knows whether to rebuild the monitor under a different role, just
// reconnect, or give up on the process entirely (spec.md §4.4 items "return
// from loop", §5/§8 scenario 7).
type RestartReason int

const (
	RestartNone RestartReason = iota
	RestartRoleChanged
	RestartUpstreamChanged
	// RestartDegradedTimeout signals that degraded_monitoring_timeout was
	// exceeded: the outer orchestrator must exit rather than rebuild.
	RestartDegradedTimeout
	// RestartBrainSplit signals SplitBrainGuard's DO_STOP verdict, stopping
	// the local database as non-recoverable without operator intervention.
	RestartBrainSplit
)

func (r RestartReason) String() string {
	switch r {
	case RestartRoleChanged:
		return "role_changed"
	case RestartUpstreamChanged:
		return "upstream_changed"
	case RestartDegradedTimeout:
		return "degraded_timeout"
	case RestartBrainSplit:
		return "brain_split"
	default:
		return "none"
	}
}

// Terminal reports whether reason means the process must exit rather than
// rebuild the Monitor and keep looping.
func (r RestartReason) Terminal() bool {
	return r == RestartDegradedTimeout || r == RestartBrainSplit
}

// Config carries the subset of config.DaemonConfig a Monitor consults,
// narrowed so this package does not import pkg/config directly.
type Config struct {
	LocalNodeID                int
	OriginalUpstreamID         int
	MonitorInterval            time.Duration
	DegradedTimeout            time.Duration
	StandbyWaitTimeout         time.Duration
	WitnessSyncInterval        time.Duration
	PrimaryNotificationTimeout time.Duration
	MonitoringHistoryEnabled   bool
	CheckBrainSplit            bool
	ManualFailoverMode         bool
}

// LocalProbe is the local node's own recovery-mode and replication-position
// source — the minimal seam health.Probe's DB connection satisfies, and the
// same IsPrimary method failover.Pinger requires.
type LocalProbe interface {
	IsPrimary(ctx context.Context) (bool, error)
	ReplicationInfo(ctx context.Context) (model.ReplInfo, error)
}

// Prober is the subset of *health.Probe the primary loop drives, narrowed
// to an interface so tests can script probe outcomes without a real DB,
// disk and network interface.
type Prober interface {
	Run(ctx context.Context) health.Result
}

// UpstreamClient is the subset of *peer.Client the standby/witness loops
// need to track one particular sibling's reachability and replication
// position — narrowed to an interface so tests don't need a live transport.
type UpstreamClient interface {
	EnsureConnected(ctx context.Context) model.NodeStatus
	ReplicationInfo(ctx context.Context, timeout time.Duration) (model.ReplInfo, error)
}

// Monitor runs one role's LivenessMonitor loop for the local node.
type Monitor struct {
	cfg      Config
	siblings *cluster.Siblings
	meta     store.NodeMetaStore
	probe    Prober
	local    LocalProbe
	clients  map[int]UpstreamClient // by sibling node id
	election *election.Coordinator
	guard    *splitbrain.Guard
	driver   *failover.Driver
	events   *events.Bus
	metrics  *metrics.Registry

	stopper       health.DBStopper
	rejoiner      *failover.Rejoiner
	rejoinTargets []failover.RejoinTarget
	syncStandby   *syncstandby.Watcher

	budget     *DegradedBudget
	degraded   bool // tracks the transition edge; loops run on a single goroutine
	upstreamID int

	logger logging.Logger
}

// NewMonitor builds a Monitor. clients must contain an entry for every
// active sibling, including the current upstream (for standby role) — the
// same map ElectionCoordinator was built with. stopper/rejoiner/rejoinTargets
// may be nil/empty, in which case a failed local probe on the primary loop
// only enters degraded state instead of stopping the database and
// attempting auto-rejoin (spec.md §4.4 primary item 1). syncStandby may be
// nil to skip the sync/async degradation watchdog (primary role only).
// budget may be nil, in which case a fresh one is built from
// cfg.DegradedTimeout; callers that need degraded time to accumulate across
// monitor rebuilds within one process lifetime (spec.md §4.4, §5) must pass
// the same *DegradedBudget into every NewMonitor call instead.
func NewMonitor(cfg Config, siblings *cluster.Siblings, meta store.NodeMetaStore, probe Prober, local LocalProbe, clients map[int]UpstreamClient, coord *election.Coordinator, guard *splitbrain.Guard, driver *failover.Driver, bus *events.Bus, reg *metrics.Registry, stopper health.DBStopper, rejoiner *failover.Rejoiner, rejoinTargets []failover.RejoinTarget, syncStandby *syncstandby.Watcher, budget *DegradedBudget, logger logging.Logger) *Monitor {
	if budget == nil {
		budget = NewDegradedBudget(cfg.DegradedTimeout)
	}
	return &Monitor{
		cfg:           cfg,
		siblings:      siblings,
		meta:          meta,
		probe:         probe,
		local:         local,
		clients:       clients,
		election:      coord,
		guard:         guard,
		driver:        driver,
		events:        bus,
		metrics:       reg,
		stopper:       stopper,
		rejoiner:      rejoiner,
		rejoinTargets: rejoinTargets,
		syncStandby:   syncStandby,
		budget:        budget,
		upstreamID:    cfg.OriginalUpstreamID,
		logger:        logger.With(logging.Component("liveness_monitor")),
	}
}

var _ Prober = (*health.Probe)(nil)

// Run dispatches to the role-specific loop named in cfg and returns when
// that loop decides the outer orchestrator must restart it (spec.md §4.4).
func (m *Monitor) Run(ctx context.Context, role model.Role) RestartReason {
	if m.metrics != nil {
		m.metrics.SetClusterRole(role.String())
	}
	switch role {
	case model.RolePrimaryMonitor:
		return m.runPrimaryLoop(ctx)
	case model.RoleWitnessMonitor:
		return m.runWitnessLoop(ctx)
	default:
		return m.runStandbyLoop(ctx)
	}
}

func (m *Monitor) emit(ctx context.Context, kind string, severity model.EventSeverity, detail string) {
	if m.events == nil {
		return
	}
	m.events.Publish(ctx, model.Event{NodeID: m.cfg.LocalNodeID, Kind: kind, Severity: severity, Detail: detail})
}

func (m *Monitor) enterDegraded(ctx context.Context, reason string) {
	m.budget.Enter(time.Now())
	if !m.degraded {
		m.degraded = true
		m.logger.Warn("entering degraded monitoring", logging.String("reason", reason))
		if m.metrics != nil {
			m.metrics.SetMonitoringState(model.MSDegraded.String())
		}
		m.emit(ctx, "monitor_degraded", model.SeverityWarning, reason)
	}
}

func (m *Monitor) recoverFromDegraded(ctx context.Context) {
	if !m.degraded {
		return
	}
	m.degraded = false
	m.budget.Recover(time.Now())
	m.logger.Info("recovered from degraded monitoring")
	if m.metrics != nil {
		m.metrics.SetMonitoringState(model.MSNormal.String())
	}
	m.emit(ctx, "monitor_recovered", model.SeverityInfo, "")
}
