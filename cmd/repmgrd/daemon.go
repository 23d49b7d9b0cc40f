// Command repmgrd is the failover and cluster-coordination daemon:
// LivenessMonitor, ElectionCoordinator, FailoverDriver and SplitBrainGuard
// wired into one long-running process per node, the way repmgrd itself is
// one binary that behaves differently depending on the local node's role
// in the shared `nodes` table (spec.md §2).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/repliguard/pkg/cluster"
	"github.com/dd0wney/repliguard/pkg/config"
	"github.com/dd0wney/repliguard/pkg/election"
	"github.com/dd0wney/repliguard/pkg/events"
	"github.com/dd0wney/repliguard/pkg/exitcode"
	"github.com/dd0wney/repliguard/pkg/failover"
	"github.com/dd0wney/repliguard/pkg/health"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/metrics"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/monitor"
	"github.com/dd0wney/repliguard/pkg/peer"
	"github.com/dd0wney/repliguard/pkg/runner"
	"github.com/dd0wney/repliguard/pkg/splitbrain"
	"github.com/dd0wney/repliguard/pkg/store"
	"github.com/dd0wney/repliguard/pkg/syncstandby"
	"github.com/dd0wney/repliguard/pkg/xerr"
)

// surveyReplInfoTimeout bounds the local replication query a StateProvider
// issues when answering a health survey.
const surveyReplInfoTimeout = 2 * time.Second

// daemon holds every long-lived component of one repmgrd process: the
// pieces built once at startup and reused across monitor restarts, plus
// the handful (surveyor, HTTP server) whose lifetime tracks the local
// node's role or the process's own.
type daemon struct {
	cfg    config.DaemonConfig
	logger logging.Logger

	rawPool *pgxpool.Pool // separate from meta's internal pool; backs LocalState/Probe
	meta    *store.PGNodeMetaStore

	siblings *cluster.Siblings
	reg      *metrics.Registry
	bus      *events.Bus
	webhook  *events.WebhookNotifier

	local   *health.LocalState
	probe   *health.Probe
	stopper *health.PGCtlStopper

	shellRunner *runner.ShellRunner
	sshRunner   *peer.SSHRunner
	clients     map[int]*peer.Client

	socketFactory peer.SocketFactory
	stateProvider *localStateProvider
	respondent    *peer.HealthRespondent
	surveyor      *peer.HealthSurveyor // non-nil only while this node is primary

	rejoiner *failover.Rejoiner

	// degradedBudget is shared across every Monitor rebuilt by buildMonitor so
	// cumulative degraded time survives role/upstream-triggered restarts
	// within one process lifetime, only resetting across process restarts
	// (spec.md §6 degraded_monitoring_timeout).
	degradedBudget *monitor.DegradedBudget

	witnessMirror       *store.WitnessMirror
	witnessMirrorCancel context.CancelFunc

	httpSrv *httpServer
}

// newDaemon opens every resource the daemon needs and wires the
// long-lived components. It does not yet know the local node's role — the
// caller resolves that and drives the monitor loop.
func newDaemon(ctx context.Context, cfg config.DaemonConfig, logger logging.Logger) (*daemon, error) {
	rawPool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, xerr.Fatal(fmt.Errorf("failed to open database pool: %w", err), exitcode.ErrDBConn)
	}
	if err := rawPool.Ping(ctx); err != nil {
		rawPool.Close()
		return nil, xerr.Fatal(fmt.Errorf("database unreachable: %w", err), exitcode.ErrDBConn)
	}

	meta, err := store.NewPGNodeMetaStore(ctx, cfg.DSN)
	if err != nil {
		rawPool.Close()
		return nil, xerr.Fatal(fmt.Errorf("failed to open metadata store: %w", err), exitcode.ErrDBConn)
	}

	reg := metrics.NewRegistry()
	siblings := cluster.NewSiblings(cfg.NodeID, meta, reg, logger)
	if err := siblings.Refresh(ctx); err != nil {
		logger.Warn("initial membership refresh failed, continuing with an empty view", logging.Error(err))
	}

	bus := events.NewBus(meta, logger)

	var webhook *events.WebhookNotifier
	if cfg.NotificationHookURL != "" {
		webhook = events.NewWebhookNotifier(cfg.NotificationHookURL, []byte(cfg.NotificationHookSecret), logger)
	}

	local := health.NewLocalState(rawPool)
	shellRunner := runner.NewShellRunner()
	stopper := health.NewPGCtlStopper(cfg.DataDirectory, shellRunner)
	probe := health.NewProbe(rawPool, stopper, cfg.DataDirectory, cfg.NetworkInterface,
		cfg.DeviceCheckTimes, cfg.DeviceCheckTimeoutDuration(), logger)

	sshOpts := peer.SSHOptions{
		Port:           cfg.SSHPort,
		PrivateKeyPath: cfg.SSHPrivateKeyPath,
		ConnectTimeout: cfg.SSHConnectTimeout(),
		BatchMode:      true,
	}
	sshRunner := peer.NewSSHRunner(sshOpts, logger)

	d := &daemon{
		cfg:           cfg,
		logger:        logger,
		rawPool:       rawPool,
		meta:          meta,
		siblings:      siblings,
		reg:           reg,
		bus:           bus,
		webhook:       webhook,
		local:         local,
		probe:         probe,
		stopper:       stopper,
		shellRunner:   shellRunner,
		sshRunner:     sshRunner,
		socketFactory: newSurveySocketFactory(),
		degradedBudget: monitor.NewDegradedBudget(cfg.DegradedMonitoringTimeout()),
	}

	d.clients = d.buildPeerClients(siblings.GetAllNodes())
	d.rejoiner = failover.NewRejoiner(cfg.RejoinCommand, shellRunner, cfg.ReconnectInterval(), logger)

	self, _ := meta.GetNode(ctx, cfg.NodeID)
	initialRole := roleOf(self.Type)
	d.stateProvider = newLocalStateProvider(cfg.NodeID, local, initialRole)

	respondent, err := peer.NewHealthRespondent(d.socketFactory, cfg.SplitBrainSurveyAddr, d.stateProvider, logger)
	if err != nil {
		logger.Warn("failed to build health respondent", logging.Error(err))
	}
	d.respondent = respondent

	d.witnessMirror = store.NewWitnessMirror(meta, cfg.WitnessSyncInterval(), logger)

	d.httpSrv = newHTTPServer(d)

	return d, nil
}

// buildPeerClients builds one PeerClient per node other than this one,
// active or not, keyed by node id. ConnInfo is repurposed here from its usual Postgres DSN meaning to a
// host:port this daemon's peer transport dials directly — a pragmatic
// simplification over maintaining two separate address fields per node.
func (d *daemon) buildPeerClients(nodes []model.NodeRecord) map[int]*peer.Client {
	factory := newPeerTransportFactory(d.cfg.PeerTransport)
	out := make(map[int]*peer.Client, len(nodes))
	for _, n := range nodes {
		if n.NodeID == d.cfg.NodeID {
			continue
		}
		out[n.NodeID] = peer.NewClient(n.NodeID, n.ConnInfo, factory, d.sshRunner,
			d.cfg.ReconnectAttempts, d.cfg.ReconnectInterval(), d.logger)
	}
	return out
}

func roleOf(t model.NodeType) model.Role {
	switch t {
	case model.NodeTypePrimary:
		return model.RolePrimaryMonitor
	case model.NodeTypeWitness:
		return model.RoleWitnessMonitor
	default:
		return model.RoleStandbyMonitor
	}
}

// ensureSurveyor starts this node's HealthSurveyor when it becomes primary
// and stops it otherwise, since only the current primary runs
// SplitBrainGuard (SPEC_FULL.md §B).
func (d *daemon) ensureSurveyor(role model.Role) {
	d.stateProvider.setRole(role)

	if role != model.RolePrimaryMonitor {
		if d.surveyor != nil {
			if err := d.surveyor.Stop(); err != nil {
				d.logger.Warn("failed to stop health surveyor", logging.Error(err))
			}
			d.surveyor = nil
		}
		return
	}

	if d.surveyor != nil {
		return
	}
	surveyor, err := peer.NewHealthSurveyor(d.socketFactory, d.cfg.SplitBrainSurveyAddr, d.cfg.SurveyTime(), d.logger)
	if err != nil {
		d.logger.Error("failed to build health surveyor", logging.Error(err))
		return
	}
	if err := surveyor.Start(); err != nil {
		d.logger.Error("failed to start health surveyor", logging.Error(err))
		return
	}
	d.surveyor = surveyor
}

// ensureWitnessMirror keeps the local nodes-table mirror running only while
// this node is a witness, and cancels it on any other role
// (pkg/store/witness_mirror.go).
func (d *daemon) ensureWitnessMirror(ctx context.Context, role model.Role) {
	if role != model.RoleWitnessMonitor {
		if d.witnessMirrorCancel != nil {
			d.witnessMirrorCancel()
			d.witnessMirrorCancel = nil
		}
		return
	}
	if d.witnessMirrorCancel != nil {
		return
	}
	mirrorCtx, cancel := context.WithCancel(ctx)
	d.witnessMirrorCancel = cancel
	go d.witnessMirror.Run(mirrorCtx)
}

// buildMonitor assembles a fresh Monitor for one role, reading the local
// node's current metadata row so OriginalUpstreamID/Priority reflect
// whatever the last failover round recorded.
func (d *daemon) buildMonitor(ctx context.Context, role model.Role, self model.NodeRecord) *monitor.Monitor {
	d.ensureSurveyor(role)
	d.ensureWitnessMirror(ctx, role)

	var guard *splitbrain.Guard
	var surveyorForElection *peer.HealthSurveyor
	if role == model.RolePrimaryMonitor {
		surveyorForElection = d.surveyor
		guard = splitbrain.NewGuard(d.cfg.NodeID, self.Priority, d.localTimeline, d.surveyor, d.priorityLookup, d.logger)
	}

	electionCfg := election.Config{
		MonitorInterval:             d.cfg.MonitorInterval(),
		PrimaryVisibilityConsensus:  d.cfg.PrimaryVisibilityConsensus,
		FailoverValidationCommand:   d.cfg.FailoverValidationCommand,
		TreatInactiveAsConfigError:  d.cfg.TreatInactiveAsConfigError,
		StandbyDisconnectOnFailover: d.cfg.StandbyDisconnectOnFailover,
		SiblingDisconnectTimeout:    d.cfg.SiblingDisconnectTimeout(),
	}
	coord := election.NewCoordinator(d.cfg.NodeID, electionCfg, d.siblings, d.meta, surveyorForElection, d.clients, d.local, d.reg, d.logger)

	failoverCfg := failover.Config{
		PromoteDelay:               d.cfg.PromoteDelay(),
		PromoteCommand:             d.cfg.PromoteCommand,
		FollowCommand:              d.cfg.FollowCommand,
		PrimaryNotificationTimeout: d.cfg.PrimaryNotificationTimeout(),
		StandbyStartupTimeout:      d.cfg.StandbyStartupTimeout(),
		ElectionRerunInterval:      d.cfg.ElectionRerunInterval(),
	}
	driver := failover.NewDriver(d.cfg.NodeID, self.UpstreamNodeID, failoverCfg, d.meta, d.local, d.shellRunner, d.bus, d.logger)

	monCfg := monitor.Config{
		LocalNodeID:                d.cfg.NodeID,
		OriginalUpstreamID:         self.UpstreamNodeID,
		MonitorInterval:            d.cfg.MonitorInterval(),
		DegradedTimeout:            d.cfg.DegradedMonitoringTimeout(),
		StandbyWaitTimeout:         d.cfg.StandbyWaitTimeout(),
		WitnessSyncInterval:        d.cfg.WitnessSyncInterval(),
		PrimaryNotificationTimeout: d.cfg.PrimaryNotificationTimeout(),
		MonitoringHistoryEnabled:   d.cfg.MonitoringHistoryEnabled,
		CheckBrainSplit:            d.cfg.CheckBrainSplit,
		ManualFailoverMode:         d.cfg.ManualFailoverMode,
	}

	upstreamClients := make(map[int]monitor.UpstreamClient, len(d.clients))
	for id, c := range d.clients {
		upstreamClients[id] = c
	}

	var syncWatcher *syncstandby.Watcher
	if role == model.RolePrimaryMonitor {
		syncWatcher = syncstandby.NewWatcher(d.rawPool, d.cfg.SyncStandbyLagBytesThreshold, d.cfg.SyncStandbyGrace(), d.logger)
	}

	return monitor.NewMonitor(monCfg, d.siblings, d.meta, d.probe, d.local, upstreamClients,
		coord, guard, driver, d.bus, d.reg, d.stopper, d.rejoiner, d.rejoinTargets(d.cfg.NodeID),
		syncWatcher, d.degradedBudget, d.logger)
}

func (d *daemon) priorityLookup(nodeID int) (int, bool) {
	n, ok := d.siblings.GetNode(nodeID)
	if !ok {
		return 0, false
	}
	return n.Priority, true
}

func (d *daemon) localTimeline() model.TimelineID {
	ctx, cancel := context.WithTimeout(context.Background(), surveyReplInfoTimeout)
	defer cancel()
	info, err := d.local.ReplicationInfo(ctx)
	if err != nil {
		return 0
	}
	return info.Timeline
}

// rejoinTargets lists every other active node as a candidate to rejoin
// against, round-robinned by failover.Rejoiner.
func (d *daemon) rejoinTargets(excludeID int) []failover.RejoinTarget {
	nodes := d.siblings.GetActiveSiblings(excludeID)
	out := make([]failover.RejoinTarget, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, failover.RejoinTarget{NodeID: n.NodeID, Name: n.Name})
	}
	return out
}

// reloadSurveyAddr repoints this node's split-brain survey rendezvous at a
// new address, restarting whichever of surveyor/respondent is currently
// running against it. Used on SIGHUP after an operator updates config to
// reflect a promotion (spec.md §B).
func (d *daemon) reloadSurveyAddr(addr string) {
	if addr == "" || addr == d.cfg.SplitBrainSurveyAddr {
		return
	}
	d.cfg.SplitBrainSurveyAddr = addr

	if d.respondent != nil {
		if err := d.respondent.Stop(); err != nil {
			d.logger.Warn("failed to stop health respondent for reload", logging.Error(err))
		}
	}
	respondent, err := peer.NewHealthRespondent(d.socketFactory, addr, d.stateProvider, d.logger)
	if err != nil {
		d.logger.Error("failed to rebuild health respondent", logging.Error(err))
	} else {
		if err := respondent.Start(); err != nil {
			d.logger.Error("failed to start reloaded health respondent", logging.Error(err))
		}
		d.respondent = respondent
	}

	if d.surveyor != nil {
		if err := d.surveyor.Stop(); err != nil {
			d.logger.Warn("failed to stop health surveyor for reload", logging.Error(err))
		}
		surveyor, err := peer.NewHealthSurveyor(d.socketFactory, addr, d.cfg.SurveyTime(), d.logger)
		if err != nil {
			d.logger.Error("failed to rebuild health surveyor", logging.Error(err))
			d.surveyor = nil
		} else if err := surveyor.Start(); err != nil {
			d.logger.Error("failed to start reloaded health surveyor", logging.Error(err))
			d.surveyor = nil
		} else {
			d.surveyor = surveyor
		}
	}
}

// close releases every resource opened by newDaemon, best-effort.
func (d *daemon) close() {
	if d.witnessMirrorCancel != nil {
		d.witnessMirrorCancel()
	}
	if d.surveyor != nil {
		d.surveyor.Stop()
	}
	if d.respondent != nil {
		d.respondent.Stop()
	}
	for _, c := range d.clients {
		c.Close()
	}
	d.bus.Shutdown()
	d.meta.Close()
	d.rawPool.Close()
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func removePIDFile(path string) {
	if path == "" {
		return
	}
	os.Remove(path)
}
