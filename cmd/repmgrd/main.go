// Command repmgrd is the failover and cluster-coordination daemon. One
// binary runs on every node and behaves differently depending on the local
// node's current role in the shared `nodes` table (spec.md §2): primary,
// standby, or witness. The outer loop in run() resolves that role, drives a
// monitor.Monitor until it signals a restart is needed, and rebuilds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/repliguard/pkg/config"
	"github.com/dd0wney/repliguard/pkg/exitcode"
	"github.com/dd0wney/repliguard/pkg/logging"
	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/monitor"
	"github.com/dd0wney/repliguard/pkg/xerr"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "/etc/repmgrd/repmgrd.yaml", "path to the daemon's YAML config file")
	flag.Parse()

	logger := logging.DefaultLogger()
	logging.SetDefaultLogger(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", logging.String("path", *configPath), logging.Error(err))
		return int(exitcode.ErrBadConfig)
	}
	logger = logger.With(logging.Int("node_id", cfg.NodeID), logging.String("node_name", cfg.NodeName))

	if err := writePIDFile(cfg.PIDFile); err != nil {
		logger.Error("failed to write pid file", logging.Error(err))
		return int(exitcode.ErrBadConfig)
	}
	defer removePIDFile(cfg.PIDFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start daemon", logging.Error(err))
		return int(xerr.ExitCodeOf(err))
	}
	defer d.close()

	go d.siblings.Run(ctx, cfg.MonitorInterval())
	if d.respondent != nil {
		if err := d.respondent.Start(); err != nil {
			logger.Warn("failed to start health respondent", logging.Error(err))
		}
		defer d.respondent.Stop()
	}
	if d.webhook != nil {
		go d.webhook.Run(ctx, d.bus)
	}

	go func() {
		if err := d.httpSrv.start(); err != nil {
			logger.Error("http server exited", logging.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		d.httpSrv.stop(shutdownCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go handleSignals(sigCh, d, cancel, logger)

	return runMonitorLoop(ctx, d, logger)
}

// runMonitorLoop resolves the local node's current role, builds a Monitor
// for it, and runs it until either the process is asked to shut down or the
// monitor reports that the role or upstream changed underneath it and must
// be rebuilt (spec.md §4.4).
func runMonitorLoop(ctx context.Context, d *daemon, logger logging.Logger) int {
	for {
		self, err := d.meta.GetNode(ctx, d.cfg.NodeID)
		if err != nil {
			if ctx.Err() != nil {
				return int(exitcode.Success)
			}
			logger.Error("failed to read local node record", logging.Error(err))
			return int(exitcode.ErrDBQuery)
		}
		role := roleOf(self.Type)

		mon := d.buildMonitor(ctx, role, self)
		logger.Info("monitor loop starting", logging.String("role", role.String()))
		reason := mon.Run(ctx, role)

		if ctx.Err() != nil {
			logger.Info("shutting down")
			return int(exitcode.Success)
		}

		if reason.Terminal() {
			code := exitcode.ErrMonitoringTimeout
			if reason == monitor.RestartBrainSplit {
				code = exitcode.ErrBrainSplit
			}
			logger.Error("monitor giving up local node, exiting rather than restarting",
				logging.String("reason", reason.String()))
			return int(code)
		}

		logger.Info("monitor loop restarting", logging.String("reason", reason.String()))
	}
}

// handleSignals drives graceful shutdown on SIGTERM/SIGINT and, on SIGHUP,
// reloads the split-brain survey rendezvous address so a HealthRespondent
// started against the old primary points at the new one. Repointing is
// operator-driven rather than automatic, since there is no separate
// discovery channel for the current survey address (spec.md §B).
func handleSignals(sigCh chan os.Signal, d *daemon, cancel context.CancelFunc, logger logging.Logger) {
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reloading config")
			newCfg, err := config.Load(flag.Lookup("config").Value.String())
			if err != nil {
				logger.Error("failed to reload config", logging.Error(err))
				continue
			}
			d.reloadSurveyAddr(newCfg.SplitBrainSurveyAddr)
		default:
			logger.Info("received shutdown signal", logging.String("signal", sig.String()))
			ctx, publishCancel := context.WithTimeout(context.Background(), 2*time.Second)
			d.bus.Publish(ctx, model.Event{
				NodeID:        d.cfg.NodeID,
				Kind:          "repmgrd_shutdown",
				Severity:      model.SeverityInfo,
				Detail:        fmt.Sprintf("repmgrd exiting on %s", sig),
				TimestampUnix: time.Now().Unix(),
			})
			publishCancel()
			cancel()
			return
		}
	}
}
