// Package syncstandby implements the primary loop's sync/async degradation
// watchdog (spec.md §4.4 primary item 2): when synchronous_standby_names
// is non-empty (the number of standbys it names is not checked) and
// pg_stat_replication has reported no sync row for a sustained grace
// period, it rewrites the setting to async and
// reloads; once the sync standby reappears within a tight lag threshold,
// it restores the original setting.
package syncstandby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/repliguard/pkg/logging"
)

// Watcher tracks how long the configured sync standby has been missing and
// flips synchronous_standby_names between its configured value and '' (async)
// accordingly. Built per-primary-session; losing its in-memory state across
// a monitor restart only costs one redundant ALTER SYSTEM call.
type Watcher struct {
	db           *pgxpool.Pool
	lagThreshold int64
	grace        time.Duration
	logger       logging.Logger

	configuredNames string // remembered so a degrade can later be reversed
	missingSince    time.Time
	degraded        bool
}

// NewWatcher builds a Watcher against the local instance's pool. lagThreshold
// is in bytes, matching ReplInfo.LagBytes.
func NewWatcher(db *pgxpool.Pool, lagThreshold int64, grace time.Duration, logger logging.Logger) *Watcher {
	return &Watcher{
		db:           db,
		lagThreshold: lagThreshold,
		grace:        grace,
		logger:       logger.With(logging.Component("sync_standby_watcher")),
	}
}

// status is one poll of the local instance's synchronous replication state.
type status struct {
	configured bool
	names      string
	connected  bool
	lagBytes   int64
}

func (w *Watcher) poll(ctx context.Context) (status, error) {
	var names string
	if err := w.db.QueryRow(ctx, "SHOW synchronous_standby_names").Scan(&names); err != nil {
		return status{}, fmt.Errorf("failed to read synchronous_standby_names: %w", err)
	}
	if strings.TrimSpace(names) == "" {
		return status{}, nil
	}

	var lag int64
	row := w.db.QueryRow(ctx, `SELECT COALESCE(pg_wal_lsn_diff(pg_current_wal_lsn(), replay_lsn), 0)
		FROM pg_stat_replication WHERE sync_state = 'sync' LIMIT 1`)
	switch err := row.Scan(&lag); {
	case err == nil:
		return status{configured: true, names: names, connected: true, lagBytes: lag}, nil
	case errors.Is(err, pgx.ErrNoRows):
		return status{configured: true, names: names, connected: false}, nil
	default:
		return status{}, fmt.Errorf("failed to query pg_stat_replication: %w", err)
	}
}

// Check polls the current sync standby status and degrades to async or
// restores synchronous replication as needed, reporting whether this call
// changed synchronous_standby_names.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	st, err := w.poll(ctx)
	if err != nil {
		return false, err
	}
	if !st.configured {
		w.missingSince = time.Time{}
		return false, nil
	}
	if w.configuredNames == "" {
		w.configuredNames = st.names
	}

	if !st.connected {
		return w.degradeIfGraceExpired(ctx)
	}

	w.missingSince = time.Time{}
	if !w.degraded {
		return false, nil
	}
	if st.lagBytes > w.lagThreshold {
		return false, nil
	}
	if err := w.setSyncStandbyNames(ctx, w.configuredNames); err != nil {
		return false, err
	}
	w.degraded = false
	w.logger.Info("sync standby caught up, restoring synchronous replication",
		logging.Int64("lag_bytes", st.lagBytes))
	return true, nil
}

// degradeIfGraceExpired handles a poll that found no sync row: starts the
// grace-period clock on first observation, and rewrites
// synchronous_standby_names to async once the standby has been missing for
// at least w.grace.
func (w *Watcher) degradeIfGraceExpired(ctx context.Context) (bool, error) {
	if w.degraded {
		return false, nil
	}
	if w.missingSince.IsZero() {
		w.missingSince = time.Now()
		return false, nil
	}
	if time.Since(w.missingSince) < w.grace {
		return false, nil
	}

	if err := w.setSyncStandbyNames(ctx, ""); err != nil {
		return false, err
	}
	w.degraded = true
	w.logger.Warn("sync standby missing past grace period, degrading to async",
		logging.Duration("missing_for", time.Since(w.missingSince)))
	return true, nil
}

// setSyncStandbyNames rewrites and reloads synchronous_standby_names. value
// always originates from this instance's own SHOW output or the empty
// string, never external input, so it is embedded directly rather than
// bound as a query parameter — ALTER SYSTEM SET does not accept one.
func (w *Watcher) setSyncStandbyNames(ctx context.Context, value string) error {
	quoted := "'" + strings.ReplaceAll(value, "'", "''") + "'"
	if _, err := w.db.Exec(ctx, fmt.Sprintf("ALTER SYSTEM SET synchronous_standby_names = %s", quoted)); err != nil {
		return fmt.Errorf("failed to set synchronous_standby_names: %w", err)
	}
	if _, err := w.db.Exec(ctx, "SELECT pg_reload_conf()"); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return nil
}
