package health

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/repliguard/pkg/model"
)

// LocalState reads the local Postgres instance's own recovery mode and WAL
// position — the counterpart, on the local side, of the replication_info
// and is_in_recovery queries PeerClient issues against a remote sibling
// (pkg/peer/protocol.go). LivenessMonitor and ElectionCoordinator both need
// this to know the local node's own standing before comparing it to peers.
type LocalState struct {
	db *pgxpool.Pool
}

// NewLocalState wraps a pool already opened by the caller (spec.md §4.2/§4.3
// both describe this as the daemon's single DB connection, shared rather
// than reopened per component).
func NewLocalState(db *pgxpool.Pool) *LocalState {
	return &LocalState{db: db}
}

// IsPrimary reports whether the local instance is currently NOT in
// recovery, i.e. acting as a primary. Used by FailoverDriver.Pinger to
// verify a promote/follow command actually took effect.
func (l *LocalState) IsPrimary(ctx context.Context) (bool, error) {
	var inRecovery bool
	if err := l.db.QueryRow(ctx, "SELECT pg_is_in_recovery()").Scan(&inRecovery); err != nil {
		return false, fmt.Errorf("failed to query recovery mode: %w", err)
	}
	return !inRecovery, nil
}

// ReplicationInfo reads the local node's own ReplInfo snapshot, the fields
// ElectionCoordinator compares against every sibling's reported position.
func (l *LocalState) ReplicationInfo(ctx context.Context) (model.ReplInfo, error) {
	var info model.ReplInfo
	var inRecovery bool
	var receiveLSN, replayLSN int64
	var timeline int64
	var systemID int64
	var walPaused bool

	const q = `SELECT
		pg_is_in_recovery(),
		COALESCE(pg_last_wal_receive_lsn() - '0/0'::pg_lsn, 0),
		COALESCE(pg_last_wal_replay_lsn() - '0/0'::pg_lsn, 0),
		(SELECT timeline_id FROM pg_control_checkpoint()),
		(SELECT system_identifier FROM pg_control_system()),
		COALESCE(pg_is_wal_replay_paused(), false)`

	if err := l.db.QueryRow(ctx, q).Scan(&inRecovery, &receiveLSN, &replayLSN, &timeline, &systemID, &walPaused); err != nil {
		return model.ReplInfo{}, fmt.Errorf("failed to query local replication state: %w", err)
	}

	info.InRecovery = inRecovery
	info.LastWALReceiveLSN = model.LSN(receiveLSN)
	info.LastWALReplayLSN = model.LSN(replayLSN)
	info.Timeline = model.TimelineID(timeline)
	info.SystemIdentifier = model.SystemIdentifier(systemID)
	info.WALReplayPaused = walPaused
	return info, nil
}

// DisableWALReceiver implements the standby_disconnect_on_failover
// pre-election step (spec.md §4.5): raise wal_retrieve_retry_interval so
// the receiver does not immediately restart, then terminate its backend.
func (l *LocalState) DisableWALReceiver(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, "ALTER SYSTEM SET wal_retrieve_retry_interval = '1h'"); err != nil {
		return fmt.Errorf("failed to raise wal_retrieve_retry_interval: %w", err)
	}
	if _, err := l.db.Exec(ctx, "SELECT pg_reload_conf()"); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	if _, err := l.db.Exec(ctx, "SELECT pg_terminate_backend(pid) FROM pg_stat_wal_receiver"); err != nil {
		return fmt.Errorf("failed to terminate wal receiver: %w", err)
	}
	return nil
}

// EnableWALReceiver restores the default wal_retrieve_retry_interval so the
// standby reconnects to its upstream once the election round ends.
func (l *LocalState) EnableWALReceiver(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, "ALTER SYSTEM RESET wal_retrieve_retry_interval"); err != nil {
		return fmt.Errorf("failed to reset wal_retrieve_retry_interval: %w", err)
	}
	if _, err := l.db.Exec(ctx, "SELECT pg_reload_conf()"); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return nil
}
