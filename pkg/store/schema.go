package store

import "context"

// migrate creates the shared metadata tables if they do not already exist.
func (s *PGNodeMetaStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		node_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		upstream_node_id INTEGER NOT NULL DEFAULT 0,
		location TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 100,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		conninfo TEXT NOT NULL,
		repluser TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS voting_term (
		id BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
		current_term BIGINT NOT NULL DEFAULT 0,
		notified_term BIGINT,
		target_node_id INTEGER
	);

	INSERT INTO voting_term (id, current_term)
	VALUES (TRUE, 0)
	ON CONFLICT (id) DO NOTHING;

	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		event_uuid TEXT,
		node_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		detail BYTEA,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_events_node_id ON events(node_id);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);

	CREATE TABLE IF NOT EXISTS monitoring_history (
		id BIGSERIAL PRIMARY KEY,
		node_id INTEGER NOT NULL,
		state TEXT NOT NULL,
		upstream_node_id INTEGER NOT NULL DEFAULT 0,
		last_wal_receive_lsn BIGINT NOT NULL DEFAULT 0,
		last_wal_replay_lsn BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_monitoring_history_node_id ON monitoring_history(node_id);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}
