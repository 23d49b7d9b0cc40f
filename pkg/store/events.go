package store

import (
	"context"
	"fmt"

	"github.com/golang/snappy"

	"github.com/dd0wney/repliguard/pkg/model"
)

// RecordEvent appends a row to the audit log. Detail is snappy-compressed
// before storage; events.Bus hands the webhook notifier and pubsub
// subscribers the uncompressed event.
func (s *PGNodeMetaStore) RecordEvent(ctx context.Context, ev model.Event) error {
	compressed := snappy.Encode(nil, []byte(ev.Detail))

	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (event_uuid, node_id, kind, severity, detail) VALUES ($1, $2, $3, $4, $5)`,
		ev.EventID, ev.NodeID, ev.Kind, ev.Severity.String(), compressed,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func severityFromString(s string) model.EventSeverity {
	switch s {
	case "warning":
		return model.SeverityWarning
	case "error":
		return model.SeverityError
	case "critical":
		return model.SeverityCritical
	default:
		return model.SeverityInfo
	}
}

// GetRecentEvents returns the most recent limit events, newest first, with
// Detail decompressed. It backs cmd/repmgrd-status's live event feed.
func (s *PGNodeMetaStore) GetRecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_uuid, node_id, kind, severity, detail, extract(epoch FROM created_at)::bigint
		 FROM events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		var severity string
		var eventID *string
		var detail []byte
		if err := rows.Scan(&eventID, &ev.NodeID, &ev.Kind, &severity, &detail, &ev.TimestampUnix); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if eventID != nil {
			ev.EventID = *eventID
		}
		ev.Severity = severityFromString(severity)
		if len(detail) > 0 {
			if plain, err := snappy.Decode(nil, detail); err == nil {
				ev.Detail = string(plain)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecordMonitoringHistory appends a periodic health snapshot row.
func (s *PGNodeMetaStore) RecordMonitoringHistory(ctx context.Context, rec model.MonitoringRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitoring_history (node_id, state, upstream_node_id, last_wal_receive_lsn, last_wal_replay_lsn)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.NodeID, rec.State.String(), rec.UpstreamNodeID,
		int64(rec.LastWALReceiveLSN), int64(rec.LastWALReplayLSN),
	)
	if err != nil {
		return fmt.Errorf("failed to record monitoring history: %w", err)
	}
	return nil
}
