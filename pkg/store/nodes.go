package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/repliguard/pkg/model"
)

func nodeTypeToString(t model.NodeType) string {
	return t.String()
}

func nodeTypeFromString(s string) model.NodeType {
	switch s {
	case "primary":
		return model.NodeTypePrimary
	case "witness":
		return model.NodeTypeWitness
	case "bdr":
		return model.NodeTypeBDR
	default:
		return model.NodeTypeStandby
	}
}

func scanNode(row pgx.Row) (model.NodeRecord, error) {
	var n model.NodeRecord
	var typ string

	err := row.Scan(
		&n.NodeID, &n.Name, &typ, &n.UpstreamNodeID, &n.Location,
		&n.Priority, &n.Active, &n.ConnInfo, &n.ReplUser,
	)
	if err != nil {
		return model.NodeRecord{}, err
	}
	n.Type = nodeTypeFromString(typ)
	return n, nil
}

const nodeColumns = `node_id, name, type, upstream_node_id, location, priority, active, conninfo, repluser`

// GetAllNodes returns every row of the nodes table, in node_id order.
func (s *PGNodeMetaStore) GetAllNodes(ctx context.Context) ([]model.NodeRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var out []model.NodeRecord
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetNode returns a single node by id.
func (s *PGNodeMetaStore) GetNode(ctx context.Context, nodeID int) (model.NodeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE node_id = $1`, nodeID)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NodeRecord{}, fmt.Errorf("node %d not found", nodeID)
	}
	if err != nil {
		return model.NodeRecord{}, fmt.Errorf("failed to get node: %w", err)
	}
	return n, nil
}

// GetActiveSiblings returns every active node other than excludeID.
func (s *PGNodeMetaStore) GetActiveSiblings(ctx context.Context, excludeID int) ([]model.NodeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE active = TRUE AND node_id != $1 ORDER BY node_id`,
		excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query siblings: %w", err)
	}
	defer rows.Close()

	var out []model.NodeRecord
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sibling: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateUpstream rewrites a node's upstream_node_id.
func (s *PGNodeMetaStore) UpdateUpstream(ctx context.Context, nodeID, upstreamNodeID int) error {
	_, err := s.pool.Exec(ctx, `UPDATE nodes SET upstream_node_id = $2 WHERE node_id = $1`, nodeID, upstreamNodeID)
	if err != nil {
		return fmt.Errorf("failed to update upstream for node %d: %w", nodeID, err)
	}
	return nil
}

// UpdateActive marks a node active or inactive.
func (s *PGNodeMetaStore) UpdateActive(ctx context.Context, nodeID int, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE nodes SET active = $2 WHERE node_id = $1`, nodeID, active)
	if err != nil {
		return fmt.Errorf("failed to update active flag for node %d: %w", nodeID, err)
	}
	return nil
}

// UpdateTypePrimary retypes a node as primary with no upstream.
func (s *PGNodeMetaStore) UpdateTypePrimary(ctx context.Context, nodeID int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE nodes SET type = 'primary', upstream_node_id = 0 WHERE node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to promote node %d: %w", nodeID, err)
	}
	return nil
}
