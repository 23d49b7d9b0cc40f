package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/repliguard/pkg/model"
)

// GetCurrentTerm returns the cluster's current electoral term.
func (s *PGNodeMetaStore) GetCurrentTerm(ctx context.Context) (model.ElectoralTerm, error) {
	var term int64
	err := s.pool.QueryRow(ctx, `SELECT current_term FROM voting_term WHERE id = TRUE`).Scan(&term)
	if err != nil {
		return 0, fmt.Errorf("failed to read current term: %w", err)
	}
	return model.ElectoralTerm(term), nil
}

// IncrementTerm atomically bumps and returns the new electoral term (P2).
func (s *PGNodeMetaStore) IncrementTerm(ctx context.Context) (model.ElectoralTerm, error) {
	var term int64
	err := s.pool.QueryRow(ctx,
		`UPDATE voting_term SET current_term = current_term + 1 WHERE id = TRUE RETURNING current_term`,
	).Scan(&term)
	if err != nil {
		return 0, fmt.Errorf("failed to increment term: %w", err)
	}
	return model.ElectoralTerm(term), nil
}

// NotifyFollowPrimary records the winner's node_id as the new-primary
// notification for term.
func (s *PGNodeMetaStore) NotifyFollowPrimary(ctx context.Context, term model.ElectoralTerm, newPrimaryNodeID int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE voting_term SET notified_term = $1, target_node_id = $2 WHERE id = TRUE`,
		int64(term), newPrimaryNodeID)
	if err != nil {
		return fmt.Errorf("failed to notify new primary: %w", err)
	}
	return nil
}

// NotifyElectionRerun writes the reserved ElectionRerunNotification target.
func (s *PGNodeMetaStore) NotifyElectionRerun(ctx context.Context, term model.ElectoralTerm) error {
	return s.NotifyFollowPrimary(ctx, term, model.ElectionRerunNotification)
}

// GetNewPrimaryNotification polls for a notification at term or later.
// Notifications from an earlier term than the one requested are discarded
// as stale (SPEC_FULL.md §D.2) rather than surfaced to the caller.
func (s *PGNodeMetaStore) GetNewPrimaryNotification(ctx context.Context, term model.ElectoralTerm) (int, model.ElectoralTerm, bool, error) {
	var targetID *int
	var notifiedTerm *int64

	err := s.pool.QueryRow(ctx,
		`SELECT target_node_id, notified_term FROM voting_term WHERE id = TRUE`,
	).Scan(&targetID, &notifiedTerm)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read new-primary notification: %w", err)
	}

	if targetID == nil || notifiedTerm == nil {
		return 0, 0, false, nil
	}
	if model.ElectoralTerm(*notifiedTerm) < term {
		return 0, 0, false, nil
	}

	return *targetID, model.ElectoralTerm(*notifiedTerm), true, nil
}

// ResetVotingStatus clears any outstanding notification row for a fresh
// election at term.
func (s *PGNodeMetaStore) ResetVotingStatus(ctx context.Context, term model.ElectoralTerm) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE voting_term SET notified_term = NULL, target_node_id = NULL WHERE id = TRUE`)
	if err != nil {
		return fmt.Errorf("failed to reset voting status for term %d: %w", term, err)
	}
	return nil
}
