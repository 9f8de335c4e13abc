package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"go.uber.org/zap"
)

func (s *Service) GetInviteEdge(ctx context.Context, edgeId string) (*models.InviteEdge, error) {
	return getInviteEdge(ctx, s.db, " WHERE id = ?", edgeId)
}

func (s *Service) GetInviteEdgeByInvitee(ctx context.Context, inviteeId string) (*models.InviteEdge, error) {
	return getInviteEdge(ctx, s.db, " WHERE invitee_id = ?", inviteeId)
}

// ListInviteEdges returns every edge where the user is the inviter, oldest first
func (s *Service) ListInviteEdges(ctx context.Context, inviterId string) ([]models.InviteEdge, error) {
	rows, err := s.db.QueryContext(ctx, queryInviteEdgeColumns+" WHERE inviter_id = ? ORDER BY created_at, rowid", inviterId)
	if err != nil {
		return nil, fmt.Errorf("failed to query invite edges: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var edges []models.InviteEdge
	for rows.Next() {
		edge, err := scanInviteEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite edge: %w", err)
		}
		edges = append(edges, *edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invite edges: %w", err)
	}
	return edges, nil
}

func (t *sqlTx) GetInviteEdge(ctx context.Context, edgeId string) (*models.InviteEdge, error) {
	return getInviteEdge(ctx, t.tx, " WHERE id = ?", edgeId)
}

func (t *sqlTx) GetInviteEdgeByInvitee(ctx context.Context, inviteeId string) (*models.InviteEdge, error) {
	return getInviteEdge(ctx, t.tx, " WHERE invitee_id = ?", inviteeId)
}

// InsertInviteEdge stores a new unvalidated edge; a second inviter for the
// same invitee fails with ErrAlreadyInvited.
func (t *sqlTx) InsertInviteEdge(ctx context.Context, edge *models.InviteEdge) error {
	_, err := t.tx.ExecContext(ctx, queryInsertInviteEdge,
		edge.Id, edge.InviterId, edge.InviteeId, edge.InviteCode, edge.Reward, edge.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrAlreadyInvited, edge.InviteeId)
		}
		return fmt.Errorf("failed to insert invite edge: %w", err)
	}
	return nil
}

// MarkInviteEdgeValid flips an edge to valid exactly once
func (t *sqlTx) MarkInviteEdgeValid(ctx context.Context, edgeId string, validatedAt time.Time) error {
	result, err := t.tx.ExecContext(ctx, queryMarkInviteEdgeValid, validatedAt.UTC(), edgeId)
	if err != nil {
		return fmt.Errorf("failed to validate invite edge: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := t.GetInviteEdge(ctx, edgeId); err != nil {
			return err
		}
		return fmt.Errorf("invite edge %s: %w", edgeId, store.ErrAlreadyValidated)
	}
	return nil
}

func (t *sqlTx) CountValidInvites(ctx context.Context, inviterId string) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, queryCountValidInvites, inviterId).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count valid invites: %w", err)
	}
	return n, nil
}

func getInviteEdge(ctx context.Context, q queryer, where string, arg string) (*models.InviteEdge, error) {
	edge, err := scanInviteEdge(q.QueryRowContext(ctx, queryInviteEdgeColumns+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invite edge %s: %w", arg, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite edge: %w", err)
	}
	return edge, nil
}

func scanInviteEdge(row rowScanner) (*models.InviteEdge, error) {
	var edge models.InviteEdge
	err := row.Scan(&edge.Id, &edge.InviterId, &edge.InviteeId, &edge.InviteCode,
		&edge.IsValid, &edge.Reward, &edge.CreatedAt, &edge.ValidatedAt)
	if err != nil {
		return nil, err
	}
	return &edge, nil
}
