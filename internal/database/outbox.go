package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"incentive-ledger-go/internal/models"

	"go.uber.org/zap"
)

// FetchUnpublished returns the oldest outbox messages that have not been
// relayed yet and have failed fewer than maxAttempts times.
func (s *Service) FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx, queryFetchUnpublished, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var messages []models.OutboxMessage
	for rows.Next() {
		var msg models.OutboxMessage
		if err := rows.Scan(&msg.Id, &msg.EntryId, &msg.Payload, &msg.Attempts, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}
	return messages, nil
}

func (s *Service) MarkPublished(ctx context.Context, ids []string, publishedAt time.Time) error {
	return s.updateOutbox(ctx, ids, func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, queryMarkPublished, publishedAt.UTC(), id)
		return err
	})
}

func (s *Service) MarkAttemptFailed(ctx context.Context, ids []string) error {
	return s.updateOutbox(ctx, ids, func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, queryMarkAttemptFailed, id)
		return err
	})
}

func (s *Service) updateOutbox(ctx context.Context, ids []string, apply func(tx *sql.Tx, id string) error) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if err := apply(tx, id); err != nil {
			return fmt.Errorf("failed to update outbox message %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
