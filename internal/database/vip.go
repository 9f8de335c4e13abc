package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"incentive-ledger-go/internal/models"
)

// GetVipStatus returns the stored VIP state; a user who never upgraded is level 0
func (s *Service) GetVipStatus(ctx context.Context, userId string) (*models.VipStatus, error) {
	return getVipStatus(ctx, s.db, userId)
}

func (t *sqlTx) GetVipStatus(ctx context.Context, userId string) (*models.VipStatus, error) {
	return getVipStatus(ctx, t.tx, userId)
}

func (t *sqlTx) SaveVipStatus(ctx context.Context, status *models.VipStatus) error {
	_, err := t.tx.ExecContext(ctx, queryUpsertVipStatus,
		status.UserId, status.Level, nullableTime(status.ExpiresAt), status.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save vip status: %w", err)
	}
	return nil
}

func getVipStatus(ctx context.Context, q queryer, userId string) (*models.VipStatus, error) {
	var status models.VipStatus
	err := q.QueryRowContext(ctx, queryGetVipStatus, userId).Scan(
		&status.UserId, &status.Level, &status.ExpiresAt, &status.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.VipStatus{UserId: userId}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vip status: %w", err)
	}
	return &status, nil
}
