package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"
)

func (s *Service) GetRecharge(ctx context.Context, rechargeId string) (*models.RechargeOrder, error) {
	return getRecharge(ctx, s.db, rechargeId)
}

func (t *sqlTx) GetRecharge(ctx context.Context, rechargeId string) (*models.RechargeOrder, error) {
	return getRecharge(ctx, t.tx, rechargeId)
}

func (t *sqlTx) InsertRecharge(ctx context.Context, r *models.RechargeOrder) error {
	_, err := t.tx.ExecContext(ctx, queryInsertRecharge,
		r.Id, r.UserId, r.MethodId, r.Amount, r.Fee, r.ActualAmount, r.Proof, string(r.Status), r.Remark,
		r.CreatedAt.UTC(), r.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert recharge: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateRecharge(ctx context.Context, r *models.RechargeOrder) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateRecharge, r.Proof, string(r.Status), r.Remark, nullableTime(r.ProcessedAt), r.Id)
	if err != nil {
		return fmt.Errorf("failed to update recharge: %w", err)
	}
	return expectOneRow(result, "recharge", r.Id)
}

func getRecharge(ctx context.Context, q queryer, rechargeId string) (*models.RechargeOrder, error) {
	var r models.RechargeOrder
	var status string
	err := q.QueryRowContext(ctx, queryGetRecharge, rechargeId).Scan(
		&r.Id, &r.UserId, &r.MethodId, &r.Amount, &r.Fee, &r.ActualAmount, &r.Proof,
		&status, &r.Remark, &r.CreatedAt, &r.ExpiresAt, &r.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recharge %s: %w", rechargeId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recharge: %w", err)
	}
	r.Status = models.RechargeStatus(status)
	return &r, nil
}
