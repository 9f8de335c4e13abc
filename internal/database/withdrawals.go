package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) GetWithdraw(ctx context.Context, withdrawId string) (*models.WithdrawOrder, error) {
	return getWithdraw(ctx, s.db, withdrawId)
}

// ListWithdraws returns withdraws in the given status, oldest first. An empty
// status lists every withdraw.
func (s *Service) ListWithdraws(ctx context.Context, status models.WithdrawStatus, limit int) ([]models.WithdrawOrder, error) {
	if limit <= 0 {
		limit = 100
	}

	query := queryWithdrawColumns
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, rowid LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdraws: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var withdraws []models.WithdrawOrder
	for rows.Next() {
		withdraw, err := scanWithdraw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdraw: %w", err)
		}
		withdraws = append(withdraws, *withdraw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdraws: %w", err)
	}
	return withdraws, nil
}

func (t *sqlTx) GetWithdraw(ctx context.Context, withdrawId string) (*models.WithdrawOrder, error) {
	return getWithdraw(ctx, t.tx, withdrawId)
}

func (t *sqlTx) InsertWithdraw(ctx context.Context, w *models.WithdrawOrder) error {
	_, err := t.tx.ExecContext(ctx, queryInsertWithdraw,
		w.Id, w.UserId, w.Amount, w.Fee, w.ActualAmount, w.BankRef, string(w.Status), w.Remark, w.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert withdraw: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateWithdraw(ctx context.Context, w *models.WithdrawOrder) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateWithdraw, string(w.Status), w.Remark, nullableTime(w.ProcessedAt), w.Id)
	if err != nil {
		return fmt.Errorf("failed to update withdraw: %w", err)
	}
	return expectOneRow(result, "withdraw", w.Id)
}

// SumApprovedWithdrawsSince totals the requested amounts of withdraws approved at or after since
func (t *sqlTx) SumApprovedWithdrawsSince(ctx context.Context, userId string, since time.Time) (decimal.Decimal, error) {
	rows, err := t.tx.QueryContext(ctx, queryApprovedWithdrawAmountsSince, userId, since.UTC())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query approved withdraws: %w", err)
	}
	defer rows.Close()

	return sumAmounts(rows)
}

func getWithdraw(ctx context.Context, q queryer, withdrawId string) (*models.WithdrawOrder, error) {
	withdraw, err := scanWithdraw(q.QueryRowContext(ctx, queryWithdrawColumns+" WHERE id = ?", withdrawId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("withdraw %s: %w", withdrawId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdraw: %w", err)
	}
	return withdraw, nil
}

func scanWithdraw(row rowScanner) (*models.WithdrawOrder, error) {
	var w models.WithdrawOrder
	var status string
	err := row.Scan(&w.Id, &w.UserId, &w.Amount, &w.Fee, &w.ActualAmount, &w.BankRef,
		&status, &w.Remark, &w.CreatedAt, &w.ProcessedAt)
	if err != nil {
		return nil, err
	}
	w.Status = models.WithdrawStatus(status)
	return &w, nil
}
