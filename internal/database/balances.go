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

// GetAccount returns the user's current account. A user with no account row
// yet has a zero balance.
func (s *Service) GetAccount(ctx context.Context, userId string) (*models.Account, error) {
	return getAccountOrZero(ctx, s.db, userId)
}

// ReconcileAccount replays every entry delta for the user and checks the sums
// against the stored account state.
func (s *Service) ReconcileAccount(ctx context.Context, userId string) error {
	zap.L().Debug("Reconciling account", zap.String("user_id", userId))

	account, err := getAccountOrZero(ctx, s.db, userId)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, queryGetEntryDeltas, userId)
	if err != nil {
		return fmt.Errorf("failed to query entry deltas: %w", err)
	}
	defer rows.Close()

	available, frozen := decimal.Zero, decimal.Zero
	for rows.Next() {
		var availableDelta, frozenDelta decimal.Decimal
		if err := rows.Scan(&availableDelta, &frozenDelta); err != nil {
			return fmt.Errorf("failed to scan entry deltas: %w", err)
		}
		available = available.Add(availableDelta)
		frozen = frozen.Add(frozenDelta)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating entry deltas: %w", err)
	}

	if !available.Equal(account.Available) || !frozen.Equal(account.Frozen) {
		zap.L().Error("Account does not match its ledger",
			zap.String("user_id", userId),
			zap.String("account_available", account.Available.String()),
			zap.String("ledger_available", available.String()),
			zap.String("account_frozen", account.Frozen.String()),
			zap.String("ledger_frozen", frozen.String()))
		return fmt.Errorf("account %s out of balance: available %s vs ledger %s, frozen %s vs ledger %s",
			userId, account.Available.String(), available.String(), account.Frozen.String(), frozen.String())
	}

	return nil
}

func getAccount(ctx context.Context, q queryer, userId string) (*models.Account, error) {
	var account models.Account
	err := q.QueryRowContext(ctx, queryGetAccount, userId).Scan(
		&account.UserId, &account.Available, &account.Frozen, &account.Version, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func getAccountOrZero(ctx context.Context, q queryer, userId string) (*models.Account, error) {
	account, err := getAccount(ctx, q, userId)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Account{UserId: userId, Available: decimal.Zero, Frozen: decimal.Zero}, nil
	}
	return account, err
}

func createAccount(ctx context.Context, q queryer, userId string) (*models.Account, error) {
	now := time.Now().UTC()
	if _, err := q.ExecContext(ctx, queryInsertAccount, userId, now); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &models.Account{
		UserId:    userId,
		Available: decimal.Zero,
		Frozen:    decimal.Zero,
		Version:   1,
		UpdatedAt: now,
	}, nil
}
