/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"go.uber.org/zap"
)

// GetBalance returns the current balance for a user
func (s *LedgerService) GetBalance(ctx context.Context, userId string) (*models.Balance, error) {
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get user balance", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	return &models.Balance{
		UserId:    userId,
		Available: account.Available,
		Frozen:    account.Frozen,
		Total:     account.Total(),
	}, nil
}

// GetTransactionHistory returns one page of a user's ledger, newest first.
// Pages start at 1.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userId string, page, pageSize int, filter models.HistoryFilter) (*models.HistoryPage, error) {
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("unknown entry kind %q: %w", filter.Kind, store.ErrInvalidTarget)
	}

	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}

	entries, total, err := s.store.ListEntries(ctx, store.ListEntriesParams{
		UserId: userId,
		Filter: filter,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		zap.L().Error("Failed to get transaction history", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	return &models.HistoryPage{
		Entries:  entries,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// ReconcileAccount checks the stored balance against the sum of its ledger entries
func (s *LedgerService) ReconcileAccount(ctx context.Context, userId string) error {
	return s.store.ReconcileAccount(ctx, userId)
}
