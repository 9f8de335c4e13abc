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

package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"go.uber.org/zap"
)

// SelectUsers resolves the users a command-line tool should act on.
// An empty selector returns every user; otherwise the selector is tried as
// an email, then a user id, then an invite code.
func SelectUsers(ctx context.Context, st store.LedgerStore, selector string) ([]models.User, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		users, err := st.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		zap.L().Info("Retrieved users", zap.Int("count", len(users)))
		return users, nil
	}

	lookups := []func(context.Context, string) (*models.User, error){
		st.GetUserByEmail,
		st.GetUserById,
		st.ResolveInviteCode,
	}
	for _, lookup := range lookups {
		user, err := lookup(ctx, selector)
		if err == nil {
			return []models.User{*user}, nil
		}
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrInvalidInviteCode) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: no user matches %q", store.ErrUserNotFound, selector)
}
