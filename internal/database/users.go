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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const inviteCodeAttempts = 5

// NewInviteCode returns a random 8 character upper-case invite code
func NewInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	zap.L().Debug("Querying active users")

	rows, err := s.db.QueryContext(ctx, queryGetActiveUsers)
	if err != nil {
		zap.L().Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			zap.L().Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}

		users = append(users, *user)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during user row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	zap.L().Debug("Querying user by ID", zap.String("user_id", userId))

	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserById, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, userId)
		}
		zap.L().Error("Failed to query user by ID", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by ID: %w", err)
	}

	zap.L().Debug("Retrieved user by ID", zap.String("user_id", userId), zap.String("name", user.Name))
	return user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	zap.L().Debug("Querying user by email", zap.String("email", email))

	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByEmail, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, email)
		}
		zap.L().Error("Failed to query user by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by email: %w", err)
	}

	zap.L().Debug("Retrieved user by email", zap.String("email", email), zap.String("name", user.Name))
	return user, nil
}

// ResolveInviteCode maps an invite code to the user who owns it
func (s *Service) ResolveInviteCode(ctx context.Context, code string) (*models.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, store.ErrInvalidInviteCode
	}

	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUserByInviteCode, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidInviteCode, code)
		}
		return nil, fmt.Errorf("unable to resolve invite code: %w", err)
	}
	return user, nil
}

func (s *Service) CreateUser(ctx context.Context, userId, name, email string) (*models.User, error) {
	zap.L().Info("Creating user", zap.String("id", userId), zap.String("name", name), zap.String("email", email))

	if _, err := s.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email %s", store.ErrUserExists, email)
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	// INSERT OR IGNORE also swallows an invite code collision, so retry with a fresh code
	now := time.Now().UTC()
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		result, err := s.db.ExecContext(ctx, queryInsertUser, userId, name, email, NewInviteCode(), now, now)
		if err != nil {
			zap.L().Error("Failed to insert user", zap.String("email", email), zap.Error(err))
			return nil, fmt.Errorf("unable to insert user: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			zap.L().Error("Failed to get rows affected", zap.Error(err))
			return nil, fmt.Errorf("unable to get rows affected: %w", err)
		}

		if rowsAffected == 1 {
			zap.L().Info("User created successfully", zap.String("id", userId), zap.String("name", name), zap.String("email", email))
			return s.GetUserByEmail(ctx, email)
		}

		if _, err := s.GetUserById(ctx, userId); err == nil {
			return nil, fmt.Errorf("%w: id %s", store.ErrUserExists, userId)
		}
	}

	return nil, fmt.Errorf("unable to allocate a unique invite code for %s", email)
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.Id, &user.Name, &user.Email, &user.InviteCode, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}
