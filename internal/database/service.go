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
	"fmt"
	"strings"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db        *sql.DB
	subledger *SubledgerService
	locks     *accountLocks
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", dataSourceName(cfg))
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db)
	if err := service.initSchema(cfg.CreateDummyUsers); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	// Initialize subledger schema
	if err := service.subledger.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize subledger schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func newService(db *sql.DB) *Service {
	return &Service{
		db:        db,
		subledger: NewSubledgerService(db),
		locks:     newAccountLocks(),
	}
}

// dataSourceName opens every transaction with BEGIN IMMEDIATE so a writer
// takes the database lock up front and waits on busy_timeout instead of
// failing on lock upgrade.
func dataSourceName(cfg models.DatabaseConfig) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	params := []string{
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
		"_cache_size=1000",
		"_foreign_keys=on",
		"_txlock=immediate",
		fmt.Sprintf("_busy_timeout=%d", busy.Milliseconds()),
	}
	return cfg.Path + "?" + strings.Join(params, "&")
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(createDummyUsers bool) error {
	schema := `
	-- Create users table
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		invite_code TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);

	-- Task orders
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		commission TEXT NOT NULL DEFAULT '0',
		bonus TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		cancelled_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status);

	-- Withdraw requests
	CREATE TABLE IF NOT EXISTS withdraws (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		actual_amount TEXT NOT NULL,
		bank_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		remark TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdraws_user_status ON withdraws(user_id, status, processed_at);
	CREATE INDEX IF NOT EXISTS idx_withdraws_status ON withdraws(status, created_at);

	-- Recharge requests
	CREATE TABLE IF NOT EXISTS recharges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		method_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		actual_amount TEXT NOT NULL,
		proof TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		remark TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_recharges_user ON recharges(user_id, created_at);

	-- Invite graph; an invitee has at most one inviter
	CREATE TABLE IF NOT EXISTS invite_edges (
		id TEXT PRIMARY KEY,
		inviter_id TEXT NOT NULL,
		invitee_id TEXT NOT NULL UNIQUE,
		invite_code TEXT NOT NULL,
		is_valid INTEGER NOT NULL DEFAULT 0,
		reward TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		validated_at TIMESTAMP,
		CHECK (inviter_id <> invitee_id)
	);

	CREATE INDEX IF NOT EXISTS idx_invite_edges_inviter ON invite_edges(inviter_id, is_valid);

	-- VIP state
	CREATE TABLE IF NOT EXISTS vip_status (
		user_id TEXT PRIMARY KEY,
		level INTEGER NOT NULL DEFAULT 0,
		expires_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Insert 3 dummy users for testing if configured to do so
	if createDummyUsers {
		users := []struct {
			name  string
			email string
		}{
			{"Alice Johnson", "alice.johnson@example.com"},
			{"Bob Smith", "bob.smith@example.com"},
			{"Carol Williams", "carol.williams@example.com"},
		}

		now := time.Now().UTC()
		for _, user := range users {
			id := uuid.New().String()
			_, err := s.db.Exec(queryInsertUser, id, user.name, user.email, NewInviteCode(), now, now)
			if err != nil {
				zap.L().Error("Failed to insert dummy user", zap.String("name", user.name), zap.Error(err))
			} else {
				zap.L().Info("Dummy user created", zap.String("id", id), zap.String("name", user.name))
			}
		}
	} else {
		zap.L().Info("Skipping dummy user creation (CREATE_DUMMY_USERS=false)")
	}

	return nil
}
