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
	"database/sql"
)

// SubledgerService owns the money tables: current account state (hot data),
// the immutable entry log (cold data) and the relay outbox.
type SubledgerService struct {
	db *sql.DB
}

func NewSubledgerService(db *sql.DB) *SubledgerService {
	return &SubledgerService{
		db: db,
	}
}

func (s *SubledgerService) InitSchema() error {
	schema := `
	-- Accounts (Current State - Hot Data). Total is derived, never stored.
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		available TEXT NOT NULL DEFAULT '0',
		frozen TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Ledger Entries (Audit Trail - Cold Data). Append-only.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		available_delta TEXT NOT NULL,
		frozen_delta TEXT NOT NULL,
		available_after TEXT NOT NULL,
		frozen_after TEXT NOT NULL,
		related_id TEXT NOT NULL,
		source_user_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, related_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_created ON ledger_entries(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_related ON ledger_entries(related_id, kind);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_kind ON ledger_entries(kind);

	CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_update
	BEFORE UPDATE ON ledger_entries
	BEGIN
		SELECT RAISE(ABORT, 'ledger entries are immutable');
	END;

	CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_delete
	BEFORE DELETE ON ledger_entries
	BEGIN
		SELECT RAISE(ABORT, 'ledger entries are immutable');
	END;

	-- Relay outbox, written in the same transaction as its entry
	CREATE TABLE IF NOT EXISTS ledger_outbox (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL UNIQUE,
		payload BLOB NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		published_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_outbox_unpublished ON ledger_outbox(published_at, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
