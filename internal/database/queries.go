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

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, invite_code, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email, invite_code, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, invite_code, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, invite_code, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	queryGetUserByInviteCode = `
		SELECT id, name, email, invite_code, created_at, updated_at
		FROM users
		WHERE invite_code = ? AND active = 1`

	// Account queries
	queryGetAccount = `
		SELECT user_id, available, frozen, version, updated_at
		FROM accounts
		WHERE user_id = ?`

	queryInsertAccount = `
		INSERT INTO accounts (user_id, available, frozen, version, updated_at)
		VALUES (?, '0', '0', 1, ?)`

	queryUpdateAccount = `
		UPDATE accounts
		SET available = ?, frozen = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`

	queryGetEntryDeltas = `
		SELECT available_delta, frozen_delta
		FROM ledger_entries
		WHERE user_id = ?`

	// Ledger entry queries
	queryCheckRelatedEntry = `
		SELECT id FROM ledger_entries WHERE user_id = ? AND related_id = ? AND kind = ? LIMIT 1`

	queryInsertEntry = `
		INSERT INTO ledger_entries (
			id, user_id, kind, amount, available_delta, frozen_delta, available_after, frozen_after,
			related_id, source_user_id, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryEntryColumns = `
		SELECT id, user_id, kind, amount, available_delta, frozen_delta, available_after, frozen_after,
		       related_id, source_user_id, description, created_at
		FROM ledger_entries`

	// Order queries
	queryGetOrder = `
		SELECT id, user_id, amount, commission, bonus, status, created_at, started_at, completed_at, cancelled_at
		FROM orders
		WHERE id = ?`

	queryInsertOrder = `
		INSERT INTO orders (id, user_id, amount, commission, bonus, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryUpdateOrder = `
		UPDATE orders
		SET commission = ?, bonus = ?, status = ?, started_at = ?, completed_at = ?, cancelled_at = ?
		WHERE id = ?`

	queryCountOrdersSince = `
		SELECT COUNT(*) FROM orders WHERE user_id = ? AND created_at >= ?`

	queryCountCompletedOrders = `
		SELECT COUNT(*) FROM orders WHERE user_id = ? AND status = 'completed'`

	// Withdraw queries
	queryWithdrawColumns = `
		SELECT id, user_id, amount, fee, actual_amount, bank_ref, status, remark, created_at, processed_at
		FROM withdraws`

	queryInsertWithdraw = `
		INSERT INTO withdraws (id, user_id, amount, fee, actual_amount, bank_ref, status, remark, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateWithdraw = `
		UPDATE withdraws
		SET status = ?, remark = ?, processed_at = ?
		WHERE id = ?`

	queryApprovedWithdrawAmountsSince = `
		SELECT amount FROM withdraws
		WHERE user_id = ? AND status = 'approved' AND processed_at >= ?`

	// Recharge queries
	queryGetRecharge = `
		SELECT id, user_id, method_id, amount, fee, actual_amount, proof, status, remark, created_at, expires_at, processed_at
		FROM recharges
		WHERE id = ?`

	queryInsertRecharge = `
		INSERT INTO recharges (id, user_id, method_id, amount, fee, actual_amount, proof, status, remark, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateRecharge = `
		UPDATE recharges
		SET proof = ?, status = ?, remark = ?, processed_at = ?
		WHERE id = ?`

	// Invite queries
	queryInviteEdgeColumns = `
		SELECT id, inviter_id, invitee_id, invite_code, is_valid, reward, created_at, validated_at
		FROM invite_edges`

	queryInsertInviteEdge = `
		INSERT INTO invite_edges (id, inviter_id, invitee_id, invite_code, is_valid, reward, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`

	queryMarkInviteEdgeValid = `
		UPDATE invite_edges SET is_valid = 1, validated_at = ? WHERE id = ? AND is_valid = 0`

	queryCountValidInvites = `
		SELECT COUNT(*) FROM invite_edges WHERE inviter_id = ? AND is_valid = 1`

	// VIP queries
	queryGetVipStatus = `
		SELECT user_id, level, expires_at, updated_at
		FROM vip_status
		WHERE user_id = ?`

	queryUpsertVipStatus = `
		INSERT INTO vip_status (user_id, level, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET level = excluded.level, expires_at = excluded.expires_at, updated_at = excluded.updated_at`

	// Outbox queries
	queryInsertOutbox = `
		INSERT INTO ledger_outbox (id, entry_id, payload, attempts, created_at)
		VALUES (?, ?, ?, 0, ?)`

	queryFetchUnpublished = `
		SELECT id, entry_id, payload, attempts, created_at
		FROM ledger_outbox
		WHERE published_at IS NULL AND attempts < ?
		ORDER BY created_at, rowid
		LIMIT ?`

	queryMarkPublished = `
		UPDATE ledger_outbox SET published_at = ? WHERE id = ?`

	queryMarkAttemptFailed = `
		UPDATE ledger_outbox SET attempts = attempts + 1 WHERE id = ?`
)
