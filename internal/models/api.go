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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the read view of an account
type Balance struct {
	UserId    string          `json:"user_id"`
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
	Total     decimal.Decimal `json:"total"`
}

// HistoryFilter narrows a transaction history query
type HistoryFilter struct {
	Kind  EntryKind
	Since time.Time
	Until time.Time
}

// HistoryPage is one page of a user's ledger, newest first
type HistoryPage struct {
	Entries  []LedgerEntry `json:"entries"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int           `json:"total"`
}

// InviteStats summarizes a user's invite graph position and earnings
type InviteStats struct {
	UserId           string          `json:"user_id"`
	InviteCode       string          `json:"invite_code"`
	InviterId        string          `json:"inviter_id,omitempty"`
	TotalInvites     int             `json:"total_invites"`
	ValidInvites     int             `json:"valid_invites"`
	PendingInvites   int             `json:"pending_invites"`
	CurrentTier      InviteTier      `json:"current_tier"`
	NextTier         *InviteTier     `json:"next_tier,omitempty"`
	InvitesToNext    int             `json:"invites_to_next"`
	RewardEarned     decimal.Decimal `json:"reward_earned"`
	CommissionEarned decimal.Decimal `json:"commission_earned"`
}

// VipView is the effective VIP profile of a user
type VipView struct {
	UserId    string     `json:"user_id"`
	Level     int        `json:"level"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Tier      VipTier    `json:"tier"`
}

// OrderCompletedEvent is emitted after an order's completion has committed
type OrderCompletedEvent struct {
	OrderId  string
	UserId   string
	Earnings decimal.Decimal
}
