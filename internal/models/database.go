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

// User represents a platform user known to the ledger
type User struct {
	Id         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	InviteCode string    `db:"invite_code" json:"invite_code"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Account is the current balance state of a user (hot data).
// Total is always derived, never stored.
type Account struct {
	UserId    string          `db:"user_id" json:"user_id"`
	Available decimal.Decimal `db:"available" json:"available"`
	Frozen    decimal.Decimal `db:"frozen" json:"frozen"`
	Version   int64           `db:"version" json:"version"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

func (a Account) Total() decimal.Decimal {
	return a.Available.Add(a.Frozen)
}

// MoneyPrecision is the number of decimal places an amount may carry. It
// matches the external ledger asset (USD/2).
const MoneyPrecision int32 = 2

// ValidMoneyScale reports whether amount has no digits below MoneyPrecision
func ValidMoneyScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(MoneyPrecision))
}

type EntryKind string

const (
	EntryRecharge         EntryKind = "recharge"
	EntryWithdrawFreeze   EntryKind = "withdraw_freeze"
	EntryWithdraw         EntryKind = "withdraw"
	EntryWithdrawUnfreeze EntryKind = "withdraw_unfreeze"
	EntryOrderFreeze      EntryKind = "order_freeze"
	EntryOrderRelease     EntryKind = "order_release"
	EntryCommission       EntryKind = "commission"
	EntryInviteReward     EntryKind = "invite_reward"
	EntryLevelUpgrade     EntryKind = "level_upgrade"
	EntryVipUpgrade       EntryKind = "vip_upgrade"
)

var EntryKinds = []EntryKind{
	EntryRecharge, EntryWithdrawFreeze, EntryWithdraw, EntryWithdrawUnfreeze,
	EntryOrderFreeze, EntryOrderRelease, EntryCommission, EntryInviteReward,
	EntryLevelUpgrade, EntryVipUpgrade,
}

func (k EntryKind) Valid() bool {
	for _, kind := range EntryKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// LedgerEntry is the immutable audit record of one balance-affecting event (cold data).
// Amount is the signed change of the total balance; for freeze/unfreeze kinds,
// where the total does not move, it is the signed change of the available part.
type LedgerEntry struct {
	Id             string          `db:"id" json:"id"`
	UserId         string          `db:"user_id" json:"user_id"`
	Kind           EntryKind       `db:"kind" json:"kind"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	AvailableDelta decimal.Decimal `db:"available_delta" json:"available_delta"`
	FrozenDelta    decimal.Decimal `db:"frozen_delta" json:"frozen_delta"`
	AvailableAfter decimal.Decimal `db:"available_after" json:"available_after"`
	FrozenAfter    decimal.Decimal `db:"frozen_after" json:"frozen_after"`
	RelatedId      string          `db:"related_id" json:"related_id"`
	SourceUserId   string          `db:"source_user_id" json:"source_user_id"`
	Description    string          `db:"description" json:"description"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Order is a task order; Amount stays frozen while pending or processing
type Order struct {
	Id          string          `db:"id" json:"id"`
	UserId      string          `db:"user_id" json:"user_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Commission  decimal.Decimal `db:"commission" json:"commission"`
	Bonus       decimal.Decimal `db:"bonus" json:"bonus"`
	Status      OrderStatus     `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	StartedAt   *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// Earnings is what the owner is credited on completion
func (o Order) Earnings() decimal.Decimal {
	return o.Commission.Add(o.Bonus)
}

type WithdrawStatus string

const (
	WithdrawPending   WithdrawStatus = "pending"
	WithdrawApproved  WithdrawStatus = "approved"
	WithdrawRejected  WithdrawStatus = "rejected"
	WithdrawCancelled WithdrawStatus = "cancelled"
)

type WithdrawOrder struct {
	Id           string          `db:"id" json:"id"`
	UserId       string          `db:"user_id" json:"user_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Fee          decimal.Decimal `db:"fee" json:"fee"`
	ActualAmount decimal.Decimal `db:"actual_amount" json:"actual_amount"`
	BankRef      string          `db:"bank_ref" json:"bank_ref"`
	Status       WithdrawStatus  `db:"status" json:"status"`
	Remark       string          `db:"remark" json:"remark"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

type RechargeStatus string

const (
	RechargePending    RechargeStatus = "pending"
	RechargeProcessing RechargeStatus = "processing"
	RechargeCompleted  RechargeStatus = "completed"
	RechargeRejected   RechargeStatus = "rejected"
	RechargeExpired    RechargeStatus = "expired"
)

func (s RechargeStatus) Terminal() bool {
	return s == RechargeCompleted || s == RechargeRejected || s == RechargeExpired
}

type RechargeOrder struct {
	Id           string          `db:"id" json:"id"`
	UserId       string          `db:"user_id" json:"user_id"`
	MethodId     string          `db:"method_id" json:"method_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Fee          decimal.Decimal `db:"fee" json:"fee"`
	ActualAmount decimal.Decimal `db:"actual_amount" json:"actual_amount"`
	Proof        string          `db:"proof" json:"proof"`
	Status       RechargeStatus  `db:"status" json:"status"`
	Remark       string          `db:"remark" json:"remark"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt    time.Time       `db:"expires_at" json:"expires_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// InviteEdge links an inviter to an invitee. An invitee has at most one inviter.
type InviteEdge struct {
	Id          string          `db:"id" json:"id"`
	InviterId   string          `db:"inviter_id" json:"inviter_id"`
	InviteeId   string          `db:"invitee_id" json:"invitee_id"`
	InviteCode  string          `db:"invite_code" json:"invite_code"`
	IsValid     bool            `db:"is_valid" json:"is_valid"`
	Reward      decimal.Decimal `db:"reward" json:"reward"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ValidatedAt *time.Time      `db:"validated_at" json:"validated_at,omitempty"`
}

// VipStatus is the stored VIP state of a user; level 0 means no VIP
type VipStatus struct {
	UserId    string     `db:"user_id" json:"user_id"`
	Level     int        `db:"level" json:"level"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveLevel returns the level in force at now; an expired VIP counts as level 0.
func (v VipStatus) EffectiveLevel(now time.Time) int {
	if v.Level == 0 || v.ExpiresAt == nil || !now.Before(*v.ExpiresAt) {
		return 0
	}
	return v.Level
}

// OutboxMessage is a committed ledger entry waiting to be relayed to sinks
type OutboxMessage struct {
	Id          string     `db:"id" json:"id"`
	EntryId     string     `db:"entry_id" json:"entry_id"`
	Payload     []byte     `db:"payload" json:"payload"`
	Attempts    int        `db:"attempts" json:"attempts"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
}
