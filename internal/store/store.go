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

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"incentive-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared by the store and the workflows.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidState           = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyProcessed       = errors.New("already processed")
	ErrAlreadyValidated       = fmt.Errorf("invite already validated: %w", ErrAlreadyProcessed)
	ErrInvalidTarget          = errors.New("invalid target")
	ErrExpired                = errors.New("expired")
	ErrLimitExceeded          = errors.New("limit exceeded")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrForbidden              = errors.New("operation not permitted for this user")
	ErrDuplicateEntry         = errors.New("duplicate ledger entry")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrUserNotFound           = fmt.Errorf("user %w", ErrNotFound)
	ErrUserExists             = errors.New("user already exists")
	ErrInvalidInviteCode      = errors.New("invalid invite code")
	ErrSelfInvite             = errors.New("user cannot invite themselves")
	ErrAlreadyInvited         = errors.New("user already has an inviter")
)

// ListEntriesParams selects one page of a user's ledger history
type ListEntriesParams struct {
	UserId string
	Filter models.HistoryFilter
	Limit  int
	Offset int
}

// Tx is one atomic unit of work. Every balance change made through ApplyDelta
// must be paired with exactly one AppendEntry before the unit commits.
type Tx interface {
	GetAccount(ctx context.Context, userId string) (*models.Account, error)
	ApplyDelta(ctx context.Context, userId string, availableDelta, frozenDelta decimal.Decimal) (*models.Account, error)
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error
	ExistsForRelated(ctx context.Context, userId, relatedId string, kind models.EntryKind) (bool, error)

	GetOrder(ctx context.Context, orderId string) (*models.Order, error)
	InsertOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error
	CountOrdersSince(ctx context.Context, userId string, since time.Time) (int, error)
	CountCompletedOrders(ctx context.Context, userId string) (int, error)

	GetWithdraw(ctx context.Context, withdrawId string) (*models.WithdrawOrder, error)
	InsertWithdraw(ctx context.Context, withdraw *models.WithdrawOrder) error
	UpdateWithdraw(ctx context.Context, withdraw *models.WithdrawOrder) error
	SumApprovedWithdrawsSince(ctx context.Context, userId string, since time.Time) (decimal.Decimal, error)

	GetRecharge(ctx context.Context, rechargeId string) (*models.RechargeOrder, error)
	InsertRecharge(ctx context.Context, recharge *models.RechargeOrder) error
	UpdateRecharge(ctx context.Context, recharge *models.RechargeOrder) error

	GetInviteEdge(ctx context.Context, edgeId string) (*models.InviteEdge, error)
	GetInviteEdgeByInvitee(ctx context.Context, inviteeId string) (*models.InviteEdge, error)
	InsertInviteEdge(ctx context.Context, edge *models.InviteEdge) error
	MarkInviteEdgeValid(ctx context.Context, edgeId string, validatedAt time.Time) error
	CountValidInvites(ctx context.Context, inviterId string) (int, error)

	GetVipStatus(ctx context.Context, userId string) (*models.VipStatus, error)
	SaveVipStatus(ctx context.Context, status *models.VipStatus) error
}

// LedgerStore defines the contract every backend must satisfy.
type LedgerStore interface {
	// --- Users ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)
	ResolveInviteCode(ctx context.Context, code string) (*models.User, error)

	// --- Unit of work ---
	// WithAccounts serializes fn against every other unit touching any of userIds.
	WithAccounts(ctx context.Context, userIds []string, fn func(tx Tx) error) error

	// --- Reads ---
	GetAccount(ctx context.Context, userId string) (*models.Account, error)
	ListEntries(ctx context.Context, params ListEntriesParams) ([]models.LedgerEntry, int, error)
	SumEntries(ctx context.Context, userId string, kinds []models.EntryKind) (decimal.Decimal, error)
	GetOrder(ctx context.Context, orderId string) (*models.Order, error)
	GetWithdraw(ctx context.Context, withdrawId string) (*models.WithdrawOrder, error)
	ListWithdraws(ctx context.Context, status models.WithdrawStatus, limit int) ([]models.WithdrawOrder, error)
	GetRecharge(ctx context.Context, rechargeId string) (*models.RechargeOrder, error)
	GetInviteEdge(ctx context.Context, edgeId string) (*models.InviteEdge, error)
	GetInviteEdgeByInvitee(ctx context.Context, inviteeId string) (*models.InviteEdge, error)
	ListInviteEdges(ctx context.Context, inviterId string) ([]models.InviteEdge, error)
	GetVipStatus(ctx context.Context, userId string) (*models.VipStatus, error)
	ReconcileAccount(ctx context.Context, userId string) error

	// --- Outbox ---
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxMessage, error)
	MarkPublished(ctx context.Context, ids []string, publishedAt time.Time) error
	MarkAttemptFailed(ctx context.Context, ids []string) error

	// --- Lifecycle ---
	Close()
}
