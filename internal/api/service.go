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
	"errors"
	"fmt"
	"time"

	"incentive-ledger-go/internal/metrics"
	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"go.uber.org/zap"
)

// LedgerService runs the order, withdraw, recharge, invite and VIP workflows
// on top of a LedgerStore.
type LedgerService struct {
	store  store.LedgerStore
	rules  *models.Rules
	events *Dispatcher
	now    func() time.Time
}

type Option func(*LedgerService)

// WithClock overrides the wall clock; tests use it to move past expiry
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
	}
}

func NewLedgerService(st store.LedgerStore, rules *models.Rules, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:  st,
		rules:  rules,
		events: NewDispatcher(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.events.Subscribe("invite_validation", s.validateInviteOnCompletedOrder)
	s.events.Subscribe("commission_cascade", s.payInviterCommission)

	return s
}

// Rules returns the tier and fee tables in force
func (s *LedgerService) Rules() *models.Rules {
	return s.rules
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	_, err := s.store.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (s *LedgerService) clock() time.Time {
	return s.now().UTC()
}

// withAccounts runs fn as one atomic unit under the locks of userIds and
// counts the committed entries once the unit is durable.
func (s *LedgerService) withAccounts(ctx context.Context, userIds []string, fn func(u *unit) error) error {
	var committed *unit
	err := s.store.WithAccounts(ctx, userIds, func(tx store.Tx) error {
		u := &unit{Tx: tx, now: s.clock()}
		committed = u
		return fn(u)
	})
	if err != nil {
		return err
	}

	for _, entry := range committed.entries {
		metrics.LedgerEntriesTotal.WithLabelValues(string(entry.Kind)).Inc()
	}
	return nil
}

func (s *LedgerService) requireUser(ctx context.Context, userId string) error {
	if userId == "" {
		return fmt.Errorf("user_id is required: %w", store.ErrInvalidTarget)
	}
	if _, err := s.store.GetUserById(ctx, userId); err != nil {
		return err
	}
	return nil
}

// finish records the outcome of one workflow transition
func finish(workflow, transition string, err error, fields ...zap.Field) {
	metrics.RecordTransition(workflow, transition, err)

	msg := workflow + " " + transition
	switch {
	case err == nil:
		zap.L().Info(msg+" succeeded", fields...)
	case errors.Is(err, store.ErrAlreadyProcessed):
		zap.L().Info(msg+" already processed", fields...)
	case isRejection(err):
		zap.L().Warn(msg+" rejected", append(fields, zap.Error(err))...)
	default:
		zap.L().Error(msg+" failed", append(fields, zap.Error(err))...)
	}
}

// isRejection reports whether err is a business rule refusal rather than a fault
func isRejection(err error) bool {
	for _, target := range []error{
		store.ErrInsufficientFunds, store.ErrInvalidState, store.ErrNotFound,
		store.ErrInvalidTarget, store.ErrExpired, store.ErrLimitExceeded,
		store.ErrInvalidAmount, store.ErrForbidden, store.ErrInvalidInviteCode,
		store.ErrSelfInvite, store.ErrAlreadyInvited, store.ErrUserExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
