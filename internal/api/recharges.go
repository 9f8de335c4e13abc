package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateRecharge opens a recharge request against a payment method. No
// funds move until an operator approves it.
func (s *LedgerService) CreateRecharge(ctx context.Context, userId, rechargeId string, amount decimal.Decimal, methodId string) (*models.RechargeOrder, error) {
	if rechargeId == "" {
		rechargeId = uuid.New().String()
	}

	recharge, err := s.createRecharge(ctx, userId, rechargeId, amount, methodId)
	finish("recharge", "create", err,
		zap.String("user_id", userId),
		zap.String("recharge_id", rechargeId),
		zap.String("method_id", methodId),
		zap.String("amount", amount.String()))
	return recharge, err
}

func (s *LedgerService) createRecharge(ctx context.Context, userId, rechargeId string, amount decimal.Decimal, methodId string) (*models.RechargeOrder, error) {
	method, ok := s.rules.Recharge.Method(methodId)
	if !ok || !method.Enabled {
		return nil, fmt.Errorf("%w: recharge method %q", store.ErrInvalidTarget, methodId)
	}
	if !amount.IsPositive() || !models.ValidMoneyScale(amount) ||
		(method.MinAmount.IsPositive() && amount.LessThan(method.MinAmount)) ||
		(method.MaxAmount.IsPositive() && amount.GreaterThan(method.MaxAmount)) {
		return nil, fmt.Errorf("%w: %s outside %s..%s for %s", store.ErrInvalidAmount,
			amount.String(), method.MinAmount.String(), method.MaxAmount.String(), method.Id)
	}
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}

	var recharge *models.RechargeOrder
	err := s.withAccounts(ctx, []string{userId}, func(u *unit) error {
		existing, err := u.GetRecharge(ctx, rechargeId)
		if err == nil {
			if existing.UserId != userId {
				return fmt.Errorf("%w: recharge %s", store.ErrForbidden, rechargeId)
			}
			recharge = existing
			return fmt.Errorf("recharge %s: %w", rechargeId, store.ErrAlreadyProcessed)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		fee := method.Fee.Compute(amount)
		recharge = &models.RechargeOrder{
			Id:           rechargeId,
			UserId:       userId,
			MethodId:     method.Id,
			Amount:       amount,
			Fee:          fee,
			ActualAmount: amount.Add(fee),
			Status:       models.RechargePending,
			CreatedAt:    u.now,
			ExpiresAt:    u.now.Add(s.rules.Recharge.Expiry),
		}
		return u.InsertRecharge(ctx, recharge)
	})
	return recharge, err
}

// ConfirmRecharge records the user's payment proof: pending to processing
func (s *LedgerService) ConfirmRecharge(ctx context.Context, userId, rechargeId, proof string) (*models.RechargeOrder, error) {
	recharge, err := s.transitionRecharge(ctx, userId, rechargeId, func(u *unit, r *models.RechargeOrder) error {
		if r.Status == models.RechargeProcessing {
			return fmt.Errorf("recharge %s: %w", rechargeId, store.ErrAlreadyProcessed)
		}
		if r.Status != models.RechargePending {
			return fmt.Errorf("%w: cannot confirm recharge in status %s", store.ErrInvalidState, r.Status)
		}

		r.Proof = strings.TrimSpace(proof)
		r.Status = models.RechargeProcessing
		return u.UpdateRecharge(ctx, r)
	})

	finish("recharge", "confirm", err, zap.String("user_id", userId), zap.String("recharge_id", rechargeId))
	return recharge, err
}

// ApproveRecharge credits amount, not actualAmount, to the user's available balance
func (s *LedgerService) ApproveRecharge(ctx context.Context, rechargeId, remark string) (*models.RechargeOrder, error) {
	recharge, err := s.transitionRecharge(ctx, "", rechargeId, func(u *unit, r *models.RechargeOrder) error {
		if r.Status == models.RechargeCompleted {
			return fmt.Errorf("recharge %s: %w", rechargeId, store.ErrAlreadyProcessed)
		}
		if r.Status != models.RechargeProcessing {
			return fmt.Errorf("%w: cannot approve recharge in status %s", store.ErrInvalidState, r.Status)
		}

		if _, err := u.credit(ctx, posting{
			userId:      r.UserId,
			kind:        models.EntryRecharge,
			amount:      r.Amount,
			relatedId:   r.Id,
			description: "recharge via " + r.MethodId,
		}); err != nil {
			return err
		}

		now := u.now
		r.Status = models.RechargeCompleted
		r.Remark = remark
		r.ProcessedAt = &now
		return u.UpdateRecharge(ctx, r)
	})

	finish("recharge", "approve", err, zap.String("recharge_id", rechargeId))
	return recharge, err
}

func (s *LedgerService) RejectRecharge(ctx context.Context, rechargeId, remark string) (*models.RechargeOrder, error) {
	recharge, err := s.transitionRecharge(ctx, "", rechargeId, func(u *unit, r *models.RechargeOrder) error {
		if r.Status == models.RechargeRejected {
			return fmt.Errorf("recharge %s: %w", rechargeId, store.ErrAlreadyProcessed)
		}
		if r.Status.Terminal() {
			return fmt.Errorf("%w: cannot reject recharge in status %s", store.ErrInvalidState, r.Status)
		}

		now := u.now
		r.Status = models.RechargeRejected
		r.Remark = remark
		r.ProcessedAt = &now
		return u.UpdateRecharge(ctx, r)
	})

	finish("recharge", "reject", err, zap.String("recharge_id", rechargeId))
	return recharge, err
}

// GetRecharge returns the recharge, expiring it first if its deadline passed
func (s *LedgerService) GetRecharge(ctx context.Context, rechargeId string) (*models.RechargeOrder, error) {
	recharge, err := s.store.GetRecharge(ctx, rechargeId)
	if err != nil {
		return nil, err
	}
	if recharge.Status.Terminal() || s.clock().Before(recharge.ExpiresAt) {
		return recharge, nil
	}

	recharge, err = s.transitionRecharge(ctx, "", rechargeId, func(u *unit, r *models.RechargeOrder) error {
		return nil
	})
	if errors.Is(err, store.ErrExpired) {
		return recharge, nil
	}
	return recharge, err
}

// transitionRecharge loads the recharge under its owner's lock. A
// non-terminal recharge past its deadline is committed as expired and the
// call fails with ErrExpired instead of running fn.
func (s *LedgerService) transitionRecharge(ctx context.Context, userId, rechargeId string, fn func(u *unit, r *models.RechargeOrder) error) (*models.RechargeOrder, error) {
	current, err := s.store.GetRecharge(ctx, rechargeId)
	if err != nil {
		return nil, err
	}
	if userId != "" && current.UserId != userId {
		return nil, fmt.Errorf("%w: recharge %s", store.ErrForbidden, rechargeId)
	}

	var recharge *models.RechargeOrder
	expired := false
	err = s.withAccounts(ctx, []string{current.UserId}, func(u *unit) error {
		r, err := u.GetRecharge(ctx, rechargeId)
		if err != nil {
			return err
		}
		recharge = r

		if !r.Status.Terminal() && !u.now.Before(r.ExpiresAt) {
			expired = true
			now := u.now
			r.Status = models.RechargeExpired
			r.ProcessedAt = &now
			return u.UpdateRecharge(ctx, r)
		}
		return fn(u, r)
	})
	if err != nil {
		return recharge, err
	}
	if expired {
		zap.L().Info("Recharge expired", zap.String("recharge_id", rechargeId), zap.String("user_id", recharge.UserId))
		return recharge, fmt.Errorf("recharge %s: %w", rechargeId, store.ErrExpired)
	}
	return recharge, nil
}
