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

// CreateWithdraw freezes amount and records the fee the user will pay
func (s *LedgerService) CreateWithdraw(ctx context.Context, userId, withdrawId string, amount decimal.Decimal, bankRef string) (*models.WithdrawOrder, error) {
	if withdrawId == "" {
		withdrawId = uuid.New().String()
	}

	withdraw, err := s.createWithdraw(ctx, userId, withdrawId, amount, strings.TrimSpace(bankRef))

	fields := []zap.Field{
		zap.String("user_id", userId),
		zap.String("withdraw_id", withdrawId),
		zap.String("amount", amount.String()),
	}
	if withdraw != nil {
		fields = append(fields, zap.String("fee", withdraw.Fee.String()), zap.String("actual_amount", withdraw.ActualAmount.String()))
	}
	finish("withdraw", "create", err, fields...)
	return withdraw, err
}

func (s *LedgerService) createWithdraw(ctx context.Context, userId, withdrawId string, amount decimal.Decimal, bankRef string) (*models.WithdrawOrder, error) {
	rules := s.rules.Withdraw
	if !amount.IsPositive() || !models.ValidMoneyScale(amount) {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidAmount, amount.String())
	}
	if rules.MinAmount.IsPositive() && amount.LessThan(rules.MinAmount) {
		return nil, fmt.Errorf("%w: %s is below the minimum of %s", store.ErrInvalidAmount, amount.String(), rules.MinAmount.String())
	}
	if rules.MaxAmount.IsPositive() && amount.GreaterThan(rules.MaxAmount) {
		return nil, fmt.Errorf("%w: %s is above the maximum of %s", store.ErrInvalidAmount, amount.String(), rules.MaxAmount.String())
	}
	if bankRef == "" {
		return nil, fmt.Errorf("bank reference is required")
	}
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}

	var withdraw *models.WithdrawOrder
	err := s.withAccounts(ctx, []string{userId}, func(u *unit) error {
		existing, err := u.GetWithdraw(ctx, withdrawId)
		if err == nil {
			if existing.UserId != userId {
				return fmt.Errorf("%w: withdraw %s", store.ErrForbidden, withdrawId)
			}
			withdraw = existing
			return fmt.Errorf("withdraw %s: %w", withdrawId, store.ErrAlreadyProcessed)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := s.checkDailyLimit(ctx, u, userId, amount); err != nil {
			return err
		}

		fee, err := s.withdrawFee(ctx, u, userId, amount)
		if err != nil {
			return err
		}

		withdraw = &models.WithdrawOrder{
			Id:           withdrawId,
			UserId:       userId,
			Amount:       amount,
			Fee:          fee,
			ActualAmount: amount.Sub(fee),
			BankRef:      bankRef,
			Status:       models.WithdrawPending,
			CreatedAt:    u.now,
		}
		if err := u.InsertWithdraw(ctx, withdraw); err != nil {
			return err
		}

		_, err = u.freeze(ctx, posting{
			userId:      userId,
			kind:        models.EntryWithdrawFreeze,
			amount:      amount,
			relatedId:   withdrawId,
			description: "withdraw requested",
		})
		return err
	})
	return withdraw, err
}

// withdrawFee applies the active VIP fee rate when it has one, otherwise the configured fee
func (s *LedgerService) withdrawFee(ctx context.Context, u *unit, userId string, amount decimal.Decimal) (decimal.Decimal, error) {
	status, err := u.GetVipStatus(ctx, userId)
	if err != nil {
		return decimal.Zero, err
	}
	if level := status.EffectiveLevel(u.now); level > 0 {
		if tier, ok := VipTierFor(s.rules.Vip, level); ok && tier.WithdrawFeePercent.IsPositive() {
			return models.Fee{Type: models.FeePercent, Value: tier.WithdrawFeePercent}.Compute(amount), nil
		}
	}
	return s.rules.Withdraw.Fee.Compute(amount), nil
}

// checkDailyLimit fails when amount on top of what was approved today would
// pass the daily limit. Pending requests do not count until approved.
func (s *LedgerService) checkDailyLimit(ctx context.Context, u *unit, userId string, amount decimal.Decimal) error {
	limit := s.rules.Withdraw.DailyLimit
	if !limit.IsPositive() {
		return nil
	}
	approvedToday, err := u.SumApprovedWithdrawsSince(ctx, userId, startOfDay(u.now))
	if err != nil {
		return err
	}
	if approvedToday.Add(amount).GreaterThan(limit) {
		return fmt.Errorf("%w: %s already approved today, daily limit %s",
			store.ErrLimitExceeded, approvedToday.String(), limit.String())
	}
	return nil
}

// ApproveWithdraw deducts the frozen amount; actualAmount leaves the platform
// and the fee stays behind. The daily limit is checked again here because
// several pending requests may each have fit on their own. A request that no
// longer fits stays pending.
func (s *LedgerService) ApproveWithdraw(ctx context.Context, withdrawId, remark string) (*models.WithdrawOrder, error) {
	var withdraw *models.WithdrawOrder
	err := s.transitionWithdraw(ctx, "", withdrawId, func(u *unit, w *models.WithdrawOrder) error {
		withdraw = w
		if w.Status == models.WithdrawApproved {
			return fmt.Errorf("withdraw %s: %w", withdrawId, store.ErrAlreadyProcessed)
		}
		if w.Status != models.WithdrawPending {
			return fmt.Errorf("%w: cannot approve withdraw in status %s", store.ErrInvalidState, w.Status)
		}
		if err := s.checkDailyLimit(ctx, u, w.UserId, w.Amount); err != nil {
			return err
		}

		if _, err := u.deductFrozen(ctx, posting{
			userId:      w.UserId,
			kind:        models.EntryWithdraw,
			amount:      w.Amount,
			relatedId:   w.Id,
			description: fmt.Sprintf("withdraw to %s, fee %s", w.BankRef, w.Fee.String()),
		}); err != nil {
			return err
		}

		return s.closeWithdraw(ctx, u, w, models.WithdrawApproved, remark)
	})

	finish("withdraw", "approve", err, zap.String("withdraw_id", withdrawId))
	return withdraw, err
}

// RejectWithdraw returns the frozen amount to available in full
func (s *LedgerService) RejectWithdraw(ctx context.Context, withdrawId, remark string) (*models.WithdrawOrder, error) {
	withdraw, err := s.releaseWithdraw(ctx, "", withdrawId, models.WithdrawRejected, remark)
	finish("withdraw", "reject", err, zap.String("withdraw_id", withdrawId))
	return withdraw, err
}

// CancelWithdraw is RejectWithdraw initiated by the requesting user
func (s *LedgerService) CancelWithdraw(ctx context.Context, userId, withdrawId string) (*models.WithdrawOrder, error) {
	var withdraw *models.WithdrawOrder
	var err error
	if userId == "" {
		err = fmt.Errorf("%w: cancel requires the requesting user", store.ErrForbidden)
	} else {
		withdraw, err = s.releaseWithdraw(ctx, userId, withdrawId, models.WithdrawCancelled, "cancelled by user")
	}
	finish("withdraw", "cancel", err, zap.String("user_id", userId), zap.String("withdraw_id", withdrawId))
	return withdraw, err
}

func (s *LedgerService) releaseWithdraw(ctx context.Context, userId, withdrawId string, status models.WithdrawStatus, remark string) (*models.WithdrawOrder, error) {
	var withdraw *models.WithdrawOrder
	err := s.transitionWithdraw(ctx, userId, withdrawId, func(u *unit, w *models.WithdrawOrder) error {
		withdraw = w
		if w.Status == status {
			return fmt.Errorf("withdraw %s: %w", withdrawId, store.ErrAlreadyProcessed)
		}
		if w.Status != models.WithdrawPending {
			return fmt.Errorf("%w: cannot move withdraw from %s to %s", store.ErrInvalidState, w.Status, status)
		}

		if _, err := u.unfreeze(ctx, posting{
			userId:      w.UserId,
			kind:        models.EntryWithdrawUnfreeze,
			amount:      w.Amount,
			relatedId:   w.Id,
			description: "withdraw " + string(status),
		}); err != nil {
			return err
		}

		return s.closeWithdraw(ctx, u, w, status, remark)
	})
	return withdraw, err
}

func (s *LedgerService) closeWithdraw(ctx context.Context, u *unit, w *models.WithdrawOrder, status models.WithdrawStatus, remark string) error {
	now := u.now
	w.Status = status
	w.Remark = remark
	w.ProcessedAt = &now
	return u.UpdateWithdraw(ctx, w)
}

func (s *LedgerService) transitionWithdraw(ctx context.Context, userId, withdrawId string, fn func(u *unit, w *models.WithdrawOrder) error) error {
	current, err := s.store.GetWithdraw(ctx, withdrawId)
	if err != nil {
		return err
	}
	if userId != "" && current.UserId != userId {
		return fmt.Errorf("%w: withdraw %s", store.ErrForbidden, withdrawId)
	}

	return s.withAccounts(ctx, []string{current.UserId}, func(u *unit) error {
		w, err := u.GetWithdraw(ctx, withdrawId)
		if err != nil {
			return err
		}
		return fn(u, w)
	})
}

func (s *LedgerService) GetWithdraw(ctx context.Context, withdrawId string) (*models.WithdrawOrder, error) {
	return s.store.GetWithdraw(ctx, withdrawId)
}

// ListWithdraws returns withdraws in status, oldest first, for operator review
func (s *LedgerService) ListWithdraws(ctx context.Context, status models.WithdrawStatus, limit int) ([]models.WithdrawOrder, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListWithdraws(ctx, status, limit)
}
