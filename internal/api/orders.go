package api

import (
	"context"
	"errors"
	"fmt"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateOrder freezes amount for a new task order. A retry with an existing
// orderId returns the stored order and ErrAlreadyProcessed.
func (s *LedgerService) CreateOrder(ctx context.Context, userId, orderId string, amount, commission decimal.Decimal) (*models.Order, error) {
	if orderId == "" {
		orderId = uuid.New().String()
	}
	fields := []zap.Field{
		zap.String("user_id", userId),
		zap.String("order_id", orderId),
		zap.String("amount", amount.String()),
		zap.String("commission", commission.String()),
	}

	order, err := s.createOrder(ctx, userId, orderId, amount, commission)
	finish("order", "create", err, fields...)
	return order, err
}

func (s *LedgerService) createOrder(ctx context.Context, userId, orderId string, amount, commission decimal.Decimal) (*models.Order, error) {
	if !amount.IsPositive() || commission.IsNegative() ||
		!models.ValidMoneyScale(amount) || !models.ValidMoneyScale(commission) {
		return nil, fmt.Errorf("%w: amount %s commission %s", store.ErrInvalidAmount, amount.String(), commission.String())
	}
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.withAccounts(ctx, []string{userId}, func(u *unit) error {
		existing, err := u.GetOrder(ctx, orderId)
		if err == nil {
			if existing.UserId != userId {
				return fmt.Errorf("%w: order %s", store.ErrForbidden, orderId)
			}
			order = existing
			return fmt.Errorf("order %s: %w", orderId, store.ErrAlreadyProcessed)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := s.checkDailyTaskLimit(ctx, u, userId); err != nil {
			return err
		}

		order = &models.Order{
			Id:         orderId,
			UserId:     userId,
			Amount:     amount,
			Commission: commission,
			Bonus:      decimal.Zero,
			Status:     models.OrderPending,
			CreatedAt:  u.now,
		}
		if err := u.InsertOrder(ctx, order); err != nil {
			return err
		}

		_, err = u.freeze(ctx, posting{
			userId:      userId,
			kind:        models.EntryOrderFreeze,
			amount:      amount,
			relatedId:   orderId,
			description: "order created",
		})
		return err
	})
	return order, err
}

// checkDailyTaskLimit enforces the VIP tier's orders-per-day cap; 0 means unlimited
func (s *LedgerService) checkDailyTaskLimit(ctx context.Context, u *unit, userId string) error {
	status, err := u.GetVipStatus(ctx, userId)
	if err != nil {
		return err
	}
	tier, _ := VipTierFor(s.rules.Vip, status.EffectiveLevel(u.now))
	if tier.DailyTaskLimit <= 0 {
		return nil
	}

	created, err := u.CountOrdersSince(ctx, userId, startOfDay(u.now))
	if err != nil {
		return err
	}
	if created >= tier.DailyTaskLimit {
		return fmt.Errorf("%w: %d orders today, vip level %d allows %d",
			store.ErrLimitExceeded, created, tier.Level, tier.DailyTaskLimit)
	}
	return nil
}

// StartOrder moves a pending order to processing; it has no ledger effect
func (s *LedgerService) StartOrder(ctx context.Context, userId, orderId string) (*models.Order, error) {
	var order *models.Order
	err := s.transitionOrder(ctx, userId, orderId, func(u *unit, o *models.Order) error {
		order = o
		if o.Status == models.OrderProcessing {
			return fmt.Errorf("order %s: %w", orderId, store.ErrAlreadyProcessed)
		}
		if o.Status != models.OrderPending {
			return fmt.Errorf("%w: cannot start order in status %s", store.ErrInvalidState, o.Status)
		}

		now := u.now
		o.Status = models.OrderProcessing
		o.StartedAt = &now
		return u.UpdateOrder(ctx, o)
	})

	finish("order", "start", err, zap.String("user_id", userId), zap.String("order_id", orderId))
	return order, err
}

// CompleteOrder releases the frozen amount, credits the commission plus any
// VIP task bonus and then publishes OrderCompletedEvent. Retrying a completed
// order republishes the event, whose consumers are idempotent, and returns
// ErrAlreadyProcessed.
func (s *LedgerService) CompleteOrder(ctx context.Context, userId, orderId string) (*models.Order, error) {
	var order *models.Order
	err := s.transitionOrder(ctx, userId, orderId, func(u *unit, o *models.Order) error {
		order = o
		if o.Status == models.OrderCompleted {
			return fmt.Errorf("order %s: %w", orderId, store.ErrAlreadyProcessed)
		}
		if o.Status != models.OrderProcessing {
			return fmt.Errorf("%w: cannot complete order in status %s", store.ErrInvalidState, o.Status)
		}

		status, err := u.GetVipStatus(ctx, o.UserId)
		if err != nil {
			return err
		}
		tier, _ := VipTierFor(s.rules.Vip, status.EffectiveLevel(u.now))
		o.Bonus = o.Commission.Mul(tier.TaskBonusPercent).Round(models.MoneyPrecision)

		if _, err := u.unfreeze(ctx, posting{
			userId:      o.UserId,
			kind:        models.EntryOrderRelease,
			amount:      o.Amount,
			relatedId:   o.Id,
			description: "order completed",
		}); err != nil {
			return err
		}

		if earnings := o.Earnings(); earnings.IsPositive() {
			description := "order commission"
			if o.Bonus.IsPositive() {
				description = fmt.Sprintf("order commission %s + vip bonus %s", o.Commission.String(), o.Bonus.String())
			}
			if _, err := u.credit(ctx, posting{
				userId:      o.UserId,
				kind:        models.EntryCommission,
				amount:      earnings,
				relatedId:   o.Id,
				description: description,
			}); err != nil {
				return err
			}
		}

		now := u.now
		o.Status = models.OrderCompleted
		o.CompletedAt = &now
		return u.UpdateOrder(ctx, o)
	})

	fields := []zap.Field{zap.String("user_id", userId), zap.String("order_id", orderId)}
	if order != nil {
		fields = append(fields, zap.String("earnings", order.Earnings().String()))
	}
	finish("order", "complete", err, fields...)

	retried := errors.Is(err, store.ErrAlreadyProcessed)
	if err != nil && !retried {
		return order, err
	}

	evt := models.OrderCompletedEvent{
		OrderId:  order.Id,
		UserId:   order.UserId,
		Earnings: order.Earnings(),
	}
	if pubErr := s.events.Publish(ctx, evt); pubErr != nil {
		return order, fmt.Errorf("order %s completed but follow-up failed: %w", order.Id, pubErr)
	}
	return order, err
}

// CancelOrder releases the frozen amount without any reward
func (s *LedgerService) CancelOrder(ctx context.Context, userId, orderId string) (*models.Order, error) {
	var order *models.Order
	err := s.transitionOrder(ctx, userId, orderId, func(u *unit, o *models.Order) error {
		order = o
		if o.Status == models.OrderCancelled {
			return fmt.Errorf("order %s: %w", orderId, store.ErrAlreadyProcessed)
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w: cannot cancel order in status %s", store.ErrInvalidState, o.Status)
		}

		if _, err := u.unfreeze(ctx, posting{
			userId:      o.UserId,
			kind:        models.EntryOrderRelease,
			amount:      o.Amount,
			relatedId:   o.Id,
			description: "order cancelled",
		}); err != nil {
			return err
		}

		now := u.now
		o.Status = models.OrderCancelled
		o.CancelledAt = &now
		return u.UpdateOrder(ctx, o)
	})

	finish("order", "cancel", err, zap.String("user_id", userId), zap.String("order_id", orderId))
	return order, err
}

func (s *LedgerService) GetOrder(ctx context.Context, orderId string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderId)
}

// transitionOrder loads the order under its owner's lock. An empty userId
// skips the ownership check (operator tooling).
func (s *LedgerService) transitionOrder(ctx context.Context, userId, orderId string, fn func(u *unit, o *models.Order) error) error {
	current, err := s.store.GetOrder(ctx, orderId)
	if err != nil {
		return err
	}
	if userId != "" && current.UserId != userId {
		return fmt.Errorf("%w: order %s", store.ErrForbidden, orderId)
	}

	return s.withAccounts(ctx, []string{current.UserId}, func(u *unit) error {
		o, err := u.GetOrder(ctx, orderId)
		if err != nil {
			return err
		}
		return fn(u, o)
	})
}
