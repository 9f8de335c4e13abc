package api

import (
	"context"
	"errors"
	"fmt"

	"incentive-ledger-go/internal/models"

	"go.uber.org/zap"
)

type OrderCompletedHandler func(ctx context.Context, evt models.OrderCompletedEvent) error

type subscriber struct {
	name    string
	handler OrderCompletedHandler
}

// Dispatcher delivers OrderCompletedEvent to its consumers synchronously, in
// subscription order. Every consumer runs even if an earlier one failed.
type Dispatcher struct {
	subscribers []subscriber
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Subscribe(name string, handler OrderCompletedHandler) {
	d.subscribers = append(d.subscribers, subscriber{name: name, handler: handler})
}

func (d *Dispatcher) Publish(ctx context.Context, evt models.OrderCompletedEvent) error {
	var errs []error
	for _, sub := range d.subscribers {
		if err := sub.handler(ctx, evt); err != nil {
			zap.L().Error("Order completed consumer failed",
				zap.String("consumer", sub.name),
				zap.String("order_id", evt.OrderId),
				zap.String("user_id", evt.UserId),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
		}
	}
	return errors.Join(errs...)
}
