package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"
)

func (s *Service) GetOrder(ctx context.Context, orderId string) (*models.Order, error) {
	return getOrder(ctx, s.db, orderId)
}

func (t *sqlTx) GetOrder(ctx context.Context, orderId string) (*models.Order, error) {
	return getOrder(ctx, t.tx, orderId)
}

func (t *sqlTx) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := t.tx.ExecContext(ctx, queryInsertOrder,
		order.Id, order.UserId, order.Amount, order.Commission, order.Bonus, string(order.Status), order.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateOrder(ctx context.Context, order *models.Order) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateOrder,
		order.Commission, order.Bonus, string(order.Status),
		nullableTime(order.StartedAt), nullableTime(order.CompletedAt), nullableTime(order.CancelledAt),
		order.Id)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return expectOneRow(result, "order", order.Id)
}

func (t *sqlTx) CountOrdersSince(ctx context.Context, userId string, since time.Time) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, queryCountOrdersSince, userId, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

func (t *sqlTx) CountCompletedOrders(ctx context.Context, userId string) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, queryCountCompletedOrders, userId).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count completed orders: %w", err)
	}
	return n, nil
}

func getOrder(ctx context.Context, q queryer, orderId string) (*models.Order, error) {
	var order models.Order
	var status string
	err := q.QueryRowContext(ctx, queryGetOrder, orderId).Scan(
		&order.Id, &order.UserId, &order.Amount, &order.Commission, &order.Bonus, &status,
		&order.CreatedAt, &order.StartedAt, &order.CompletedAt, &order.CancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderId, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	order.Status = models.OrderStatus(status)
	return &order, nil
}

func expectOneRow(result sql.Result, what, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", what, id, store.ErrNotFound)
	}
	return nil
}
