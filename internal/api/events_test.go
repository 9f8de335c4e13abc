package api

import (
	"context"
	"errors"
	"testing"

	"incentive-ledger-go/internal/models"
)

func TestDispatcher_RunsEveryConsumer(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.Subscribe("first", func(ctx context.Context, evt models.OrderCompletedEvent) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe("second", func(ctx context.Context, evt models.OrderCompletedEvent) error {
		calls = append(calls, "second")
		return nil
	})

	err := d.Publish(context.Background(), models.OrderCompletedEvent{OrderId: "order-1"})
	if err == nil {
		t.Fatal("Expected the first consumer's error")
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("Expected both consumers in order, got %v", calls)
	}
}
