package relay

import (
	"context"

	"incentive-ledger-go/internal/models"

	"go.uber.org/zap"
)

// LogSink writes every relayed entry to the global logger
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Publish(_ context.Context, entry models.LedgerEntry) error {
	zap.L().Info("Ledger entry",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("kind", string(entry.Kind)),
		zap.String("amount", entry.Amount.String()),
		zap.String("available_after", entry.AvailableAfter.String()),
		zap.String("frozen_after", entry.FrozenAfter.String()),
		zap.String("related_id", entry.RelatedId),
		zap.Time("created_at", entry.CreatedAt))
	return nil
}
