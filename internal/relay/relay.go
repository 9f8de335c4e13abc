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

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"incentive-ledger-go/internal/metrics"
	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink receives committed ledger entries. Publish must be idempotent on
// entry.Id: a message is redelivered until every sink has accepted it.
type Sink interface {
	Name() string
	Publish(ctx context.Context, entry models.LedgerEntry) error
}

// Config contains configuration for Relay
type Config struct {
	Store           store.LedgerStore
	Sinks           []Sink
	PollingInterval time.Duration
	BatchSize       int
	MaxAttempts     int
}

// Relay polls the ledger outbox and hands each message to every sink
type Relay struct {
	store           store.LedgerStore
	sinks           []Sink
	pollingInterval time.Duration
	batchSize       int
	maxAttempts     int

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(cfg Config) *Relay {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	return &Relay{
		store:           cfg.Store,
		sinks:           cfg.Sinks,
		pollingInterval: cfg.PollingInterval,
		batchSize:       cfg.BatchSize,
		maxAttempts:     cfg.MaxAttempts,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins relaying in the background
func (r *Relay) Start(ctx context.Context) error {
	if len(r.sinks) == 0 {
		return fmt.Errorf("no sinks configured")
	}

	names := make([]string, len(r.sinks))
	for i, sink := range r.sinks {
		names[i] = sink.Name()
	}
	zap.L().Info("Starting outbox relay",
		zap.Strings("sinks", names),
		zap.Duration("polling_interval", r.pollingInterval),
		zap.Int("batch_size", r.batchSize))

	go r.pollLoop(ctx)
	return nil
}

// Stop gracefully stops the relay after the batch in flight
func (r *Relay) Stop() {
	zap.L().Info("Stopping outbox relay")
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Outbox relay stopped")
}

func (r *Relay) pollLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	r.drain(ctx)

	for {
		select {
		case <-ticker.C:
			r.drain(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain relays full batches until the outbox is empty or a batch fails
func (r *Relay) drain(ctx context.Context) {
	for {
		published, err := r.RelayOnce(ctx)
		if err != nil {
			zap.L().Error("Outbox relay batch failed", zap.Error(err))
			return
		}
		if published < r.batchSize {
			return
		}
		select {
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

// RelayOnce delivers one batch of outbox messages in commit order and
// returns how many were marked published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	messages, err := r.store.FetchUnpublished(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	var published, failed []string
	for _, msg := range messages {
		if err := r.deliver(ctx, msg); err != nil {
			zap.L().Warn("Outbox message not delivered",
				zap.String("message_id", msg.Id),
				zap.String("entry_id", msg.EntryId),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			if msg.Attempts+1 >= r.maxAttempts {
				zap.L().Error("Outbox message gave up after max attempts",
					zap.String("message_id", msg.Id),
					zap.String("entry_id", msg.EntryId))
			}
			failed = append(failed, msg.Id)
			continue
		}
		published = append(published, msg.Id)
	}

	if err := r.store.MarkPublished(ctx, published, time.Now()); err != nil {
		return 0, fmt.Errorf("failed to mark messages published: %w", err)
	}
	if err := r.store.MarkAttemptFailed(ctx, failed); err != nil {
		return len(published), fmt.Errorf("failed to record failed attempts: %w", err)
	}

	zap.L().Debug("Outbox batch relayed",
		zap.Int("published", len(published)),
		zap.Int("failed", len(failed)))
	return len(published), nil
}

// deliver fans one message out to every sink and succeeds only if all do
func (r *Relay) deliver(ctx context.Context, msg models.OutboxMessage) error {
	var entry models.LedgerEntry
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		return fmt.Errorf("invalid outbox payload: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			err := sink.Publish(ctx, entry)
			metrics.RelayMessagesTotal.WithLabelValues(sink.Name(), metrics.Result(err)).Inc()
			if err != nil {
				return fmt.Errorf("sink %s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
