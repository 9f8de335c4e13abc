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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incentive-ledger-go/internal/common"
	"incentive-ledger-go/internal/config"
	"incentive-ledger-go/internal/relay"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "Relay a single batch and exit")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting ledger outbox relay")

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	sinks, sinksCleanup, err := common.InitializeSinks(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize sinks", zap.Error(err))
	}
	defer sinksCleanup()

	r := relay.New(relay.Config{
		Store:           dbService,
		Sinks:           sinks,
		PollingInterval: cfg.Relay.PollingInterval,
		BatchSize:       cfg.Relay.BatchSize,
		MaxAttempts:     cfg.Relay.MaxAttempts,
	})

	if *once {
		published, err := r.RelayOnce(ctx)
		if err != nil {
			zap.L().Fatal("Relay batch failed", zap.Error(err))
		}
		zap.L().Info("Relay batch completed", zap.Int("published", published))
		return
	}

	if err := r.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start relay", zap.Error(err))
	}
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping relay...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Relay stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
