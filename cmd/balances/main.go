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
	"fmt"

	"incentive-ledger-go/internal/common"
	"incentive-ledger-go/internal/config"
	"incentive-ledger-go/internal/database"
	"incentive-ledger-go/internal/formance"
	"incentive-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	usersWithBalances int
	inconsistent      int
	mirrorMismatches  int
	available         decimal.Decimal
	frozen            decimal.Decimal
}

type reportOptions struct {
	reconcile bool
	mirror    *formance.Service
}

func printAccount(account *models.Account) {
	fmt.Printf("%s %-10s: %20s\n", common.BoxPrefix(false), "available", common.FormatAmount(account.Available))
	fmt.Printf("%s %-10s: %20s\n", common.BoxPrefix(false), "frozen", common.FormatAmount(account.Frozen))
	fmt.Printf("%s %-10s: %20s (v%d, updated: %s)\n",
		common.BoxPrefix(true),
		"total",
		common.FormatAmount(account.Total()),
		account.Version,
		account.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func processUser(ctx context.Context, user models.User, dbService *database.Service, opts reportOptions, stats *balanceStats) error {
	account, err := dbService.GetAccount(ctx, user.Id)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	fmt.Printf("\nUser: %s (%s) [%s]\n", user.Name, user.Email, user.Id)
	printAccount(account)

	if !account.Total().IsZero() {
		stats.usersWithBalances++
	}
	stats.available = stats.available.Add(account.Available)
	stats.frozen = stats.frozen.Add(account.Frozen)

	if opts.reconcile {
		if err := dbService.ReconcileAccount(ctx, user.Id); err != nil {
			stats.inconsistent++
			fmt.Printf("   ✗ ledger replay: %v\n", err)
			zap.L().Error("Account does not match its ledger",
				zap.String("user_id", user.Id),
				zap.Error(err))
		} else {
			fmt.Println("   ✓ ledger replay matches")
		}
	}

	if opts.mirror != nil {
		available, frozen, err := opts.mirror.GetUserBalance(ctx, user.Id)
		if err != nil {
			return fmt.Errorf("failed to read formance balance: %w", err)
		}
		if available.Equal(account.Available) && frozen.Equal(account.Frozen) {
			fmt.Println("   ✓ formance mirror matches")
		} else {
			stats.mirrorMismatches++
			fmt.Printf("   ✗ formance mirror: available %s, frozen %s\n",
				common.FormatAmount(available), common.FormatAmount(frozen))
		}
	}

	return nil
}

func processUsersAndGenerateReport(ctx context.Context, users []models.User, dbService *database.Service, opts reportOptions) balanceStats {
	stats := balanceStats{available: decimal.Zero, frozen: decimal.Zero}

	for _, user := range users {
		stats.totalUsers++

		if err := processUser(ctx, user, dbService, opts, &stats); err != nil {
			zap.L().Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by user email, id or invite code (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Replay each account's ledger and compare")
	mirrorFlag := flag.Bool("mirror", false, "Compare balances against the Formance mirror")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	opts := reportOptions{reconcile: *reconcileFlag}
	if *mirrorFlag {
		if !cfg.Formance.Enabled() {
			logger.Fatal("Formance is not configured (FORMANCE_STACK_URL)")
		}
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			logger.Fatal("Failed to initialize formance", zap.Error(err))
		}
		defer mirror.Close()
		opts.mirror = mirror
	}

	users, err := common.SelectUsers(ctx, dbService, *userFlag)
	if err != nil {
		logger.Fatal("Failed to select users", zap.Error(err))
	}

	common.PrintHeader("USER BALANCE REPORT", common.DefaultWidth)

	stats := processUsersAndGenerateReport(ctx, users, dbService, opts)

	summary := fmt.Sprintf("SUMMARY: %d of %d users hold funds (available %s, frozen %s)",
		stats.usersWithBalances, stats.totalUsers,
		common.FormatAmount(stats.available), common.FormatAmount(stats.frozen))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("inconsistent_accounts", stats.inconsistent),
		zap.Int("mirror_mismatches", stats.mirrorMismatches))
}
