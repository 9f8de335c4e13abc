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
	"incentive-ledger-go/internal/models"

	"go.uber.org/zap"
)

func shortId(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func printPage(page *models.HistoryPage) {
	fmt.Printf("%-19s  %-18s  %12s  %12s  %12s  %12s  %s\n",
		"TIME", "KIND", "AMOUNT", "AVAILABLE", "FROZEN", "AFTER", "RELATED")
	common.PrintSeparator("-", common.WideWidth)
	for _, e := range page.Entries {
		fmt.Printf("%-19s  %-18s  %12s  %12s  %12s  %12s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Kind,
			common.FormatDelta(e.Amount),
			common.FormatDelta(e.AvailableDelta),
			common.FormatDelta(e.FrozenDelta),
			common.FormatAmount(e.AvailableAfter.Add(e.FrozenAfter)),
			shortId(e.RelatedId))
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User email, id or invite code (required)")
	kindFlag := flag.String("kind", "", "Only show entries of this kind (optional)")
	pageFlag := flag.Int("page", 1, "Page number, newest entries first")
	sizeFlag := flag.Int("size", 50, "Entries per page")
	flag.Parse()

	if *userFlag == "" {
		logger.Fatal("The --user flag is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	users, err := common.SelectUsers(ctx, services.DbService, *userFlag)
	if err != nil {
		logger.Fatal("Failed to select user", zap.Error(err))
	}
	user := users[0]

	filter := models.HistoryFilter{Kind: models.EntryKind(*kindFlag)}
	page, err := services.Ledger.GetTransactionHistory(ctx, user.Id, *pageFlag, *sizeFlag, filter)
	if err != nil {
		logger.Fatal("Failed to load history", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("LEDGER: %s (%s)", user.Name, user.Email), common.WideWidth)
	printPage(page)
	common.PrintFooter(fmt.Sprintf("page %d, %d of %d entries", page.Page, len(page.Entries), page.Total), common.WideWidth)
}
