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
	"errors"
	"flag"
	"fmt"
	"strings"

	"incentive-ledger-go/internal/common"
	"incentive-ledger-go/internal/config"
	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	action  string
	user    string
	id      string
	amount  decimal.Decimal
	bankRef string
	remark  string
	limit   int
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	actionFlag := flag.String("action", "list", "One of: request, list, approve, reject, cancel")
	userFlag := flag.String("user", "", "User email, id or invite code (request, cancel)")
	idFlag := flag.String("id", "", "Withdraw id (approve, reject, cancel)")
	amountFlag := flag.String("amount", "", "Amount to withdraw (request)")
	bankFlag := flag.String("bank", "", "Bank reference for the payout (request)")
	remarkFlag := flag.String("remark", "", "Admin remark (approve, reject)")
	limitFlag := flag.Int("limit", 50, "Maximum pending withdraws to list")
	flag.Parse()

	req := &withdrawalRequest{
		action:  strings.ToLower(strings.TrimSpace(*actionFlag)),
		user:    *userFlag,
		id:      *idFlag,
		bankRef: *bankFlag,
		remark:  *remarkFlag,
		limit:   *limitFlag,
	}

	switch req.action {
	case "list":
	case "request":
		if req.user == "" || *amountFlag == "" || req.bankRef == "" {
			return nil, fmt.Errorf("request requires --user, --amount and --bank")
		}
		amount, err := decimal.NewFromString(*amountFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid amount format: %w", err)
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("amount must be greater than zero")
		}
		req.amount = amount
		if req.id == "" {
			req.id = uuid.New().String()
		}
	case "approve", "reject":
		if req.id == "" {
			return nil, fmt.Errorf("%s requires --id", req.action)
		}
	case "cancel":
		if req.id == "" || req.user == "" {
			return nil, fmt.Errorf("cancel requires --id and --user")
		}
	default:
		return nil, fmt.Errorf("unknown action %q", req.action)
	}

	return req, nil
}

func resolveUser(ctx context.Context, services *common.Services, selector string) (*models.User, error) {
	users, err := common.SelectUsers(ctx, services.DbService, selector)
	if err != nil {
		return nil, err
	}
	return &users[0], nil
}

func printWithdraw(w *models.WithdrawOrder) {
	fmt.Printf("ID:            %s\n", w.Id)
	fmt.Printf("User:          %s\n", w.UserId)
	fmt.Printf("Amount:        %s\n", common.FormatAmount(w.Amount))
	fmt.Printf("Fee:           %s\n", common.FormatAmount(w.Fee))
	fmt.Printf("Payout:        %s\n", common.FormatAmount(w.ActualAmount))
	fmt.Printf("Bank Ref:      %s\n", w.BankRef)
	fmt.Printf("Status:        %s\n", w.Status)
	if w.Remark != "" {
		fmt.Printf("Remark:        %s\n", w.Remark)
	}
	fmt.Printf("Created:       %s\n", w.CreatedAt.Format("2006-01-02 15:04:05"))
	if w.ProcessedAt != nil {
		fmt.Printf("Processed:     %s\n", w.ProcessedAt.Format("2006-01-02 15:04:05"))
	}
}

func listPending(ctx context.Context, services *common.Services, limit int) error {
	withdraws, err := services.Ledger.ListWithdraws(ctx, models.WithdrawPending, limit)
	if err != nil {
		return err
	}

	common.PrintHeader("PENDING WITHDRAWS", common.WideWidth)
	fmt.Printf("%-36s  %-36s  %12s  %8s  %12s  %s\n", "ID", "USER", "AMOUNT", "FEE", "PAYOUT", "CREATED")
	common.PrintSeparator("-", common.WideWidth)
	for _, w := range withdraws {
		fmt.Printf("%-36s  %-36s  %12s  %8s  %12s  %s\n",
			w.Id, w.UserId,
			common.FormatAmount(w.Amount),
			common.FormatAmount(w.Fee),
			common.FormatAmount(w.ActualAmount),
			w.CreatedAt.Format("2006-01-02 15:04"))
	}
	common.PrintFooter(fmt.Sprintf("%d pending withdraws", len(withdraws)), common.WideWidth)
	return nil
}

func execute(ctx context.Context, services *common.Services, req *withdrawalRequest) (*models.WithdrawOrder, error) {
	switch req.action {
	case "request":
		user, err := resolveUser(ctx, services, req.user)
		if err != nil {
			return nil, err
		}
		balance, err := services.Ledger.GetBalance(ctx, user.Id)
		if err != nil {
			return nil, err
		}
		zap.L().Info("Submitting withdraw",
			zap.String("user_id", user.Id),
			zap.String("amount", req.amount.String()),
			zap.String("available", balance.Available.String()))
		return services.Ledger.CreateWithdraw(ctx, user.Id, req.id, req.amount, req.bankRef)
	case "approve":
		return services.Ledger.ApproveWithdraw(ctx, req.id, req.remark)
	case "reject":
		return services.Ledger.RejectWithdraw(ctx, req.id, req.remark)
	case "cancel":
		user, err := resolveUser(ctx, services, req.user)
		if err != nil {
			return nil, err
		}
		return services.Ledger.CancelWithdraw(ctx, user.Id, req.id)
	}
	return nil, fmt.Errorf("unknown action %q", req.action)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if req.action == "list" {
		if err := listPending(ctx, services, req.limit); err != nil {
			zap.L().Fatal("Failed to list withdraws", zap.Error(err))
		}
		return
	}

	withdraw, err := execute(ctx, services, req)
	if errors.Is(err, store.ErrAlreadyProcessed) && withdraw != nil {
		zap.L().Warn("Withdraw already processed, nothing changed",
			zap.String("withdraw_id", withdraw.Id),
			zap.String("status", string(withdraw.Status)))
	} else if err != nil {
		zap.L().Fatal("Withdraw action failed",
			zap.String("action", req.action),
			zap.String("withdraw_id", req.id),
			zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("WITHDRAW "+strings.ToUpper(req.action), common.DefaultWidth)
	printWithdraw(withdraw)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Withdraw action completed",
		zap.String("action", req.action),
		zap.String("withdraw_id", withdraw.Id),
		zap.String("status", string(withdraw.Status)))
}
