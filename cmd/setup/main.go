package main

import (
	"context"
	"flag"
	"fmt"

	"incentive-ledger-go/internal/common"
	"incentive-ledger-go/internal/config"
	"incentive-ledger-go/internal/formance"
	"incentive-ledger-go/internal/models"

	"go.uber.org/zap"
)

func formatFee(f models.Fee) string {
	if f.Type == models.FeePercent {
		return f.Value.Shift(2).String() + "%"
	}
	return common.FormatAmount(f.Value) + " fixed"
}

func printRules(rules *models.Rules) {
	common.PrintHeader("INVITE TIERS", common.DefaultWidth)
	fmt.Printf("Validate on first order: %t\n", rules.Invite.ValidateOnFirstOrder)
	for i, tier := range rules.Invite.Tiers {
		fmt.Printf("%s level %d: from %d valid invites, reward %s, commission %s%%\n",
			common.BoxPrefix(i == len(rules.Invite.Tiers)-1),
			tier.Level, tier.MinValidInvites,
			common.FormatAmount(tier.FlatReward),
			tier.CommissionPercent.Shift(2).String())
	}

	common.PrintHeader("VIP LEVELS", common.DefaultWidth)
	for i, tier := range rules.Vip {
		fmt.Printf("%s %d %-8s price %10s, %3d days, bonus %s%%, withdraw fee %s%%, %d tasks/day\n",
			common.BoxPrefix(i == len(rules.Vip)-1),
			tier.Level, tier.Name,
			common.FormatAmount(tier.Price), tier.DurationDays,
			tier.TaskBonusPercent.Shift(2).String(),
			tier.WithdrawFeePercent.Shift(2).String(),
			tier.DailyTaskLimit)
	}

	common.PrintHeader("WITHDRAW", common.DefaultWidth)
	fmt.Printf("Min %s, max %s, daily limit %s, fee %s\n",
		common.FormatAmount(rules.Withdraw.MinAmount),
		common.FormatAmount(rules.Withdraw.MaxAmount),
		common.FormatAmount(rules.Withdraw.DailyLimit),
		formatFee(rules.Withdraw.Fee))

	common.PrintHeader("RECHARGE METHODS", common.DefaultWidth)
	fmt.Printf("Orders expire after %s\n", rules.Recharge.Expiry)
	for i, m := range rules.Recharge.Methods {
		fmt.Printf("%s %-6s %-16s min %s, max %s, fee %s, enabled %t\n",
			common.BoxPrefix(i == len(rules.Recharge.Methods)-1),
			m.Id, m.Name,
			common.FormatAmount(m.MinAmount), common.FormatAmount(m.MaxAmount),
			formatFee(m.Fee), m.Enabled)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func printUsers(ctx context.Context, services *common.Services) {
	users, err := common.SelectUsers(ctx, services.DbService, "")
	if err != nil {
		zap.L().Error("Failed to list users", zap.Error(err))
		return
	}

	common.PrintHeader("USERS", common.DefaultWidth)
	for _, user := range users {
		fmt.Printf("%-36s  %-10s  %-20s  %s\n", user.Id, user.InviteCode, user.Name, user.Email)
	}
	common.PrintFooter(fmt.Sprintf("%d users", len(users)), common.DefaultWidth)
}

// runInit prepares the external ledger; the local schema is created when the database opens
func runInit(ctx context.Context, cfg *models.Config) {
	zap.L().Info("Initializing database and external ledger")

	if !cfg.Formance.Enabled() {
		zap.L().Info("Formance not configured, skipping ledger creation")
		return
	}

	mirror, err := formance.NewService(ctx, cfg.Formance)
	if err != nil {
		zap.L().Fatal("Failed to initialize formance ledger", zap.Error(err))
	}
	defer mirror.Close()

	zap.L().Info("Formance ledger ready", zap.String("ledger", cfg.Formance.LedgerName))
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	initFlag := flag.Bool("init", false, "Initialize the database and the Formance ledger")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// opening the database runs the schema migration
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *initFlag {
		runInit(ctx, cfg)
	}

	printRules(services.Rules)
	printUsers(ctx, services)

	zap.L().Info("Setup complete", zap.String("rules_file", cfg.RulesFile))
}
