package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"incentive-ledger-go/internal/api"
	"incentive-ledger-go/internal/broker"
	"incentive-ledger-go/internal/config"
	"incentive-ledger-go/internal/database"
	"incentive-ledger-go/internal/formance"
	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/relay"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Ledger    *api.LedgerService
	Rules     *models.Rules
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the database, loads the rules file and builds the ledger service
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Loading rules", zap.String("file", cfg.RulesFile))
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	zap.L().Info("Rules loaded",
		zap.Int("invite_tiers", len(rules.Invite.Tiers)),
		zap.Int("vip_tiers", len(rules.Vip)),
		zap.Int("recharge_methods", len(rules.Recharge.Methods)))

	return &Services{
		DbService: dbService,
		Ledger:    api.NewLedgerService(dbService, rules),
		Rules:     rules,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

// InitializeSinks builds the relay sinks enabled by configuration. The log
// sink is always present; Formance and AMQP are added when configured.
// The returned cleanup closes whatever was opened.
func InitializeSinks(ctx context.Context, cfg *models.Config) ([]relay.Sink, func(), error) {
	sinks := []relay.Sink{relay.LogSink{}}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Formance.Enabled() {
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize formance sink: %w", err)
		}
		sinks = append(sinks, mirror)
		closers = append(closers, mirror.Close)
	}

	if cfg.AMQP.Enabled() {
		publisher, err := broker.NewPublisher(cfg.AMQP)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("failed to initialize amqp sink: %w", err)
		}
		sinks = append(sinks, publisher)
		closers = append(closers, publisher.Close)
	}

	return sinks, cleanup, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
