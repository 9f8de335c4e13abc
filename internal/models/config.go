package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	HTTP      HTTPConfig
	Relay     RelayConfig
	Formance  FormanceConfig
	AMQP      AMQPConfig
	RulesFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	CreateDummyUsers bool
}

// HTTPConfig holds the HTTP adapter settings
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RelayConfig holds outbox relay settings
type RelayConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxAttempts     int
}

// FormanceConfig holds the optional Formance mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
	Asset        string
}

func (c FormanceConfig) Enabled() bool {
	return c.StackURL != ""
}

// AMQPConfig holds the optional broker sink settings
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

type FeeType string

const (
	FeeFixed   FeeType = "fixed"
	FeePercent FeeType = "percent"
)

// Fee is either a fixed amount or a fraction of the request amount
type Fee struct {
	Type  FeeType
	Value decimal.Decimal
}

// Compute returns the fee for amount, never more than amount itself
func (f Fee) Compute(amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch f.Type {
	case FeePercent:
		fee = amount.Mul(f.Value).Round(MoneyPrecision)
	default:
		fee = f.Value
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	if fee.GreaterThan(amount) {
		return amount
	}
	return fee
}

// InviteTier is a reward bracket by valid-invite count. Rates are fractions (0.05 = 5%).
type InviteTier struct {
	Level             int             `json:"level"`
	MinValidInvites   int             `json:"min_valid_invites"`
	FlatReward        decimal.Decimal `json:"flat_reward"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
}

// VipTier is a priced level. Rates are fractions (0.05 = 5%).
type VipTier struct {
	Level              int             `json:"level"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price"`
	DurationDays       int             `json:"duration_days"`
	TaskBonusPercent   decimal.Decimal `json:"task_bonus_percent"`
	WithdrawFeePercent decimal.Decimal `json:"withdraw_fee_percent"`
	DailyTaskLimit     int             `json:"daily_task_limit"`
}

type WithdrawRules struct {
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	DailyLimit decimal.Decimal
	Fee        Fee
}

type RechargeMethod struct {
	Id        string
	Name      string
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Fee       Fee
	Enabled   bool
}

type RechargeRules struct {
	Expiry  time.Duration
	Methods []RechargeMethod
}

func (r RechargeRules) Method(id string) (RechargeMethod, bool) {
	for _, m := range r.Methods {
		if m.Id == id {
			return m, true
		}
	}
	return RechargeMethod{}, false
}

type InviteRules struct {
	ValidateOnFirstOrder bool
	Tiers                []InviteTier
}

// Rules is the read-only tier and fee configuration consumed by the workflows
type Rules struct {
	Invite   InviteRules
	Vip      []VipTier
	Withdraw WithdrawRules
	Recharge RechargeRules
}
