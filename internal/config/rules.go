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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type feeFile struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type inviteTierFile struct {
	Level             int    `yaml:"level"`
	MinValidInvites   int    `yaml:"min_valid_invites"`
	FlatReward        string `yaml:"flat_reward"`
	CommissionPercent string `yaml:"commission_percent"`
}

type vipTierFile struct {
	Level              int    `yaml:"level"`
	Name               string `yaml:"name"`
	Price              string `yaml:"price"`
	DurationDays       int    `yaml:"duration_days"`
	TaskBonusPercent   string `yaml:"task_bonus_percent"`
	WithdrawFeePercent string `yaml:"withdraw_fee_percent"`
	DailyTaskLimit     int    `yaml:"daily_task_limit"`
}

type rechargeMethodFile struct {
	Id        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	MinAmount string  `yaml:"min_amount"`
	MaxAmount string  `yaml:"max_amount"`
	Fee       feeFile `yaml:"fee"`
	Enabled   *bool   `yaml:"enabled"`
}

type rulesFile struct {
	Invite struct {
		ValidateOnFirstOrder *bool            `yaml:"validate_on_first_order"`
		Tiers                []inviteTierFile `yaml:"tiers"`
	} `yaml:"invite"`
	Vip      []vipTierFile `yaml:"vip"`
	Withdraw struct {
		MinAmount  string  `yaml:"min_amount"`
		MaxAmount  string  `yaml:"max_amount"`
		DailyLimit string  `yaml:"daily_limit"`
		Fee        feeFile `yaml:"fee"`
	} `yaml:"withdraw"`
	Recharge struct {
		Expiry  string               `yaml:"expiry"`
		Methods []rechargeMethodFile `yaml:"methods"`
	} `yaml:"recharge"`
}

// DefaultRules returns the built-in tier and fee tables
func DefaultRules() *models.Rules {
	d := decimal.RequireFromString
	return &models.Rules{
		Invite: models.InviteRules{
			ValidateOnFirstOrder: true,
			Tiers: []models.InviteTier{
				{Level: 1, MinValidInvites: 0, FlatReward: d("10"), CommissionPercent: d("0.05")},
				{Level: 2, MinValidInvites: 10, FlatReward: d("30"), CommissionPercent: d("0.08")},
				{Level: 3, MinValidInvites: 30, FlatReward: d("80"), CommissionPercent: d("0.10")},
				{Level: 4, MinValidInvites: 100, FlatReward: d("200"), CommissionPercent: d("0.15")},
			},
		},
		Vip: []models.VipTier{
			{Level: 0, Name: "Basic", Price: d("0"), TaskBonusPercent: d("0"), WithdrawFeePercent: d("0"), DailyTaskLimit: 10},
			{Level: 1, Name: "Silver", Price: d("100"), DurationDays: 30, TaskBonusPercent: d("0.05"), WithdrawFeePercent: d("0.01"), DailyTaskLimit: 20},
			{Level: 2, Name: "Gold", Price: d("500"), DurationDays: 30, TaskBonusPercent: d("0.10"), WithdrawFeePercent: d("0.005"), DailyTaskLimit: 40},
			{Level: 3, Name: "Diamond", Price: d("2000"), DurationDays: 30, TaskBonusPercent: d("0.20"), WithdrawFeePercent: d("0"), DailyTaskLimit: 0},
		},
		Withdraw: models.WithdrawRules{
			MinAmount:  d("10"),
			MaxAmount:  d("50000"),
			DailyLimit: d("100000"),
			Fee:        models.Fee{Type: models.FeeFixed, Value: d("5")},
		},
		Recharge: models.RechargeRules{
			Expiry: 24 * time.Hour,
			Methods: []models.RechargeMethod{
				{Id: "bank", Name: "Bank transfer", MinAmount: d("10"), MaxAmount: d("100000"), Fee: models.Fee{Type: models.FeePercent, Value: d("0.01")}, Enabled: true},
				{Id: "usdt", Name: "USDT (TRC20)", MinAmount: d("20"), MaxAmount: d("500000"), Fee: models.Fee{Type: models.FeeFixed, Value: d("0")}, Enabled: true},
			},
		},
	}
}

// LoadRules reads the rules file. A missing file yields DefaultRules.
func LoadRules(rulesFilePath string) (*models.Rules, error) {
	var rulesPath string
	if filepath.IsAbs(rulesFilePath) {
		rulesPath = rulesFilePath
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		rulesPath = filepath.Join(wd, rulesFilePath)
	}

	data, err := os.ReadFile(rulesPath)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultRules(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", rulesFilePath, err)
	}

	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rules document
func ParseRules(data []byte) (*models.Rules, error) {
	var raw rulesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to parse rules: %w", err)
	}

	rules := DefaultRules()
	if raw.Invite.ValidateOnFirstOrder != nil {
		rules.Invite.ValidateOnFirstOrder = *raw.Invite.ValidateOnFirstOrder
	}

	if len(raw.Invite.Tiers) > 0 {
		rules.Invite.Tiers = make([]models.InviteTier, 0, len(raw.Invite.Tiers))
		for i, t := range raw.Invite.Tiers {
			reward, err := parseAmount(t.FlatReward, "0")
			if err != nil {
				return nil, fmt.Errorf("invite tier at index %d: flat_reward: %w", i, err)
			}
			pct, err := parseAmount(t.CommissionPercent, "0")
			if err != nil {
				return nil, fmt.Errorf("invite tier at index %d: commission_percent: %w", i, err)
			}
			rules.Invite.Tiers = append(rules.Invite.Tiers, models.InviteTier{
				Level:             t.Level,
				MinValidInvites:   t.MinValidInvites,
				FlatReward:        reward,
				CommissionPercent: pct,
			})
		}
	}

	if len(raw.Vip) > 0 {
		rules.Vip = make([]models.VipTier, 0, len(raw.Vip))
		for i, t := range raw.Vip {
			price, err := parseAmount(t.Price, "0")
			if err != nil {
				return nil, fmt.Errorf("vip tier at index %d: price: %w", i, err)
			}
			bonus, err := parseAmount(t.TaskBonusPercent, "0")
			if err != nil {
				return nil, fmt.Errorf("vip tier at index %d: task_bonus_percent: %w", i, err)
			}
			fee, err := parseAmount(t.WithdrawFeePercent, "0")
			if err != nil {
				return nil, fmt.Errorf("vip tier at index %d: withdraw_fee_percent: %w", i, err)
			}
			rules.Vip = append(rules.Vip, models.VipTier{
				Level:              t.Level,
				Name:               t.Name,
				Price:              price,
				DurationDays:       t.DurationDays,
				TaskBonusPercent:   bonus,
				WithdrawFeePercent: fee,
				DailyTaskLimit:     t.DailyTaskLimit,
			})
		}
	}

	w := raw.Withdraw
	var err error
	if rules.Withdraw.MinAmount, err = parseAmount(w.MinAmount, rules.Withdraw.MinAmount.String()); err != nil {
		return nil, fmt.Errorf("withdraw.min_amount: %w", err)
	}
	if rules.Withdraw.MaxAmount, err = parseAmount(w.MaxAmount, rules.Withdraw.MaxAmount.String()); err != nil {
		return nil, fmt.Errorf("withdraw.max_amount: %w", err)
	}
	if rules.Withdraw.DailyLimit, err = parseAmount(w.DailyLimit, rules.Withdraw.DailyLimit.String()); err != nil {
		return nil, fmt.Errorf("withdraw.daily_limit: %w", err)
	}
	if w.Fee.Type != "" {
		if rules.Withdraw.Fee, err = parseFee(w.Fee); err != nil {
			return nil, fmt.Errorf("withdraw.fee: %w", err)
		}
	}

	if raw.Recharge.Expiry != "" {
		expiry, err := time.ParseDuration(raw.Recharge.Expiry)
		if err != nil {
			return nil, fmt.Errorf("recharge.expiry: %w", err)
		}
		rules.Recharge.Expiry = expiry
	}
	if len(raw.Recharge.Methods) > 0 {
		rules.Recharge.Methods = make([]models.RechargeMethod, 0, len(raw.Recharge.Methods))
		for i, m := range raw.Recharge.Methods {
			minAmount, err := parseAmount(m.MinAmount, "0")
			if err != nil {
				return nil, fmt.Errorf("recharge method at index %d: min_amount: %w", i, err)
			}
			maxAmount, err := parseAmount(m.MaxAmount, "0")
			if err != nil {
				return nil, fmt.Errorf("recharge method at index %d: max_amount: %w", i, err)
			}
			fee := models.Fee{Type: models.FeeFixed, Value: decimal.Zero}
			if m.Fee.Type != "" {
				if fee, err = parseFee(m.Fee); err != nil {
					return nil, fmt.Errorf("recharge method at index %d: fee: %w", i, err)
				}
			}
			enabled := true
			if m.Enabled != nil {
				enabled = *m.Enabled
			}
			rules.Recharge.Methods = append(rules.Recharge.Methods, models.RechargeMethod{
				Id:        m.Id,
				Name:      m.Name,
				MinAmount: minAmount,
				MaxAmount: maxAmount,
				Fee:       fee,
				Enabled:   enabled,
			})
		}
	}

	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ValidateRules checks the invariants the workflows rely on: the lowest invite
// tier starts at zero invites, thresholds strictly increase and flat rewards
// never decrease.
func ValidateRules(rules *models.Rules) error {
	tiers := rules.Invite.Tiers
	if len(tiers) == 0 {
		return fmt.Errorf("invite tiers cannot be empty")
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinValidInvites < tiers[j].MinValidInvites })
	if tiers[0].MinValidInvites != 0 {
		return fmt.Errorf("lowest invite tier must start at 0 valid invites, got %d", tiers[0].MinValidInvites)
	}
	for i, t := range tiers {
		if t.FlatReward.IsNegative() {
			return fmt.Errorf("invite tier %d: flat reward cannot be negative", t.Level)
		}
		if err := checkScale(t.FlatReward); err != nil {
			return fmt.Errorf("invite tier %d: flat reward: %w", t.Level, err)
		}
		if t.CommissionPercent.IsNegative() || t.CommissionPercent.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("invite tier %d: commission percent must be between 0 and 1", t.Level)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.MinValidInvites == prev.MinValidInvites {
			return fmt.Errorf("invite tiers %d and %d share threshold %d", prev.Level, t.Level, t.MinValidInvites)
		}
		if t.Level <= prev.Level {
			return fmt.Errorf("invite tier levels must increase with thresholds (%d after %d)", t.Level, prev.Level)
		}
		if t.FlatReward.LessThan(prev.FlatReward) {
			return fmt.Errorf("invite tier %d flat reward %s is below tier %d reward %s",
				t.Level, t.FlatReward.String(), prev.Level, prev.FlatReward.String())
		}
	}

	if len(rules.Vip) == 0 {
		return fmt.Errorf("vip tiers cannot be empty")
	}
	sort.SliceStable(rules.Vip, func(i, j int) bool { return rules.Vip[i].Level < rules.Vip[j].Level })
	if rules.Vip[0].Level != 0 {
		return fmt.Errorf("vip tiers must include level 0")
	}
	for i, t := range rules.Vip {
		if i > 0 && t.Level == rules.Vip[i-1].Level {
			return fmt.Errorf("duplicate vip level %d", t.Level)
		}
		if t.Price.IsNegative() {
			return fmt.Errorf("vip level %d: price cannot be negative", t.Level)
		}
		if err := checkScale(t.Price); err != nil {
			return fmt.Errorf("vip level %d: price: %w", t.Level, err)
		}
		if t.Level > 0 && t.DurationDays <= 0 {
			return fmt.Errorf("vip level %d: duration_days must be positive", t.Level)
		}
		if t.DailyTaskLimit < 0 {
			return fmt.Errorf("vip level %d: daily_task_limit cannot be negative", t.Level)
		}
	}

	w := rules.Withdraw
	if w.MinAmount.IsNegative() {
		return fmt.Errorf("withdraw min amount cannot be negative")
	}
	if w.MaxAmount.IsPositive() && w.MaxAmount.LessThan(w.MinAmount) {
		return fmt.Errorf("withdraw max amount %s is below min amount %s", w.MaxAmount.String(), w.MinAmount.String())
	}
	if err := checkScale(w.MinAmount, w.MaxAmount, w.DailyLimit); err != nil {
		return fmt.Errorf("withdraw limits: %w", err)
	}
	if err := validateFee(w.Fee); err != nil {
		return fmt.Errorf("withdraw fee: %w", err)
	}

	if rules.Recharge.Expiry <= 0 {
		return fmt.Errorf("recharge expiry must be positive, got %v", rules.Recharge.Expiry)
	}
	seen := make(map[string]bool)
	for i, m := range rules.Recharge.Methods {
		if m.Id == "" {
			return fmt.Errorf("recharge method at index %d missing id", i)
		}
		if seen[m.Id] {
			return fmt.Errorf("duplicate recharge method %q", m.Id)
		}
		seen[m.Id] = true
		if m.MaxAmount.IsPositive() && m.MaxAmount.LessThan(m.MinAmount) {
			return fmt.Errorf("recharge method %q: max amount below min amount", m.Id)
		}
		if err := checkScale(m.MinAmount, m.MaxAmount); err != nil {
			return fmt.Errorf("recharge method %q limits: %w", m.Id, err)
		}
		if err := validateFee(m.Fee); err != nil {
			return fmt.Errorf("recharge method %q fee: %w", m.Id, err)
		}
	}
	return nil
}

// checkScale rejects amounts the ledger could not post. Percent values are
// fractions and are not passed here.
func checkScale(amounts ...decimal.Decimal) error {
	for _, a := range amounts {
		if !models.ValidMoneyScale(a) {
			return fmt.Errorf("%w: %s has more than %d decimals", store.ErrInvalidAmount, a.String(), models.MoneyPrecision)
		}
	}
	return nil
}

func parseAmount(value, defaultValue string) (decimal.Decimal, error) {
	if value == "" {
		value = defaultValue
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

func parseFee(f feeFile) (models.Fee, error) {
	value, err := parseAmount(f.Value, "0")
	if err != nil {
		return models.Fee{}, err
	}
	fee := models.Fee{Type: models.FeeType(f.Type), Value: value}
	return fee, validateFee(fee)
}

func validateFee(f models.Fee) error {
	switch f.Type {
	case models.FeeFixed:
		return checkScale(f.Value)
	case models.FeePercent:
		if f.Value.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("percent fee must be a fraction between 0 and 1, got %s", f.Value.String())
		}
	default:
		return fmt.Errorf("unknown fee type %q", f.Type)
	}
	if f.Value.IsNegative() {
		return fmt.Errorf("fee value cannot be negative")
	}
	return nil
}
