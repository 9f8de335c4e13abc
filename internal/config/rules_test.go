package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules_Valid(t *testing.T) {
	require.NoError(t, ValidateRules(DefaultRules()))
}

func TestParseRules_OverridesAndDefaults(t *testing.T) {
	doc := `
invite:
  tiers:
    - {level: 1, min_valid_invites: 0, flat_reward: "5", commission_percent: "0.02"}
    - {level: 2, min_valid_invites: 3, flat_reward: "15", commission_percent: "0.04"}
withdraw:
  min_amount: "20"
  fee: {type: percent, value: "0.02"}
recharge:
  expiry: 2h
  methods:
    - {id: card, name: Card, min_amount: "1", max_amount: "1000", fee: {type: fixed, value: "0.5"}}
    - {id: cash, name: Cash, enabled: false}
`
	rules, err := ParseRules([]byte(doc))
	require.NoError(t, err)

	require.Len(t, rules.Invite.Tiers, 2)
	assert.True(t, rules.Invite.Tiers[1].FlatReward.Equal(decimal.NewFromInt(15)))
	assert.True(t, rules.Invite.ValidateOnFirstOrder, "unset key keeps the default")

	// untouched sections fall back to the built-in tables
	assert.Len(t, rules.Vip, 4)
	assert.True(t, rules.Withdraw.MaxAmount.Equal(decimal.NewFromInt(50000)))

	assert.True(t, rules.Withdraw.MinAmount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, models.FeePercent, rules.Withdraw.Fee.Type)
	assert.Equal(t, 2*time.Hour, rules.Recharge.Expiry)

	card, ok := rules.Recharge.Method("card")
	require.True(t, ok)
	assert.True(t, card.Enabled)
	assert.True(t, card.Fee.Value.Equal(decimal.RequireFromString("0.5")))

	cash, ok := rules.Recharge.Method("cash")
	require.True(t, ok)
	assert.False(t, cash.Enabled)
}

func TestParseRules_ValidateOnFirstOrderDisabled(t *testing.T) {
	rules, err := ParseRules([]byte("invite:\n  validate_on_first_order: false\n"))
	require.NoError(t, err)
	assert.False(t, rules.Invite.ValidateOnFirstOrder)
}

func TestParseRules_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"lowest tier above zero", "invite:\n  tiers:\n    - {level: 1, min_valid_invites: 2, flat_reward: \"1\"}\n"},
		{"decreasing reward", "invite:\n  tiers:\n    - {level: 1, min_valid_invites: 0, flat_reward: \"10\"}\n    - {level: 2, min_valid_invites: 5, flat_reward: \"5\"}\n"},
		{"shared threshold", "invite:\n  tiers:\n    - {level: 1, min_valid_invites: 0}\n    - {level: 2, min_valid_invites: 0}\n"},
		{"commission above one", "invite:\n  tiers:\n    - {level: 1, min_valid_invites: 0, commission_percent: \"5\"}\n"},
		{"vip without level zero", "vip:\n  - {level: 1, name: Silver, price: \"100\", duration_days: 30}\n"},
		{"vip without duration", "vip:\n  - {level: 0, name: Basic}\n  - {level: 1, name: Silver, price: \"100\"}\n"},
		{"unknown fee type", "withdraw:\n  fee: {type: tiered, value: \"1\"}\n"},
		{"percent fee above one", "withdraw:\n  fee: {type: percent, value: \"1.5\"}\n"},
		{"bad amount", "withdraw:\n  min_amount: ten\n"},
		{"bad expiry", "recharge:\n  expiry: tomorrow\n"},
		{"duplicate method", "recharge:\n  methods:\n    - {id: bank}\n    - {id: bank}\n"},
		{"not yaml", "invite: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRules_RejectsSubCentAmounts(t *testing.T) {
	docs := map[string]string{
		"vip price":      "vip:\n  - {level: 0, name: Basic}\n  - {level: 1, name: Silver, price: \"100.001\", duration_days: 30}\n",
		"flat reward":    "invite:\n  tiers:\n    - {level: 1, min_valid_invites: 0, flat_reward: \"0.005\"}\n",
		"fixed fee":      "withdraw:\n  fee: {type: fixed, value: \"1.234\"}\n",
		"daily limit":    "withdraw:\n  daily_limit: \"999.999\"\n",
		"recharge limit": "recharge:\n  methods:\n    - {id: bank, min_amount: \"0.001\", enabled: true}\n",
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(doc))
			assert.ErrorIs(t, err, store.ErrInvalidAmount)
		})
	}

	rules, err := ParseRules([]byte("withdraw:\n  fee: {type: percent, value: \"0.0125\"}\n"))
	require.NoError(t, err, "percent fees are fractions and may be finer than a cent")
	assert.True(t, rules.Withdraw.Fee.Value.Equal(decimal.RequireFromString("0.0125")))
}

func TestLoadRules_MissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadRules_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recharge:\n  expiry: 30m\n"), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, rules.Recharge.Expiry)
}
