package api

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"incentive-ledger-go/internal/config"
	"incentive-ledger-go/internal/database"
	"incentive-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var dec = decimal.RequireFromString

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *LedgerService
	db    *database.Service
	clock *testClock
	rules *models.Rules
}

func newFixture(t *testing.T, mutate ...func(r *models.Rules)) *fixture {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	rules := config.DefaultRules()
	for _, m := range mutate {
		m(rules)
	}

	clock := &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	svc := NewLedgerService(db, rules, WithClock(clock.Now))

	return &fixture{svc: svc, db: db, clock: clock, rules: rules}
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	user, err := f.db.CreateUser(context.Background(), id, id, id+"@example.com")
	require.NoError(t, err)
	return user
}

// fund moves amount into the user's available balance through the recharge workflow
func (f *fixture) fund(t *testing.T, userId string, amount decimal.Decimal) {
	t.Helper()
	ctx := context.Background()

	recharge, err := f.svc.CreateRecharge(ctx, userId, "", amount, "usdt")
	require.NoError(t, err)
	_, err = f.svc.ConfirmRecharge(ctx, userId, recharge.Id, "tx-hash")
	require.NoError(t, err)
	_, err = f.svc.ApproveRecharge(ctx, recharge.Id, "")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userId string) *models.Balance {
	t.Helper()
	balance, err := f.svc.GetBalance(context.Background(), userId)
	require.NoError(t, err)
	return balance
}

func (f *fixture) entries(t *testing.T, userId string, kind models.EntryKind) []models.LedgerEntry {
	t.Helper()
	page, err := f.svc.GetTransactionHistory(context.Background(), userId, 1, 100, models.HistoryFilter{Kind: kind})
	require.NoError(t, err)
	return page.Entries
}

// requireInvariants checks non-negative parts and that every account matches its ledger
func (f *fixture) requireInvariants(t *testing.T, userIds ...string) {
	t.Helper()
	for _, userId := range userIds {
		balance := f.balance(t, userId)
		require.False(t, balance.Available.IsNegative(), "available of %s is negative", userId)
		require.False(t, balance.Frozen.IsNegative(), "frozen of %s is negative", userId)
		require.True(t, balance.Total.Equal(balance.Available.Add(balance.Frozen)))
		require.NoError(t, f.svc.ReconcileAccount(context.Background(), userId))
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}
