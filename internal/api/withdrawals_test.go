package api

import (
	"context"
	"testing"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdraw_ApproveDeductsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob")
	f.fund(t, "bob", dec("300"))

	withdraw, err := f.svc.CreateWithdraw(ctx, "bob", "wd-1", dec("200"), "IBAN DE00 1234")
	require.NoError(t, err)
	requireDecimal(t, "5", withdraw.Fee)
	requireDecimal(t, "195", withdraw.ActualAmount)

	balance := f.balance(t, "bob")
	requireDecimal(t, "100", balance.Available)
	requireDecimal(t, "200", balance.Frozen)

	withdraw, err = f.svc.ApproveWithdraw(ctx, "wd-1", "paid")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawApproved, withdraw.Status)
	assert.NotNil(t, withdraw.ProcessedAt)

	balance = f.balance(t, "bob")
	requireDecimal(t, "100", balance.Available)
	requireDecimal(t, "0", balance.Frozen)

	entries := f.entries(t, "bob", models.EntryWithdraw)
	require.Len(t, entries, 1)
	requireDecimal(t, "-200", entries[0].Amount)

	f.requireInvariants(t, "bob")
}

func TestApproveWithdraw_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob")
	f.fund(t, "bob", dec("300"))

	_, err := f.svc.CreateWithdraw(ctx, "bob", "wd-1", dec("200"), "bank")
	require.NoError(t, err)
	_, err = f.svc.ApproveWithdraw(ctx, "wd-1", "")
	require.NoError(t, err)

	withdraw, err := f.svc.ApproveWithdraw(ctx, "wd-1", "")
	require.ErrorIs(t, err, store.ErrAlreadyProcessed)
	assert.Equal(t, models.WithdrawApproved, withdraw.Status)

	assert.Len(t, f.entries(t, "bob", models.EntryWithdraw), 1)
	requireDecimal(t, "100", f.balance(t, "bob").Total)
}

func TestWithdraw_RejectAndCancelRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob")
	f.user(t, "mallory")
	f.fund(t, "bob", dec("300"))

	_, err := f.svc.CreateWithdraw(ctx, "bob", "wd-1", dec("100"), "bank")
	require.NoError(t, err)
	_, err = f.svc.CreateWithdraw(ctx, "bob", "wd-2", dec("100"), "bank")
	require.NoError(t, err)

	_, err = f.svc.CreateWithdraw(ctx, "bob", "wd-3", dec("150"), "bank")
	require.ErrorIs(t, err, store.ErrInsufficientFunds)

	withdraw, err := f.svc.RejectWithdraw(ctx, "wd-1", "bank details invalid")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawRejected, withdraw.Status)
	assert.Equal(t, "bank details invalid", withdraw.Remark)

	_, err = f.svc.CancelWithdraw(ctx, "mallory", "wd-2")
	require.ErrorIs(t, err, store.ErrForbidden)

	withdraw, err = f.svc.CancelWithdraw(ctx, "bob", "wd-2")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawCancelled, withdraw.Status)

	balance := f.balance(t, "bob")
	requireDecimal(t, "300", balance.Available)
	requireDecimal(t, "0", balance.Frozen)
	assert.Len(t, f.entries(t, "bob", models.EntryWithdrawUnfreeze), 2)

	_, err = f.svc.ApproveWithdraw(ctx, "wd-1", "")
	require.ErrorIs(t, err, store.ErrInvalidState)
	_, err = f.svc.CancelWithdraw(ctx, "bob", "wd-1")
	require.ErrorIs(t, err, store.ErrInvalidState)
	_, err = f.svc.RejectWithdraw(ctx, "wd-2", "")
	require.ErrorIs(t, err, store.ErrInvalidState)

	f.requireInvariants(t, "bob")
}

func TestCreateWithdraw_Limits(t *testing.T) {
	f := newFixture(t, func(r *models.Rules) {
		r.Withdraw.DailyLimit = dec("250")
	})
	ctx := context.Background()
	f.user(t, "bob")
	f.fund(t, "bob", dec("1000"))

	_, err := f.svc.CreateWithdraw(ctx, "bob", "small", dec("5"), "bank")
	require.ErrorIs(t, err, store.ErrInvalidAmount)

	_, err = f.svc.CreateWithdraw(ctx, "bob", "wd-1", dec("200"), "bank")
	require.NoError(t, err)
	_, err = f.svc.ApproveWithdraw(ctx, "wd-1", "")
	require.NoError(t, err)

	_, err = f.svc.CreateWithdraw(ctx, "bob", "wd-2", dec("60"), "bank")
	require.ErrorIs(t, err, store.ErrLimitExceeded)

	_, err = f.svc.CreateWithdraw(ctx, "bob", "wd-3", dec("50"), "bank")
	require.NoError(t, err, "exactly reaching the daily limit is allowed")

	f.requireInvariants(t, "bob")
}

func TestApproveWithdraw_RechecksDailyLimit(t *testing.T) {
	f := newFixture(t, func(r *models.Rules) {
		r.Withdraw.DailyLimit = dec("250")
	})
	ctx := context.Background()
	f.user(t, "bob")
	f.fund(t, "bob", dec("1000"))

	_, err := f.svc.CreateWithdraw(ctx, "bob", "wd-1", dec("200"), "bank")
	require.NoError(t, err)
	_, err = f.svc.CreateWithdraw(ctx, "bob", "wd-2", dec("100"), "bank")
	require.NoError(t, err, "nothing is approved yet so both requests fit")

	_, err = f.svc.ApproveWithdraw(ctx, "wd-1", "")
	require.NoError(t, err)

	_, err = f.svc.ApproveWithdraw(ctx, "wd-2", "")
	require.ErrorIs(t, err, store.ErrLimitExceeded)

	withdraw, err := f.svc.GetWithdraw(ctx, "wd-2")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawPending, withdraw.Status)
	balance := f.balance(t, "bob")
	requireDecimal(t, "700", balance.Available)
	requireDecimal(t, "100", balance.Frozen)
	assert.Len(t, f.entries(t, "bob", models.EntryWithdraw), 1)

	f.clock.Advance(24 * time.Hour)
	withdraw, err = f.svc.ApproveWithdraw(ctx, "wd-2", "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawApproved, withdraw.Status)

	balance = f.balance(t, "bob")
	requireDecimal(t, "700", balance.Available)
	requireDecimal(t, "0", balance.Frozen)
	f.requireInvariants(t, "bob")
}

func TestCreateWithdraw_VipFeeRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob")
	f.fund(t, "bob", dec("1100"))

	_, err := f.svc.UpgradeVip(ctx, "bob", 2)
	require.NoError(t, err)

	withdraw, err := f.svc.CreateWithdraw(ctx, "bob", "wd-1", dec("400"), "bank")
	require.NoError(t, err)
	requireDecimal(t, "2", withdraw.Fee)
	requireDecimal(t, "398", withdraw.ActualAmount)
}

func TestListWithdraws_ByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "bob")
	f.fund(t, "bob", dec("300"))

	for _, id := range []string{"wd-1", "wd-2", "wd-3"} {
		_, err := f.svc.CreateWithdraw(ctx, "bob", id, dec("20"), "bank")
		require.NoError(t, err)
	}
	_, err := f.svc.ApproveWithdraw(ctx, "wd-2", "")
	require.NoError(t, err)

	pending, err := f.svc.ListWithdraws(ctx, models.WithdrawPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "wd-1", pending[0].Id)
	assert.Equal(t, "wd-3", pending[1].Id)

	all, err := f.svc.ListWithdraws(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
