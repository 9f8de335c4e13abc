package api

import (
	"context"
	"fmt"
	"testing"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterInvite_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	f.user(t, "carol")

	_, err := f.svc.RegisterInvite(ctx, "alice", alice.InviteCode)
	require.ErrorIs(t, err, store.ErrSelfInvite)

	_, err = f.svc.RegisterInvite(ctx, "bob", "UNKNOWN1")
	require.ErrorIs(t, err, store.ErrInvalidInviteCode)

	edge, err := f.svc.RegisterInvite(ctx, "bob", alice.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, "alice", edge.InviterId)
	assert.False(t, edge.IsValid)
	requireDecimal(t, "10", edge.Reward)

	_, err = f.svc.RegisterInvite(ctx, "bob", "UNKNOWN1")
	require.ErrorIs(t, err, store.ErrInvalidInviteCode)

	carol, err := f.db.GetUserById(ctx, "carol")
	require.NoError(t, err)
	_, err = f.svc.RegisterInvite(ctx, "bob", carol.InviteCode)
	require.ErrorIs(t, err, store.ErrAlreadyInvited)

	_, err = f.svc.RegisterInvite(ctx, "alice", bob.InviteCode)
	require.ErrorIs(t, err, store.ErrSelfInvite, "alice is upstream of bob")
}

func TestValidateInvite_RewardAndTierUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inviter := f.user(t, "inviter")

	var edges []*models.InviteEdge
	for i := 0; i < 10; i++ {
		inviteeId := fmt.Sprintf("invitee-%02d", i)
		f.user(t, inviteeId)
		edge, err := f.svc.RegisterInvite(ctx, inviteeId, inviter.InviteCode)
		require.NoError(t, err)
		edges = append(edges, edge)
	}

	for i, edge := range edges[:9] {
		_, err := f.svc.ValidateInvite(ctx, edge.Id)
		require.NoError(t, err)
		requireDecimal(t, fmt.Sprint(10*(i+1)), f.balance(t, "inviter").Available)
	}
	assert.Empty(t, f.entries(t, "inviter", models.EntryLevelUpgrade), "no bonus below the tier 2 threshold")

	validated, err := f.svc.ValidateInvite(ctx, edges[9].Id)
	require.NoError(t, err)
	assert.True(t, validated.IsValid)

	upgrades := f.entries(t, "inviter", models.EntryLevelUpgrade)
	require.Len(t, upgrades, 1)
	requireDecimal(t, "20", upgrades[0].Amount)
	requireDecimal(t, "120", f.balance(t, "inviter").Available)

	_, err = f.svc.ValidateInvite(ctx, edges[0].Id)
	require.ErrorIs(t, err, store.ErrAlreadyValidated)
	require.ErrorIs(t, err, store.ErrAlreadyProcessed)
	requireDecimal(t, "120", f.balance(t, "inviter").Available)

	stats, err := f.svc.GetInviteStats(ctx, "inviter")
	require.NoError(t, err)
	assert.Equal(t, 10, stats.ValidInvites)
	assert.Equal(t, 0, stats.PendingInvites)
	assert.Equal(t, 2, stats.CurrentTier.Level)
	require.NotNil(t, stats.NextTier)
	assert.Equal(t, 3, stats.NextTier.Level)
	assert.Equal(t, 20, stats.InvitesToNext)
	requireDecimal(t, "120", stats.RewardEarned)

	f.requireInvariants(t, "inviter")
}

func TestValidateInvite_TierNeverDecreases(t *testing.T) {
	f := newFixture(t, func(r *models.Rules) {
		r.Invite.Tiers = []models.InviteTier{
			{Level: 1, MinValidInvites: 0, FlatReward: dec("1"), CommissionPercent: dec("0.01")},
			{Level: 2, MinValidInvites: 2, FlatReward: dec("4"), CommissionPercent: dec("0.02")},
			{Level: 3, MinValidInvites: 4, FlatReward: dec("9"), CommissionPercent: dec("0.03")},
		}
	})
	ctx := context.Background()
	inviter := f.user(t, "inviter")

	lastLevel := 1
	for i := 0; i < 6; i++ {
		inviteeId := fmt.Sprintf("invitee-%d", i)
		f.user(t, inviteeId)
		edge, err := f.svc.RegisterInvite(ctx, inviteeId, inviter.InviteCode)
		require.NoError(t, err)
		_, err = f.svc.ValidateInvite(ctx, edge.Id)
		require.NoError(t, err)

		stats, err := f.svc.GetInviteStats(ctx, "inviter")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.CurrentTier.Level, lastLevel)
		lastLevel = stats.CurrentTier.Level
	}

	bonuses, err := f.db.SumEntries(ctx, "inviter", []models.EntryKind{models.EntryLevelUpgrade})
	require.NoError(t, err)
	requireDecimal(t, "8", bonuses)
}

func TestCommissionCascade_PaysValidInviterOnce(t *testing.T) {
	f := newFixture(t, func(r *models.Rules) {
		r.Invite.ValidateOnFirstOrder = false
	})
	ctx := context.Background()
	inviter := f.user(t, "inviter")
	f.user(t, "worker")
	f.fund(t, "worker", dec("100"))

	edge, err := f.svc.RegisterInvite(ctx, "worker", inviter.InviteCode)
	require.NoError(t, err)

	complete := func(orderId string) {
		_, err := f.svc.CreateOrder(ctx, "worker", orderId, dec("50"), dec("20"))
		require.NoError(t, err)
		_, err = f.svc.StartOrder(ctx, "worker", orderId)
		require.NoError(t, err)
		_, err = f.svc.CompleteOrder(ctx, "worker", orderId)
		require.NoError(t, err)
	}

	complete("order-1")
	assert.Empty(t, f.entries(t, "inviter", models.EntryCommission), "a pending edge earns nothing")

	_, err = f.svc.ValidateInvite(ctx, edge.Id)
	require.NoError(t, err)

	complete("order-2")
	commissions := f.entries(t, "inviter", models.EntryCommission)
	require.Len(t, commissions, 1)
	requireDecimal(t, "1", commissions[0].Amount)
	assert.Equal(t, "order-2", commissions[0].RelatedId)
	assert.Equal(t, "worker", commissions[0].SourceUserId)

	_, err = f.svc.CompleteOrder(ctx, "worker", "order-2")
	require.ErrorIs(t, err, store.ErrAlreadyProcessed)
	assert.Len(t, f.entries(t, "inviter", models.EntryCommission), 1)

	stats, err := f.svc.GetInviteStats(ctx, "inviter")
	require.NoError(t, err)
	requireDecimal(t, "1", stats.CommissionEarned)

	f.requireInvariants(t, "inviter", "worker")
}

func TestFirstCompletedOrderValidatesInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inviter := f.user(t, "inviter")
	f.user(t, "worker")
	f.fund(t, "worker", dec("100"))

	_, err := f.svc.RegisterInvite(ctx, "worker", inviter.InviteCode)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, "worker", "order-1", dec("10"), dec("10"))
	require.NoError(t, err)
	_, err = f.svc.StartOrder(ctx, "worker", "order-1")
	require.NoError(t, err)
	_, err = f.svc.CompleteOrder(ctx, "worker", "order-1")
	require.NoError(t, err)

	edge, err := f.db.GetInviteEdgeByInvitee(ctx, "worker")
	require.NoError(t, err)
	assert.True(t, edge.IsValid)

	assert.Len(t, f.entries(t, "inviter", models.EntryInviteReward), 1)
	commissions := f.entries(t, "inviter", models.EntryCommission)
	require.Len(t, commissions, 1)
	requireDecimal(t, "0.5", commissions[0].Amount)
	requireDecimal(t, "10.5", f.balance(t, "inviter").Available)
}

func TestLaterCompletedOrderValidatesPendingInvite(t *testing.T) {
	f := newFixture(t, func(r *models.Rules) {
		r.Invite.ValidateOnFirstOrder = false
	})
	ctx := context.Background()
	inviter := f.user(t, "inviter")
	f.user(t, "worker")
	f.fund(t, "worker", dec("100"))

	_, err := f.svc.RegisterInvite(ctx, "worker", inviter.InviteCode)
	require.NoError(t, err)

	complete := func(orderId string) {
		_, err := f.svc.CreateOrder(ctx, "worker", orderId, dec("10"), dec("10"))
		require.NoError(t, err)
		_, err = f.svc.StartOrder(ctx, "worker", orderId)
		require.NoError(t, err)
		_, err = f.svc.CompleteOrder(ctx, "worker", orderId)
		require.NoError(t, err)
	}

	// the first completion leaves the edge pending
	complete("order-1")
	edge, err := f.db.GetInviteEdgeByInvitee(ctx, "worker")
	require.NoError(t, err)
	require.False(t, edge.IsValid)

	f.rules.Invite.ValidateOnFirstOrder = true

	// a retry of the first order picks the pending edge up
	_, err = f.svc.CompleteOrder(ctx, "worker", "order-1")
	require.ErrorIs(t, err, store.ErrAlreadyProcessed)
	edge, err = f.db.GetInviteEdgeByInvitee(ctx, "worker")
	require.NoError(t, err)
	assert.True(t, edge.IsValid)

	complete("order-2")
	assert.Len(t, f.entries(t, "inviter", models.EntryInviteReward), 1)

	f.requireInvariants(t, "inviter", "worker")
}

func TestRegisterUser_WithInviteCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inviter := f.user(t, "inviter")

	user, edge, err := f.svc.RegisterUser(ctx, "Dana", "dana@example.com", inviter.InviteCode)
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, user.Id, edge.InviteeId)

	_, _, err = f.svc.RegisterUser(ctx, "Eve", "eve@example.com", "BADCODE1")
	require.ErrorIs(t, err, store.ErrInvalidInviteCode)
	_, err = f.db.GetUserByEmail(ctx, "eve@example.com")
	require.ErrorIs(t, err, store.ErrUserNotFound)
}
