package api

import (
	"context"
	"errors"
	"fmt"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxInviteDepth bounds the upward walk used to reject invite cycles
const maxInviteDepth = 1000

// RegisterInvite links inviteeId to the owner of inviteCode. The edge starts
// unvalidated and carries the reward of the inviter's current tier.
func (s *LedgerService) RegisterInvite(ctx context.Context, inviteeId, inviteCode string) (*models.InviteEdge, error) {
	edge, err := s.registerInvite(ctx, inviteeId, inviteCode)

	fields := []zap.Field{zap.String("invitee_id", inviteeId), zap.String("invite_code", inviteCode)}
	if edge != nil {
		fields = append(fields, zap.String("edge_id", edge.Id), zap.String("inviter_id", edge.InviterId))
	}
	finish("invite", "register", err, fields...)
	return edge, err
}

func (s *LedgerService) registerInvite(ctx context.Context, inviteeId, inviteCode string) (*models.InviteEdge, error) {
	if err := s.requireUser(ctx, inviteeId); err != nil {
		return nil, err
	}
	inviter, err := s.store.ResolveInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, err
	}
	if inviter.Id == inviteeId {
		return nil, store.ErrSelfInvite
	}

	var edge *models.InviteEdge
	err = s.withAccounts(ctx, []string{inviter.Id, inviteeId}, func(u *unit) error {
		existing, err := u.GetInviteEdgeByInvitee(ctx, inviteeId)
		if err == nil {
			edge = existing
			return fmt.Errorf("%w: %s is already invited by %s", store.ErrAlreadyInvited, inviteeId, existing.InviterId)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := s.checkInviteCycle(ctx, u, inviter.Id, inviteeId); err != nil {
			return err
		}

		validInvites, err := u.CountValidInvites(ctx, inviter.Id)
		if err != nil {
			return err
		}
		tier := InviteTierFor(s.rules.Invite.Tiers, validInvites)

		edge = &models.InviteEdge{
			Id:         uuid.New().String(),
			InviterId:  inviter.Id,
			InviteeId:  inviteeId,
			InviteCode: inviter.InviteCode,
			Reward:     tier.FlatReward,
			CreatedAt:  u.now,
		}
		return u.InsertInviteEdge(ctx, edge)
	})
	return edge, err
}

// checkInviteCycle walks up from the inviter and fails if it reaches the invitee
func (s *LedgerService) checkInviteCycle(ctx context.Context, u *unit, inviterId, inviteeId string) error {
	current := inviterId
	for depth := 0; depth < maxInviteDepth; depth++ {
		parent, err := u.GetInviteEdgeByInvitee(ctx, current)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if parent.InviterId == inviteeId {
			return fmt.Errorf("%w: %s is upstream of %s", store.ErrSelfInvite, inviteeId, inviterId)
		}
		current = parent.InviterId
	}
	return fmt.Errorf("invite chain above %s is deeper than %d", inviterId, maxInviteDepth)
}

// ValidateInvite marks the edge valid, pays the edge reward to the inviter and,
// if the new valid-invite count lifts the inviter into a higher tier, pays the
// difference between the two tiers' flat rewards.
func (s *LedgerService) ValidateInvite(ctx context.Context, edgeId string) (*models.InviteEdge, error) {
	edge, err := s.validateInvite(ctx, edgeId)
	finish("invite", "validate", err, zap.String("edge_id", edgeId))
	return edge, err
}

func (s *LedgerService) validateInvite(ctx context.Context, edgeId string) (*models.InviteEdge, error) {
	current, err := s.store.GetInviteEdge(ctx, edgeId)
	if err != nil {
		return nil, err
	}

	var edge *models.InviteEdge
	err = s.withAccounts(ctx, []string{current.InviterId}, func(u *unit) error {
		e, err := u.GetInviteEdge(ctx, edgeId)
		if err != nil {
			return err
		}
		edge = e
		if e.IsValid {
			return fmt.Errorf("invite edge %s: %w", edgeId, store.ErrAlreadyValidated)
		}

		before, err := u.CountValidInvites(ctx, e.InviterId)
		if err != nil {
			return err
		}
		if err := u.MarkInviteEdgeValid(ctx, e.Id, u.now); err != nil {
			return err
		}
		now := u.now
		e.IsValid = true
		e.ValidatedAt = &now

		if e.Reward.IsPositive() {
			if _, err := u.credit(ctx, posting{
				userId:       e.InviterId,
				kind:         models.EntryInviteReward,
				amount:       e.Reward,
				relatedId:    e.Id,
				sourceUserId: e.InviteeId,
				description:  "invite reward",
			}); err != nil {
				return err
			}
		}

		return s.payTierUpgrade(ctx, u, e, before, before+1)
	})
	return edge, err
}

// payTierUpgrade credits newTier.FlatReward - oldTier.FlatReward once per
// reached tier. A lower or equal new tier pays nothing.
func (s *LedgerService) payTierUpgrade(ctx context.Context, u *unit, e *models.InviteEdge, before, after int) error {
	oldTier := InviteTierFor(s.rules.Invite.Tiers, before)
	newTier := InviteTierFor(s.rules.Invite.Tiers, after)
	if newTier.Level <= oldTier.Level {
		return nil
	}

	bonus := newTier.FlatReward.Sub(oldTier.FlatReward)
	if !bonus.IsPositive() {
		return nil
	}

	relatedId := fmt.Sprintf("invite-tier-%d", newTier.Level)
	paid, err := u.ExistsForRelated(ctx, e.InviterId, relatedId, models.EntryLevelUpgrade)
	if err != nil {
		return err
	}
	if paid {
		return nil
	}

	_, err = u.credit(ctx, posting{
		userId:       e.InviterId,
		kind:         models.EntryLevelUpgrade,
		amount:       bonus,
		relatedId:    relatedId,
		sourceUserId: e.InviteeId,
		description:  fmt.Sprintf("invite tier %d reached", newTier.Level),
	})
	if err == nil {
		zap.L().Info("Inviter reached a new tier",
			zap.String("user_id", e.InviterId),
			zap.Int("old_level", oldTier.Level),
			zap.Int("new_level", newTier.Level),
			zap.String("bonus", bonus.String()))
	}
	return err
}

// payInviterCommission is the commission cascade: it pays the invitee's valid
// inviter a share of the order earnings at the inviter's current tier rate.
// The entry is keyed by the order id, so each order pays at most once.
func (s *LedgerService) payInviterCommission(ctx context.Context, evt models.OrderCompletedEvent) error {
	if !evt.Earnings.IsPositive() {
		return nil
	}

	edge, err := s.store.GetInviteEdgeByInvitee(ctx, evt.UserId)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !edge.IsValid {
		return nil
	}

	var payout decimal.Decimal
	err = s.withAccounts(ctx, []string{edge.InviterId}, func(u *unit) error {
		paid, err := u.ExistsForRelated(ctx, edge.InviterId, evt.OrderId, models.EntryCommission)
		if err != nil || paid {
			return err
		}

		validInvites, err := u.CountValidInvites(ctx, edge.InviterId)
		if err != nil {
			return err
		}
		tier := InviteTierFor(s.rules.Invite.Tiers, validInvites)
		payout = evt.Earnings.Mul(tier.CommissionPercent).Round(models.MoneyPrecision)
		if !payout.IsPositive() {
			return nil
		}

		_, err = u.credit(ctx, posting{
			userId:       edge.InviterId,
			kind:         models.EntryCommission,
			amount:       payout,
			relatedId:    evt.OrderId,
			sourceUserId: evt.UserId,
			description:  fmt.Sprintf("invite commission at tier %d", tier.Level),
		})
		return err
	})

	finish("commission", "cascade", err,
		zap.String("order_id", evt.OrderId),
		zap.String("invitee_id", evt.UserId),
		zap.String("inviter_id", edge.InviterId),
		zap.String("payout", payout.String()))
	return err
}

// validateInviteOnCompletedOrder validates the invitee's edge once they have a
// completed order. Any completed order qualifies, so an edge left pending by a
// failed earlier attempt is picked up by the next completion or retry.
func (s *LedgerService) validateInviteOnCompletedOrder(ctx context.Context, evt models.OrderCompletedEvent) error {
	if !s.rules.Invite.ValidateOnFirstOrder {
		return nil
	}

	edge, err := s.store.GetInviteEdgeByInvitee(ctx, evt.UserId)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if edge.IsValid {
		return nil
	}

	var completed int
	err = s.withAccounts(ctx, []string{evt.UserId}, func(u *unit) error {
		n, err := u.CountCompletedOrders(ctx, evt.UserId)
		completed = n
		return err
	})
	if err != nil {
		return err
	}
	if completed == 0 {
		return nil
	}

	_, err = s.ValidateInvite(ctx, edge.Id)
	if errors.Is(err, store.ErrAlreadyValidated) {
		return nil
	}
	return err
}

func (s *LedgerService) GetInviteEdge(ctx context.Context, edgeId string) (*models.InviteEdge, error) {
	return s.store.GetInviteEdge(ctx, edgeId)
}

// GetInviteStats summarizes the user's invite graph position, tier and earnings
func (s *LedgerService) GetInviteStats(ctx context.Context, userId string) (*models.InviteStats, error) {
	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}

	edges, err := s.store.ListInviteEdges(ctx, userId)
	if err != nil {
		return nil, err
	}

	stats := &models.InviteStats{
		UserId:       userId,
		InviteCode:   user.InviteCode,
		TotalInvites: len(edges),
	}
	for _, edge := range edges {
		if edge.IsValid {
			stats.ValidInvites++
		}
	}
	stats.PendingInvites = stats.TotalInvites - stats.ValidInvites
	stats.CurrentTier = InviteTierFor(s.rules.Invite.Tiers, stats.ValidInvites)
	if next := NextInviteTier(s.rules.Invite.Tiers, stats.ValidInvites); next != nil {
		stats.NextTier = next
		stats.InvitesToNext = next.MinValidInvites - stats.ValidInvites
	}

	if parent, err := s.store.GetInviteEdgeByInvitee(ctx, userId); err == nil {
		stats.InviterId = parent.InviterId
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	stats.RewardEarned, err = s.store.SumEntries(ctx, userId, []models.EntryKind{models.EntryInviteReward, models.EntryLevelUpgrade})
	if err != nil {
		return nil, err
	}
	stats.CommissionEarned, err = s.sumInviteCommission(ctx, userId)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// sumInviteCommission adds up commission entries that came from invitees
func (s *LedgerService) sumInviteCommission(ctx context.Context, userId string) (decimal.Decimal, error) {
	total := decimal.Zero
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		entries, _, err := s.store.ListEntries(ctx, store.ListEntriesParams{
			UserId: userId,
			Filter: models.HistoryFilter{Kind: models.EntryCommission},
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return decimal.Zero, err
		}
		for _, entry := range entries {
			if entry.SourceUserId != "" {
				total = total.Add(entry.Amount)
			}
		}
		if len(entries) < pageSize {
			return total, nil
		}
	}
}
