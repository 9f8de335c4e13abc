package api

import (
	"incentive-ledger-go/internal/models"
)

// InviteTierFor returns the highest tier whose threshold is met. The lowest
// tier is the fallback, so a user always has a tier.
func InviteTierFor(tiers []models.InviteTier, validInvites int) models.InviteTier {
	if len(tiers) == 0 {
		return models.InviteTier{}
	}

	best := tiers[0]
	for _, tier := range tiers {
		if tier.MinValidInvites < best.MinValidInvites {
			best = tier
		}
	}
	for _, tier := range tiers {
		if tier.MinValidInvites > validInvites {
			continue
		}
		if tier.MinValidInvites > best.MinValidInvites ||
			(tier.MinValidInvites == best.MinValidInvites && tier.Level > best.Level) {
			best = tier
		}
	}
	return best
}

// NextInviteTier returns the first tier above validInvites, or nil at the top
func NextInviteTier(tiers []models.InviteTier, validInvites int) *models.InviteTier {
	var next *models.InviteTier
	for i := range tiers {
		tier := tiers[i]
		if tier.MinValidInvites <= validInvites {
			continue
		}
		if next == nil || tier.MinValidInvites < next.MinValidInvites {
			next = &tier
		}
	}
	return next
}

// VipTierFor returns the tier for level, falling back to level 0
func VipTierFor(tiers []models.VipTier, level int) (models.VipTier, bool) {
	var fallback models.VipTier
	for _, tier := range tiers {
		if tier.Level == level {
			return tier, true
		}
		if tier.Level == 0 {
			fallback = tier
		}
	}
	return fallback, false
}
