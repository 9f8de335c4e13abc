package api

import (
	"context"
	"fmt"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UpgradeVip debits the target tier's price and starts a new VIP period.
// The target must be a configured level above the user's effective level.
func (s *LedgerService) UpgradeVip(ctx context.Context, userId string, targetLevel int) (*models.VipView, error) {
	view, err := s.upgradeVip(ctx, userId, targetLevel)
	finish("vip", "upgrade", err, zap.String("user_id", userId), zap.Int("target_level", targetLevel))
	return view, err
}

func (s *LedgerService) upgradeVip(ctx context.Context, userId string, targetLevel int) (*models.VipView, error) {
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}

	target, ok := VipTierFor(s.rules.Vip, targetLevel)
	if !ok || targetLevel <= 0 {
		return nil, fmt.Errorf("%w: vip level %d is not offered", store.ErrInvalidTarget, targetLevel)
	}

	var view *models.VipView
	err := s.withAccounts(ctx, []string{userId}, func(u *unit) error {
		status, err := u.GetVipStatus(ctx, userId)
		if err != nil {
			return err
		}
		if current := status.EffectiveLevel(u.now); targetLevel <= current {
			return fmt.Errorf("%w: vip level %d is not above current level %d", store.ErrInvalidTarget, targetLevel, current)
		}

		if target.Price.IsPositive() {
			if _, err := u.debit(ctx, posting{
				userId:      userId,
				kind:        models.EntryVipUpgrade,
				amount:      target.Price,
				relatedId:   "vip-" + uuid.New().String(),
				description: fmt.Sprintf("vip upgrade to %s (level %d)", target.Name, target.Level),
			}); err != nil {
				return err
			}
		}

		expiresAt := u.now.Add(time.Duration(target.DurationDays) * 24 * time.Hour)
		status.Level = target.Level
		status.ExpiresAt = &expiresAt
		status.UpdatedAt = u.now
		if err := u.SaveVipStatus(ctx, status); err != nil {
			return err
		}

		view = &models.VipView{
			UserId:    userId,
			Level:     target.Level,
			Active:    true,
			ExpiresAt: &expiresAt,
			Tier:      target,
		}
		return nil
	})
	return view, err
}

// GetVipStatus returns the user's effective VIP profile; an expired VIP reads as level 0
func (s *LedgerService) GetVipStatus(ctx context.Context, userId string) (*models.VipView, error) {
	if err := s.requireUser(ctx, userId); err != nil {
		return nil, err
	}

	status, err := s.store.GetVipStatus(ctx, userId)
	if err != nil {
		return nil, err
	}

	level := status.EffectiveLevel(s.clock())
	tier, _ := VipTierFor(s.rules.Vip, level)
	view := &models.VipView{
		UserId: userId,
		Level:  level,
		Active: level > 0,
		Tier:   tier,
	}
	if level > 0 {
		view.ExpiresAt = status.ExpiresAt
	}
	return view, nil
}
