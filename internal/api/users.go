package api

import (
	"context"
	"fmt"
	"strings"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterUser creates a user and, when inviteCode is set, links them to the
// code's owner. The code is checked before the user is created.
func (s *LedgerService) RegisterUser(ctx context.Context, name, email, inviteCode string) (*models.User, *models.InviteEdge, error) {
	name, email, inviteCode = strings.TrimSpace(name), strings.TrimSpace(email), strings.TrimSpace(inviteCode)
	if name == "" || email == "" {
		return nil, nil, fmt.Errorf("name and email are required: %w", store.ErrInvalidTarget)
	}

	if inviteCode != "" {
		if _, err := s.store.ResolveInviteCode(ctx, inviteCode); err != nil {
			zap.L().Warn("Registration with unusable invite code", zap.String("email", email), zap.Error(err))
			return nil, nil, err
		}
	}

	user, err := s.store.CreateUser(ctx, uuid.New().String(), name, email)
	if err != nil {
		return nil, nil, err
	}
	if inviteCode == "" {
		return user, nil, nil
	}

	edge, err := s.RegisterInvite(ctx, user.Id, inviteCode)
	if err != nil {
		return user, nil, err
	}
	return user, edge, nil
}
