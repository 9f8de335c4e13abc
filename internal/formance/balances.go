package formance

import (
	"context"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetUserBalance returns the mirrored available and frozen balances of a user
func (s *Service) GetUserBalance(ctx context.Context, userId string) (available, frozen decimal.Decimal, err error) {
	zap.L().Debug("Getting user balance from Formance", zap.String("user_id", userId))

	availableVols, err := s.getAccountVolumes(ctx, availableAccount(userId))
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	frozenVols, err := s.getAccountVolumes(ctx, frozenAccount(userId))
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	available = bigIntToDecimal(volumeBalance(availableVols, s.asset), s.precision)
	frozen = bigIntToDecimal(volumeBalance(frozenVols, s.asset), s.precision)
	return available, frozen, nil
}

// ---------- helpers ----------

// getAccountVolumes fetches volumes for a single account; an account the
// ledger has never seen has no volumes.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, precision int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -precision)
}
