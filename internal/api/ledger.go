package api

import (
	"context"
	"fmt"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// unit is one atomic workflow step: a store transaction plus the entries
// it appended.
type unit struct {
	store.Tx
	now     time.Time
	entries []*models.LedgerEntry
}

// posting describes one balance movement and the entry that records it
type posting struct {
	userId       string
	kind         models.EntryKind
	amount       decimal.Decimal
	relatedId    string
	sourceUserId string
	description  string
}

func (u *unit) freeze(ctx context.Context, p posting) (*models.LedgerEntry, error) {
	return u.post(ctx, p, p.amount.Neg(), p.amount)
}

func (u *unit) unfreeze(ctx context.Context, p posting) (*models.LedgerEntry, error) {
	return u.post(ctx, p, p.amount, p.amount.Neg())
}

func (u *unit) credit(ctx context.Context, p posting) (*models.LedgerEntry, error) {
	return u.post(ctx, p, p.amount, decimal.Zero)
}

func (u *unit) debit(ctx context.Context, p posting) (*models.LedgerEntry, error) {
	return u.post(ctx, p, p.amount.Neg(), decimal.Zero)
}

func (u *unit) deductFrozen(ctx context.Context, p posting) (*models.LedgerEntry, error) {
	return u.post(ctx, p, decimal.Zero, p.amount.Neg())
}

// post applies the deltas and appends the paired entry. The entry amount is
// the change of the total balance, or of the available part when the total
// does not move.
func (u *unit) post(ctx context.Context, p posting, availableDelta, frozenDelta decimal.Decimal) (*models.LedgerEntry, error) {
	if !p.amount.IsPositive() || !models.ValidMoneyScale(p.amount) {
		return nil, fmt.Errorf("%w: %s posting of %s", store.ErrInvalidAmount, p.kind, p.amount.String())
	}

	account, err := u.ApplyDelta(ctx, p.userId, availableDelta, frozenDelta)
	if err != nil {
		return nil, err
	}

	amount := availableDelta.Add(frozenDelta)
	if amount.IsZero() {
		amount = availableDelta
	}

	entry := &models.LedgerEntry{
		UserId:         p.userId,
		Kind:           p.kind,
		Amount:         amount,
		AvailableDelta: availableDelta,
		FrozenDelta:    frozenDelta,
		AvailableAfter: account.Available,
		FrozenAfter:    account.Frozen,
		RelatedId:      p.relatedId,
		SourceUserId:   p.sourceUserId,
		Description:    p.description,
		CreatedAt:      u.now,
	}
	if err := u.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}

	u.entries = append(u.entries, entry)
	return entry, nil
}
