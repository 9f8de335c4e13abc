package formance

import (
	"context"
	"fmt"

	"incentive-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. Every entry is posted with its full context set via
// set_tx_meta() so the Formance transaction is self-describing.
// Platform accounts may overdraft; user accounts may not, so a mirror that
// drifts from the local ledger fails loudly instead of going negative.
// ---------------------------------------------------------------------------

const numscriptFromPlatform = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $entry_id
  string $user_id
  string $kind
  string $related_id
  string $source_user_id
  string $amount_human
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("event_type", $kind)
set_tx_meta("entry_id", $entry_id)
set_tx_meta("user_id", $user_id)
set_tx_meta("related_id", $related_id)
set_tx_meta("source_user_id", $source_user_id)
set_tx_meta("amount_human", $amount_human)
`

const numscriptFromUser = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $entry_id
  string $user_id
  string $kind
  string $related_id
  string $source_user_id
  string $amount_human
}

send [$asset $amount] (
  source = $source
  destination = $destination
)

set_tx_meta("event_type", $kind)
set_tx_meta("entry_id", $entry_id)
set_tx_meta("user_id", $user_id)
set_tx_meta("related_id", $related_id)
set_tx_meta("source_user_id", $source_user_id)
set_tx_meta("amount_human", $amount_human)
`

// posting is one Formance send derived from a ledger entry
type posting struct {
	source       string
	destination  string
	amount       decimal.Decimal
	fromPlatform bool
}

func availableAccount(userId string) string { return "users:" + userId + ":available" }
func frozenAccount(userId string) string    { return "users:" + userId + ":frozen" }
func platformAccount(kind models.EntryKind) string {
	return "platform:" + string(kind)
}

// postingFor maps an entry's available/frozen deltas onto a single send.
// Moves between the two parts of one user stay inside that user's accounts;
// money entering or leaving the user goes through platform:<kind>.
func postingFor(entry models.LedgerEntry) (posting, error) {
	a, f := entry.AvailableDelta, entry.FrozenDelta
	user := entry.UserId
	platform := platformAccount(entry.Kind)

	switch {
	case a.IsNegative() && f.IsPositive() && a.Neg().Equal(f):
		return posting{source: availableAccount(user), destination: frozenAccount(user), amount: f}, nil
	case a.IsPositive() && f.IsNegative() && f.Neg().Equal(a):
		return posting{source: frozenAccount(user), destination: availableAccount(user), amount: a}, nil
	case a.IsPositive() && f.IsZero():
		return posting{source: platform, destination: availableAccount(user), amount: a, fromPlatform: true}, nil
	case a.IsNegative() && f.IsZero():
		return posting{source: availableAccount(user), destination: platform, amount: a.Neg()}, nil
	case a.IsZero() && f.IsNegative():
		return posting{source: frozenAccount(user), destination: platform, amount: f.Neg()}, nil
	default:
		return posting{}, fmt.Errorf("entry %s (%s) has no single-posting form: available %s, frozen %s",
			entry.Id, entry.Kind, a.String(), f.String())
	}
}

// reference is the entry's idempotency key; the ledger rejects a second
// transaction with the same reference as a CONFLICT.
func reference(entry models.LedgerEntry) string {
	return fmt.Sprintf("%s:%s:%s", entry.UserId, entry.RelatedId, entry.Kind)
}

// toSmallestUnit converts a decimal amount to integer minor units at precision
func toSmallestUnit(amount decimal.Decimal, precision int32) (string, error) {
	shifted := amount.Shift(precision)
	if !shifted.IsInteger() {
		return "", fmt.Errorf("amount %s exceeds asset precision %d", amount.String(), precision)
	}
	return shifted.BigInt().String(), nil
}

// Publish posts one committed ledger entry. A CONFLICT means the entry was
// already mirrored and counts as success.
func (s *Service) Publish(ctx context.Context, entry models.LedgerEntry) error {
	p, err := postingFor(entry)
	if err != nil {
		return err
	}
	smallAmt, err := toSmallestUnit(p.amount, s.precision)
	if err != nil {
		return err
	}

	script := numscriptFromUser
	if p.fromPlatform {
		script = numscriptFromPlatform
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(reference(entry)),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":          s.asset,
				"amount":         smallAmt,
				"source":         p.source,
				"destination":    p.destination,
				"entry_id":       entry.Id,
				"user_id":        entry.UserId,
				"kind":           string(entry.Kind),
				"related_id":     entry.RelatedId,
				"source_user_id": entry.SourceUserId,
				"amount_human":   p.amount.String(),
			},
		},
	}
	if !entry.CreatedAt.IsZero() {
		ts := entry.CreatedAt.UTC()
		postTx.Timestamp = &ts
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Entry already mirrored in Formance", zap.String("reference", reference(entry)))
			return nil
		}
		return fmt.Errorf("error mirroring entry %s: %w", entry.Id, err)
	}

	zap.L().Info("Entry mirrored in Formance",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("kind", string(entry.Kind)),
		zap.String("source", p.source),
		zap.String("destination", p.destination),
		zap.String("amount", p.amount.String()))
	return nil
}
