package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	errAccountNotLocked = errors.New("account is not locked by this unit of work")
	errUnpairedDelta    = errors.New("balance change without a matching ledger entry")
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// WithAccounts runs fn inside one database transaction while holding the
// per-user locks for userIds. The transaction commits only when fn returns
// nil and every balance change has been paired with a ledger entry.
func (s *Service) WithAccounts(ctx context.Context, userIds []string, fn func(tx store.Tx) error) error {
	ids, release, err := s.locks.lockAll(ctx, userIds)
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to roll back transaction", zap.Error(err))
		}
	}()

	unit := newSqlTx(tx, ids)
	if err := fn(unit); err != nil {
		return err
	}
	if err := unit.checkPaired(); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// sqlTx is the store.Tx handed to WithAccounts callbacks
type sqlTx struct {
	tx     *sql.Tx
	locked map[string]struct{}
	// pending counts ApplyDelta calls not yet matched by AppendEntry, per user
	pending map[string]int
}

func newSqlTx(tx *sql.Tx, lockedIds []string) *sqlTx {
	locked := make(map[string]struct{}, len(lockedIds))
	for _, id := range lockedIds {
		locked[id] = struct{}{}
	}
	return &sqlTx{
		tx:      tx,
		locked:  locked,
		pending: make(map[string]int),
	}
}

func (t *sqlTx) checkPaired() error {
	for userId, n := range t.pending {
		if n != 0 {
			return fmt.Errorf("%w: user %s", errUnpairedDelta, userId)
		}
	}
	return nil
}

func (t *sqlTx) GetAccount(ctx context.Context, userId string) (*models.Account, error) {
	return getAccountOrZero(ctx, t.tx, userId)
}

// ApplyDelta moves the user's available and frozen parts by the given deltas.
// Neither part may go negative.
func (t *sqlTx) ApplyDelta(ctx context.Context, userId string, availableDelta, frozenDelta decimal.Decimal) (*models.Account, error) {
	if _, ok := t.locked[userId]; !ok {
		return nil, fmt.Errorf("%w: %s", errAccountNotLocked, userId)
	}

	account, err := getAccount(ctx, t.tx, userId)
	if errors.Is(err, store.ErrNotFound) {
		account, err = createAccount(ctx, t.tx, userId)
	}
	if err != nil {
		return nil, err
	}

	newAvailable := account.Available.Add(availableDelta)
	newFrozen := account.Frozen.Add(frozenDelta)
	if newAvailable.IsNegative() || newFrozen.IsNegative() {
		return nil, fmt.Errorf("%w: user %s available %s frozen %s", store.ErrInsufficientFunds,
			userId, account.Available.String(), account.Frozen.String())
	}

	now := time.Now().UTC()
	result, err := t.tx.ExecContext(ctx, queryUpdateAccount, newAvailable, newFrozen, now, userId, account.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("account update failed - %w", store.ErrConcurrentModification)
	}

	t.pending[userId]++

	return &models.Account{
		UserId:    userId,
		Available: newAvailable,
		Frozen:    newFrozen,
		Version:   account.Version + 1,
		UpdatedAt: now,
	}, nil
}

// AppendEntry records an immutable ledger entry and queues it for the relay.
// A second entry with the same (user, related id, kind) fails with ErrDuplicateEntry.
func (t *sqlTx) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if !entry.Kind.Valid() {
		return fmt.Errorf("unknown entry kind %q", entry.Kind)
	}
	if entry.RelatedId == "" {
		return fmt.Errorf("ledger entry for %s has no related id", entry.UserId)
	}
	if entry.Id == "" {
		entry.Id = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, queryInsertEntry,
		entry.Id, entry.UserId, string(entry.Kind), entry.Amount,
		entry.AvailableDelta, entry.FrozenDelta, entry.AvailableAfter, entry.FrozenAfter,
		entry.RelatedId, entry.SourceUserId, entry.Description, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s for user %s", store.ErrDuplicateEntry, entry.Kind, entry.RelatedId, entry.UserId)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode outbox payload: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, queryInsertOutbox, uuid.New().String(), entry.Id, payload, entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}

	t.pending[entry.UserId]--

	zap.L().Debug("Ledger entry appended",
		zap.String("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("kind", string(entry.Kind)),
		zap.String("amount", entry.Amount.String()),
		zap.String("related_id", entry.RelatedId))

	return nil
}

func (t *sqlTx) ExistsForRelated(ctx context.Context, userId, relatedId string, kind models.EntryKind) (bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, queryCheckRelatedEntry, userId, relatedId, string(kind)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check related entry: %w", err)
	}
	return true, nil
}

// ListEntries returns one page of the user's entries, newest first, and the
// total number of entries matching the filter.
func (s *Service) ListEntries(ctx context.Context, params store.ListEntriesParams) ([]models.LedgerEntry, int, error) {
	where, args := entryFilter(params.UserId, params.Filter)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	query := queryEntryColumns + where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, params.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, total, nil
}

// SumEntries adds up the amount of every entry of the given kinds for a user
func (s *Service) SumEntries(ctx context.Context, userId string, kinds []models.EntryKind) (decimal.Decimal, error) {
	if len(kinds) == 0 {
		return decimal.Zero, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(kinds)), ",")
	args := []any{userId}
	for _, kind := range kinds {
		args = append(args, string(kind))
	}

	query := "SELECT amount FROM ledger_entries WHERE user_id = ? AND kind IN (" + placeholders + ")"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query entry amounts: %w", err)
	}
	defer rows.Close()

	return sumAmounts(rows)
}

func entryFilter(userId string, filter models.HistoryFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userId}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, filter.Until.UTC())
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var kind string
	err := row.Scan(&entry.Id, &entry.UserId, &kind, &entry.Amount,
		&entry.AvailableDelta, &entry.FrozenDelta, &entry.AvailableAfter, &entry.FrozenAfter,
		&entry.RelatedId, &entry.SourceUserId, &entry.Description, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	entry.Kind = models.EntryKind(kind)
	return &entry, nil
}

// sumAmounts adds up a single decimal column in Go; SQLite would sum TEXT as float
func sumAmounts(rows *sql.Rows) (decimal.Decimal, error) {
	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating amounts: %w", err)
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
