package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"incentive-ledger-go/internal/models"
	"incentive-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) *Service {
	t.Helper()

	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)

	return service
}

func credit(t *testing.T, s *Service, userId, relatedId string, amount decimal.Decimal) {
	t.Helper()

	err := s.WithAccounts(context.Background(), []string{userId}, func(tx store.Tx) error {
		account, err := tx.ApplyDelta(context.Background(), userId, amount, decimal.Zero)
		if err != nil {
			return err
		}
		return tx.AppendEntry(context.Background(), &models.LedgerEntry{
			UserId:         userId,
			Kind:           models.EntryRecharge,
			Amount:         amount,
			AvailableDelta: amount,
			FrozenDelta:    decimal.Zero,
			AvailableAfter: account.Available,
			FrozenAfter:    account.Frozen,
			RelatedId:      relatedId,
		})
	})
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
}

func freeze(ctx context.Context, s *Service, userId, relatedId string, amount decimal.Decimal) error {
	return s.WithAccounts(ctx, []string{userId}, func(tx store.Tx) error {
		account, err := tx.ApplyDelta(ctx, userId, amount.Neg(), amount)
		if err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &models.LedgerEntry{
			UserId:         userId,
			Kind:           models.EntryOrderFreeze,
			Amount:         amount.Neg(),
			AvailableDelta: amount.Neg(),
			FrozenDelta:    amount,
			AvailableAfter: account.Available,
			FrozenAfter:    account.Frozen,
			RelatedId:      relatedId,
		})
	})
}

func TestWithAccounts_CreditAndFreeze(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	credit(t, service, "user1", "rc-1", decimal.NewFromInt(100))
	if err := freeze(ctx, service, "user1", "order-1", decimal.NewFromInt(30)); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}

	account, err := service.GetAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.Available.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Expected available 70, got %s", account.Available.String())
	}
	if !account.Frozen.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected frozen 30, got %s", account.Frozen.String())
	}
	if !account.Total().Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected total 100, got %s", account.Total().String())
	}

	if err := service.ReconcileAccount(ctx, "user1"); err != nil {
		t.Errorf("ReconcileAccount failed: %v", err)
	}
}

func TestWithAccounts_InsufficientFundsRollsBack(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	credit(t, service, "user1", "rc-1", decimal.NewFromInt(10))

	err := freeze(ctx, service, "user1", "order-1", decimal.NewFromInt(11))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	account, _ := service.GetAccount(ctx, "user1")
	if !account.Available.Equal(decimal.NewFromInt(10)) || !account.Frozen.IsZero() {
		t.Errorf("Expected untouched account, got available %s frozen %s", account.Available, account.Frozen)
	}

	_, total, err := service.ListEntries(ctx, store.ListEntriesParams{UserId: "user1"})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 entry, got %d", total)
	}
}

func TestWithAccounts_UnpairedDeltaRejected(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	err := service.WithAccounts(ctx, []string{"user1"}, func(tx store.Tx) error {
		_, err := tx.ApplyDelta(ctx, "user1", decimal.NewFromInt(5), decimal.Zero)
		return err
	})
	if !errors.Is(err, errUnpairedDelta) {
		t.Fatalf("Expected errUnpairedDelta, got %v", err)
	}

	account, _ := service.GetAccount(ctx, "user1")
	if !account.Available.IsZero() {
		t.Errorf("Expected rollback, got available %s", account.Available)
	}
}

func TestWithAccounts_UnlockedAccountRejected(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	err := service.WithAccounts(ctx, []string{"user1"}, func(tx store.Tx) error {
		_, err := tx.ApplyDelta(ctx, "user2", decimal.NewFromInt(5), decimal.Zero)
		return err
	})
	if !errors.Is(err, errAccountNotLocked) {
		t.Fatalf("Expected errAccountNotLocked, got %v", err)
	}
}

func TestAppendEntry_DuplicateRelatedId(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	credit(t, service, "user1", "rc-1", decimal.NewFromInt(10))

	err := service.WithAccounts(ctx, []string{"user1"}, func(tx store.Tx) error {
		exists, err := tx.ExistsForRelated(ctx, "user1", "rc-1", models.EntryRecharge)
		if err != nil {
			return err
		}
		if !exists {
			t.Error("Expected existing entry for rc-1")
		}

		account, err := tx.ApplyDelta(ctx, "user1", decimal.NewFromInt(10), decimal.Zero)
		if err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &models.LedgerEntry{
			UserId:         "user1",
			Kind:           models.EntryRecharge,
			Amount:         decimal.NewFromInt(10),
			AvailableDelta: decimal.NewFromInt(10),
			AvailableAfter: account.Available,
			FrozenAfter:    account.Frozen,
			RelatedId:      "rc-1",
		})
	})
	if !errors.Is(err, store.ErrDuplicateEntry) {
		t.Fatalf("Expected ErrDuplicateEntry, got %v", err)
	}

	account, _ := service.GetAccount(ctx, "user1")
	if !account.Available.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected balance 10 after rolled back duplicate, got %s", account.Available)
	}
}

func TestAppendEntry_SameRelatedIdOtherUser(t *testing.T) {
	service := setupTestDb(t)

	credit(t, service, "user1", "order-1", decimal.NewFromInt(10))
	credit(t, service, "user2", "order-1", decimal.NewFromInt(10))

	ctx := context.Background()
	for _, userId := range []string{"user1", "user2"} {
		account, _ := service.GetAccount(ctx, userId)
		if !account.Available.Equal(decimal.NewFromInt(10)) {
			t.Errorf("Expected %s balance 10, got %s", userId, account.Available)
		}
	}
}

func TestWithAccounts_ConcurrentFreezesNeverOverdraw(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	credit(t, service, "user1", "rc-1", decimal.NewFromInt(10))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := freeze(ctx, service, "user1", "order-"+string(rune('a'+i)), decimal.NewFromInt(1))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, store.ErrInsufficientFunds) {
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("Expected 10 successful freezes, got %d", succeeded)
	}

	account, _ := service.GetAccount(ctx, "user1")
	if !account.Available.IsZero() || !account.Frozen.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected available 0 frozen 10, got %s / %s", account.Available, account.Frozen)
	}
	if err := service.ReconcileAccount(ctx, "user1"); err != nil {
		t.Errorf("ReconcileAccount failed: %v", err)
	}
}

func TestListEntries_FilterAndPaging(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	for _, id := range []string{"rc-1", "rc-2", "rc-3"} {
		credit(t, service, "user1", id, decimal.NewFromInt(10))
	}
	if err := freeze(ctx, service, "user1", "order-1", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}

	entries, total, err := service.ListEntries(ctx, store.ListEntriesParams{UserId: "user1", Limit: 2})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if total != 4 {
		t.Errorf("Expected total 4, got %d", total)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != models.EntryOrderFreeze {
		t.Errorf("Expected newest entry first, got %s", entries[0].Kind)
	}

	entries, total, err = service.ListEntries(ctx, store.ListEntriesParams{
		UserId: "user1",
		Filter: models.HistoryFilter{Kind: models.EntryRecharge},
	})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if total != 3 || len(entries) != 3 {
		t.Errorf("Expected 3 recharge entries, got total %d len %d", total, len(entries))
	}

	_, total, err = service.ListEntries(ctx, store.ListEntriesParams{
		UserId: "user1",
		Filter: models.HistoryFilter{Since: time.Now().Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if total != 0 {
		t.Errorf("Expected no future entries, got %d", total)
	}
}

func TestSumEntries(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	credit(t, service, "user1", "rc-1", decimal.RequireFromString("10.25"))
	credit(t, service, "user1", "rc-2", decimal.RequireFromString("0.75"))

	sum, err := service.SumEntries(ctx, "user1", []models.EntryKind{models.EntryRecharge})
	if err != nil {
		t.Fatalf("SumEntries failed: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(11)) {
		t.Errorf("Expected 11, got %s", sum.String())
	}

	sum, err = service.SumEntries(ctx, "user1", []models.EntryKind{models.EntryCommission})
	if err != nil {
		t.Fatalf("SumEntries failed: %v", err)
	}
	if !sum.IsZero() {
		t.Errorf("Expected 0, got %s", sum.String())
	}
}
