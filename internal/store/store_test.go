package store

import (
	"errors"
	"testing"
)

func TestSentinelErrorWrapping(t *testing.T) {
	if !errors.Is(ErrAlreadyValidated, ErrAlreadyProcessed) {
		t.Error("expected ErrAlreadyValidated to match ErrAlreadyProcessed")
	}
	if !errors.Is(ErrUserNotFound, ErrNotFound) {
		t.Error("expected ErrUserNotFound to match ErrNotFound")
	}
	if errors.Is(ErrInsufficientFunds, ErrNotFound) {
		t.Error("unrelated sentinels must not match")
	}
}

// Compile-time check that the interfaces are importable and usable.
func TestLedgerStoreInterfaceExists(t *testing.T) {
	var _ LedgerStore
	var _ Tx
	_ = ListEntriesParams{}
}
