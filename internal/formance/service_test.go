package formance

import (
	"math/big"
	"testing"

	"incentive-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestAssetPrecision(t *testing.T) {
	tests := []struct {
		asset   string
		want    int32
		wantErr bool
	}{
		{"USD/2", 2, false},
		{"USDT/6", 6, false},
		{"EUR", 0, true},
		{"USD/x", 0, true},
		{"USD/-1", 0, true},
	}
	for _, tt := range tests {
		got, err := assetPrecision(tt.asset)
		if (err != nil) != tt.wantErr {
			t.Errorf("assetPrecision(%q) error = %v, wantErr %v", tt.asset, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("assetPrecision(%q) = %d, want %d", tt.asset, got, tt.want)
		}
	}
}

func TestPostingFor(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name         string
		kind         models.EntryKind
		available    string
		frozen       string
		source       string
		destination  string
		amount       string
		fromPlatform bool
	}{
		{"recharge", models.EntryRecharge, "100", "0", "platform:recharge", "users:u1:available", "100", true},
		{"freeze", models.EntryOrderFreeze, "-40", "40", "users:u1:available", "users:u1:frozen", "40", false},
		{"release", models.EntryOrderRelease, "40", "-40", "users:u1:frozen", "users:u1:available", "40", false},
		{"commission", models.EntryCommission, "10.5", "0", "platform:commission", "users:u1:available", "10.5", true},
		{"withdraw", models.EntryWithdraw, "0", "-60", "users:u1:frozen", "platform:withdraw", "60", false},
		{"vip", models.EntryVipUpgrade, "-100", "0", "users:u1:available", "platform:vip_upgrade", "100", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := postingFor(models.LedgerEntry{
				Id:             "e1",
				UserId:         "u1",
				Kind:           tt.kind,
				AvailableDelta: d(tt.available),
				FrozenDelta:    d(tt.frozen),
			})
			if err != nil {
				t.Fatalf("postingFor failed: %v", err)
			}
			if p.source != tt.source || p.destination != tt.destination {
				t.Errorf("got %s -> %s, want %s -> %s", p.source, p.destination, tt.source, tt.destination)
			}
			if !p.amount.Equal(d(tt.amount)) {
				t.Errorf("amount = %s, want %s", p.amount, tt.amount)
			}
			if p.fromPlatform != tt.fromPlatform {
				t.Errorf("fromPlatform = %v, want %v", p.fromPlatform, tt.fromPlatform)
			}
		})
	}
}

func TestPostingFor_RejectsSplitDeltas(t *testing.T) {
	_, err := postingFor(models.LedgerEntry{
		Id:             "e1",
		UserId:         "u1",
		Kind:           models.EntryCommission,
		AvailableDelta: decimal.NewFromInt(5),
		FrozenDelta:    decimal.NewFromInt(5),
	})
	if err == nil {
		t.Error("expected an error for deltas that move both parts the same way")
	}
}

func TestReference(t *testing.T) {
	got := reference(models.LedgerEntry{UserId: "u1", RelatedId: "order-7", Kind: models.EntryCommission})
	if got != "u1:order-7:commission" {
		t.Errorf("reference = %q", got)
	}
}

func TestToSmallestUnit(t *testing.T) {
	got, err := toSmallestUnit(decimal.RequireFromString("12.34"), 2)
	if err != nil || got != "1234" {
		t.Errorf("toSmallestUnit(12.34, 2) = %q, %v", got, err)
	}
	if _, err := toSmallestUnit(decimal.RequireFromString("0.001"), 2); err == nil {
		t.Error("expected an error for sub-precision amounts")
	}
}

func TestBigIntToDecimal(t *testing.T) {
	result := bigIntToDecimal(big.NewInt(1234), 2)
	if !result.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("expected 12.34, got %s", result.String())
	}

	// nil should return zero
	result = bigIntToDecimal(nil, 2)
	if !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"USD/2": {Input: big.NewInt(500), Output: big.NewInt(120)},
	}
	if got := volumeBalance(vols, "USD/2"); got == nil || got.Int64() != 380 {
		t.Errorf("volumeBalance = %v, want 380", got)
	}
	if got := volumeBalance(vols, "EUR/2"); got != nil {
		t.Errorf("expected nil for a missing asset, got %v", got)
	}
}

func TestIsConflictError(t *testing.T) {
	// nil error should not be a conflict
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}
