package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestActiveOrder_WinsBoundary(t *testing.T) {
	entry := decimal.NewFromInt(100)
	tests := []struct {
		dir   Direction
		price string
		want  bool
	}{
		{Call, "100", true},
		{Call, "100.01", true},
		{Call, "99.99", false},
		{Put, "100", true},
		{Put, "99.99", true},
		{Put, "100.01", false},
	}
	for _, tt := range tests {
		o := ActiveOrder{Direction: tt.dir, EntryPrice: entry}
		if got := o.Wins(decimal.RequireFromString(tt.price)); got != tt.want {
			t.Errorf("%s @ %s: got %v, want %v", tt.dir, tt.price, got, tt.want)
		}
	}
}

func TestPriceFromFloat_RejectsNonFinite(t *testing.T) {
	if _, err := PriceFromFloat(math.NaN()); !errors.Is(err, ErrNonFinitePrice) {
		t.Errorf("NaN: expected ErrNonFinitePrice, got %v", err)
	}
	if _, err := PriceFromFloat(math.Inf(1)); !errors.Is(err, ErrNonFinitePrice) {
		t.Errorf("+Inf: expected ErrNonFinitePrice, got %v", err)
	}
	d, err := PriceFromFloat(101.25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("101.25")) {
		t.Errorf("expected 101.25, got %s", d)
	}
}

func TestSnapshot_Versioning(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := NewHistorySnapshot([]TradeHistoryEntry{{ID: "a", Outcome: OutcomeWin}}, ts)
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != CurrentSnapshotVersion || len(got.TradeHistory) != 1 || got.TradeHistory[0].ID != "a" {
		t.Errorf("unexpected snapshot: %+v", got)
	}

	// Unversioned payloads are read as v1.
	legacy, err := DecodeSnapshot([]byte(`{"tradeHistory":[]}`))
	if err != nil || legacy.Version != 1 {
		t.Errorf("legacy decode: version=%d err=%v", legacy.Version, err)
	}

	if _, err := DecodeSnapshot([]byte(`{"version":99}`)); !errors.Is(err, ErrSnapshotVersion) {
		t.Errorf("expected ErrSnapshotVersion, got %v", err)
	}
}

func TestVariant_StyleFallback(t *testing.T) {
	if !VariantWarning.Valid() || Variant("loud").Valid() {
		t.Fatal("variant validity mismatch")
	}
	if Variant("loud").Style() != VariantInfo.Style() {
		t.Error("unknown variant should fall back to info style")
	}
	n := Notification{Variant: VariantSuccess, Spotlight: true}
	if n.DisplayFor() != 6200*time.Millisecond {
		t.Errorf("spotlight display: got %v", n.DisplayFor())
	}
}
