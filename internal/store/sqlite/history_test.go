package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"botrader/internal/model"
)

func openTemp(t *testing.T, ns string) *HistoryStore {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "history.db"), Namespace: ns})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id string, closed time.Time, outcome model.Outcome, profit string) model.TradeHistoryEntry {
	return model.TradeHistoryEntry{
		ID:         id,
		Symbol:     "BTCUSDT",
		Direction:  model.Call,
		Amount:     decimal.NewFromInt(50),
		EntryPrice: decimal.RequireFromString("100.5"),
		ExitPrice:  decimal.RequireFromString("101"),
		Payout:     decimal.RequireFromString("0.85"),
		OpenedAt:   closed.Add(-time.Minute),
		Expiry:     closed,
		ClosedAt:   closed,
		Outcome:    outcome,
		Profit:     decimal.RequireFromString(profit),
	}
}

func TestHistoryStore_LoadEmpty(t *testing.T) {
	s := openTemp(t, "")
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Version != model.CurrentSnapshotVersion || len(snap.TradeHistory) != 0 {
		t.Errorf("expected empty current-version snapshot, got %+v", snap)
	}
}

func TestHistoryStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, "")
	at := time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC)

	want := model.NewHistorySnapshot([]model.TradeHistoryEntry{
		entry("b", at.Add(time.Minute), model.OutcomeLoss, "-50"),
		entry("a", at, model.OutcomeWin, "42.5"),
	}, at.Add(2*time.Minute))
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.TradeHistory) != 2 || got.TradeHistory[0].ID != "b" {
		t.Fatalf("unexpected history %+v", got.TradeHistory)
	}
	if !got.TradeHistory[1].Profit.Equal(decimal.RequireFromString("42.5")) {
		t.Errorf("profit not preserved: %s", got.TradeHistory[1].Profit)
	}
	if !got.TradeHistory[1].ClosedAt.Equal(at) {
		t.Errorf("closedAt not preserved: %v", got.TradeHistory[1].ClosedAt)
	}

	n, err := s.RowCount(ctx)
	if err != nil || n != 2 {
		t.Errorf("expected 2 mirrored rows, got %d (%v)", n, err)
	}
	savedAt, err := s.SavedAt(ctx)
	if err != nil || !savedAt.Equal(at.Add(2*time.Minute)) {
		t.Errorf("unexpected savedAt %v (%v)", savedAt, err)
	}
}

func TestHistoryStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, "")
	at := time.Now().UTC()

	_ = s.Save(ctx, model.NewHistorySnapshot([]model.TradeHistoryEntry{entry("a", at, model.OutcomeWin, "1"), entry("b", at, model.OutcomeWin, "1")}, at))
	if err := s.Save(ctx, model.NewHistorySnapshot(nil, at)); err != nil {
		t.Fatalf("save empty: %v", err)
	}

	snap, _ := s.Load(ctx)
	if len(snap.TradeHistory) != 0 {
		t.Errorf("expected cleared history, got %d entries", len(snap.TradeHistory))
	}
	if n, _ := s.RowCount(ctx); n != 0 {
		t.Errorf("expected no mirrored rows, got %d", n)
	}
}

func TestHistoryStore_NamespacesIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := New(Config{DBPath: path, Namespace: "a"})
	if err != nil {
		t.Fatal(err)
	}
	at := time.Now().UTC()
	if err := a.Save(ctx, model.NewHistorySnapshot([]model.TradeHistoryEntry{entry("x", at, model.OutcomeWin, "1")}, at)); err != nil {
		t.Fatal(err)
	}
	a.Close()

	b, err := New(Config{DBPath: path, Namespace: "b"})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	snap, _ := b.Load(ctx)
	if len(snap.TradeHistory) != 0 {
		t.Errorf("namespace b should be empty, got %d", len(snap.TradeHistory))
	}
}

func TestHistoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, "")
	at := time.Now().UTC()
	_ = s.Save(ctx, model.NewHistorySnapshot([]model.TradeHistoryEntry{entry("a", at, model.OutcomeWin, "1")}, at))

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap, err := s.Load(ctx)
	if err != nil || len(snap.TradeHistory) != 0 {
		t.Errorf("expected empty after clear, got %+v (%v)", snap, err)
	}
	if ts, _ := s.SavedAt(ctx); !ts.IsZero() {
		t.Errorf("expected zero savedAt after clear, got %v", ts)
	}
}

func TestHistoryStore_RejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, "")
	if _, err := s.DB().Exec(
		`INSERT INTO history_snapshots (namespace, version, data, saved_at) VALUES (?, 2, '{"version":2,"tradeHistory":[]}', 0)`,
		DefaultNamespace,
	); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, model.ErrSnapshotVersion) {
		t.Fatalf("expected ErrSnapshotVersion, got %v", err)
	}
}
