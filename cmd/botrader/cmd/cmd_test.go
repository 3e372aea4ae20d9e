package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botrader/config"
	"botrader/internal/model"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func sqliteEnv(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HISTORY_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "data", "history.db"))
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestVersion(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "botrader version "+version)
}

func TestHistoryListAndClear(t *testing.T) {
	cfg := sqliteEnv(t)

	store, err := openStore(cfg, nil)
	require.NoError(t, err)
	closed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err = store.Save(context.Background(), model.NewHistorySnapshot([]model.TradeHistoryEntry{{
		ID: "01A", Symbol: "BTCUSDT", Direction: model.Call,
		Amount:     decimal.NewFromInt(50),
		EntryPrice: decimal.NewFromInt(100), ExitPrice: decimal.NewFromInt(101),
		ClosedAt: closed, Outcome: model.OutcomeWin, Profit: decimal.RequireFromString("42.5"),
	}}, closed))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out := execute(t, "history", "list")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "42.50")
	assert.Contains(t, out, "1 trades")

	assert.Contains(t, execute(t, "history", "clear"), "cleared")
	assert.True(t, strings.Contains(execute(t, "history", "list"), "no trades"))
}

func TestBuildNotifier(t *testing.T) {
	cfg := &config.Config{}
	assert.Len(t, buildNotifier(cfg, nil), 1)

	cfg.WebhookURL = "http://localhost/hook"
	cfg.TelegramBotToken, cfg.TelegramChatID = "t", "1"
	assert.Len(t, buildNotifier(cfg, nil), 3)
}
