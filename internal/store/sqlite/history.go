// Package sqlite persists the trade history snapshot in a local SQLite
// database (WAL mode, single writer connection).
//
// Each namespace keeps one versioned JSON snapshot in history_snapshots.
// The same transaction mirrors the entries into trade_history, one row per
// settled order, for ad-hoc SQL inspection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"botrader/internal/model"
)

// DefaultNamespace is the storage key of the trade history.
const DefaultNamespace = "bo-trade-storage"

// Config configures the SQLite history store.
type Config struct {
	DBPath    string // path to SQLite database file, e.g. "data/botrader.db"
	Namespace string
}

// HistoryStore implements model.HistoryStore on SQLite.
type HistoryStore struct {
	db        *sql.DB
	namespace string
}

var _ model.HistoryStore = (*HistoryStore)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *HistoryStore) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*HistoryStore, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite history store opened", "path", cfg.DBPath, "namespace", cfg.Namespace)
	return &HistoryStore{db: db, namespace: cfg.Namespace}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS history_snapshots (
			namespace TEXT    NOT NULL PRIMARY KEY,
			version   INTEGER NOT NULL,
			data      TEXT    NOT NULL,
			saved_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trade_history (
			namespace   TEXT    NOT NULL,
			id          TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			amount      TEXT    NOT NULL,
			entry_price TEXT    NOT NULL,
			exit_price  TEXT    NOT NULL,
			payout      TEXT    NOT NULL,
			outcome     TEXT    NOT NULL,
			profit      TEXT    NOT NULL,
			opened_at   INTEGER NOT NULL,
			closed_at   INTEGER NOT NULL,
			PRIMARY KEY (namespace, id)
		);

		CREATE INDEX IF NOT EXISTS idx_trade_history_closed
			ON trade_history (namespace, closed_at DESC);
	`)
	return err
}

// Load returns the stored snapshot, or an empty one if none was saved.
func (s *HistoryStore) Load(ctx context.Context) (model.HistorySnapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM history_snapshots WHERE namespace = ?`, s.namespace,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HistorySnapshot{Version: model.CurrentSnapshotVersion}, nil
	}
	if err != nil {
		return model.HistorySnapshot{}, fmt.Errorf("sqlite load snapshot: %w", err)
	}
	return model.DecodeSnapshot([]byte(data))
}

// Save replaces the snapshot and its mirrored rows in one transaction.
func (s *HistoryStore) Save(ctx context.Context, snap model.HistorySnapshot) error {
	data, err := model.EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history_snapshots (namespace, version, data, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET
			version = excluded.version,
			data = excluded.data,
			saved_at = excluded.saved_at
	`, s.namespace, model.CurrentSnapshotVersion, string(data), snap.SavedAt.UnixMilli()); err != nil {
		return fmt.Errorf("sqlite upsert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_history WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("sqlite clear rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_history (namespace, id, symbol, direction, amount, entry_price, exit_price, payout, outcome, profit, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare rows: %w", err)
	}
	defer stmt.Close()

	for _, e := range snap.TradeHistory {
		if _, err := stmt.ExecContext(ctx,
			s.namespace, e.ID, e.Symbol, string(e.Direction),
			e.Amount.String(), e.EntryPrice.String(), e.ExitPrice.String(), e.Payout.String(),
			string(e.Outcome), e.Profit.String(),
			e.OpenedAt.UnixMilli(), e.ClosedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("sqlite insert row %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// Clear removes the snapshot and its rows.
func (s *HistoryStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_snapshots WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("sqlite clear snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_history WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("sqlite clear rows: %w", err)
	}
	return tx.Commit()
}

// Ping checks the database connection.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RowCount returns the number of mirrored trade rows.
func (s *HistoryStore) RowCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trade_history WHERE namespace = ?`, s.namespace,
	).Scan(&n)
	return n, err
}

// SavedAt returns when the snapshot was last written, or zero if never.
func (s *HistoryStore) SavedAt(ctx context.Context) (time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at FROM history_snapshots WHERE namespace = ?`, s.namespace,
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}
