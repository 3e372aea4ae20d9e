package model

import (
	"context"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the session from concrete storage implementations
// (SQLite, Redis). Only the trade history survives a restart.

// HistoryStore persists the trade history snapshot under a fixed namespace.
type HistoryStore interface {
	// Load returns the stored snapshot. A missing snapshot is not an error:
	// an empty snapshot at CurrentSnapshotVersion is returned instead.
	Load(ctx context.Context) (HistorySnapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap HistorySnapshot) error

	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
