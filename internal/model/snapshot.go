package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentSnapshotVersion is the schema version written by this build.
const CurrentSnapshotVersion = 1

// ErrSnapshotVersion is returned when a stored snapshot was written by a
// newer, unknown schema.
var ErrSnapshotVersion = errors.New("unsupported history snapshot version")

// HistorySnapshot holds exactly the persisted fields of a session.
type HistorySnapshot struct {
	Version      int                 `json:"version"`
	SavedAt      time.Time           `json:"savedAt"`
	TradeHistory []TradeHistoryEntry `json:"tradeHistory"`
}

// NewHistorySnapshot builds a snapshot at the current schema version.
func NewHistorySnapshot(history []TradeHistoryEntry, savedAt time.Time) HistorySnapshot {
	cp := make([]TradeHistoryEntry, len(history))
	copy(cp, history)
	return HistorySnapshot{
		Version:      CurrentSnapshotVersion,
		SavedAt:      savedAt.UTC(),
		TradeHistory: cp,
	}
}

// EncodeSnapshot serialises a snapshot for storage.
func EncodeSnapshot(snap HistorySnapshot) ([]byte, error) {
	if snap.Version == 0 {
		snap.Version = CurrentSnapshotVersion
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot parses a stored snapshot. Version 0 (unversioned payloads)
// is read as version 1.
func DecodeSnapshot(data []byte) (HistorySnapshot, error) {
	var snap HistorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return HistorySnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version == 0 {
		snap.Version = 1
	}
	if snap.Version > CurrentSnapshotVersion {
		return HistorySnapshot{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}
	return snap, nil
}
