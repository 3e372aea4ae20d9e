// Package redis persists the trade history snapshot as a JSON document in
// Redis, for deployments where several processes share one history. Writes
// go through a circuit breaker so an unavailable server fails fast.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"botrader/internal/model"
)

// DefaultNamespace is the key the snapshot is stored under.
const DefaultNamespace = "bo-trade-storage"

// Config configures the Redis history store.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	Namespace string

	// Breaker settings. Zero values use 5 failures / 10s.
	MaxFailures  int
	ResetTimeout time.Duration
}

// HistoryStore implements model.HistoryStore on Redis.
type HistoryStore struct {
	client *goredis.Client
	key    string
	cb     *CircuitBreaker
}

var _ model.HistoryStore = (*HistoryStore)(nil)

// Client returns the underlying Redis client for health checks.
func (s *HistoryStore) Client() *goredis.Client { return s.client }

// Breaker returns the write circuit breaker, e.g. to attach metrics.
func (s *HistoryStore) Breaker() *CircuitBreaker { return s.cb }

// New connects to Redis and pings the server.
func New(cfg Config) (*HistoryStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis history store connected", "addr", cfg.Addr, "namespace", cfg.Namespace)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config) *HistoryStore {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	return &HistoryStore{
		client: client,
		key:    cfg.Namespace,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
	}
}

// Load returns the stored snapshot, or an empty one if none was saved.
func (s *HistoryStore) Load(ctx context.Context) (model.HistorySnapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.HistorySnapshot{Version: model.CurrentSnapshotVersion}, nil
	}
	if err != nil {
		return model.HistorySnapshot{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return model.DecodeSnapshot(data)
}

// Save replaces the snapshot.
func (s *HistoryStore) Save(ctx context.Context, snap model.HistorySnapshot) error {
	data, err := model.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	err = s.cb.Execute(func() error {
		return s.client.Set(ctx, s.key, data, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Clear removes the snapshot.
func (s *HistoryStore) Clear(ctx context.Context) error {
	err := s.cb.Execute(func() error {
		return s.client.Del(ctx, s.key).Err()
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}

// Ping checks the server connection.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *HistoryStore) Close() error {
	return s.client.Close()
}
