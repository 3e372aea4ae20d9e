package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"botrader/config"
	"botrader/internal/metrics"
	"botrader/internal/model"
	redisstore "botrader/internal/store/redis"
	sqlitestore "botrader/internal/store/sqlite"
)

// historyBackend is a history store whose liveness can be checked.
type historyBackend interface {
	model.HistoryStore
	Ping(ctx context.Context) error
}

// openStore opens the configured history backend. m may be nil.
func openStore(cfg *config.Config, m *metrics.Metrics) (historyBackend, error) {
	switch cfg.HistoryBackend {
	case config.BackendRedis:
		s, err := redisstore.New(redisstore.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.HistoryNamespace,
		})
		if err != nil {
			return nil, err
		}
		s.Breaker().OnStateChange = func(from, to redisstore.State) {
			m.ObserveBreaker(int(to))
		}
		return s, nil
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := sqlitestore.New(sqlitestore.Config{
			DBPath:    cfg.SQLitePath,
			Namespace: cfg.HistoryNamespace,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
}
