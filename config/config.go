package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"botrader/internal/model"
)

// History backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	// History persistence
	HistoryBackend   string
	HistoryNamespace string
	SQLitePath       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Market data feed
	FeedRESTURL       string
	FeedWSURL         string
	FeedInterval      string
	FeedHistoryLimit  int
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReconnectJitter   float64

	// Session
	SettleInterval   time.Duration
	InitialBalance   decimal.Decimal
	MaxCandles       int
	MaxNotifications int
	MaxTradeHistory  int
	DefaultSymbol    string
	SymbolsFile      string
	Symbols          []model.TradingPair

	// Outbound notifications. Empty values disable the sink.
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: .env not loaded", "error", err)
	}

	balance, err := decimal.NewFromString(getEnv("INITIAL_BALANCE", "10000"))
	if err != nil {
		return nil, fmt.Errorf("config: INITIAL_BALANCE: %w", err)
	}

	cfg := &Config{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		HistoryBackend:   strings.ToLower(getEnv("HISTORY_BACKEND", BackendSQLite)),
		HistoryNamespace: getEnv("HISTORY_NAMESPACE", "bo-trade-storage"),
		SQLitePath:       getEnv("SQLITE_PATH", "data/botrader.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		FeedRESTURL:       getEnv("FEED_REST_URL", "https://api.binance.com"),
		FeedWSURL:         getEnv("FEED_WS_URL", "wss://stream.binance.com:9443/ws"),
		FeedInterval:      getEnv("FEED_INTERVAL", "1m"),
		FeedHistoryLimit:  getEnvInt("FEED_HISTORY_LIMIT", 500),
		ReconnectDelay:    getEnvDuration("RECONNECT_DELAY", 2*time.Second),
		MaxReconnectDelay: getEnvDuration("MAX_RECONNECT_DELAY", 30*time.Second),
		ReconnectJitter:   getEnvFloat("RECONNECT_JITTER", 0.2),

		SettleInterval:   getEnvDuration("SETTLE_INTERVAL", 5*time.Second),
		InitialBalance:   balance,
		MaxCandles:       getEnvInt("MAX_CANDLES", 720),
		MaxNotifications: getEnvInt("MAX_NOTIFICATIONS", 5),
		MaxTradeHistory:  getEnvInt("MAX_TRADE_HISTORY", 500),
		DefaultSymbol:    strings.ToUpper(getEnv("DEFAULT_SYMBOL", "")),
		SymbolsFile:      getEnv("SYMBOLS_FILE", ""),
		Symbols:          model.DefaultPairs,

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	if cfg.SymbolsFile != "" {
		pairs, err := LoadSymbols(cfg.SymbolsFile)
		if err != nil {
			return nil, err
		}
		cfg.Symbols = pairs
	}
	if cfg.DefaultSymbol == "" {
		cfg.DefaultSymbol = cfg.Symbols[0].Value
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.HistoryBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("config: HISTORY_BACKEND must be %q or %q, got %q", BackendSQLite, BackendRedis, c.HistoryBackend)
	}
	if !c.InitialBalance.IsPositive() {
		return fmt.Errorf("config: INITIAL_BALANCE must be positive")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: symbol catalogue is empty")
	}
	found := false
	for _, p := range c.Symbols {
		if p.Value == c.DefaultSymbol {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: DEFAULT_SYMBOL %q is not in the catalogue", c.DefaultSymbol)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

type symbolsFile struct {
	Symbols []model.TradingPair `yaml:"symbols"`
}

// LoadSymbols reads a YAML market catalogue:
//
//	symbols:
//	  - label: BTC / USDT
//	    value: BTCUSDT
func LoadSymbols(path string) ([]model.TradingPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read symbols file: %w", err)
	}
	var f symbolsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse symbols file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Symbols))
	pairs := make([]model.TradingPair, 0, len(f.Symbols))
	for _, p := range f.Symbols {
		p.Value = strings.ToUpper(strings.TrimSpace(p.Value))
		if p.Value == "" {
			slog.Warn("config: skipping symbol without value", "label", p.Label)
			continue
		}
		if seen[p.Value] {
			continue
		}
		seen[p.Value] = true
		if p.Label == "" {
			p.Label = p.Value
		}
		pairs = append(pairs, p)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("config: symbols file %s lists no symbols", path)
	}
	return pairs, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid int, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config: invalid float, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}
