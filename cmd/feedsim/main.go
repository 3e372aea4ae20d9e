// Command feedsim is an offline Binance-compatible kline server.
// Serves random-walk one-minute klines so botrader can run without
// network access to the exchange:
//
//	GET /api/v3/klines?symbol=BTCUSDT&interval=1m&limit=500
//	GET /ws/btcusdt@kline_1m
//
// Point botrader at it with FEED_REST_URL=http://localhost:9001 and
// FEED_WS_URL=ws://localhost:9001/ws.
//
// Config (env vars):
//
//	FEEDSIM_ADDR     listen address (default: ":9001")
//	FEEDSIM_TICK_MS  kline update interval milliseconds (default: "1000")
//	FEEDSIM_SEED     random seed, 0 = time based (default: "0")
//	LOG_LEVEL        debug|info|warn|error (default: "info")
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"botrader/internal/logger"
)

func main() {
	log := logger.Init("feedsim", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	tickMs := envIntOrDefault("FEEDSIM_TICK_MS", 1000)
	seed := int64(envIntOrDefault("FEEDSIM_SEED", 0))
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := newSimulator(seed, time.Now)
	go sim.run(ctx, time.Duration(tickMs)*time.Millisecond)

	srv := &http.Server{
		Addr:              addr,
		Handler:           sim.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		sim.closeAll()
	}()

	log.Info("listening", "addr", addr, "tick_ms", tickMs, "seed", seed)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
