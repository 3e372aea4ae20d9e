package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"botrader/config"
	"botrader/internal/feed"
	"botrader/internal/gateway"
	"botrader/internal/logger"
	"botrader/internal/metrics"
	"botrader/internal/model"
	"botrader/internal/notification"
	"botrader/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trading engine and its HTTP/WebSocket gateway",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init("botrader", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithSessionID(ctx, uuid.NewString())
	log = log.With(logger.Attrs(ctx)...)
	log.Info("starting", "version", version, "symbol", cfg.DefaultSymbol, "store", cfg.HistoryBackend)

	// ---- Metrics + health ----
	prom := metrics.New(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.HistoryBackend)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- History store ----
	store, err := openStore(cfg, prom)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()
	health.CheckStore(ctx, store)
	health.StartLivenessChecker(ctx, store, 10*time.Second)

	loadCtx, cancelLoad := context.WithTimeout(ctx, 10*time.Second)
	snap, err := store.Load(loadCtx)
	cancelLoad()
	if err != nil {
		// Start fresh rather than refuse to run; the next save overwrites it.
		log.Error("history load failed, starting empty", "error", err)
		snap = model.HistorySnapshot{Version: model.CurrentSnapshotVersion}
	}

	// ---- Feed ----
	adapter := feed.NewAdapter(feed.Config{
		Interval:     cfg.FeedInterval,
		HistoryLimit: cfg.FeedHistoryLimit,
		Retry: feed.RetryPolicy{
			Initial:    cfg.ReconnectDelay,
			Max:        cfg.MaxReconnectDelay,
			Multiplier: 2,
			Jitter:     cfg.ReconnectJitter,
		},
	}, feed.NewClient(cfg.FeedRESTURL), feed.NewStream(cfg.FeedWSURL, cfg.FeedInterval))
	adapter.OnReconnect = func(string) { prom.ObserveReconnect() }
	adapter.OnFallback = func(symbol string) {
		log.Warn("feed bootstrap fell back to synthetic candles", "symbol", symbol)
	}

	// ---- Session ----
	sess, err := session.New(session.Config{
		Symbols:          cfg.Symbols,
		DefaultSymbol:    cfg.DefaultSymbol,
		InitialBalance:   cfg.InitialBalance,
		MaxCandles:       cfg.MaxCandles,
		MaxNotifications: cfg.MaxNotifications,
		MaxHistory:       cfg.MaxTradeHistory,
		SettleInterval:   cfg.SettleInterval,
	},
		session.WithMetrics(prom),
		session.WithHealth(health),
		session.WithLogger(log),
		session.OnFollow(adapter.Follow),
	)
	if err != nil {
		return err
	}
	sess.Restore(snap)

	// ---- Outbound notifications ----
	fwd := notification.NewForwarder(buildNotifier(cfg, log), 64)
	fwd.OnError = func(model.Notification, error) { prom.ObserveForwardFailure() }

	hub := gateway.NewHub(sess, prom)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gateway.NewRouter(sess, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	events := make(chan feed.Event, 256)
	persister := session.NewPersister(sess, store, prom, health)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	run(func() { adapter.Run(ctx, sess.Selected(), events) })
	run(func() { _ = sess.Run(ctx, events) })
	run(func() { persister.Run(ctx) })
	run(func() { fwd.Run(ctx) })
	run(func() { forwardSpotlight(ctx, sess, fwd) })
	run(func() { hub.Run(ctx) })

	srvErr := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up...")
	case err = <-srvErr:
		log.Error("gateway failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()
	metricsSrv.Stop(shutdownCtx)

	log.Info("shutdown complete")
	return err
}

// buildNotifier assembles the configured outbound sinks. The log sink is
// always present.
func buildNotifier(cfg *config.Config, log *slog.Logger) notification.Notifier {
	sinks := notification.MultiNotifier{notification.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" {
		sinks = append(sinks, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return sinks
}

// forwardSpotlight hands every spotlight notification to fwd.
func forwardSpotlight(ctx context.Context, sess *session.Session, fwd *notification.Forwarder) {
	changes := sess.Changes().Subscribe()
	defer sess.Changes().Unsubscribe(changes)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			for _, n := range c.Spotlight {
				fwd.Enqueue(n)
			}
		}
	}
}
