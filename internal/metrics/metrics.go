package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulator. Every Observe*
// helper is safe to call on a nil *Metrics, so components can run without
// instrumentation in tests.
type Metrics struct {
	// Feed
	FeedCandles        prometheus.Counter
	Bootstraps         prometheus.Counter
	FallbackBootstraps prometheus.Counter
	FeedReconnects     prometheus.Counter
	StaleEvents        *prometheus.CounterVec // labels: kind

	// Orders and settlement
	OrdersPlaced    *prometheus.CounterVec // labels: direction
	OrdersRejected  *prometheus.CounterVec // labels: reason
	Settlements     *prometheus.CounterVec // labels: outcome
	SettlePassDur   prometheus.Histogram
	ActiveOrders    prometheus.Gauge
	Balance         prometheus.Gauge
	RealisedPnL     prometheus.Gauge
	Notifications   *prometheus.CounterVec // labels: lane
	ForwardFailures prometheus.Counter

	// Persistence
	HistorySaveDur       prometheus.Histogram
	HistoryPersistErrors prometheus.Counter
	BreakerState         prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips         prometheus.Counter

	// Fan-out and push
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
	WSClients        prometheus.Gauge
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FeedCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botrader_feed_candles_total",
			Help: "Streaming candles accepted from the feed",
		}),
		Bootstraps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botrader_feed_bootstraps_total",
			Help: "History bootstraps applied to the ledger",
		}),
		FallbackBootstraps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botrader_feed_fallback_bootstraps_total",
			Help: "Bootstraps served from the synthetic fallback series",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botrader_feed_reconnects_total",
			Help: "Feed stream reconnection attempts",
		}),
		StaleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botrader_feed_stale_events_total",
			Help: "Feed events dropped because they belong to a deselected market",
		}, []string{"kind"}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botrader_orders_placed_total",
			Help: "Orders accepted by the order book",
		}, []string{"direction"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botrader_orders_rejected_total",
			Help: "Orders rejected by validation",
		}, []string{"reason"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botrader_settlements_total",
			Help: "Settled orders by outcome",
		}, []string{"outcome"}),
		SettlePassDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "botrader_settle_pass_duration_seconds",
			Help:    "Latency of one settlement pass",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		ActiveOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botrader_active_orders",
			Help: "Orders awaiting settlement",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botrader_balance",
			Help: "Available virtual balance",
		}),
		RealisedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botrader_pnl",
			Help: "Realised profit and loss of this session",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botrader_notifications_total",
			Help: "Notifications pushed by lane",
		}, []string{"lane"}),
		ForwardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botrader_notification_forward_failures_total",
			Help: "Notifications that could not be delivered to outbound sinks",
		}),

		HistorySaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "botrader_history_save_duration_seconds",
			Help:    "Trade history snapshot write latency",
			Buckets: prometheus.DefBuckets,
		}),
		HistoryPersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botrader_history_persist_errors_total",
			Help: "Failed trade history snapshot writes",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "botrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botrader_fanout_drops_total",
			Help: "Changes dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "botrader_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.FeedCandles,
		m.Bootstraps,
		m.FallbackBootstraps,
		m.FeedReconnects,
		m.StaleEvents,
		m.OrdersPlaced,
		m.OrdersRejected,
		m.Settlements,
		m.SettlePassDur,
		m.ActiveOrders,
		m.Balance,
		m.RealisedPnL,
		m.Notifications,
		m.ForwardFailures,
		m.HistorySaveDur,
		m.HistoryPersistErrors,
		m.BreakerState,
		m.BreakerTrips,
		m.FanoutDropsTotal,
		m.WSClients,
	)

	return m
}

func (m *Metrics) ObserveCandle() {
	if m != nil {
		m.FeedCandles.Inc()
	}
}

func (m *Metrics) ObserveBootstrap(fallback bool) {
	if m == nil {
		return
	}
	m.Bootstraps.Inc()
	if fallback {
		m.FallbackBootstraps.Inc()
	}
}

func (m *Metrics) ObserveReconnect() {
	if m != nil {
		m.FeedReconnects.Inc()
	}
}

func (m *Metrics) ObserveStale(kind string) {
	if m != nil {
		m.StaleEvents.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveOrderPlaced(direction string) {
	if m != nil {
		m.OrdersPlaced.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) ObserveOrderRejected(reason string) {
	if m != nil {
		m.OrdersRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveSettlement(outcome string) {
	if m != nil {
		m.Settlements.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveSettlePass(d time.Duration) {
	if m != nil {
		m.SettlePassDur.Observe(d.Seconds())
	}
}

// SetAccount updates the account gauges.
func (m *Metrics) SetAccount(balance, pnl float64, active int) {
	if m == nil {
		return
	}
	m.Balance.Set(balance)
	m.RealisedPnL.Set(pnl)
	m.ActiveOrders.Set(float64(active))
}

func (m *Metrics) ObserveNotification(spotlight bool) {
	if m == nil {
		return
	}
	lane := "standard"
	if spotlight {
		lane = "spotlight"
	}
	m.Notifications.WithLabelValues(lane).Inc()
}

func (m *Metrics) ObserveForwardFailure() {
	if m != nil {
		m.ForwardFailures.Inc()
	}
}

// ObserveHistorySave records one snapshot write.
func (m *Metrics) ObserveHistorySave(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.HistorySaveDur.Observe(d.Seconds())
	if err != nil {
		m.HistoryPersistErrors.Inc()
	}
}

// ObserveBreaker records a circuit breaker transition. state follows the
// gauge encoding (0=closed, 1=open, 2=half-open).
func (m *Metrics) ObserveBreaker(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
	if state == 1 {
		m.BreakerTrips.Inc()
	}
}

func (m *Metrics) ObserveFanoutDrop(subscriber int) {
	if m != nil {
		m.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriber)).Inc()
	}
}

func (m *Metrics) SetWSClients(n int) {
	if m != nil {
		m.WSClients.Set(float64(n))
	}
}

// Pinger is a dependency whose liveness can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected bool      `json:"feed_connected"`
	LastTickTime  time.Time `json:"last_tick_time"`
	StoreBackend  string    `json:"store_backend"`
	StoreOK       bool      `json:"store_ok"`

	// Liveness check results
	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(storeBackend string) *HealthStatus {
	return &HealthStatus{
		StoreBackend: storeBackend,
		StoreOK:      true,
		StartedAt:    time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

// CheckStore pings the history store and records latency + health.
func (h *HealthStatus) CheckStore(ctx context.Context, p Pinger) {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, p Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckStore(checkCtx, p)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// A disconnected feed degrades the service; a broken store makes it
	// unhealthy because settled trades can no longer be persisted.
	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.StoreOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		FeedConnected  bool    `json:"feed_connected"`
		LastTickTime   string  `json:"last_tick_time"`
		TickAge        string  `json:"tick_age"`
		StoreBackend   string  `json:"store_backend"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:  h.FeedConnected,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		StoreBackend:   h.StoreBackend,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
