// Package session is the single-writer state container of the simulator.
// It owns the candle ledger, the derived indicators, the order book and the
// notification queue of one trading session, and applies every command and
// feed event as one atomic transition under a single mutex.
//
// Every transition publishes a Change on the session's fan-out bus.
// Subscribers (the WebSocket gateway, the history persister, outbound
// notifiers) react asynchronously and never block the engine.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"botrader/internal/bus"
	"botrader/internal/indicator"
	"botrader/internal/ledger"
	"botrader/internal/metrics"
	"botrader/internal/model"
	"botrader/internal/notification"
	"botrader/internal/orderbook"
)

// ErrUnknownSymbol is returned when selecting a market outside the catalogue.
var ErrUnknownSymbol = errors.New("unknown symbol")

// DefaultSettleInterval is the period of the fallback settlement pass.
const DefaultSettleInterval = 5 * time.Second

// Config holds session settings. Zero values fall back to defaults.
type Config struct {
	Symbols          []model.TradingPair
	DefaultSymbol    string
	InitialBalance   decimal.Decimal // zero selects orderbook.DefaultInitialBalance
	MaxCandles       int
	MaxNotifications int
	MaxHistory       int
	SettleInterval   time.Duration
	ChangeBuffer     int
}

func (c *Config) defaults() {
	if len(c.Symbols) == 0 {
		c.Symbols = model.DefaultPairs
	}
	if c.DefaultSymbol == "" {
		c.DefaultSymbol = c.Symbols[0].Value
	}
	if c.InitialBalance.IsZero() {
		c.InitialBalance = orderbook.DefaultInitialBalance
	}
	if c.MaxCandles <= 0 {
		c.MaxCandles = ledger.DefaultCapacity
	}
	if c.MaxNotifications <= 0 {
		c.MaxNotifications = notification.DefaultStandardCap
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = orderbook.DefaultMaxHistory
	}
	if c.SettleInterval <= 0 {
		c.SettleInterval = DefaultSettleInterval
	}
	if c.ChangeBuffer <= 0 {
		c.ChangeBuffer = 64
	}
}

// ChangeKind names the transition that produced a Change.
type ChangeKind string

const (
	ChangeBootstrap    ChangeKind = "bootstrap"
	ChangeTick         ChangeKind = "tick"
	ChangeStatus       ChangeKind = "status"
	ChangeSymbol       ChangeKind = "symbol"
	ChangeOrder        ChangeKind = "order"
	ChangeSettlement   ChangeKind = "settlement"
	ChangeNotification ChangeKind = "notification"
	ChangeHistory      ChangeKind = "history"
)

// Change describes one applied transition.
type Change struct {
	Kind    ChangeKind
	Version uint64
	Symbol  string

	// Settled holds the records produced by a settlement pass.
	Settled []model.TradeHistoryEntry
	// Spotlight holds spotlight notifications created by this transition.
	Spotlight []model.Notification
	// HistoryChanged is set when the persisted trade history changed.
	HistoryChanged bool
}

// Session is the state container. All exported methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	cfg      Config
	symbols  map[string]model.TradingPair
	selected string
	status   model.ConnectionStatus

	ledger     *ledger.Ledger
	indicators indicator.Set
	book       *orderbook.Book
	notes      *notification.Dispatcher

	version uint64
	changes *bus.FanOut[Change]

	// onFollow is told about symbol switches, e.g. to move the feed.
	onFollow func(symbol string)

	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithHealth attaches the health report updated on feed activity.
func WithHealth(h *metrics.HealthStatus) Option {
	return func(s *Session) { s.health = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// OnFollow registers fn to be called with the new symbol after every
// market switch. fn runs under the session lock so followers see switches
// in the order they were applied; it must not block or call back into the
// session.
func OnFollow(fn func(symbol string)) Option {
	return func(s *Session) { s.onFollow = fn }
}

// New creates a session with default balance, empty book and an empty
// ledger for cfg.DefaultSymbol.
func New(cfg Config, opts ...Option) (*Session, error) {
	cfg.defaults()

	symbols := make(map[string]model.TradingPair, len(cfg.Symbols))
	for _, p := range cfg.Symbols {
		symbols[p.Value] = p
	}
	if _, ok := symbols[cfg.DefaultSymbol]; !ok {
		return nil, fmt.Errorf("session: default symbol %q: %w", cfg.DefaultSymbol, ErrUnknownSymbol)
	}

	s := &Session{
		cfg:      cfg,
		symbols:  symbols,
		selected: cfg.DefaultSymbol,
		status:   model.StatusConnecting,
		ledger:   ledger.New(cfg.MaxCandles),
		book: orderbook.New(orderbook.Config{
			InitialBalance: cfg.InitialBalance,
			MaxHistory:     cfg.MaxHistory,
		}),
		changes: bus.New[Change](cfg.ChangeBuffer),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session")
	s.notes = notification.NewDispatcher(cfg.MaxNotifications, s.now)
	s.changes.OnDrop = s.metrics.ObserveFanoutDrop
	s.indicators = indicator.Compute(nil)
	s.observeAccount()
	return s, nil
}

// Changes returns the change bus. Subscribers must keep up or lose changes.
func (s *Session) Changes() *bus.FanOut[Change] { return s.changes }

// Selected returns the selected market.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// SettleInterval returns the configured fallback settlement period.
func (s *Session) SettleInterval() time.Duration { return s.cfg.SettleInterval }

// publish must be called with mu held.
func (s *Session) publish(c Change) {
	s.version++
	c.Version = s.version
	if c.Symbol == "" {
		c.Symbol = s.selected
	}
	s.changes.Publish(c)
}

func (s *Session) observeAccount() {
	bal, _ := s.book.Balance().Float64()
	pnl, _ := s.book.PnL().Float64()
	s.metrics.SetAccount(bal, pnl, len(s.book.Active()))
}

func (s *Session) setFeedHealth(connected bool) {
	if s.health != nil {
		s.health.SetFeedConnected(connected)
	}
}

func (s *Session) setLastTick(t time.Time) {
	if s.health != nil {
		s.health.SetLastTickTime(t)
	}
}

// ── Commands ──

// PlaceOrder opens an order on the selected market at the latest price.
// Validation failures are returned as orderbook sentinel errors and are also
// surfaced as error notifications.
func (s *Session) PlaceOrder(req orderbook.PlaceRequest) (model.ActiveOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	req.Symbol = s.selected

	var price decimal.NullDecimal
	if p, ok := s.ledger.Price(); ok {
		if d, err := model.PriceFromFloat(p); err == nil {
			price = decimal.NewNullDecimal(d)
		}
	}

	order, err := s.book.Place(req, price, now)
	if err != nil {
		reason, title, desc := rejection(err)
		s.metrics.ObserveOrderRejected(reason)
		s.notes.Push(notification.Input{Title: title, Description: desc, Variant: model.VariantError})
		s.metrics.ObserveNotification(false)
		s.publish(Change{Kind: ChangeNotification})
		return model.ActiveOrder{}, err
	}

	s.metrics.ObserveOrderPlaced(string(order.Direction))
	s.observeAccount()
	s.notes.Push(notification.Input{
		Title:       fmt.Sprintf("%s order placed", order.Direction),
		Description: fmt.Sprintf("%s • %s USD • settles in %s", order.Symbol, order.Amount.StringFixed(2), formatExpiry(req.Expiry)),
		Variant:     model.VariantSuccess,
	})
	s.metrics.ObserveNotification(false)
	s.log.Info("order placed",
		"order_id", order.ID,
		"symbol", order.Symbol,
		"direction", order.Direction,
		"amount", order.Amount.String(),
		"entry", order.EntryPrice.String(),
		"expiry", order.Expiry,
	)
	s.publish(Change{Kind: ChangeOrder})
	return order, nil
}

func rejection(err error) (reason, title, desc string) {
	switch {
	case errors.Is(err, orderbook.ErrNoLivePrice):
		return "no_live_price", "No live price yet", "Wait for a price update before placing an order."
	case errors.Is(err, orderbook.ErrInvalidAmount):
		return "invalid_amount", "Invalid amount", "The amount must be greater than zero."
	case errors.Is(err, orderbook.ErrInvalidExpiry):
		return "invalid_expiry", "Invalid expiry", "Choose an expiry in the future."
	case errors.Is(err, orderbook.ErrInsufficientBalance):
		return "insufficient_balance", "Insufficient balance", "Lower the amount or add funds."
	}
	return "unknown", "Order rejected", err.Error()
}

func formatExpiry(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

// SetSelectedSymbol switches the market. Selecting the current market is a
// no-op. Otherwise the ledger and both prices are cleared, the connection
// status returns to connecting and the feed is told to follow the new
// market. Active orders and the account are unaffected.
func (s *Session) SetSelectedSymbol(symbol string) error {
	s.mu.Lock()
	if _, ok := s.symbols[symbol]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if symbol == s.selected {
		s.mu.Unlock()
		return nil
	}

	prev := s.selected
	s.selected = symbol
	s.ledger.Reset()
	s.indicators = indicator.Compute(nil)
	s.status = model.StatusConnecting
	s.setFeedHealth(false)
	s.log.Info("market switched", "from", prev, "to", symbol)
	s.publish(Change{Kind: ChangeSymbol})
	if s.onFollow != nil {
		s.onFollow(symbol)
	}
	s.mu.Unlock()
	return nil
}

// PushNotification enqueues a notification and returns it as stored.
func (s *Session) PushNotification(in notification.Input) model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.notes.Push(in)
	s.metrics.ObserveNotification(n.Spotlight)
	c := Change{Kind: ChangeNotification}
	if n.Spotlight {
		c.Spotlight = []model.Notification{n}
	}
	s.publish(c)
	return n
}

// DismissNotification removes a notification. Unknown ids are ignored.
func (s *Session) DismissNotification(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.notes.Dismiss(id) {
		return false
	}
	s.publish(Change{Kind: ChangeNotification})
	return true
}

// ClearTradeHistory empties the settled history. Balance and PnL are kept.
func (s *Session) ClearTradeHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.book.ClearHistory()
	s.log.Info("trade history cleared")
	s.publish(Change{Kind: ChangeHistory, HistoryChanged: true})
}

// Restore seeds the trade history from a persisted snapshot. Balance, PnL
// and active orders keep their defaults.
func (s *Session) Restore(snap model.HistorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.book.Restore(snap.TradeHistory)
	s.log.Info("trade history restored", "entries", len(snap.TradeHistory), "saved_at", snap.SavedAt)
	s.publish(Change{Kind: ChangeHistory})
}

// Snapshot returns the persistable part of the session.
func (s *Session) Snapshot() model.HistorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.NewHistorySnapshot(s.book.History(), s.now())
}

// ── Feed interface ──

// OnHistoryBootstrap installs a bootstrap batch for symbol. Returns false if
// the event was stale.
func (s *Session) OnHistoryBootstrap(symbol string, candles []model.Candle, fallback bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accept(symbol, "history") {
		return false
	}
	s.ledger.ReplaceAll(candles)
	s.indicators = indicator.Compute(s.ledger.Candles())
	s.metrics.ObserveBootstrap(fallback)
	if fallback {
		s.log.Warn("using synthetic history", "symbol", symbol, "candles", len(candles))
	}
	s.publish(Change{Kind: ChangeBootstrap})
	return true
}

// OnTick merges one streaming candle for symbol and runs a settlement pass
// at the candle's close. Returns false if the event was stale.
func (s *Session) OnTick(symbol string, c model.Candle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accept(symbol, "candle") {
		return false
	}
	if !c.Finite() {
		s.log.Warn("dropping non-finite candle", "symbol", symbol, "time", c.Time)
		return false
	}

	now := s.now()
	s.ledger.Upsert(c)
	s.indicators = indicator.Compute(s.ledger.Candles())
	s.metrics.ObserveCandle()
	s.setLastTick(now)

	if ch, ok := s.settle(c.Close, now); ok {
		s.publish(ch)
		return true
	}
	s.publish(Change{Kind: ChangeTick})
	return true
}

// OnConnectionChange records the feed status for symbol. Returns false if
// the event was stale.
func (s *Session) OnConnectionChange(symbol string, status model.ConnectionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accept(symbol, "status") {
		return false
	}
	if status == s.status {
		return true
	}
	s.status = status
	s.setFeedHealth(status == model.StatusConnected)
	s.log.Info("feed status", "symbol", symbol, "status", status)
	s.publish(Change{Kind: ChangeStatus})
	return true
}

// accept rejects events tagged with a market other than the selected one.
// Must be called with mu held.
func (s *Session) accept(symbol, kind string) bool {
	if symbol == s.selected {
		return true
	}
	s.metrics.ObserveStale(kind)
	s.log.Debug("dropping stale feed event", "kind", kind, "symbol", symbol, "selected", s.selected)
	return false
}

// SettleDue runs a settlement pass at now with the last known price. It is
// the fallback for quiet markets; with no known price it does nothing.
func (s *Session) SettleDue(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.ledger.Price()
	if !ok {
		return 0
	}
	ch, ok := s.settle(p, now)
	if !ok {
		return 0
	}
	s.publish(ch)
	return len(ch.Settled)
}

// settle finalizes due orders against price and raises one spotlight
// notification per settled order. Must be called with mu held.
func (s *Session) settle(price float64, now time.Time) (Change, bool) {
	exit, err := model.PriceFromFloat(price)
	if err != nil {
		return Change{}, false
	}

	start := time.Now()
	settled := s.book.Finalize(exit, now)
	s.metrics.ObserveSettlePass(time.Since(start))
	if len(settled) == 0 {
		return Change{}, false
	}

	inputs := make([]notification.Input, 0, len(settled))
	for _, e := range settled {
		s.metrics.ObserveSettlement(string(e.Outcome))
		s.log.Info("order settled",
			"order_id", e.ID,
			"symbol", e.Symbol,
			"outcome", e.Outcome,
			"exit", e.ExitPrice.String(),
			"profit", e.Profit.String(),
		)
		inputs = append(inputs, settlementNotice(e))
	}
	spot := s.notes.PushBatch(inputs)
	for range spot {
		s.metrics.ObserveNotification(true)
	}
	s.observeAccount()

	return Change{
		Kind:           ChangeSettlement,
		Settled:        settled,
		Spotlight:      spot,
		HistoryChanged: true,
	}, true
}

func settlementNotice(e model.TradeHistoryEntry) notification.Input {
	if e.Outcome == model.OutcomeWin {
		return notification.Input{
			Title:       "Trade won",
			Description: fmt.Sprintf("%s • +%s USD (payout %s%%)", e.Symbol, e.Profit.StringFixed(2), e.Payout.Shift(2).Round(0).String()),
			Variant:     model.VariantSuccess,
			Spotlight:   true,
		}
	}
	return notification.Input{
		Title:       "Trade lost",
		Description: fmt.Sprintf("%s • %s USD", e.Symbol, e.Profit.StringFixed(2)),
		Variant:     model.VariantError,
		Spotlight:   true,
	}
}
