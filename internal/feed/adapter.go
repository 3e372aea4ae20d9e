// Package feed connects the session to an external market-data venue: it
// loads history over REST, streams live klines over WebSocket, reconnects
// with backoff and falls back to a synthetic series when history is
// unavailable.
//
// Every Event carries the symbol it was produced for. Consumers drop events
// for a symbol other than the one currently selected.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"botrader/internal/model"
)

// EventKind discriminates Event payloads.
type EventKind int

const (
	EventHistory EventKind = iota + 1 // bootstrap batch in Candles
	EventCandle                       // one streaming candle in Candle
	EventStatus                       // connection status change in Status
)

func (k EventKind) String() string {
	switch k {
	case EventHistory:
		return "history"
	case EventCandle:
		return "candle"
	case EventStatus:
		return "status"
	}
	return "unknown"
}

// Event is one unit of feed output.
type Event struct {
	Kind     EventKind
	Symbol   string
	Candles  []model.Candle
	Candle   model.Candle
	Status   model.ConnectionStatus
	Fallback bool // Candles is a synthetic placeholder series
}

// HistorySource loads a bootstrap batch.
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// StreamSource delivers live candles until the connection drops.
type StreamSource interface {
	Subscribe(ctx context.Context, symbol string, onOpen func(), emit func(model.Candle)) error
}

// Config holds adapter settings.
type Config struct {
	Interval       string
	HistoryLimit   int
	Retry          RetryPolicy
	FallbackLength int
}

func (c *Config) defaults() {
	if c.Interval == "" {
		c.Interval = DefaultInterval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultLimit
	}
	if c.Retry.Initial == 0 {
		c.Retry = DefaultRetryPolicy()
	}
	if c.FallbackLength <= 0 {
		c.FallbackLength = 120
	}
}

// Adapter follows one symbol at a time and turns venue traffic into Events.
type Adapter struct {
	cfg     Config
	history HistorySource
	stream  StreamSource
	symbols chan string
	log     *slog.Logger

	// Optional hooks, e.g. for metrics.
	OnFallback  func(symbol string)
	OnReconnect func(symbol string)

	now func() time.Time
}

// NewAdapter creates an adapter over the given sources.
func NewAdapter(cfg Config, history HistorySource, stream StreamSource) *Adapter {
	cfg.defaults()
	return &Adapter{
		cfg:     cfg,
		history: history,
		stream:  stream,
		symbols: make(chan string, 1),
		log:     slog.Default().With("component", "feed"),
		now:     time.Now,
	}
}

// Follow switches the subscription to symbol. Only the latest pending
// request is kept if Follow is called faster than Run can react.
func (a *Adapter) Follow(symbol string) {
	for {
		select {
		case a.symbols <- symbol:
			return
		default:
			select {
			case <-a.symbols:
			default:
			}
		}
	}
}

// Run streams events for symbol, and for each symbol later passed to
// Follow, into out. Blocks until ctx is cancelled. A symbol change cancels
// the current subscription before the next one starts.
func (a *Adapter) Run(ctx context.Context, symbol string, out chan<- Event) {
	for {
		subCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			a.follow(subCtx, sym, out)
		}(symbol)

		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			return
		case next := <-a.symbols:
			cancel()
			wg.Wait()
			a.log.Info("switching symbol", "from", symbol, "to", next)
			symbol = next
		}
	}
}

// follow runs the connect → bootstrap → stream → backoff cycle for one
// symbol until ctx is cancelled.
func (a *Adapter) follow(ctx context.Context, symbol string, out chan<- Event) {
	attempt := 0
	bootstrapped := false

	for {
		if !a.send(ctx, out, Event{Kind: EventStatus, Symbol: symbol, Status: model.StatusConnecting}) {
			return
		}
		if a.bootstrap(ctx, symbol, out, bootstrapped) {
			bootstrapped = true
		}
		if ctx.Err() != nil {
			return
		}

		err := a.stream.Subscribe(ctx, symbol,
			func() {
				attempt = 0
				a.send(ctx, out, Event{Kind: EventStatus, Symbol: symbol, Status: model.StatusConnected})
			},
			func(c model.Candle) {
				a.send(ctx, out, Event{Kind: EventCandle, Symbol: symbol, Candle: c})
			},
		)
		if ctx.Err() != nil {
			return
		}

		delay := a.cfg.Retry.Next(attempt)
		attempt++
		a.log.Warn("stream disconnected", "symbol", symbol, "error", err, "retry_in", delay)
		if !a.send(ctx, out, Event{Kind: EventStatus, Symbol: symbol, Status: model.StatusDisconnected}) {
			return
		}
		if a.OnReconnect != nil {
			a.OnReconnect(symbol)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// bootstrap loads history and emits it. If loading fails before any real
// history was delivered, a synthetic series is emitted instead so the
// ledger is never left empty; a failed re-bootstrap keeps what is there.
// Reports whether an event was emitted.
func (a *Adapter) bootstrap(ctx context.Context, symbol string, out chan<- Event, hadHistory bool) bool {
	candles, err := a.history.FetchHistory(ctx, symbol, a.cfg.Interval, a.cfg.HistoryLimit)
	if err == nil {
		return a.send(ctx, out, Event{Kind: EventHistory, Symbol: symbol, Candles: candles})
	}
	if ctx.Err() != nil {
		return false
	}

	a.log.Error("history load failed", "symbol", symbol, "error", err)
	if hadHistory {
		return false
	}
	if a.OnFallback != nil {
		a.OnFallback(symbol)
	}
	series := Synthetic(a.now(), a.cfg.FallbackLength, SyntheticBase, nil)
	return a.send(ctx, out, Event{Kind: EventHistory, Symbol: symbol, Candles: series, Fallback: true})
}

func (a *Adapter) send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
