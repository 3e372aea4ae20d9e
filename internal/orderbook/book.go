// Package orderbook owns the simulated account: the active binary-option
// orders, the settled trade history, the balance and the running PnL.
//
// Every order follows PENDING → {WON, LOST}. There is no cancellation and no
// other transition. A Book is not safe for concurrent use; the session
// serialises all calls.
package orderbook

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"botrader/internal/id"
	"botrader/internal/model"
)

const (
	DefaultMaxHistory = 500
)

// DefaultInitialBalance is the virtual balance of a fresh session.
var DefaultInitialBalance = decimal.NewFromInt(10000)

// Validation failures returned by Place. They are expected outcomes, not
// faults, and leave the book unchanged.
var (
	ErrNoLivePrice         = errors.New("waiting for live price")
	ErrInvalidAmount       = errors.New("enter a valid amount")
	ErrInvalidExpiry       = errors.New("expiry must be in the future")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Config sets the starting balance and the history bound.
type Config struct {
	InitialBalance decimal.Decimal
	MaxHistory     int
}

// PlaceRequest is a user's intent to open one order.
type PlaceRequest struct {
	Symbol    string
	Direction model.Direction
	Amount    decimal.Decimal
	Expiry    time.Duration // time from placement to settlement
	Payout    decimal.Decimal
}

// Book is the order book and settlement engine.
type Book struct {
	balance    decimal.Decimal
	pnl        decimal.Decimal
	active     []model.ActiveOrder
	history    []model.TradeHistoryEntry
	maxHistory int

	// NewID generates order ids. Defaults to time-sortable ULIDs.
	NewID func(now time.Time) string
}

// New creates a book with an empty order set and history.
func New(cfg Config) *Book {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	return &Book{
		balance:    cfg.InitialBalance,
		pnl:        decimal.Zero,
		maxHistory: cfg.MaxHistory,
		NewID:      id.At,
	}
}

// Place validates and opens an order at the current price. price.Valid is
// false while no live price is known. Checks run in order: live price,
// positive amount, positive expiry, sufficient balance. On success the
// stake is debited.
func (b *Book) Place(req PlaceRequest, price decimal.NullDecimal, now time.Time) (model.ActiveOrder, error) {
	if !price.Valid {
		return model.ActiveOrder{}, ErrNoLivePrice
	}
	if !req.Amount.IsPositive() {
		return model.ActiveOrder{}, ErrInvalidAmount
	}
	if req.Expiry <= 0 {
		return model.ActiveOrder{}, ErrInvalidExpiry
	}
	if req.Amount.GreaterThan(b.balance) {
		return model.ActiveOrder{}, ErrInsufficientBalance
	}

	order := model.ActiveOrder{
		ID:         b.NewID(now),
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Amount:     req.Amount,
		EntryPrice: price.Decimal,
		Payout:     req.Payout,
		Expiry:     now.Add(req.Expiry),
		OpenedAt:   now,
	}
	b.balance = b.balance.Sub(req.Amount)
	b.active = append(b.active, order)
	return order, nil
}

// Finalize settles every active order with Expiry <= ts against price and
// returns the new history entries in placement order. Orders that are not
// yet due are untouched, so repeated calls are safe at any frequency: an
// order is settled by the first pass that sees it due and never again.
func (b *Book) Finalize(price decimal.Decimal, ts time.Time) []model.TradeHistoryEntry {
	if len(b.active) == 0 {
		return nil
	}

	remaining := b.active[:0:0]
	var settled []model.TradeHistoryEntry

	for _, o := range b.active {
		if o.Expiry.After(ts) {
			remaining = append(remaining, o)
			continue
		}

		entry := model.TradeHistoryEntry{
			ID:         o.ID,
			Symbol:     o.Symbol,
			Direction:  o.Direction,
			Amount:     o.Amount,
			EntryPrice: o.EntryPrice,
			Payout:     o.Payout,
			Expiry:     o.Expiry,
			OpenedAt:   o.OpenedAt,
			ClosedAt:   ts,
			ExitPrice:  price,
		}

		if o.Wins(price) {
			profit := o.Amount.Mul(o.Payout)
			b.balance = b.balance.Add(o.Amount.Add(profit))
			b.pnl = b.pnl.Add(profit)
			entry.Outcome = model.OutcomeWin
			entry.Profit = profit
		} else {
			// Stake was debited at placement; nothing is credited back.
			b.pnl = b.pnl.Sub(o.Amount)
			entry.Outcome = model.OutcomeLoss
			entry.Profit = o.Amount.Neg()
		}
		settled = append(settled, entry)
	}

	b.active = remaining
	if len(settled) > 0 {
		b.mergeHistory(settled)
	}
	return settled
}

// mergeHistory prepends entries, orders newest-first by ClosedAt and
// truncates by count.
func (b *Book) mergeHistory(entries []model.TradeHistoryEntry) {
	merged := make([]model.TradeHistoryEntry, 0, len(entries)+len(b.history))
	merged = append(merged, entries...)
	merged = append(merged, b.history...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ClosedAt.After(merged[j].ClosedAt)
	})
	if len(merged) > b.maxHistory {
		merged = merged[:b.maxHistory]
	}
	b.history = merged
}

// Restore replaces the history with a persisted one.
func (b *Book) Restore(history []model.TradeHistoryEntry) {
	b.history = nil
	b.mergeHistory(history)
}

// ClearHistory drops all settled records. Balance and PnL are unaffected.
func (b *Book) ClearHistory() {
	b.history = nil
}

// Balance returns the available balance.
func (b *Book) Balance() decimal.Decimal { return b.balance }

// PnL returns the realised profit and loss of this session.
func (b *Book) PnL() decimal.Decimal { return b.pnl }

// Active returns a copy of the pending orders in placement order.
func (b *Book) Active() []model.ActiveOrder {
	out := make([]model.ActiveOrder, len(b.active))
	copy(out, b.active)
	return out
}

// History returns a copy of the settled records, newest first.
func (b *Book) History() []model.TradeHistoryEntry {
	out := make([]model.TradeHistoryEntry, len(b.history))
	copy(out, b.history)
	return out
}

// Summary aggregates the settled history.
type Summary struct {
	Trades    int             `json:"trades"`
	Wins      int             `json:"wins"`
	Losses    int             `json:"losses"`
	WinRate   float64         `json:"winRate"` // 0..1
	NetProfit decimal.Decimal `json:"netProfit"`
}

// Summary returns win/loss statistics over the retained history.
func (b *Book) Summary() Summary {
	s := Summary{Trades: len(b.history), NetProfit: decimal.Zero}
	for _, e := range b.history {
		if e.Outcome == model.OutcomeWin {
			s.Wins++
		} else {
			s.Losses++
		}
		s.NetProfit = s.NetProfit.Add(e.Profit)
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return s
}
