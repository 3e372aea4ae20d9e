package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a binary option.
type Direction string

const (
	Call Direction = "CALL" // wins when the settlement price is at or above entry
	Put  Direction = "PUT"  // wins when the settlement price is at or below entry
)

// Valid reports whether d is CALL or PUT.
func (d Direction) Valid() bool {
	return d == Call || d == Put
}

// ActiveOrder is a pending timed bet. It is immutable once placed and leaves
// the active set exactly once, when a settlement pass first observes
// Expiry <= now.
type ActiveOrder struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	Payout     decimal.Decimal `json:"payout"` // profit fraction, e.g. 0.85
	Expiry     time.Time       `json:"expiry"`
	OpenedAt   time.Time       `json:"openedAt"`
}

// Wins reports whether the order would win if settled at price.
// Ties favour the trader.
func (o *ActiveOrder) Wins(price decimal.Decimal) bool {
	switch o.Direction {
	case Call:
		return price.GreaterThanOrEqual(o.EntryPrice)
	case Put:
		return price.LessThanOrEqual(o.EntryPrice)
	}
	return false
}

// Outcome is the terminal state of a settled order.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// TradeHistoryEntry is the immutable settlement record of one order.
type TradeHistoryEntry struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	Payout     decimal.Decimal `json:"payout"`
	Expiry     time.Time       `json:"expiry"`
	OpenedAt   time.Time       `json:"openedAt"`
	ClosedAt   time.Time       `json:"closedAt"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	Outcome    Outcome         `json:"outcome"`
	Profit     decimal.Decimal `json:"profit"` // +amount*payout on win, -amount on loss
}
