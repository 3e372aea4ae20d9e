// Package ledger keeps the candle timeline of the selected market: a sorted,
// de-duplicated, capacity-bounded window of OHLCV bars plus the last two
// observed prices.
//
// A Ledger holds no locks. The session serialises access to it.
package ledger

import (
	"sort"

	"botrader/internal/model"
)

// DefaultCapacity is 12 hours of 1-minute candles.
const DefaultCapacity = 720

// Ledger is a sliding window of candles ordered by Time ascending with
// unique Time keys. Once full, the oldest candle is evicted first.
type Ledger struct {
	candles  []model.Candle
	capacity int

	price       float64
	hasPrice    bool
	prevPrice   float64
	hasPrevious bool
}

// New creates a ledger holding at most capacity candles.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		candles:  make([]model.Candle, 0, capacity),
		capacity: capacity,
	}
}

// ReplaceAll installs a bootstrap batch. The batch may arrive unordered and
// may contain duplicate times (the last occurrence wins). Only the newest
// capacity candles are kept. An empty batch leaves the ledger untouched.
func (l *Ledger) ReplaceAll(batch []model.Candle) {
	if len(batch) == 0 {
		return
	}

	sorted := make([]model.Candle, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	// Collapse equal times, keeping the later entry of the original batch.
	deduped := sorted[:0]
	for _, c := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Time == c.Time {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}

	if len(deduped) > l.capacity {
		deduped = deduped[len(deduped)-l.capacity:]
	}

	next := make([]model.Candle, len(deduped), l.capacity)
	copy(next, deduped)
	l.candles = next
	l.shiftPrice(next[len(next)-1].Close)
}

// Upsert merges one streaming candle. A candle with an existing Time
// replaces it in place (a revision of the forming bar); otherwise it is
// inserted at its sorted position and the oldest candle is evicted if the
// ledger is over capacity.
func (l *Ledger) Upsert(c model.Candle) {
	i := sort.Search(len(l.candles), func(i int) bool { return l.candles[i].Time >= c.Time })
	switch {
	case i < len(l.candles) && l.candles[i].Time == c.Time:
		l.candles[i] = c
	case i == len(l.candles):
		l.candles = append(l.candles, c)
	default:
		l.candles = append(l.candles, model.Candle{})
		copy(l.candles[i+1:], l.candles[i:])
		l.candles[i] = c
	}

	if over := len(l.candles) - l.capacity; over > 0 {
		l.candles = append(l.candles[:0], l.candles[over:]...)
	}
	l.shiftPrice(c.Close)
}

// Reset drops all candles and both prices.
func (l *Ledger) Reset() {
	l.candles = l.candles[:0]
	l.price, l.hasPrice = 0, false
	l.prevPrice, l.hasPrevious = 0, false
}

func (l *Ledger) shiftPrice(next float64) {
	l.prevPrice, l.hasPrevious = l.price, l.hasPrice
	l.price, l.hasPrice = next, true
}

// Candles returns a copy of the current window.
func (l *Ledger) Candles() []model.Candle {
	out := make([]model.Candle, len(l.candles))
	copy(out, l.candles)
	return out
}

// Latest returns the newest candle.
func (l *Ledger) Latest() (model.Candle, bool) {
	if len(l.candles) == 0 {
		return model.Candle{}, false
	}
	return l.candles[len(l.candles)-1], true
}

// Price returns the latest observed close, if any.
func (l *Ledger) Price() (float64, bool) { return l.price, l.hasPrice }

// PreviousPrice returns the close observed before the latest one, if any.
func (l *Ledger) PreviousPrice() (float64, bool) { return l.prevPrice, l.hasPrevious }

// Len returns the number of candles held.
func (l *Ledger) Len() int { return len(l.candles) }

// Cap returns the capacity bound.
func (l *Ledger) Cap() int { return l.capacity }
