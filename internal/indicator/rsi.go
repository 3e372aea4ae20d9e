package indicator

import "botrader/internal/model"

// Wilder accumulates the Relative Strength Index of a close-price stream
// using Wilder's smoothing. Update is O(1) per price.
type Wilder struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewWilder creates an RSI accumulator with the given period (typically 14).
func NewWilder(period int) *Wilder {
	return &Wilder{period: period}
}

// Update feeds the next close price.
func (r *Wilder) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First price: record it, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain := 0.0
	loss := 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: simple mean of the first period deltas
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiValue(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiValue(r.avgGain, r.avgLoss)
}

// Value returns the current RSI. Returns 0 until Seeded.
func (r *Wilder) Value() float64 { return r.current }

// Seeded is true once the first period deltas have been averaged.
func (r *Wilder) Seeded() bool { return r.count > r.period }

// Smoothed is true once at least one Wilder smoothing step has run.
// The series emitted by RSI starts here.
func (r *Wilder) Smoothed() bool { return r.count > r.period+1 }

// rsiSentinelRS stands in for the infinite relative strength of a window
// with no losses, so RSI tops out at 100 - 100/101.
const rsiSentinelRS = 100.0

// rsiValue maps average gain/loss to RSI.
func rsiValue(avgGain, avgLoss float64) float64 {
	rs := rsiSentinelRS
	if avgLoss != 0 {
		rs = avgGain / avgLoss
	}
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSI returns one point per candle from index period+1 onward, rounded to
// two decimals. Fewer than period+2 candles yield an empty series.
func RSI(candles []model.Candle, period int) []Point {
	if period <= 0 || len(candles) <= period+1 {
		return []Point{}
	}

	w := NewWilder(period)
	out := make([]Point, 0, len(candles)-period-1)
	for i := range candles {
		w.Update(candles[i].Close)
		if !w.Smoothed() {
			continue
		}
		out = append(out, Point{Time: candles[i].Time, Value: round(w.Value(), rsiDecimals)})
	}
	return out
}
