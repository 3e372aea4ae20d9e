package feed

import (
	"math"
	"math/rand"
	"time"

	"botrader/internal/model"
)

// SyntheticBase is the opening price of the placeholder series.
const SyntheticBase = 50000.0

// Synthetic builds n closed one-minute candles ending just before now: a
// gentle uptrend from base with random bodies and wicks. It keeps the
// ledger non-empty when history cannot be loaded.
func Synthetic(now time.Time, n int, base float64, rng *rand.Rand) []model.Candle {
	if rng == nil {
		rng = rand.New(rand.NewSource(now.UnixNano()))
	}
	end := now.Unix()
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		open := base + float64(i)*12
		close := open + (rng.Float64()-0.5)*200
		out[i] = model.Candle{
			Time:     end - int64(n-i)*60,
			Open:     open,
			High:     math.Max(open, close) + rng.Float64()*120,
			Low:      math.Min(open, close) - rng.Float64()*120,
			Close:    close,
			Volume:   rng.Float64() * 5,
			IsClosed: true,
		}
	}
	return out
}
