package indicator

import "botrader/internal/model"

// MACD returns the MACD line, its signal line and the histogram, aligned to
// candles from index long-1 onward. Values are rounded to four decimals.
// It needs more than long+signal candles; otherwise the series is empty.
func MACD(candles []model.Candle, short, long, signal int) []MACDPoint {
	if short <= 0 || long <= 0 || signal <= 0 || len(candles) <= long+signal {
		return []MACDPoint{}
	}

	cl := closes(candles)
	shortEMA := EMASeries(cl, short)
	longEMA := EMASeries(cl, long)

	// The MACD line is only defined once the long EMA has seen a full window.
	first := long - 1
	line := make([]float64, len(cl)-first)
	for i := first; i < len(cl); i++ {
		line[i-first] = shortEMA[i] - longEMA[i]
	}
	sig := EMASeries(line, signal)

	out := make([]MACDPoint, len(line))
	for j := range line {
		out[j] = MACDPoint{
			Time:      candles[first+j].Time,
			MACD:      round(line[j], macdDecimals),
			Signal:    round(sig[j], macdDecimals),
			Histogram: round(line[j]-sig[j], macdDecimals),
		}
	}
	return out
}
