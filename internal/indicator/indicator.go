// Package indicator computes technical indicator series over a candle history.
//
// Every function is pure: the same candle slice always yields the same,
// bit-identical output. Series are recomputed from scratch whenever the
// ledger changes, which is cheap because the ledger is capacity-bounded.
package indicator

import (
	"math"

	"botrader/internal/model"
)

const (
	DefaultRSIPeriod  = 14
	DefaultMACDShort  = 12
	DefaultMACDLong   = 26
	DefaultMACDSignal = 9

	rsiDecimals  = 2
	macdDecimals = 4
)

// Point is one value of a single-line indicator, aligned to the candle it
// was derived from.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// MACDPoint is one aligned MACD sample.
type MACDPoint struct {
	Time      int64   `json:"time"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Set bundles the indicators rendered next to the chart.
type Set struct {
	RSI  []Point     `json:"rsi"`
	MACD []MACDPoint `json:"macd"`
}

// Compute returns RSI(14) and MACD(12, 26, 9) for candles.
func Compute(candles []model.Candle) Set {
	return Set{
		RSI:  RSI(candles, DefaultRSIPeriod),
		MACD: MACD(candles, DefaultMACDShort, DefaultMACDLong, DefaultMACDSignal),
	}
}

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
