package model

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrNonFinitePrice is returned when a feed price cannot be represented as a
// decimal (NaN or ±Inf).
var ErrNonFinitePrice = errors.New("non-finite price")

// PriceFromFloat converts a feed price into the decimal representation used
// for order entry and settlement.
func PriceFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, ErrNonFinitePrice
	}
	return decimal.NewFromFloat(f), nil
}

// Finite reports whether every price field of the candle is a finite number.
func (c *Candle) Finite() bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
