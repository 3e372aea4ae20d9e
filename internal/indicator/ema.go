package indicator

// EMA calculates an Exponential Moving Average seeded with the first value.
// O(1) per update, no window storage needed.
type EMA struct {
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{multiplier: 2.0 / float64(period+1)}
}

// Update feeds the next value and returns the new average.
func (e *EMA) Update(v float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = v
		return e.current
	}
	// EMA = (v * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
	return e.current
}

// Value returns the current average (0 before the first update).
func (e *EMA) Value() float64 { return e.current }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// EMASeries returns the EMA of values, one output per input.
func EMASeries(values []float64, period int) []float64 {
	e := NewEMA(period)
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = e.Update(v)
	}
	return out
}
