package feed

import (
	"math/rand"
	"time"
)

// RetryPolicy computes reconnect delays: Initial, multiplied by Multiplier
// per failed attempt, capped at Max, then spread by ±Jitter (a fraction of
// the delay).
type RetryPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64
}

// DefaultRetryPolicy retries after 2s, doubling up to 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:    2 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// Next returns the delay before retry number attempt (0-based).
func (p RetryPolicy) Next(attempt int) time.Duration {
	d := float64(p.Initial)
	if d <= 0 {
		d = float64(2 * time.Second)
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	max := float64(p.Max)
	for i := 0; i < attempt; i++ {
		d *= mult
		if max > 0 && d >= max {
			break
		}
	}
	if max > 0 && d > max {
		d = max
	}

	if p.Jitter > 0 {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		d += d * p.Jitter * (2*r() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
