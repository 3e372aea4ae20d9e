package model

import (
	"encoding/json"
	"time"
)

// Candle is one OHLCV bar of the selected market.
// Time is the bucket start in unix seconds (UTC) and is the unique key of a
// candle within a ledger.
type Candle struct {
	Time     int64   `json:"time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	IsClosed bool    `json:"isClosed"` // false while the bar is still forming
}

// StartTime returns the bucket start as a time.Time.
func (c *Candle) StartTime() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
