package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"botrader/internal/model"
)

const (
	DefaultRESTURL  = "https://api.binance.com"
	DefaultWSURL    = "wss://stream.binance.com:9443/ws"
	DefaultInterval = "1m"
	DefaultLimit    = 500
)

// ErrEmptyHistory is returned when the venue answers with no usable rows.
var ErrEmptyHistory = errors.New("feed: empty kline history")

// Client loads historical klines over REST.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client. An empty baseURL uses DefaultRESTURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchHistory returns up to limit closed candles for symbol, oldest first.
// Rows that are malformed or carry non-finite prices are skipped.
func (c *Client) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	apiURL := c.baseURL + "/api/v3/klines?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: klines returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("feed: decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, raw := range rows {
		c, ok := parseRESTRow(raw)
		if !ok {
			slog.Debug("feed: skipping malformed kline row", "symbol", symbol)
			continue
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, ErrEmptyHistory
	}
	return candles, nil
}

// parseRESTRow decodes one kline row:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, takerBase, takerQuote, ignore]
func parseRESTRow(raw json.RawMessage) (model.Candle, bool) {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil || len(row) < 11 {
		return model.Candle{}, false
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return model.Candle{}, false
	}

	var fields [5]float64
	for i := range fields {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return model.Candle{}, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, false
		}
		fields[i] = f
	}

	c := model.Candle{
		Time:     openTime / 1000,
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
		IsClosed: true,
	}
	return c, c.Finite()
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
