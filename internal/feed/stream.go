package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"botrader/internal/model"
)

// Stream subscribes to the live kline stream of one symbol over WebSocket.
type Stream struct {
	// BaseURL of the stream endpoint, e.g. "wss://stream.binance.com:9443/ws".
	BaseURL string
	// Interval of the kline stream, e.g. "1m".
	Interval string
	// ReadTimeout closes a silent connection. Zero disables the deadline.
	ReadTimeout time.Duration

	Dialer *websocket.Dialer
}

// NewStream creates a stream client with defaults applied.
func NewStream(baseURL, interval string) *Stream {
	if baseURL == "" {
		baseURL = DefaultWSURL
	}
	if interval == "" {
		interval = DefaultInterval
	}
	return &Stream{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Interval:    interval,
		ReadTimeout: 5 * time.Minute,
		Dialer:      websocket.DefaultDialer,
	}
}

// URL returns the per-symbol stream URL.
func (s *Stream) URL(symbol string) string {
	return fmt.Sprintf("%s/%s@kline_%s", s.BaseURL, strings.ToLower(symbol), s.Interval)
}

// Subscribe connects and delivers each parsed candle to emit until the
// connection drops or ctx is cancelled. onOpen is called once the handshake
// succeeds. Returns nil when ctx is cancelled, the disconnect cause otherwise.
func (s *Stream) Subscribe(ctx context.Context, symbol string, onOpen func(), emit func(model.Candle)) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL(symbol), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("feed: dial %s: %w", symbol, err)
	}
	defer conn.Close()

	slog.Info("feed: stream connected", "symbol", symbol)
	if onOpen != nil {
		onOpen()
	}

	// Closes the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		if s.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed: read %s: %w", symbol, err)
		}

		c, err := ParseKline(raw)
		if err != nil {
			slog.Debug("feed: skipping message", "symbol", symbol, "error", err)
			continue
		}
		emit(c)
	}
}

// ErrNotKline is returned by ParseKline for messages that carry no kline.
var ErrNotKline = errors.New("feed: message is not a kline")

type klinePayload struct {
	OpenTime  *int64 `json:"t"`
	CloseTime *int64 `json:"T"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Final     bool   `json:"x"`
}

type klineEnvelope struct {
	Stream string        `json:"stream"`
	K      *klinePayload `json:"k"`
	Data   *struct {
		K *klinePayload `json:"k"`
	} `json:"data"`
}

// ParseKline decodes a direct ({"k":...}) or combined-stream
// ({"stream":...,"data":{"k":...}}) kline message.
func ParseKline(raw []byte) (model.Candle, error) {
	var env klineEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Candle{}, fmt.Errorf("feed: decode kline: %w", err)
	}
	k := env.K
	if k == nil && env.Data != nil {
		k = env.Data.K
	}
	if k == nil || k.OpenTime == nil || k.CloseTime == nil {
		return model.Candle{}, ErrNotKline
	}

	var fields [4]float64
	for i, s := range [...]string{k.Open, k.High, k.Low, k.Close} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("feed: kline price %q: %w", s, err)
		}
		fields[i] = f
	}
	// Volume is optional on the wire.
	vol, _ := strconv.ParseFloat(k.Volume, 64)

	c := model.Candle{
		Time:     *k.OpenTime / 1000,
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   vol,
		IsClosed: k.Final,
	}
	if !c.Finite() {
		return model.Candle{}, model.ErrNonFinitePrice
	}
	return c, nil
}
