package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	period     = time.Minute
	maxHistory = 1000
	maxLimit   = 1000
)

// Starting prices for well-known symbols. Others start at 100.
var basePrices = map[string]float64{
	"BTCUSDT":  65000,
	"ETHUSDT":  3200,
	"SOLUSDT":  150,
	"BNBUSDT":  580,
	"XRPUSDT":  0.6,
	"DOGEUSDT": 0.15,
}

// kline is one simulated candle.
type kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// market holds per-symbol simulation state.
type market struct {
	symbol  string
	history []kline // closed, oldest first
	cur     kline
}

// simulator owns every market and the WebSocket subscribers per symbol.
type simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	now     func() time.Time
	markets map[string]*market
	clients map[string]map[*websocket.Conn]chan []byte
}

func newSimulator(seed int64, now func() time.Time) *simulator {
	return &simulator{
		rng:     rand.New(rand.NewSource(seed)),
		now:     now,
		markets: make(map[string]*market),
		clients: make(map[string]map[*websocket.Conn]chan []byte),
	}
}

// walk applies a random step of at most ±0.1%.
func (s *simulator) walk(price float64) float64 {
	pct := (s.rng.Float64()*0.2 - 0.1) / 100.0
	return math.Max(price*(1+pct), 1e-8)
}

// marketLocked returns the market for symbol, seeding a closed history that
// ends at the current period.
func (s *simulator) marketLocked(symbol string) *market {
	if m, ok := s.markets[symbol]; ok {
		return m
	}
	price, ok := basePrices[symbol]
	if !ok {
		price = 100
	}
	start := s.now().Truncate(period)
	m := &market{symbol: symbol, history: make([]kline, 0, maxHistory)}
	for i := maxHistory; i > 0; i-- {
		k := kline{OpenTime: start.Add(-time.Duration(i) * period), Open: price, High: price, Low: price}
		for j := 0; j < 12; j++ {
			price = s.walk(price)
			k.High = math.Max(k.High, price)
			k.Low = math.Min(k.Low, price)
		}
		k.Close = price
		k.Volume = s.rng.Float64() * 50
		m.history = append(m.history, k)
	}
	m.cur = kline{OpenTime: start, Open: price, High: price, Low: price, Close: price}
	s.markets[symbol] = m
	return m
}

// step advances every market with subscribers and broadcasts its kline.
// A kline whose period has ended is sent once more as final.
func (s *simulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for symbol, conns := range s.clients {
		if len(conns) == 0 {
			continue
		}
		m := s.marketLocked(symbol)
		if !now.Before(m.cur.OpenTime.Add(period)) {
			s.broadcastLocked(symbol, m.cur, true)
			m.history = append(m.history, m.cur)
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
			open := m.cur.Close
			m.cur = kline{OpenTime: now.Truncate(period), Open: open, High: open, Low: open, Close: open}
		}
		price := s.walk(m.cur.Close)
		m.cur.Close = price
		m.cur.High = math.Max(m.cur.High, price)
		m.cur.Low = math.Min(m.cur.Low, price)
		m.cur.Volume += s.rng.Float64()
		s.broadcastLocked(symbol, m.cur, false)
	}
}

func (s *simulator) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.step()
		}
	}
}

func fmtPrice(f float64) string { return strconv.FormatFloat(f, 'f', 8, 64) }

// streamMessage encodes k as a Binance kline stream event.
func streamMessage(symbol string, k kline, final bool, eventTime time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		"e": "kline",
		"E": eventTime.UnixMilli(),
		"s": symbol,
		"k": map[string]any{
			"t": k.OpenTime.UnixMilli(),
			"T": k.OpenTime.Add(period).UnixMilli() - 1,
			"s": symbol,
			"i": "1m",
			"o": fmtPrice(k.Open),
			"h": fmtPrice(k.High),
			"l": fmtPrice(k.Low),
			"c": fmtPrice(k.Close),
			"v": fmtPrice(k.Volume),
			"x": final,
		},
	})
}

// restRow encodes k as a /api/v3/klines row.
func restRow(k kline) []any {
	return []any{
		k.OpenTime.UnixMilli(),
		fmtPrice(k.Open), fmtPrice(k.High), fmtPrice(k.Low), fmtPrice(k.Close), fmtPrice(k.Volume),
		k.OpenTime.Add(period).UnixMilli() - 1,
		fmtPrice(k.Volume * k.Close),
		int(k.Volume * 10),
		fmtPrice(k.Volume / 2),
		fmtPrice(k.Volume * k.Close / 2),
		"0",
	}
}

func (s *simulator) broadcastLocked(symbol string, k kline, final bool) {
	msg, err := streamMessage(symbol, k, final, s.now())
	if err != nil {
		return
	}
	for _, ch := range s.clients[symbol] {
		select {
		case ch <- msg:
		default: // slow client, drop the update
		}
	}
}

func (s *simulator) register(symbol string, conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketLocked(symbol)
	if s.clients[symbol] == nil {
		s.clients[symbol] = make(map[*websocket.Conn]chan []byte)
	}
	s.clients[symbol][conn] = ch
	return ch
}

func (s *simulator) unregister(symbol string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.clients[symbol][conn]; ok {
		close(ch)
		delete(s.clients[symbol], conn)
	}
}

// closeAll ends every subscriber's write pump.
func (s *simulator) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, conns := range s.clients {
		for conn, ch := range conns {
			close(ch)
			delete(conns, conn)
		}
		delete(s.clients, symbol)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (s *simulator) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/klines", s.handleKlines)
	mux.HandleFunc("GET /ws/{stream}", s.handleStream)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})
	return mux
}

// binanceError writes an error body in the exchange's shape.
func binanceError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg})
}

func (s *simulator) handleKlines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := strings.ToUpper(q.Get("symbol"))
	if symbol == "" {
		binanceError(w, -1102, "Mandatory parameter 'symbol' was not sent, was empty/null, or malformed.")
		return
	}
	if iv := q.Get("interval"); iv != "1m" {
		binanceError(w, -1120, "Invalid interval.")
		return
	}
	limit := 500
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			binanceError(w, -1100, "Illegal characters found in parameter 'limit'.")
			return
		}
		limit = min(n, maxLimit)
	}

	s.mu.Lock()
	m := s.marketLocked(symbol)
	hist := m.history
	if len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	rows := make([][]any, len(hist))
	for i, k := range hist {
		rows[i] = restRow(k)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (s *simulator) handleStream(w http.ResponseWriter, r *http.Request) {
	name, iv, ok := strings.Cut(r.PathValue("stream"), "@kline_")
	if !ok || name == "" || iv != "1m" {
		http.Error(w, "unsupported stream", http.StatusNotFound)
		return
	}
	symbol := strings.ToUpper(name)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrade error", "error", err)
		return
	}
	slog.Info("client connected", "symbol", symbol, "remote", r.RemoteAddr)

	ch := s.register(symbol, conn)
	defer func() {
		s.unregister(symbol, conn)
		conn.Close()
		slog.Info("client disconnected", "symbol", symbol, "remote", r.RemoteAddr)
	}()

	// Drain client frames so close and ping control messages are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.unregister(symbol, conn)
				return
			}
		}
	}()

	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
