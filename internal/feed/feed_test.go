package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"botrader/internal/model"
)

// ── RetryPolicy ──

func TestRetryPolicy_ExponentialCapped(t *testing.T) {
	p := RetryPolicy{Initial: 2 * time.Second, Max: 10 * time.Second, Multiplier: 2}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := p.Next(i); got != w {
			t.Errorf("Next(%d) = %s, want %s", i, got, w)
		}
	}
}

func TestRetryPolicy_FixedWhenMultiplierOne(t *testing.T) {
	p := RetryPolicy{Initial: 2 * time.Second, Multiplier: 1}
	for i := 0; i < 5; i++ {
		if got := p.Next(i); got != 2*time.Second {
			t.Fatalf("Next(%d) = %s, want 2s", i, got)
		}
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := RetryPolicy{Initial: time.Second, Multiplier: 1, Jitter: 0.2, Rand: rng.Float64}
	for i := 0; i < 200; i++ {
		got := p.Next(0)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("jittered delay %s out of ±20%% bounds", got)
		}
	}
}

// ── Parsing ──

const directKline = `{"e":"kline","s":"BTCUSDT","k":{"t":1700000040000,"T":1700000099999,"o":"100.5","h":"101","l":"99.5","c":"100.75","v":"12.5","x":false}}`

func TestParseKline_Direct(t *testing.T) {
	c, err := ParseKline([]byte(directKline))
	if err != nil {
		t.Fatalf("ParseKline: %v", err)
	}
	if c.Time != 1700000040 || c.Close != 100.75 || c.IsClosed {
		t.Errorf("unexpected candle %+v", c)
	}
}

func TestParseKline_CombinedEnvelope(t *testing.T) {
	raw := `{"stream":"btcusdt@kline_1m","data":{"k":{"t":1700000040000,"T":1700000099999,"o":"1","h":"2","l":"0.5","c":"1.5","v":"3","x":true}}}`
	c, err := ParseKline([]byte(raw))
	if err != nil {
		t.Fatalf("ParseKline: %v", err)
	}
	if !c.IsClosed || c.High != 2 {
		t.Errorf("unexpected candle %+v", c)
	}
}

func TestParseKline_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":     `nope`,
		"no kline":     `{"result":null,"id":1}`,
		"missing time": `{"k":{"T":1,"o":"1","h":"1","l":"1","c":"1"}}`,
		"bad price":    `{"k":{"t":1,"T":2,"o":"x","h":"1","l":"1","c":"1"}}`,
	}
	for name, raw := range cases {
		if _, err := ParseKline([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestClient_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "ETHUSDT" || q.Get("interval") != "1m" || q.Get("limit") != "3" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[
			[1700000000000,"10","11","9","10.5","1",1700000059999,"0",1,"0","0","0"],
			[1700000060000,"10.5","12","10","11.5","2",1700000119999,"0",1,"0","0","0"],
			["bad"]
		]`)
	}))
	defer srv.Close()

	candles, err := NewClient(srv.URL).FetchHistory(context.Background(), "ETHUSDT", "1m", 3)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected malformed row skipped, got %d candles", len(candles))
	}
	if candles[1].Time != 1700000060 || candles[1].Close != 11.5 || !candles[1].IsClosed {
		t.Errorf("unexpected candle %+v", candles[1])
	}
}

func TestClient_FetchHistoryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "EMPTY" {
			fmt.Fprint(w, `[]`)
			return
		}
		http.Error(w, "banned", http.StatusTeapot)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.FetchHistory(context.Background(), "BTCUSDT", "1m", 10); err == nil {
		t.Error("expected status error")
	}
	if _, err := c.FetchHistory(context.Background(), "EMPTY", "1m", 10); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("expected ErrEmptyHistory, got %v", err)
	}
}

// ── Synthetic ──

func TestSynthetic_Shape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cs := Synthetic(now, 120, SyntheticBase, rand.New(rand.NewSource(7)))
	if len(cs) != 120 {
		t.Fatalf("expected 120 candles, got %d", len(cs))
	}
	for i, c := range cs {
		if i > 0 && c.Time-cs[i-1].Time != 60 {
			t.Fatalf("candles not one minute apart at %d", i)
		}
		if c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
			t.Fatalf("wicks do not bound body at %d: %+v", i, c)
		}
		if !c.IsClosed {
			t.Fatalf("synthetic candles must be closed")
		}
	}
	if cs[len(cs)-1].Time >= now.Unix() {
		t.Error("series must end before now")
	}
}

// ── Stream ──

var upgrader = websocket.Upgrader{}

func TestStream_Subscribe(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(directKline))
	}))
	defer srv.Close()

	s := NewStream("ws"+strings.TrimPrefix(srv.URL, "http"), "1m")
	opened := false
	var got []model.Candle
	err := s.Subscribe(context.Background(), "BTCUSDT", func() { opened = true }, func(c model.Candle) { got = append(got, c) })

	if err == nil {
		t.Error("expected disconnect error after server closes")
	}
	if !opened {
		t.Error("onOpen not called")
	}
	if gotPath != "/btcusdt@kline_1m" {
		t.Errorf("unexpected stream path %q", gotPath)
	}
	if len(got) != 1 || got[0].Close != 100.75 {
		t.Errorf("expected one parsed candle, got %+v", got)
	}
}

// ── Adapter ──

type fakeHistory struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeHistory) FetchHistory(_ context.Context, symbol, _ string, _ int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []model.Candle{{Time: 60, Close: 1}, {Time: 120, Close: 2}}, nil
}

// fakeStream opens, emits one candle and then blocks until cancelled.
type fakeStream struct{}

func (fakeStream) Subscribe(ctx context.Context, symbol string, onOpen func(), emit func(model.Candle)) error {
	onOpen()
	emit(model.Candle{Time: 180, Close: 3})
	<-ctx.Done()
	return nil
}

// droppingStream fails immediately.
type droppingStream struct{}

func (droppingStream) Subscribe(context.Context, string, func(), func(model.Candle)) error {
	return errors.New("connection refused")
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestAdapter_ConnectBootstrapStream(t *testing.T) {
	a := NewAdapter(Config{}, &fakeHistory{}, fakeStream{})
	out := make(chan Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, "BTCUSDT", out)

	if ev := next(t, out); ev.Kind != EventStatus || ev.Status != model.StatusConnecting {
		t.Fatalf("expected connecting, got %+v", ev)
	}
	if ev := next(t, out); ev.Kind != EventHistory || len(ev.Candles) != 2 || ev.Fallback {
		t.Fatalf("expected real history, got %+v", ev)
	}
	if ev := next(t, out); ev.Kind != EventStatus || ev.Status != model.StatusConnected {
		t.Fatalf("expected connected, got %+v", ev)
	}
	if ev := next(t, out); ev.Kind != EventCandle || ev.Candle.Close != 3 || ev.Symbol != "BTCUSDT" {
		t.Fatalf("expected streamed candle, got %+v", ev)
	}
}

func TestAdapter_FallbackOnHistoryFailure(t *testing.T) {
	fallbacks := 0
	a := NewAdapter(Config{FallbackLength: 30}, &fakeHistory{err: errors.New("blocked")}, fakeStream{})
	a.OnFallback = func(string) { fallbacks++ }
	out := make(chan Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, "BTCUSDT", out)

	next(t, out) // connecting
	ev := next(t, out)
	if ev.Kind != EventHistory || !ev.Fallback || len(ev.Candles) != 30 {
		t.Fatalf("expected synthetic history, got kind=%v fallback=%v n=%d", ev.Kind, ev.Fallback, len(ev.Candles))
	}
	cancel()
	if fallbacks != 1 {
		t.Errorf("expected one fallback, got %d", fallbacks)
	}
}

func TestAdapter_ReconnectRebootstraps(t *testing.T) {
	hist := &fakeHistory{}
	cfg := Config{Retry: RetryPolicy{Initial: time.Millisecond, Multiplier: 1}}
	a := NewAdapter(cfg, hist, droppingStream{})
	out := make(chan Event, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, "BTCUSDT", out)

	disconnects := 0
	histories := 0
	for disconnects < 2 {
		ev := next(t, out)
		switch {
		case ev.Kind == EventStatus && ev.Status == model.StatusDisconnected:
			disconnects++
		case ev.Kind == EventHistory:
			histories++
		}
	}
	if histories < 2 {
		t.Errorf("expected history refetched on reconnect, got %d bootstraps", histories)
	}
}

func TestAdapter_FollowSwitchesSymbol(t *testing.T) {
	a := NewAdapter(Config{}, &fakeHistory{}, fakeStream{})
	out := make(chan Event, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, "BTCUSDT", out)

	for ev := next(t, out); ev.Kind != EventCandle; ev = next(t, out) {
	}
	a.Follow("ETHUSDT")

	for {
		ev := next(t, out)
		if ev.Symbol == "ETHUSDT" {
			if ev.Kind != EventStatus || ev.Status != model.StatusConnecting {
				t.Fatalf("new subscription should start with connecting, got %+v", ev)
			}
			return
		}
	}
}
