package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"botrader/internal/feed"
	"botrader/internal/model"
)

func newTestServer(t *testing.T) (*simulator, *httptest.Server) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)
	sim := newSimulator(1, func() time.Time { return now })
	srv := httptest.NewServer(sim.routes())
	t.Cleanup(func() {
		sim.closeAll()
		srv.Close()
	})
	return sim, srv
}

func TestKlines_ReadableByFeedClient(t *testing.T) {
	_, srv := newTestServer(t)

	candles, err := feed.NewClient(srv.URL).FetchHistory(context.Background(), "BTCUSDT", "1m", 500)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(candles) != 500 {
		t.Fatalf("expected 500 candles, got %d", len(candles))
	}
	last := candles[len(candles)-1]
	if want := time.Date(2024, 3, 1, 11, 59, 0, 0, time.UTC).Unix(); last.Time != want {
		t.Errorf("last closed candle at %d, want %d", last.Time, want)
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Time-candles[i-1].Time != 60 {
			t.Fatalf("candles not contiguous at %d", i)
		}
		if candles[i].High < candles[i].Low {
			t.Fatalf("high below low at %d", i)
		}
	}
}

func TestKlines_Validation(t *testing.T) {
	_, srv := newTestServer(t)
	for _, q := range []string{"interval=1m", "symbol=BTCUSDT&interval=5m", "symbol=BTCUSDT&interval=1m&limit=x"} {
		resp, err := http.Get(srv.URL + "/api/v3/klines?" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestStream_DeliversKlines(t *testing.T) {
	sim, srv := newTestServer(t)

	stream := feed.NewStream("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "1m")
	got := make(chan model.Candle, 4)
	opened := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Subscribe(ctx, "ETHUSDT", func() { close(opened) }, func(c model.Candle) { got <- c })

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not open")
	}

	// Registration happens during the upgrade; step until the update arrives.
	deadline := time.After(2 * time.Second)
	for {
		sim.step()
		select {
		case c := <-got:
			if c.IsClosed {
				t.Error("live kline should not be final")
			}
			if want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix(); c.Time != want {
				t.Errorf("kline open time %d, want %d", c.Time, want)
			}
			return
		case <-deadline:
			t.Fatal("no kline received")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestStep_RollsPeriod(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)
	sim := newSimulator(1, func() time.Time { return now })
	ch := sim.register("BTCUSDT", nil)

	sim.step()
	<-ch
	before := len(sim.markets["BTCUSDT"].history)

	now = now.Add(time.Minute)
	sim.step()
	final, live := <-ch, <-ch
	if !strings.Contains(string(final), `"x":true`) || !strings.Contains(string(live), `"x":false`) {
		t.Fatalf("expected final then live kline, got %s / %s", final, live)
	}
	if got := len(sim.markets["BTCUSDT"].history); got != before {
		t.Errorf("history should stay capped at %d, got %d", before, got)
	}
	if sim.markets["BTCUSDT"].cur.OpenTime != now.Truncate(time.Minute) {
		t.Errorf("new period not opened")
	}
}
