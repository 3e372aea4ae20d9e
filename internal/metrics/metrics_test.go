package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCandle()
	m.ObserveBootstrap(true)
	m.ObserveOrderRejected("insufficient_balance")
	m.SetAccount(1, 2, 3)
	m.ObserveHistorySave(time.Millisecond, errors.New("x"))
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBootstrap(false)
	m.ObserveBootstrap(true)
	if got := value(t, m.Bootstraps); got != 2 {
		t.Errorf("bootstraps = %v, want 2", got)
	}
	if got := value(t, m.FallbackBootstraps); got != 1 {
		t.Errorf("fallback bootstraps = %v, want 1", got)
	}

	m.ObserveSettlement("win")
	m.ObserveSettlement("win")
	m.ObserveSettlement("loss")
	if got := value(t, m.Settlements.WithLabelValues("win")); got != 2 {
		t.Errorf("wins = %v, want 2", got)
	}

	m.ObserveBreaker(1)
	m.ObserveBreaker(2)
	if got := value(t, m.BreakerTrips); got != 1 {
		t.Errorf("trips = %v, want 1", got)
	}
	if got := value(t, m.BreakerState); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus("sqlite")

	get := func() (int, map[string]any) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body
	}

	code, body := get()
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("feed down should be degraded/503, got %d %v", code, body["status"])
	}

	h.SetFeedConnected(true)
	code, body = get()
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("expected healthy/200, got %d %v", code, body["status"])
	}

	h.CheckStore(context.Background(), pingFunc(func(context.Context) error { return errors.New("locked") }))
	code, body = get()
	if code != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Fatalf("store down should be unhealthy/503, got %d %v", code, body["status"])
	}
}
