package indicator

import (
	"math"
	"reflect"
	"testing"

	"botrader/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func series(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Time:  int64(1_700_000_000 + i*60),
			Open:  c,
			High:  c + 0.5,
			Low:   c - 0.5,
			Close: c,
		}
	}
	return out
}

func ramp(n int, start, step float64) []model.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return series(closes...)
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// Seed from the first 5 deltas:
	//   avgGain = (0.34+0.72+0.50)/5 = 0.312
	//   avgLoss = (0.25+0.48)/5      = 0.146
	//
	// Candle 7 (45.10): avgGain=0.3036  avgLoss=0.1168  → RSI 72.22
	// Candle 8 (45.42): avgGain=0.30688 avgLoss=0.09344 → RSI 76.66
	// Candle 9 (45.84): avgGain=0.329504 avgLoss=0.074752 → RSI 81.51
	candles := series(44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84)

	got := RSI(candles, 5)
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	want := []float64{72.22, 76.66, 81.51}
	for i, p := range got {
		assertClose(t, "RSI(5)", p.Value, want[i], 0.0001)
		if p.Time != candles[6+i].Time {
			t.Errorf("point %d: time %d not aligned to candle %d", i, p.Time, candles[6+i].Time)
		}
	}
}

func TestRSI_TooShort_IsEmpty(t *testing.T) {
	for _, n := range []int{0, 1, 14, 15} {
		got := RSI(ramp(n, 100, 1), 14)
		if got == nil || len(got) != 0 {
			t.Errorf("n=%d: expected empty non-nil series, got %v", n, got)
		}
	}
	if got := RSI(ramp(16, 100, 1), 14); len(got) != 1 {
		t.Errorf("n=16: expected 1 point, got %d", len(got))
	}
}

func TestRSI_AllUp_SentinelRS(t *testing.T) {
	got := RSI(ramp(40, 100, 1), 14)
	assertClose(t, "RSI all up", got[len(got)-1].Value, 99.01, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	got := RSI(ramp(40, 200, -1), 14)
	assertClose(t, "RSI all down", got[len(got)-1].Value, 0.0, 0.001)
}

func TestRSI_Flat_SentinelRS(t *testing.T) {
	// Both averages are zero; RS falls back to 100, giving 99.01.
	got := RSI(ramp(20, 100, 0), 14)
	for _, p := range got {
		assertClose(t, "RSI flat", p.Value, 99.01, 0.001)
	}
}

func TestRSI_ConvergesUpward(t *testing.T) {
	// One early loss, then a long rally: RSI should climb toward 100.
	closes := []float64{100, 99}
	for i := 0; i < 80; i++ {
		closes = append(closes, 99+float64(i+1))
	}
	got := RSI(series(closes...), 14)
	prev := 0.0
	for i, p := range got {
		if p.Value < prev {
			t.Fatalf("point %d: RSI fell from %.2f to %.2f on a rising series", i, prev, p.Value)
		}
		prev = p.Value
	}
	if prev < 99 {
		t.Errorf("expected RSI near 100 after a long rally, got %.2f", prev)
	}
}

// ────────────────────────────────────────────────────────────
// EMA / MACD Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_SeededWithFirstValue(t *testing.T) {
	// EMA(3): multiplier = 0.5
	// 100 → 100, 102 → 101, 104 → 102.5, 103 → 102.75
	got := EMASeries([]float64{100, 102, 104, 103}, 3)
	want := []float64{100, 101, 102.5, 102.75}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-9)
	}
}

func TestMACD_Correctness_SmallPeriods(t *testing.T) {
	// MACD(2, 3, 2) over 10, 11, 10, 12, 11, 13, 12.
	candles := series(10, 11, 10, 12, 11, 13, 12)
	got := MACD(candles, 2, 3, 2)
	want := []MACDPoint{
		{MACD: -0.0278, Signal: -0.0278, Histogram: 0},
		{MACD: 0.2824, Signal: 0.1790, Histogram: 0.1034},
		{MACD: 0.0733, Signal: 0.1085, Histogram: -0.0352},
		{MACD: 0.3474, Signal: 0.2677, Histogram: 0.0796},
		{MACD: 0.1106, Signal: 0.1630, Histogram: -0.0524},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Time != candles[2+i].Time {
			t.Errorf("point %d: time %d not aligned to candle %d", i, got[i].Time, candles[2+i].Time)
		}
		assertClose(t, "MACD", got[i].MACD, want[i].MACD, 0.0001)
		assertClose(t, "signal", got[i].Signal, want[i].Signal, 0.0001)
		assertClose(t, "histogram", got[i].Histogram, want[i].Histogram, 0.0001)
	}
}

func TestMACD_MinimumLength(t *testing.T) {
	if got := MACD(ramp(35, 100, 1), 12, 26, 9); len(got) != 0 {
		t.Errorf("35 candles: expected empty, got %d points", len(got))
	}
	got := MACD(ramp(36, 100, 1), 12, 26, 9)
	if len(got) != 11 {
		t.Fatalf("36 candles: expected 11 points, got %d", len(got))
	}
	if got[0].Time != ramp(36, 100, 1)[25].Time {
		t.Errorf("first point should align with candle index 25")
	}
}

func TestMACD_FlatSeriesIsZero(t *testing.T) {
	for _, p := range MACD(ramp(60, 50, 0), 12, 26, 9) {
		if p.MACD != 0 || p.Signal != 0 || p.Histogram != 0 {
			t.Fatalf("flat series should give zero MACD, got %+v", p)
		}
	}
}

func TestMACD_TrendSign(t *testing.T) {
	up := MACD(ramp(80, 100, 1), 12, 26, 9)
	if up[len(up)-1].MACD <= 0 {
		t.Errorf("uptrend: expected positive MACD, got %.4f", up[len(up)-1].MACD)
	}
	down := MACD(ramp(80, 200, -1), 12, 26, 9)
	if down[len(down)-1].MACD >= 0 {
		t.Errorf("downtrend: expected negative MACD, got %.4f", down[len(down)-1].MACD)
	}
}

// ────────────────────────────────────────────────────────────
// Determinism
// ────────────────────────────────────────────────────────────

func TestCompute_Deterministic(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + float64(i%5)*0.13
	}
	a := Compute(series(closes...))
	b := Compute(series(closes...))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical inputs produced different indicator output")
	}
	if len(a.RSI) != 200-15 || len(a.MACD) != 200-25 {
		t.Errorf("unexpected lengths rsi=%d macd=%d", len(a.RSI), len(a.MACD))
	}
}
