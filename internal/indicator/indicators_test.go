package indicator

import (
	"math"
	"testing"
)

const eps = 1e-9

func ramp(n int, start, step float64) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = start + float64(i)*step
	}
	return xs
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	w := 4

	got := SMA(closes, w)
	for i, v := range got {
		if i < w-1 {
			if v.State != WarmingUp {
				t.Errorf("Row %d: expected WarmingUp, got %s", i, v.State)
			}
			continue
		}
		var sum float64
		for _, c := range closes[i-w+1 : i+1] {
			sum += c
		}
		want := sum / float64(w)
		if !v.Ok() || math.Abs(v.X-want) > eps {
			t.Errorf("Row %d: expected %f, got %+v", i, want, v)
		}
	}
}

func TestSMA_ShortInput(t *testing.T) {
	got := SMA([]float64{1, 2}, 5)
	for i, v := range got {
		if v.State != WarmingUp {
			t.Errorf("Row %d: expected WarmingUp, got %s", i, v.State)
		}
	}
}

func TestSMA_RecoversAfterInfinite(t *testing.T) {
	xs := ramp(80, 100, 1)
	xs[25] = math.Inf(1)

	got := SMA(xs, 14)
	for _, i := range []int{25, 30, 38} {
		if got[i].State != Undefined {
			t.Errorf("Row %d: expected Undefined, got %+v", i, got[i])
		}
	}
	if got[24].X != 117.5 || !got[24].Ok() {
		t.Errorf("Expected 117.5 before the infinite close, got %+v", got[24])
	}
	if !got[39].Ok() || got[39].X != 132.5 {
		t.Errorf("Expected 132.5 once the window clears, got %+v", got[39])
	}
	if !got[79].Ok() || got[79].X != 172.5 {
		t.Errorf("Expected 172.5 on the last row, got %+v", got[79])
	}

	bands := Bollinger(xs, 20, 2)
	if bands.Mid[30].State != Undefined {
		t.Errorf("Expected Undefined band over the infinite close, got %+v", bands.Mid[30])
	}
	if !bands.Mid[79].Ok() || !bands.Upper[79].Ok() || !bands.Lower[79].Ok() {
		t.Errorf("Expected bands on the last row, got %+v %+v %+v", bands.Mid[79], bands.Upper[79], bands.Lower[79])
	}
}

func TestSMA_FourteenBars(t *testing.T) {
	closes := make([]float64, 14)
	for i := 0; i < 13; i++ {
		closes[i] = 100
	}
	closes[13] = 114

	got := SMA(closes, 14)
	last := got[13]
	want := (100.0*13 + 114) / 14
	if !last.Ok() || math.Abs(last.X-want) > eps {
		t.Errorf("Expected SMA_14 %f, got %+v", want, last)
	}
	if math.Abs(last.X-101.0) > 0.01 {
		t.Errorf("Expected SMA_14 ~101.0, got %f", last.X)
	}
}

func TestEMA(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 13}
	got := EMA(closes, 3)

	if got[0].X != closes[0] {
		t.Errorf("Expected EMA[0] == close[0] (%f), got %f", closes[0], got[0].X)
	}

	alpha := 2.0 / 4.0
	prev := closes[0]
	for i := 1; i < len(closes); i++ {
		want := alpha*closes[i] + (1-alpha)*prev
		if !got[i].Ok() || math.Abs(got[i].X-want) > eps {
			t.Errorf("Row %d: expected %f, got %+v", i, want, got[i])
		}
		prev = want
	}
}

func TestEMA_NoWarmUp(t *testing.T) {
	got := EMA(ramp(5, 1, 1), 50)
	for i, v := range got {
		if !v.Ok() {
			t.Errorf("Row %d: expected computed EMA, got %s", i, v.State)
		}
	}
}

func TestRSI(t *testing.T) {
	// alternating moves: +2, -1, +2, -1 ...
	closes := []float64{100}
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			closes = append(closes, closes[len(closes)-1]+2)
		} else {
			closes = append(closes, closes[len(closes)-1]-1)
		}
	}

	w := 14
	got := RSI(closes, w)
	for i := 0; i < w; i++ {
		if got[i].State != WarmingUp {
			t.Errorf("Row %d: expected WarmingUp, got %s", i, got[i].State)
		}
	}
	for i := w; i < len(closes); i++ {
		v := got[i]
		if !v.Ok() {
			t.Fatalf("Row %d: expected computed RSI, got %s", i, v.State)
		}
		if v.X < 0 || v.X > 100 {
			t.Errorf("Row %d: RSI %f out of [0,100]", i, v.X)
		}
	}

	// 7 gains of 2 and 7 losses of 1 in every 14-step window
	want := 100 - 100/(1+2.0)
	if math.Abs(got[w].X-want) > eps {
		t.Errorf("Expected RSI %f, got %f", want, got[w].X)
	}
}

func TestRSI_ZeroLossIsUndefined(t *testing.T) {
	got := RSI(ramp(20, 100, 1), 14)
	for i := 14; i < 20; i++ {
		if got[i].State != Undefined {
			t.Errorf("Row %d: expected Undefined for zero loss, got %s (%f)", i, got[i].State, got[i].X)
		}
	}
}

func TestRSI_AllLosses(t *testing.T) {
	got := RSI(ramp(20, 100, -1), 14)
	if !got[14].Ok() || got[14].X != 0 {
		t.Errorf("Expected RSI 0 for only losses, got %+v", got[14])
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{
		10, 12, 11, 13, 15, 14, 13, 12, 16, 17,
		15, 14, 18, 19, 17, 16, 15, 18, 20, 21,
		19, 18, 22, 21,
	}
	w := 20
	b := Bollinger(closes, w, 2)

	for i := 0; i < w-1; i++ {
		if b.Upper[i].State != WarmingUp || b.Lower[i].State != WarmingUp {
			t.Errorf("Row %d: expected WarmingUp bands", i)
		}
	}
	for i := w - 1; i < len(closes); i++ {
		mid, up, lo := b.Mid[i].X, b.Upper[i].X, b.Lower[i].X
		if math.Abs((up-mid)-(mid-lo)) > eps {
			t.Errorf("Row %d: bands not symmetric: upper-mid=%f mid-lower=%f", i, up-mid, mid-lo)
		}
		sd := SampleStdDev(closes[i-w+1 : i+1])
		if math.Abs((up-mid)-2*sd) > eps {
			t.Errorf("Row %d: expected half-width %f, got %f", i, 2*sd, up-mid)
		}
	}
}

func TestSampleStdDev(t *testing.T) {
	got := SampleStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > eps {
		t.Errorf("Expected %f, got %f", want, got)
	}
	if !math.IsNaN(SampleStdDev([]float64{1})) {
		t.Error("Expected NaN for a single sample")
	}
}

func TestMACD(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 12, 11, 12, 14, 15, 16}
	lines := MACD(closes, 12, 26, 9)

	if lines.MACD[0].X != 0 {
		t.Errorf("Expected MACD[0] == 0, got %f", lines.MACD[0].X)
	}
	if lines.Signal[0].X != lines.MACD[0].X {
		t.Errorf("Expected signal seeded with MACD[0]")
	}

	fast := ema(closes, 12)
	slow := ema(closes, 26)
	for i := range closes {
		if math.Abs(lines.MACD[i].X-(fast[i]-slow[i])) > eps {
			t.Errorf("Row %d: MACD mismatch", i)
		}
	}
}
