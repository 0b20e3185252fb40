package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA returns the simple moving average of xs over w rows.
// Rows before the window fills are WarmingUp; windows holding a non-finite
// value are Undefined.
func SMA(xs []float64, w int) []Value {
	out := make([]Value, len(xs))
	for i := range out {
		out[i] = Warming()
	}
	if w < 1 || len(xs) < w {
		return out
	}

	// talib keeps a running total, so each finite run is averaged on its own
	for start := 0; start < len(xs); {
		if !finite(xs[start]) {
			start++
			continue
		}
		end := start
		for end < len(xs) && finite(xs[end]) {
			end++
		}
		if end-start >= w {
			ma := talib.Sma(xs[start:end], w)
			for i := start + w - 1; i < end; i++ {
				out[i] = Of(ma[i-start])
			}
		}
		start = end
	}

	// full windows that reach a non-finite value
	for i := w - 1; i < len(xs); i++ {
		if out[i].State == WarmingUp {
			out[i] = Absent()
		}
	}
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// EMA returns the recursive exponential average with alpha = 2/(span+1),
// seeded with the first input. Every row is defined.
func EMA(xs []float64, span int) []Value {
	raw := ema(xs, span)
	out := make([]Value, len(raw))
	for i, x := range raw {
		out[i] = Of(x)
	}
	return out
}

func ema(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2 / (float64(span) + 1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI returns the relative strength index using w-period simple means of
// gains and losses. It is WarmingUp while i < w and Undefined when the
// average loss is zero.
func RSI(xs []float64, w int) []Value {
	out := make([]Value, len(xs))
	for i := range out {
		out[i] = Warming()
	}
	if w < 1 || len(xs) <= w {
		return out
	}

	gains := make([]float64, len(xs))
	losses := make([]float64, len(xs))
	for i := 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}

	for i := w; i < len(xs); i++ {
		// summed directly so a window without losses is exactly zero
		var gain, loss float64
		for j := i - w + 1; j <= i; j++ {
			gain += gains[j]
			loss += losses[j]
		}
		avgGain := gain / float64(w)
		avgLoss := loss / float64(w)
		if avgLoss == 0 {
			out[i] = Absent()
			continue
		}
		rs := avgGain / avgLoss
		out[i] = Of(100 - 100/(1+rs))
	}
	return out
}

// Bands holds a Bollinger band triple
type Bands struct {
	Mid   []Value
	Upper []Value
	Lower []Value
}

// Bollinger returns SMA(w) plus and minus k sample standard deviations
func Bollinger(xs []float64, w int, k float64) Bands {
	b := Bands{
		Mid:   SMA(xs, w),
		Upper: make([]Value, len(xs)),
		Lower: make([]Value, len(xs)),
	}
	for i := range xs {
		if !b.Mid[i].Ok() || w < 2 {
			b.Upper[i] = b.Mid[i]
			b.Lower[i] = b.Mid[i]
			continue
		}
		sd := SampleStdDev(xs[i-w+1 : i+1])
		mid := b.Mid[i].X
		b.Upper[i] = Of(mid + k*sd)
		b.Lower[i] = Of(mid - k*sd)
	}
	return b
}

// SampleStdDev is the ddof=1 standard deviation of xs
func SampleStdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(n)
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// MACDLines holds the MACD line and its signal line
type MACDLines struct {
	MACD   []Value
	Signal []Value
}

// MACD returns EMA(fast) - EMA(slow) and the EMA(signal) of that line
func MACD(xs []float64, fast, slow, signal int) MACDLines {
	f := ema(xs, fast)
	s := ema(xs, slow)
	line := make([]float64, len(xs))
	for i := range xs {
		line[i] = f[i] - s[i]
	}
	sig := ema(line, signal)

	out := MACDLines{
		MACD:   make([]Value, len(xs)),
		Signal: make([]Value, len(xs)),
	}
	for i := range xs {
		out.MACD[i] = Of(line[i])
		out.Signal[i] = Of(sig[i])
	}
	return out
}
