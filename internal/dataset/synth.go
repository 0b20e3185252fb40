package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"patternscope/internal/pattern"
	"patternscope/pkg/model"
)

// SynthSymbol is the symbol carried by synthetic samples
const SynthSymbol = "SYNTH"

// SynthClasses are the labels Synthesize draws from. Class ids follow the
// trend scheme.
var SynthClasses = []pattern.Label{
	pattern.NoPattern,
	pattern.DoubleBottom,
	pattern.DoubleTop,
	pattern.RisingWedge,
}

var synthEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Synthesize draws n windows of model.WindowSize bars with a uniformly
// chosen class each
func Synthesize(rng *rand.Rand, n int) []Sample {
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		label := SynthClasses[rng.IntN(len(SynthClasses))]
		w, _ := SynthesizeWindow(rng, label)
		ohlc := make([][4]float64, w.Len())
		for j, b := range w.Bars {
			ohlc[j] = b.OHLC()
		}
		samples = append(samples, Sample{
			Symbol: SynthSymbol,
			Start:  w.Start(),
			End:    w.End(),
			OHLC:   ohlc,
			Label:  label,
			Class:  pattern.Trend.ClassOf(label),
		})
	}
	return samples
}

// SynthesizeWindow builds one window shaped like label. Shapes are drawn in
// unit space and mapped to prices around 100 with exp, so prices stay
// positive.
func SynthesizeWindow(rng *rand.Rand, label pattern.Label) (model.Window, error) {
	var shape []float64
	switch label {
	case pattern.NoPattern:
		shape = make([]float64, model.WindowSize)
		var level float64
		for i := range shape {
			level += rng.NormFloat64() * 0.5
			shape[i] = level
		}
	case pattern.DoubleBottom:
		shape = legs(rng, 0.05, [][2]float64{{1, 0}, {0, 1}, {1, 0.5}, {0.5, 1}, {1, 1.2}})
	case pattern.DoubleTop:
		shape = legs(rng, 0.05, [][2]float64{{0, 1}, {1, 0}, {0, 0.5}, {0.5, 0}, {0, -0.2}})
	case pattern.RisingWedge:
		shape = make([]float64, model.WindowSize)
		for i := range shape {
			t := float64(i) / float64(model.WindowSize-1)
			shape[i] = 0.5*t + rng.NormFloat64()*0.1
		}
	default:
		return model.Window{}, fmt.Errorf("cannot synthesize %s", label)
	}

	bars := make([]model.Bar, len(shape))
	for i, base := range shape {
		open := base + rng.NormFloat64()*0.02
		close := open + rng.NormFloat64()*0.02
		high := math.Max(open+rng.Float64()*0.05, close)
		low := math.Min(open-rng.Float64()*0.05, close)
		bars[i] = model.Bar{
			Time:  synthEpoch.AddDate(0, 0, i),
			Open:  price(open),
			High:  price(high),
			Low:   price(low),
			Close: price(close),
		}
	}
	return model.Window{Symbol: SynthSymbol, Bars: bars}, nil
}

// legs joins linear segments of equal length with gaussian noise
func legs(rng *rand.Rand, noise float64, segments [][2]float64) []float64 {
	per := model.WindowSize / len(segments)
	out := make([]float64, 0, model.WindowSize)
	for _, seg := range segments {
		for i := 0; i < per; i++ {
			t := float64(i) / float64(per-1)
			out = append(out, seg[0]+(seg[1]-seg[0])*t+rng.NormFloat64()*noise)
		}
	}
	return out
}

func price(x float64) float64 {
	return 100 * math.Exp(x/10)
}
