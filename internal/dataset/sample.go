// Package dataset builds labelled pattern windows for offline model training.
package dataset

import (
	"fmt"
	"time"

	"patternscope/internal/pattern"
	"patternscope/pkg/model"
)

// Sample is one labelled window
type Sample struct {
	Symbol string        `json:"symbol"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	OHLC   [][4]float64  `json:"ohlc"`
	Label  pattern.Label `json:"label"`
	Class  int           `json:"class"`
}

// SampleFrom labels a window with l
func SampleFrom(w model.Window, l *pattern.Labeler) Sample {
	label := l.Label(w.Closes())
	ohlc := make([][4]float64, w.Len())
	for i, b := range w.Bars {
		ohlc[i] = b.OHLC()
	}
	return Sample{
		Symbol: w.Symbol,
		Start:  w.Start(),
		End:    w.End(),
		OHLC:   ohlc,
		Label:  label,
		Class:  l.Scheme().ClassOf(label),
	}
}

// Sweep labels every full window of the series, advancing by stride bars.
// A series of n bars yields (n-window)/stride+1 samples, none when n < window.
// Bars must already be complete.
func Sweep(s *model.Series, l *pattern.Labeler, window, stride int) ([]Sample, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", window)
	}
	if stride < 1 {
		return nil, fmt.Errorf("stride must be at least 1, got %d", stride)
	}

	var samples []Sample
	for end := window; end <= s.Len(); end += stride {
		samples = append(samples, SampleFrom(s.Window(end, window), l))
	}
	return samples, nil
}

// Counts tallies samples per label name
func Counts(samples []Sample) map[string]int {
	counts := make(map[string]int)
	for _, s := range samples {
		counts[s.Label.String()]++
	}
	return counts
}
