package pattern

import (
	"math"
	"slices"

	"github.com/markcheno/go-talib"
)

// MinWindow is the shortest window any detector evaluates
const MinWindow = 30

// Thresholds configures the geometric detectors
type Thresholds struct {
	DoubleBottomTolerance float64 `yaml:"double_bottom_tolerance"` // relative gap between the two lows
	WedgeMaxSlope         float64 `yaml:"wedge_max_slope"`         // absolute regression slope per bar
	ShoulderTolerance     float64 `yaml:"shoulder_tolerance"`      // relative gap between the shoulders
}

// DefaultThresholds returns 5% bottoms, 0.02 slope and 10% shoulders
func DefaultThresholds() Thresholds {
	return Thresholds{
		DoubleBottomTolerance: 0.05,
		WedgeMaxSlope:         0.02,
		ShoulderTolerance:     0.1,
	}
}

// IsDoubleBottom compares the lowest close of each half of the window
func (t Thresholds) IsDoubleBottom(closes []float64) bool {
	if len(closes) < MinWindow {
		return false
	}
	mid := len(closes) / 2
	min1 := argmin(closes[:mid])
	min2 := argmin(closes[mid:]) + mid

	a, b := closes[min1], closes[min2]
	mean := (a + b) / 2
	return math.Abs(a-b)/mean < t.DoubleBottomTolerance
}

// WedgeSlope returns the least-squares slope of close against bar index
func WedgeSlope(closes []float64) float64 {
	n := len(closes)
	if n < 2 {
		return 0
	}
	slopes := talib.LinearRegSlope(closes, n)
	return slopes[n-1]
}

// IsWedge matches a window whose regression line is nearly flat
func (t Thresholds) IsWedge(closes []float64) bool {
	if len(closes) < MinWindow {
		return false
	}
	return math.Abs(WedgeSlope(closes)) < t.WedgeMaxSlope
}

// IsHeadAndShoulders compares the peaks of three overlapping segments
func (t Thresholds) IsHeadAndShoulders(closes []float64) bool {
	if len(closes) < MinWindow {
		return false
	}
	mid := len(closes) / 2
	q := mid / 2
	left := slices.Max(closes[:q])
	head := slices.Max(closes[q : mid+q])
	right := slices.Max(closes[mid+q:])

	return head > left && head > right && math.Abs(left-right)/head < t.ShoulderTolerance
}

func argmin(xs []float64) int {
	idx := 0
	for i, x := range xs {
		if x < xs[idx] {
			idx = i
		}
	}
	return idx
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func populationStdDev(xs []float64) float64 {
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)))
}
