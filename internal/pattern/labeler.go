package pattern

import (
	"fmt"
	"slices"

	"patternscope/pkg/model"
)

// Scheme selects the labelling heuristics
type Scheme string

const (
	// Geometric checks bottom symmetry, regression slope and peak shape
	Geometric Scheme = "geometric"
	// Trend compares recent closes against the midpoint of the window
	Trend Scheme = "trend"
)

// ParseScheme validates a scheme name
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case Geometric, "":
		return Geometric, nil
	case Trend:
		return Trend, nil
	}
	return "", fmt.Errorf("unknown labelling scheme %q (want geometric or trend)", s)
}

// Classes returns the ordered class list of a scheme; a label's index is its
// class id in generated datasets.
func (s Scheme) Classes() []Label {
	if s == Trend {
		return []Label{NoPattern, DoubleBottom, DoubleTop, RisingWedge, FallingWedge}
	}
	return []Label{NoPattern, DoubleBottom, RisingWedge, FallingWedge, HeadAndShoulders}
}

// ClassOf returns the class id of l within the scheme, or -1
func (s Scheme) ClassOf(l Label) int {
	return slices.Index(s.Classes(), l)
}

// Result carries a label with the outcome of each geometric detector
type Result struct {
	Label            Label   `json:"label"`
	DoubleBottom     bool    `json:"double_bottom"`
	Wedge            bool    `json:"wedge"`
	HeadAndShoulders bool    `json:"head_and_shoulders"`
	Slope            float64 `json:"slope"`
}

// Detected reports whether the detector behind a model class fired, even
// when a higher priority label won.
func (r Result) Detected(className string) bool {
	switch {
	case r.Label.Matches(className):
		return true
	case HeadAndShoulders.Matches(className):
		return r.HeadAndShoulders
	case DoubleBottom.Matches(className):
		return r.DoubleBottom
	case normalize(className) == "wedge":
		return r.Wedge
	case RisingWedge.Matches(className):
		return r.Wedge && r.Slope >= 0
	case FallingWedge.Matches(className):
		return r.Wedge && r.Slope < 0
	}
	return false
}

// Labeler assigns a label to a window of closes. It is stateless and safe
// for concurrent use.
type Labeler struct {
	scheme     Scheme
	thresholds Thresholds
}

// NewLabeler creates a labeler
func NewLabeler(scheme Scheme, t Thresholds) *Labeler {
	if scheme == "" {
		scheme = Geometric
	}
	return &Labeler{scheme: scheme, thresholds: t}
}

// Scheme returns the labelling scheme
func (l *Labeler) Scheme() Scheme {
	return l.scheme
}

// Label returns the first matching label in priority order
func (l *Labeler) Label(closes []float64) Label {
	return l.Evaluate(closes).Label
}

// Evaluate runs every detector and picks the label
func (l *Labeler) Evaluate(closes []float64) Result {
	if len(closes) < MinWindow {
		return Result{Label: NoPattern}
	}
	if l.scheme == Trend {
		return Result{Label: trendLabel(closes)}
	}

	t := l.thresholds
	r := Result{
		DoubleBottom:     t.IsDoubleBottom(closes),
		Wedge:            t.IsWedge(closes),
		HeadAndShoulders: t.IsHeadAndShoulders(closes),
		Slope:            WedgeSlope(closes),
	}
	switch {
	case r.DoubleBottom:
		r.Label = DoubleBottom
	case r.Wedge && r.Slope >= 0:
		r.Label = RisingWedge
	case r.Wedge:
		r.Label = FallingWedge
	case r.HeadAndShoulders:
		r.Label = HeadAndShoulders
	default:
		r.Label = NoPattern
	}
	return r
}

// trendLabel compares the last close with the close 25 bars back and
// checks the spread of the last 20 closes. Windows shorter than a full
// pattern window are never labelled.
func trendLabel(closes []float64) Label {
	n := len(closes)
	if n < model.WindowSize {
		return NoPattern
	}
	last := closes[n-1]
	pivot := closes[n-25]
	recent := closes[n-25:]

	if last > pivot && slices.Min(recent) < pivot*0.95 {
		return DoubleBottom
	}
	if last < pivot && slices.Max(recent) > pivot*1.05 {
		return DoubleTop
	}

	tail := closes[n-20:]
	tight := populationStdDev(tail) < 0.02*mean(tail)
	if last > closes[n-5] && tight {
		return RisingWedge
	}
	if last < closes[n-5] && tight {
		return FallingWedge
	}
	return NoPattern
}
