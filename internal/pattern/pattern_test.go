package pattern

import (
	"math"
	"testing"
)

func flat(n int, v float64) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = v
	}
	return xs
}

func doubleBottomWindow() []float64 {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + math.Abs(float64(i%25)-12)
	}
	// equal lows, one in each half of the midpoint split
	closes[12] = 90
	closes[37] = 90
	return closes
}

func headAndShouldersWindow() []float64 {
	closes := flat(50, 100)
	for i := 25; i < 50; i++ {
		closes[i] = 90
	}
	closes[5] = 105
	closes[24] = 115
	closes[45] = 106
	return closes
}

func TestIsDoubleBottom(t *testing.T) {
	th := DefaultThresholds()
	if !th.IsDoubleBottom(doubleBottomWindow()) {
		t.Error("Expected double bottom for equal lows either side of the midpoint")
	}

	closes := doubleBottomWindow()
	closes[37] = 80 // 11.7% apart
	if th.IsDoubleBottom(closes) {
		t.Error("Expected no double bottom when the lows differ by more than 5%")
	}
}

func TestIsWedge(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + 0.001*float64(i)
	}

	th := DefaultThresholds()
	if !th.IsWedge(closes) {
		t.Error("Expected wedge for a 0.001 per bar drift")
	}
	if slope := WedgeSlope(closes); math.Abs(slope-0.001) > 1e-9 {
		t.Errorf("Expected slope 0.001, got %g", slope)
	}

	steep := make([]float64, 50)
	for i := range steep {
		steep[i] = 100 + 0.5*float64(i)
	}
	if th.IsWedge(steep) {
		t.Error("Expected no wedge for a 0.5 per bar trend")
	}
}

func TestIsHeadAndShoulders(t *testing.T) {
	th := DefaultThresholds()
	if !th.IsHeadAndShoulders(headAndShouldersWindow()) {
		t.Error("Expected head and shoulders")
	}

	lopsided := headAndShouldersWindow()
	lopsided[45] = 90 // no right shoulder: 105 vs 90 is 13% of the head
	if th.IsHeadAndShoulders(lopsided) {
		t.Error("Expected no match when shoulders differ by more than 10% of the head")
	}
}

func TestShortWindowNeverMatches(t *testing.T) {
	th := DefaultThresholds()
	windows := map[string][]float64{
		"flat":          flat(20, 100),
		"double bottom": doubleBottomWindow()[:20],
		"head":          headAndShouldersWindow()[:20],
	}

	for name, closes := range windows {
		t.Run(name, func(t *testing.T) {
			if th.IsDoubleBottom(closes) || th.IsWedge(closes) || th.IsHeadAndShoulders(closes) {
				t.Error("Expected every detector false below 30 bars")
			}
			for _, scheme := range []Scheme{Geometric, Trend} {
				if got := NewLabeler(scheme, th).Label(closes); got != NoPattern {
					t.Errorf("%s: expected No Pattern, got %s", scheme, got)
				}
			}
		})
	}
}

func TestLabeler_Priority(t *testing.T) {
	l := NewLabeler(Geometric, DefaultThresholds())

	tests := []struct {
		name   string
		closes []float64
		want   Label
	}{
		{"double bottom", doubleBottomWindow(), DoubleBottom},
		{"head and shoulders", headAndShouldersWindow(), HeadAndShoulders},
		{"flat window is a double bottom first", flat(50, 100), DoubleBottom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Label(tt.closes); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLabeler_WedgeDirection(t *testing.T) {
	l := NewLabeler(Geometric, DefaultThresholds())

	tests := []struct {
		name  string
		drift float64
		want  Label
	}{
		{"rising", 0.005, RisingWedge},
		{"falling", -0.005, FallingWedge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closes := make([]float64, 50)
			for i := range closes {
				closes[i] = 100 + tt.drift*float64(i)
			}
			// a single deep low keeps the double bottom check from matching
			closes[24] = 80

			r := l.Evaluate(closes)
			if r.DoubleBottom {
				t.Fatal("Test window unexpectedly matched double bottom")
			}
			if !r.Wedge {
				t.Fatalf("Expected wedge, slope %g", r.Slope)
			}
			if r.Label != tt.want {
				t.Errorf("Expected %s, got %s (slope %g)", tt.want, r.Label, r.Slope)
			}
		})
	}
}

func TestTrendScheme(t *testing.T) {
	l := NewLabeler(Trend, DefaultThresholds())

	dip := flat(50, 100)
	dip[35] = 94
	dip[49] = 103
	if got := l.Label(dip); got != DoubleBottom {
		t.Errorf("Expected Double Bottom, got %s", got)
	}

	spike := flat(50, 100)
	spike[35] = 106
	spike[49] = 97
	if got := l.Label(spike); got != DoubleTop {
		t.Errorf("Expected Double Top, got %s", got)
	}

	tightUp := flat(50, 100)
	for i := 45; i < 50; i++ {
		tightUp[i] = 100 + 0.1*float64(i-44)
	}
	if got := l.Label(tightUp); got != RisingWedge {
		t.Errorf("Expected Rising Wedge, got %s", got)
	}

	tightDown := flat(50, 100)
	for i := 45; i < 50; i++ {
		tightDown[i] = 100 - 0.1*float64(i-44)
	}
	if got := l.Label(tightDown); got != FallingWedge {
		t.Errorf("Expected Falling Wedge, got %s", got)
	}
}

func TestTrendScheme_ShortWindow(t *testing.T) {
	l := NewLabeler(Trend, DefaultThresholds())

	// the same dip that labels a full window as a double bottom
	dip := flat(40, 100)
	dip[25] = 94
	dip[39] = 103
	if got := l.Label(dip); got != NoPattern {
		t.Errorf("Expected No Pattern for a 40 bar window, got %s", got)
	}
}

func TestResult_Detected(t *testing.T) {
	l := NewLabeler(Geometric, DefaultThresholds())

	// double bottom wins the label but the head and shoulders check also fires
	closes := flat(50, 90)
	closes[5] = 105
	closes[24] = 115
	closes[45] = 106

	r := l.Evaluate(closes)
	if r.Label != DoubleBottom {
		t.Fatalf("Expected Double Bottom label, got %s", r.Label)
	}
	if !r.Detected("Head and Shoulders") {
		t.Error("Expected the head and shoulders detector to count as detected")
	}
	if !r.Detected("double_bottom") {
		t.Error("Expected the winning label to count as detected")
	}
	if r.Detected("Double Top") {
		t.Error("Expected no detector behind Double Top")
	}
}

func TestSchemeClasses(t *testing.T) {
	// wedge direction is split, so head and shoulders is 4, not 3
	want := []Label{NoPattern, DoubleBottom, RisingWedge, FallingWedge, HeadAndShoulders}
	for id, l := range want {
		if got := Geometric.ClassOf(l); got != id {
			t.Errorf("Expected %s to be class %d, got %d", l, id, got)
		}
	}
	if got := Trend.ClassOf(HeadAndShoulders); got != -1 {
		t.Errorf("Expected -1 for a label outside the scheme, got %d", got)
	}
	if _, err := ParseScheme("fibonacci"); err == nil {
		t.Error("Expected error for unknown scheme")
	}
}

func TestParseLabel(t *testing.T) {
	tests := map[string]Label{
		"Head and Shoulders": HeadAndShoulders,
		"head_and_shoulders": HeadAndShoulders,
		"double bottom":      DoubleBottom,
		"Rising Wedge":       RisingWedge,
		"No Pattern":         NoPattern,
	}
	for in, want := range tests {
		got, err := ParseLabel(in)
		if err != nil || got != want {
			t.Errorf("ParseLabel(%q): expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseLabel("cup and handle"); err == nil {
		t.Error("Expected error for unknown label")
	}
}

func TestLabelMatches(t *testing.T) {
	if !FallingWedge.Matches("Wedge") || !RisingWedge.Matches("wedge") {
		t.Error("Expected bare Wedge class to match both directions")
	}
	if !NoPattern.Matches("No pattern") {
		t.Error("Expected No pattern to match")
	}
	if DoubleTop.Matches("Double Bottom") {
		t.Error("Unexpected match")
	}
}
