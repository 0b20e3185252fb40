package indicator

import (
	"math"

	"github.com/guregu/null/v6"
)

// State says why an indicator value is or is not present
type State uint8

const (
	// Undefined marks a degenerate computation (zero loss RSI, non-finite result)
	Undefined State = iota
	// WarmingUp marks a row whose lookback window is not yet full
	WarmingUp
	// Computed marks a usable value
	Computed
)

func (s State) String() string {
	switch s {
	case Computed:
		return "computed"
	case WarmingUp:
		return "warming_up"
	default:
		return "undefined"
	}
}

// Value is one derived indicator cell
type Value struct {
	X     float64
	State State
}

// Of returns a computed value
func Of(x float64) Value {
	return Value{X: x, State: Computed}
}

// Warming returns a warm-up placeholder
func Warming() Value {
	return Value{State: WarmingUp}
}

// Absent returns an undefined value
func Absent() Value {
	return Value{State: Undefined}
}

// Ok reports whether the value was computed
func (v Value) Ok() bool {
	return v.State == Computed
}

// Float collapses the value to a nullable float for serialization
func (v Value) Float() null.Float {
	return null.NewFloat(v.X, v.State == Computed)
}

// MarshalJSON writes the number or null
func (v Value) MarshalJSON() ([]byte, error) {
	return v.Float().MarshalJSON()
}

// sanitize turns non-finite computed values into Undefined
func sanitize(v Value) Value {
	if v.State == Computed && (math.IsNaN(v.X) || math.IsInf(v.X, 0)) {
		return Absent()
	}
	return v
}
