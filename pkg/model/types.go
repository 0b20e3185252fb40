package model

import (
	"math"
	"time"

	"github.com/guregu/null/v6"
)

// WindowSize is the number of bars in a pattern window
const WindowSize = 50

// Column names a price/volume column supplied by a data source
type Column string

const (
	ColumnOpen   Column = "Open"
	ColumnHigh   Column = "High"
	ColumnLow    Column = "Low"
	ColumnClose  Column = "Close"
	ColumnVolume Column = "Volume"
)

// PriceColumns are the columns every window needs
var PriceColumns = []Column{ColumnOpen, ColumnHigh, ColumnLow, ColumnClose}

// AllColumns returns the four price columns followed by volume
func AllColumns() []Column {
	return append(append([]Column(nil), PriceColumns...), ColumnVolume)
}

// Bar represents a single OHLCV bar. A missing price is NaN.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume null.Int  `json:"volume"`
}

// Complete reports whether all four prices are present and finite
func (b Bar) Complete() bool {
	return finite(b.Open) && finite(b.High) && finite(b.Low) && finite(b.Close)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// OHLC returns the bar as an [open, high, low, close] row
func (b Bar) OHLC() [4]float64 {
	return [4]float64{b.Open, b.High, b.Low, b.Close}
}

// Series is an ordered run of bars for one symbol and one interval
type Series struct {
	Symbol   string   `json:"symbol"`
	Range    string   `json:"range"`
	Interval string   `json:"interval"`
	Columns  []Column `json:"columns"` // columns the source supplied
	Bars     []Bar    `json:"bars"`
}

// Has reports whether the source supplied the column
func (s *Series) Has(c Column) bool {
	for _, col := range s.Columns {
		if col == c {
			return true
		}
	}
	return false
}

// Len returns the number of bars
func (s *Series) Len() int {
	return len(s.Bars)
}

// Closes returns the closing prices in order
func (s *Series) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Window returns the size bars ending at end (exclusive)
func (s *Series) Window(end, size int) Window {
	return Window{
		Symbol: s.Symbol,
		Bars:   s.Bars[end-size : end],
	}
}

// Last returns the trailing window of the given size
func (s *Series) Last(size int) Window {
	return s.Window(len(s.Bars), size)
}

// Window is a contiguous slice of complete bars
type Window struct {
	Symbol string
	Bars   []Bar
}

// Len returns the window length
func (w Window) Len() int {
	return len(w.Bars)
}

// Closes returns the closing prices of the window
func (w Window) Closes() []float64 {
	closes := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Tensor returns the window as a (len, 4) OHLC matrix
func (w Window) Tensor() [][]float64 {
	rows := make([][]float64, len(w.Bars))
	for i, b := range w.Bars {
		ohlc := b.OHLC()
		rows[i] = ohlc[:]
	}
	return rows
}

// Start returns the time of the first bar
func (w Window) Start() time.Time {
	if len(w.Bars) == 0 {
		return time.Time{}
	}
	return w.Bars[0].Time
}

// End returns the time of the last bar
func (w Window) End() time.Time {
	if len(w.Bars) == 0 {
		return time.Time{}
	}
	return w.Bars[len(w.Bars)-1].Time
}

// LastClose returns the close of the final bar
func (w Window) LastClose() float64 {
	if len(w.Bars) == 0 {
		return math.NaN()
	}
	return w.Bars[len(w.Bars)-1].Close
}
