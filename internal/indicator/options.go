package indicator

import "fmt"

// Windows holds the lookback of each indicator
type Windows struct {
	SMA       int `yaml:"sma"`
	EMAFast   int `yaml:"ema_fast"`
	EMASlow   int `yaml:"ema_slow"`
	RSI       int `yaml:"rsi"`
	Bollinger int `yaml:"bollinger"`
}

// Include toggles the optional indicator groups
type Include struct {
	MACD      bool `yaml:"macd"`
	Bollinger bool `yaml:"bollinger"`
	RSI       bool `yaml:"rsi"`
}

// MACDSpans are the EMA spans of the MACD line and its signal
type MACDSpans struct {
	Fast   int `yaml:"fast"`
	Slow   int `yaml:"slow"`
	Signal int `yaml:"signal"`
}

// Options configures the engine
type Options struct {
	Windows    Windows   `yaml:"windows"`
	Include    Include   `yaml:"include"`
	BollingerK float64   `yaml:"bollinger_k"`
	MACD       MACDSpans `yaml:"macd"`
	MinBars    int       `yaml:"min_bars"` // 0 disables the history check
}

// DefaultOptions returns SMA14, EMA14/50, RSI14, Bollinger(20, 2) and MACD(12, 26, 9)
func DefaultOptions() Options {
	return Options{
		Windows: Windows{
			SMA:       14,
			EMAFast:   14,
			EMASlow:   50,
			RSI:       14,
			Bollinger: 20,
		},
		Include: Include{
			MACD:      true,
			Bollinger: true,
			RSI:       true,
		},
		BollingerK: 2,
		MACD:       MACDSpans{Fast: 12, Slow: 26, Signal: 9},
		MinBars:    50,
	}
}

// Validate checks window sizes
func (o Options) Validate() error {
	checks := []struct {
		name string
		v    int
		min  int
	}{
		{"sma window", o.Windows.SMA, 1},
		{"ema_fast span", o.Windows.EMAFast, 1},
		{"ema_slow span", o.Windows.EMASlow, 1},
		{"rsi window", o.Windows.RSI, 1},
		{"bollinger window", o.Windows.Bollinger, 2},
		{"macd fast span", o.MACD.Fast, 1},
		{"macd slow span", o.MACD.Slow, 1},
		{"macd signal span", o.MACD.Signal, 1},
		{"min_bars", o.MinBars, 0},
	}
	for _, c := range checks {
		if c.v < c.min {
			return fmt.Errorf("%s must be at least %d, got %d", c.name, c.min, c.v)
		}
	}
	if o.BollingerK <= 0 {
		return fmt.Errorf("bollinger_k must be positive, got %v", o.BollingerK)
	}
	return nil
}
