package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"patternscope/internal/indicator"
	"patternscope/pkg/model"
)

// RSI thresholds for oversold and overbought
const (
	rsiOversold   = 30
	rsiOverbought = 70
)

// SignalType is a trade direction
type SignalType string

const (
	Buy  SignalType = "BUY"
	Sell SignalType = "SELL"
)

// TrendResult compares the last close with its short moving average
type TrendResult struct {
	Ticker      string     `json:"ticker"`
	Pattern     string     `json:"pattern"`
	LastClose   float64    `json:"last_close"`
	MovingAvg10 float64    `json:"moving_avg_10"`
	Signal      SignalType `json:"signal"`
}

// Trend reports bullish when the last close is above the 10-bar average and
// bearish otherwise
func (s *Service) Trend(ctx context.Context, symbol string) (*TrendResult, error) {
	series, err := s.load(ctx, symbol, trendWindow)
	if err != nil {
		return nil, err
	}

	closes := series.Closes()
	sma := indicator.SMA(closes, trendWindow)
	avg := sma[len(sma)-1]
	if !avg.Ok() {
		return nil, &indicator.InsufficientHistoryError{Have: len(closes), Need: trendWindow}
	}

	last := closes[len(closes)-1]
	res := &TrendResult{
		Ticker:      series.Symbol,
		LastClose:   last,
		MovingAvg10: avg.X,
	}
	if last > avg.X {
		res.Pattern = fmt.Sprintf("Bullish (price above %d-bar average)", trendWindow)
		res.Signal = Buy
	} else {
		res.Pattern = fmt.Sprintf("Bearish (price at or below %d-bar average)", trendWindow)
		res.Signal = Sell
	}
	return res, nil
}

// Signal is a trade hint raised on one bar
type Signal struct {
	Time   time.Time  `json:"time"`
	Type   SignalType `json:"type"`
	Price  float64    `json:"price"`
	Source string     `json:"source"` // macd or rsi
}

// SignalsResult lists the signals of a query in time order
type SignalsResult struct {
	Symbol   string   `json:"symbol"`
	Range    string   `json:"range"`
	Interval string   `json:"interval"`
	Signals  []Signal `json:"signals"`
}

// Signals computes indicators for q and extracts MACD crossovers and RSI
// extremes
func (s *Service) Signals(ctx context.Context, q model.Query) (*SignalsResult, error) {
	report, err := s.Indicators(ctx, q)
	if err != nil {
		return nil, err
	}

	opts := report.opts
	signals := make([]Signal, 0)
	if opts.Include.MACD {
		signals = append(signals, MACDCrossovers(report.Rows)...)
	}
	if opts.Include.RSI {
		signals = append(signals, RSIExtremes(report.Rows)...)
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Time.Before(signals[j].Time)
	})

	return &SignalsResult{
		Symbol:   report.Symbol,
		Range:    report.Range,
		Interval: report.Interval,
		Signals:  signals,
	}, nil
}

// MACDCrossovers emits BUY when MACD crosses above its signal line and SELL
// when it crosses below. Bars without both lines on both sides are skipped.
func MACDCrossovers(rows []indicator.Row) []Signal {
	var out []Signal
	for i := 1; i < len(rows); i++ {
		prev, curr := rows[i-1], rows[i]
		if !prev.MACD.Ok() || !prev.MACDSignal.Ok() || !curr.MACD.Ok() || !curr.MACDSignal.Ok() {
			continue
		}
		switch {
		case prev.MACD.X < prev.MACDSignal.X && curr.MACD.X > curr.MACDSignal.X:
			out = append(out, Signal{Time: curr.Time, Type: Buy, Price: curr.Close, Source: "macd"})
		case prev.MACD.X > prev.MACDSignal.X && curr.MACD.X < curr.MACDSignal.X:
			out = append(out, Signal{Time: curr.Time, Type: Sell, Price: curr.Close, Source: "macd"})
		}
	}
	return out
}

// RSIExtremes emits BUY on oversold bars and SELL on overbought bars
func RSIExtremes(rows []indicator.Row) []Signal {
	var out []Signal
	for _, r := range rows {
		if !r.RSI.Ok() {
			continue
		}
		switch {
		case r.RSI.X < rsiOversold:
			out = append(out, Signal{Time: r.Time, Type: Buy, Price: r.Close, Source: "rsi"})
		case r.RSI.X > rsiOverbought:
			out = append(out, Signal{Time: r.Time, Type: Sell, Price: r.Close, Source: "rsi"})
		}
	}
	return out
}
