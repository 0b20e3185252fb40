package model

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	validIntervals = map[string]bool{
		"1m": true, "2m": true, "5m": true, "15m": true, "30m": true, "60m": true, "90m": true,
		"1h": true, "1d": true, "5d": true, "1wk": true, "1mo": true, "3mo": true,
	}
	rangePattern = regexp.MustCompile(`^([1-9][0-9]*(d|mo|y)|ytd|max)$`)
)

// Query describes a series request to a data provider
type Query struct {
	Symbol   string `json:"symbol"`
	Range    string `json:"range"`    // lookback, e.g. 60d, 10y, ytd
	Interval string `json:"interval"` // sampling, e.g. 1d, 1wk
}

// InvalidQueryError reports a malformed query parameter
type InvalidQueryError struct {
	Field string
	Value string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// Normalize upper-cases the symbol and validates range and interval
func (q Query) Normalize() (Query, error) {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.Symbol == "" || strings.ContainsAny(q.Symbol, "/?# ") {
		return q, &InvalidQueryError{Field: "symbol", Value: q.Symbol}
	}
	if !validIntervals[q.Interval] {
		return q, &InvalidQueryError{Field: "interval", Value: q.Interval}
	}
	if !rangePattern.MatchString(q.Range) {
		return q, &InvalidQueryError{Field: "range", Value: q.Range}
	}
	return q, nil
}

// Key returns a stable cache key for the query
func (q Query) Key() string {
	return q.Symbol + ":" + q.Range + ":" + q.Interval
}
