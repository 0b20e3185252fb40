package scanner

import (
	"fmt"
	"strings"
)

// Universe represents a predefined symbol list
type Universe string

const (
	UniverseDataset Universe = "dataset" // symbols the bundled models were trained on
	UniverseMega    Universe = "mega"
	UniverseTest    Universe = "test" // Small set for testing
)

var universes = map[Universe][]string{
	UniverseDataset: {"AAPL", "TSLA", "WMT"},
	UniverseMega: {
		"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AVGO", "ORCL", "AMD",
		"JPM", "V", "MA", "BAC", "UNH", "JNJ", "LLY", "WMT", "PG", "KO",
		"XOM", "CVX", "HD", "COST", "NFLX", "DIS", "CAT", "BA", "GE", "IBM",
	},
	UniverseTest: {"AAPL", "MSFT", "NVDA", "TSLA", "JPM"},
}

// GetUniverse returns a copy of the symbols of a universe
func GetUniverse(u Universe) ([]string, error) {
	list, ok := universes[Universe(strings.ToLower(string(u)))]
	if !ok {
		return nil, fmt.Errorf("unknown universe %q (want dataset, mega or test)", u)
	}
	return append([]string(nil), list...), nil
}

// ParseSymbols splits comma or space separated tickers, upper-cases them and
// drops duplicates and entries that are not plain tickers
func ParseSymbols(args ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, arg := range args {
		for _, f := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' }) {
			sym := strings.ToUpper(strings.TrimSpace(f))
			if !isValidSymbol(sym) || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

// isValidSymbol accepts letters with an optional class suffix like BRK-B or BRK.B
func isValidSymbol(symbol string) bool {
	if len(symbol) == 0 || len(symbol) > 10 {
		return false
	}
	for i, c := range symbol {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		case (c == '.' || c == '-' || c == '^' || c == '=') && i > 0:
		case c == '^' && i == 0:
		default:
			return false
		}
	}
	return true
}
