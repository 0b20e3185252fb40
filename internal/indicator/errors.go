package indicator

import (
	"errors"
	"fmt"
	"strings"

	"patternscope/pkg/model"
)

// ErrEmptySeries is returned when the source produced no bars
var ErrEmptySeries = errors.New("no market data available")

// MissingColumnsError names the price columns the source did not supply
type MissingColumnsError struct {
	Missing []model.Column
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return "missing columns in market data: " + strings.Join(names, ", ")
}

// InsufficientHistoryError reports too few complete bars
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("not enough price history (%d bars, at least %d required)", e.Have, e.Need)
}

// IsClientError reports whether err is one of the input errors a caller can correct
func IsClientError(err error) bool {
	var missing *MissingColumnsError
	var short *InsufficientHistoryError
	return errors.Is(err, ErrEmptySeries) || errors.As(err, &missing) || errors.As(err, &short)
}
