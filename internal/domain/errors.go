package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoTradeDate is returned when an operation needs the vector's trade
// date (e.g. a calendar shift or price lookup) but none was ever set.
var ErrNoTradeDate = errors.New("portfolio vector has no trade date")

// ConversionError means a unit/state transform was asked for without the
// parameters it needs, or with a unit outside the enumerated set.
type ConversionError struct {
	From   Unit
	To     Unit
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s -> %s: %s", e.From, e.To, e.Reason)
}

// DataGapError means market data was missing for a symbol on a date. The
// settlement layer degrades silently on these; strategy-level code may
// surface them as day-skip reasons instead.
type DataGapError struct {
	Symbol string
	Date   time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("no market data for %s on %s", e.Symbol, e.Date.Format("2006-01-02"))
}
