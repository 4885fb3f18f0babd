package marketdata

import (
	"fmt"
	"time"
)

// PriceKind selects which underlying market field a lookup resolves to.
// The mapping is fixed: orders are priced off the close, trades fill at
// the day's volume-weighted average, settlement marks at the close.
type PriceKind string

const (
	PriceKindOrder  PriceKind = "order"
	PriceKindTrade  PriceKind = "trade"
	PriceKindSettle PriceKind = "settle"
)

type Provider interface {
	// Price returns NaN when no bar exists for the symbol on that date.
	Price(symbol string, date time.Time, kind PriceKind, isAdjusted bool) float64
	HighLimitHit(symbol string, date time.Time) bool
	LowLimitHit(symbol string, date time.Time) bool
	// TradingHalted reports true when the symbol did not trade that day,
	// including when no data exists at all.
	TradingHalted(symbol string, date time.Time) bool
	AdjustmentFactor(symbol string, date time.Time) float64
	TradingCalendar() []time.Time
	Symbols() []string
}

// ShiftTradingDay steps n trading days forward (or backward, for negative n)
// from date along the provider's calendar. The input date must be a trading
// day.
func ShiftTradingDay(p Provider, date time.Time, n int) (time.Time, error) {
	calendar := p.TradingCalendar()
	idx := -1
	for i, d := range calendar {
		if d.Equal(date) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return time.Time{}, fmt.Errorf("date %s is not on the trading calendar", date.Format("2006-01-02"))
	}
	target := idx + n
	if target < 0 || target >= len(calendar) {
		return time.Time{}, fmt.Errorf("shifting %s by %d trading days falls off the calendar", date.Format("2006-01-02"), n)
	}
	return calendar[target], nil
}
