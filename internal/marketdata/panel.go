package marketdata

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is one symbol's market data for one trading day. Raw (unadjusted)
// prices; AdjFactor converts them to split/dividend-adjusted terms.
type Bar struct {
	Symbol    string
	Date      time.Time
	Open      float64
	Close     float64
	Avg       float64
	HighLimit float64
	LowLimit  float64
	AdjFactor float64
	Halted    bool
}

// PanelProvider serves the full date x symbol panel from memory. Everything
// is loaded up front so the simulation never blocks on I/O mid-run.
type PanelProvider struct {
	bars     map[time.Time]map[string]Bar
	calendar []time.Time
	symbols  []string
}

func NewPanelProvider(bars []Bar) (*PanelProvider, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("cannot build market data panel from 0 bars")
	}

	panel := map[time.Time]map[string]Bar{}
	symbolSet := map[string]bool{}
	for _, b := range bars {
		d := normalizeDate(b.Date)
		if _, ok := panel[d]; !ok {
			panel[d] = map[string]Bar{}
		}
		b.Date = d
		panel[d][b.Symbol] = b
		symbolSet[b.Symbol] = true
	}

	calendar := make([]time.Time, 0, len(panel))
	for d := range panel {
		calendar = append(calendar, d)
	}
	sort.Slice(calendar, func(i, j int) bool {
		return calendar[i].Before(calendar[j])
	})

	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	return &PanelProvider{
		bars:     panel,
		calendar: calendar,
		symbols:  symbols,
	}, nil
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *PanelProvider) bar(symbol string, date time.Time) (Bar, bool) {
	byShifted, ok := p.bars[normalizeDate(date)]
	if !ok {
		return Bar{}, false
	}
	b, ok := byShifted[symbol]
	return b, ok
}

func (p *PanelProvider) Price(symbol string, date time.Time, kind PriceKind, isAdjusted bool) float64 {
	b, ok := p.bar(symbol, date)
	if !ok {
		return math.NaN()
	}

	var raw float64
	switch kind {
	case PriceKindTrade:
		raw = b.Avg
	case PriceKindOrder, PriceKindSettle:
		raw = b.Close
	default:
		return math.NaN()
	}

	if isAdjusted {
		return raw * b.AdjFactor
	}
	return raw
}

const limitTolerance = 1e-9

func (p *PanelProvider) HighLimitHit(symbol string, date time.Time) bool {
	b, ok := p.bar(symbol, date)
	if !ok {
		return false
	}
	return b.Close >= b.HighLimit-limitTolerance
}

func (p *PanelProvider) LowLimitHit(symbol string, date time.Time) bool {
	b, ok := p.bar(symbol, date)
	if !ok {
		return false
	}
	return b.Close <= b.LowLimit+limitTolerance
}

func (p *PanelProvider) TradingHalted(symbol string, date time.Time) bool {
	b, ok := p.bar(symbol, date)
	if !ok {
		// no data means we can't trade it that day
		return true
	}
	return b.Halted
}

func (p *PanelProvider) AdjustmentFactor(symbol string, date time.Time) float64 {
	b, ok := p.bar(symbol, date)
	if !ok {
		return math.NaN()
	}
	return b.AdjFactor
}

func (p *PanelProvider) TradingCalendar() []time.Time {
	return p.calendar
}

func (p *PanelProvider) Symbols() []string {
	return p.symbols
}
