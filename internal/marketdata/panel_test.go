package marketdata_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"factorsim/internal/marketdata"
	"factorsim/internal/util"

	"github.com/stretchr/testify/require"
)

func newPanel(t *testing.T) *marketdata.PanelProvider {
	t.Helper()
	provider, err := marketdata.NewPanelProvider([]marketdata.Bar{
		{Symbol: "AAPL", Date: util.NewDate(2024, 1, 2), Close: 100, Avg: 99, HighLimit: 110, LowLimit: 90, AdjFactor: 1},
		{Symbol: "AAPL", Date: util.NewDate(2024, 1, 3), Close: 110, Avg: 108, HighLimit: 110, LowLimit: 90, AdjFactor: 2},
		{Symbol: "MSFT", Date: util.NewDate(2024, 1, 2), Close: 50, Avg: 50, HighLimit: 55, LowLimit: 45, AdjFactor: 1, Halted: true},
	})
	require.NoError(t, err)
	return provider
}

func TestPanelProvider_price(t *testing.T) {
	p := newPanel(t)
	d := util.NewDate(2024, 1, 2)

	require.InDelta(t, 100, p.Price("AAPL", d, marketdata.PriceKindSettle, false), 1e-12)
	require.InDelta(t, 100, p.Price("AAPL", d, marketdata.PriceKindOrder, false), 1e-12)
	require.InDelta(t, 99, p.Price("AAPL", d, marketdata.PriceKindTrade, false), 1e-12)

	// adjusted price scales by the day's factor
	d2 := util.NewDate(2024, 1, 3)
	require.InDelta(t, 220, p.Price("AAPL", d2, marketdata.PriceKindSettle, true), 1e-12)

	require.True(t, math.IsNaN(p.Price("GONE", d, marketdata.PriceKindSettle, false)))
	require.True(t, math.IsNaN(p.Price("AAPL", util.NewDate(2024, 2, 1), marketdata.PriceKindSettle, false)))
}

func TestPanelProvider_limitsAndHalts(t *testing.T) {
	p := newPanel(t)

	require.False(t, p.HighLimitHit("AAPL", util.NewDate(2024, 1, 2)))
	require.True(t, p.HighLimitHit("AAPL", util.NewDate(2024, 1, 3)))
	require.False(t, p.LowLimitHit("AAPL", util.NewDate(2024, 1, 2)))

	require.True(t, p.TradingHalted("MSFT", util.NewDate(2024, 1, 2)))
	require.False(t, p.TradingHalted("AAPL", util.NewDate(2024, 1, 2)))
	// no data reads as not tradeable
	require.True(t, p.TradingHalted("MSFT", util.NewDate(2024, 1, 3)))
}

func TestPanelProvider_calendarAndSymbols(t *testing.T) {
	p := newPanel(t)

	require.Equal(t, []string{"AAPL", "MSFT"}, p.Symbols())
	calendar := p.TradingCalendar()
	require.Len(t, calendar, 2)
	require.True(t, calendar[0].Before(calendar[1]))
}

func TestShiftTradingDay(t *testing.T) {
	p := newPanel(t)
	d1 := util.NewDate(2024, 1, 2)
	d2 := util.NewDate(2024, 1, 3)

	shifted, err := marketdata.ShiftTradingDay(p, d1, 1)
	require.NoError(t, err)
	require.Equal(t, d2, shifted)

	shifted, err = marketdata.ShiftTradingDay(p, d2, -1)
	require.NoError(t, err)
	require.Equal(t, d1, shifted)

	_, err = marketdata.ShiftTradingDay(p, d1, -1)
	require.Error(t, err)
	_, err = marketdata.ShiftTradingDay(p, util.NewDate(2024, 1, 6), 1)
	require.Error(t, err)
}

func TestLoadPanelCSV(t *testing.T) {
	csv := `symbol,date,open,close,avg,high_limit,low_limit,adj_factor,halted
AAPL,2024-01-02,99,100,99.5,110,90,1,false
AAPL,2024-01-03,101,110,108,110,90,1,false
MSFT,2024-01-02,50,50,50,55,45,1,true
`
	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	p, err := marketdata.LoadPanelCSV(path)
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "MSFT"}, p.Symbols())
	require.InDelta(t, 108, p.Price("AAPL", util.NewDate(2024, 1, 3), marketdata.PriceKindTrade, false), 1e-12)
	require.True(t, p.TradingHalted("MSFT", util.NewDate(2024, 1, 2)))

	_, err = marketdata.LoadPanelCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
