package backtest_test

import (
	"testing"

	"factorsim/internal/backtest"
	"factorsim/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestSimulationChain_run(t *testing.T) {
	provider := newTestProvider(t)
	weights := map[string]float64{"AAPL": 0.5, "MSFT": 0.5}

	chain, err := backtest.NewSimulationChain(backtest.NewSimulationChainInput{
		Provider: provider,
		Rules:    domain.TradingRules{TradeCostRate: 0},
		Targets: []backtest.TargetRow{
			{Date: tradingDays[1], Weights: weights},
			{Date: tradingDays[2], Weights: weights},
			{Date: tradingDays[3], Weights: weights},
		},
		InitialCash: 10_000,
	})
	require.NoError(t, err)
	require.NoError(t, chain.Run())

	require.Len(t, chain.Results(), 3)
	require.Empty(t, chain.SkippedDays())

	totalAssets := chain.TotalAssets()
	require.Len(t, totalAssets, 3)
	require.InDelta(t, 10_000, totalAssets[0].Value, 1e-9)
	require.InDelta(t, 10_000, totalAssets[1].Value, 1e-9)
	require.InDelta(t, 11_100, totalAssets[2].Value, 1e-6)

	turnover := chain.Turnover()
	require.InDelta(t, 0, turnover[0].Value, 1e-12)
	require.InDelta(t, 1.1, turnover[1].Value, 1e-9)

	returns := chain.EffectiveReturns()
	require.InDelta(t, 0.11, returns[2].Value, 1e-9)

	theoretical := chain.TheoreticalReturns()
	require.Len(t, theoretical, 3)
}

func TestSimulationChain_skipsBadDaysAndCarriesStateForward(t *testing.T) {
	provider := newTestProvider(t)
	weights := map[string]float64{"AAPL": 0.5, "MSFT": 0.5}

	chain, err := backtest.NewSimulationChain(backtest.NewSimulationChainInput{
		Provider: provider,
		Rules:    domain.TradingRules{TradeCostRate: 0},
		Targets: []backtest.TargetRow{
			// first calendar day has no prior trading day to settle from
			{Date: tradingDays[0], Weights: weights},
			{Date: tradingDays[1], Weights: weights},
			// a data gap upstream produced an empty row
			{Date: tradingDays[2], Weights: map[string]float64{}},
			{Date: tradingDays[3], Weights: weights},
		},
		InitialCash: 10_000,
	})
	require.NoError(t, err)
	require.NoError(t, chain.Run())

	require.Len(t, chain.Results(), 4)
	skipped := chain.SkippedDays()
	require.Len(t, skipped, 2)
	require.Equal(t, tradingDays[0], skipped[0].Date)
	require.Equal(t, tradingDays[2], skipped[1].Date)
	require.Error(t, skipped[1].SkipReason)

	// the two good days still settle, with day-2's state flowing past the
	// skipped day into day-4
	require.Len(t, chain.TotalAssets(), 2)
}

func TestSimulationChain_validation(t *testing.T) {
	provider := newTestProvider(t)

	_, err := backtest.NewSimulationChain(backtest.NewSimulationChainInput{
		Provider:    provider,
		InitialCash: 10_000,
	})
	require.Error(t, err)

	chain, err := backtest.NewSimulationChain(backtest.NewSimulationChainInput{
		Provider:    provider,
		Targets:     []backtest.TargetRow{{Date: tradingDays[1], Weights: map[string]float64{"AAPL": 1}}},
		InitialCash: 10_000,
	})
	require.NoError(t, err)
	require.NoError(t, chain.Run())
	require.Error(t, chain.Run())
}
