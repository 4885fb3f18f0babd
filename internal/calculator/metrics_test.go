package calculator_test

import (
	"testing"

	"factorsim/internal/backtest"
	"factorsim/internal/calculator"
	"factorsim/internal/util"

	"github.com/stretchr/testify/require"
)

func TestCalculateMetrics(t *testing.T) {
	totalAssets := []backtest.Point{
		{Date: util.NewDate(2023, 1, 2), Value: 10_000},
		{Date: util.NewDate(2023, 7, 3), Value: 12_000},
		{Date: util.NewDate(2023, 10, 2), Value: 9_000},
		{Date: util.NewDate(2024, 1, 2), Value: 11_000},
	}
	returns := []backtest.Point{
		{Date: util.NewDate(2023, 7, 3), Value: 0.2},
		{Date: util.NewDate(2023, 10, 2), Value: -0.25},
		{Date: util.NewDate(2024, 1, 2), Value: 0.2222},
	}

	metrics, err := calculator.CalculateMetrics(totalAssets, returns)
	require.NoError(t, err)

	// 10,000 -> 11,000 over one year
	require.InDelta(t, 0.10, metrics.AnnualizedReturn, 1e-3)
	require.Greater(t, metrics.AnnualizedStdev, 0.0)
	require.Greater(t, metrics.SharpeRatio, 0.0)
	// peak 12,000 down to 9,000
	require.InDelta(t, -0.25, metrics.MaxDrawdown, 1e-9)
}

func TestCalculateMetrics_tooFewSamples(t *testing.T) {
	_, err := calculator.CalculateMetrics([]backtest.Point{{Value: 1}}, nil)
	require.Error(t, err)
}
