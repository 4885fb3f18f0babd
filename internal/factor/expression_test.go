package factor_test

import (
	"testing"

	"factorsim/internal/factor"
	"factorsim/internal/marketdata"
	"factorsim/internal/util"

	"github.com/stretchr/testify/require"
)

// MOM trends up hard, FLAT goes nowhere, DOWN bleeds
func newTestProvider(t *testing.T) *marketdata.PanelProvider {
	t.Helper()
	bars := []marketdata.Bar{}
	closes := map[string][]float64{
		"MOM":  {100, 105, 110, 115, 120},
		"FLAT": {100, 100, 100, 100, 100},
		"DOWN": {100, 98, 96, 94, 92},
	}
	days := []int{2, 3, 4, 5, 8} // skips the weekend
	for symbol, series := range closes {
		for i, close := range series {
			bars = append(bars, marketdata.Bar{
				Symbol:    symbol,
				Date:      util.NewDate(2024, 1, days[i]),
				Close:     close,
				Avg:       close,
				HighLimit: close * 1.5,
				LowLimit:  close * 0.5,
				AdjFactor: 1,
			})
		}
	}
	provider, err := marketdata.NewPanelProvider(bars)
	require.NoError(t, err)
	return provider
}

func TestEvaluateFactorExpression(t *testing.T) {
	provider := newTestProvider(t)
	date := util.NewDate(2024, 1, 8)

	result, err := factor.EvaluateFactorExpression(provider, "price(currentDate)", "MOM", date)
	require.NoError(t, err)
	require.InDelta(t, 120, result.Value, 1e-9)

	result, err = factor.EvaluateFactorExpression(provider, "pricePercentChange(nDaysAgo(6), currentDate)", "MOM", date)
	require.NoError(t, err)
	require.InDelta(t, 20, result.Value, 1e-9)

	result, err = factor.EvaluateFactorExpression(provider, "pricePercentChange(addDate(currentDate, 0, 0, -6), currentDate)", "DOWN", date)
	require.NoError(t, err)
	require.InDelta(t, -8, result.Value, 1e-9)

	_, err = factor.EvaluateFactorExpression(provider, "price(currentDate)", "GONE", date)
	require.Error(t, err)

	_, err = factor.EvaluateFactorExpression(provider, "price(", "MOM", date)
	require.Error(t, err)
}

func TestCalculateTargetWeights(t *testing.T) {
	weights, err := factor.CalculateTargetWeights(map[string]float64{
		"MOM":  20,
		"FLAT": 0,
		"DOWN": -8,
	}, 2)
	require.NoError(t, err)
	require.Len(t, weights, 2)
	require.InDelta(t, 0.5, weights["MOM"], 1e-12)
	require.InDelta(t, 0.5, weights["FLAT"], 1e-12)

	// asking for more assets than scores exist just takes them all
	weights, err = factor.CalculateTargetWeights(map[string]float64{"MOM": 1}, 5)
	require.NoError(t, err)
	require.InDelta(t, 1.0, weights["MOM"], 1e-12)

	_, err = factor.CalculateTargetWeights(map[string]float64{}, 2)
	require.Error(t, err)
}

func TestExpressionFactorSource_targetRows(t *testing.T) {
	provider := newTestProvider(t)
	source := factor.ExpressionFactorSource{
		Provider:   provider,
		Expression: "pricePercentChange(nDaysAgo(2), currentDate)",
		NumAssets:  1,
	}

	rows, err := source.TargetRows(util.NewDate(2024, 1, 4), util.NewDate(2024, 1, 8))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		// MOM wins every day on a 2-day momentum ranking
		require.InDelta(t, 1.0, row.Weights["MOM"], 1e-12)
	}
}
