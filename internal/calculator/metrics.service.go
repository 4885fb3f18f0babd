package calculator

import (
	"fmt"
	"math"
	"sort"

	"factorsim/internal/backtest"

	"github.com/montanaflynn/stats"
)

type CalculateMetricsResult struct {
	AnnualizedStdev  float64
	AnnualizedReturn float64
	SharpeRatio      float64
	MaxDrawdown      float64
}

// CalculateMetrics summarizes a finished chain's performance. It assumes
// the samples cover the run densely - daily points, not sparse snapshots.
func CalculateMetrics(totalAssets []backtest.Point, returns []backtest.Point) (*CalculateMetricsResult, error) {
	if len(totalAssets) < 2 {
		return nil, fmt.Errorf("cannot calculate metrics on < 2 samples")
	}
	sort.Slice(totalAssets, func(i, j int) bool {
		return totalAssets[i].Date.Before(totalAssets[j].Date)
	})

	dailyReturns := make([]float64, 0, len(returns))
	for _, p := range returns {
		dailyReturns = append(dailyReturns, p.Value)
	}
	stdev, err := stats.StandardDeviationSample(dailyReturns)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate stdev: %w", err)
	}
	annualizedStdev := stdev * math.Sqrt(252)

	startValue := totalAssets[0].Value
	endValue := totalAssets[len(totalAssets)-1].Value
	numHours := totalAssets[len(totalAssets)-1].Date.Sub(totalAssets[0].Date).Hours()
	numYears := numHours / (365 * 24)
	if numYears == 0 || startValue == 0 {
		return nil, fmt.Errorf("cannot annualize over a zero-length or zero-value run")
	}
	annualizedReturn := math.Pow(endValue/startValue, 1/numYears) - 1

	sharpeRatio := 0.0
	if annualizedStdev != 0 {
		sharpeRatio = annualizedReturn / annualizedStdev
	}

	return &CalculateMetricsResult{
		AnnualizedStdev:  annualizedStdev,
		AnnualizedReturn: annualizedReturn,
		SharpeRatio:      sharpeRatio,
		MaxDrawdown:      maxDrawdown(totalAssets),
	}, nil
}

func maxDrawdown(totalAssets []backtest.Point) float64 {
	peak := totalAssets[0].Value
	worst := 0.0
	for _, p := range totalAssets {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := p.Value/peak - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
