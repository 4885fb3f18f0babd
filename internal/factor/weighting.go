package factor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"factorsim/internal/backtest"
	"factorsim/internal/marketdata"

	"github.com/montanaflynn/stats"
)

func annualizedStdevOfDailyReturns(md marketdata.Provider, symbol string, start, end time.Time) (float64, error) {
	closes := []float64{}
	for _, d := range md.TradingCalendar() {
		if d.Before(start) || d.After(end) {
			continue
		}
		p := md.Price(symbol, d, marketdata.PriceKindSettle, true)
		if !math.IsNaN(p) {
			closes = append(closes, p)
		}
	}
	if len(closes) < 3 {
		return 0, fmt.Errorf("not enough observations to compute stdev for %s between %s and %s", symbol, start.Format(dateLayout), end.Format(dateLayout))
	}

	returns := []float64{}
	for i := 1; i < len(closes); i++ {
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	stdev, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, err
	}
	return stdev * math.Sqrt(252), nil
}

func topNScores(scoresBySymbol map[string]float64, n int) map[string]float64 {
	type scored struct {
		symbol string
		score  float64
	}
	ranked := []scored{}
	for symbol, score := range scoresBySymbol {
		ranked = append(ranked, scored{symbol, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].symbol < ranked[j].symbol
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	out := map[string]float64{}
	for _, s := range ranked[:n] {
		out[s.symbol] = s.score
	}
	return out
}

// CalculateTargetWeights picks the numAssets best-scoring symbols and
// weights them equally. Scores only rank; they don't size.
func CalculateTargetWeights(scoresBySymbol map[string]float64, numAssets int) (map[string]float64, error) {
	if numAssets < 1 {
		return nil, fmt.Errorf("target portfolio needs at least 1 asset")
	}
	topScores := topNScores(scoresBySymbol, numAssets)
	if len(topScores) == 0 {
		return nil, fmt.Errorf("no scores to build target weights from")
	}

	weights := map[string]float64{}
	for symbol := range topScores {
		weights[symbol] = 1.0 / float64(len(topScores))
	}

	// validate new weights add to 1
	sum := 0.0
	for symbol, w := range weights {
		if math.IsNaN(w) {
			return nil, fmt.Errorf("invalid weight NaN for %s", symbol)
		}
		sum += w
	}
	if math.Abs(sum-1) > 0.0001 {
		return nil, fmt.Errorf("new weights should sum to 1, got %f", sum)
	}

	return weights, nil
}

// ExpressionFactorSource turns a factor expression into the per-day target
// rows the simulation chain consumes.
type ExpressionFactorSource struct {
	Provider   marketdata.Provider
	Expression string
	NumAssets  int
}

// TargetRows scores the whole universe on every trading day in
// [start, end] and emits one equal-weighted top-N row per day. Symbols
// whose expression fails (usually a data gap) are left out of that day's
// ranking.
func (s ExpressionFactorSource) TargetRows(start, end time.Time) ([]backtest.TargetRow, error) {
	rows := []backtest.TargetRow{}
	for _, date := range s.Provider.TradingCalendar() {
		if date.Before(start) || date.After(end) {
			continue
		}

		scoresBySymbol := map[string]float64{}
		for _, symbol := range s.Provider.Symbols() {
			result, err := EvaluateFactorExpression(s.Provider, s.Expression, symbol, date)
			if err != nil {
				continue
			}
			scoresBySymbol[symbol] = result.Value
		}

		weights, err := CalculateTargetWeights(scoresBySymbol, s.NumAssets)
		if err != nil {
			return nil, fmt.Errorf("failed to build target weights on %s: %w", date.Format(dateLayout), err)
		}
		rows = append(rows, backtest.TargetRow{Date: date, Weights: weights})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s", start.Format(dateLayout), end.Format(dateLayout))
	}
	return rows, nil
}
