package api

import (
	"fmt"
	"time"

	"factorsim/internal/backtest"
	"factorsim/internal/calculator"
	"factorsim/internal/domain"
	"factorsim/internal/factor"
	"factorsim/internal/marketdata"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type simulateRequest struct {
	PanelPath string `json:"panelPath" binding:"required"`
	Start     string `json:"start" binding:"required"`
	End       string `json:"end" binding:"required"`

	// either a factor expression ranking the universe...
	FactorExpression string `json:"factorExpression"`
	NumAssets        int    `json:"numAssets"`
	// ...or explicit per-day target weights
	Targets map[string]map[string]float64 `json:"targets"`

	InitialCash   float64  `json:"initialCash" binding:"required"`
	TradeCostRate *float64 `json:"tradeCostRate"`
	Adjusted      bool     `json:"adjusted"`
}

type seriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type simulateResponse struct {
	RunID              string        `json:"runId"`
	TotalAssets        []seriesPoint `json:"totalAssets"`
	EffectiveReturns   []seriesPoint `json:"effectiveReturns"`
	TheoreticalReturns []seriesPoint `json:"theoreticalReturns"`
	Turnover           []seriesPoint `json:"turnover"`

	SkippedDays map[string]string `json:"skippedDays"`

	AnnualizedReturn float64 `json:"annualizedReturn"`
	AnnualizedStdev  float64 `json:"annualizedStdev"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
}

func (m ApiHandler) simulate(c *gin.Context) {
	var requestBody simulateRequest

	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJsonCode(fmt.Errorf("failed to read request body: %w", err), c, 400)
		return
	}

	start, err := time.Parse(dateLayout, requestBody.Start)
	if err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}
	end, err := time.Parse(dateLayout, requestBody.End)
	if err != nil {
		returnErrorJsonCode(err, c, 400)
		return
	}

	provider, err := marketdata.LoadPanelCSV(requestBody.PanelPath)
	if err != nil {
		returnErrorJson(err, c)
		return
	}

	rules := domain.DefaultTradingRules()
	if requestBody.TradeCostRate != nil {
		rules.TradeCostRate = *requestBody.TradeCostRate
	}

	targets, err := buildTargets(requestBody, provider, start, end)
	if err != nil {
		returnErrorJson(err, c)
		return
	}

	chain, err := backtest.NewSimulationChain(backtest.NewSimulationChainInput{
		Provider:    provider,
		Rules:       rules,
		Targets:     targets,
		InitialCash: requestBody.InitialCash,
		IsAdjusted:  requestBody.Adjusted,
		Log:         m.Log,
	})
	if err != nil {
		returnErrorJson(err, c)
		return
	}
	if err := chain.Run(); err != nil {
		returnErrorJson(err, c)
		return
	}

	out := simulateResponse{
		RunID:              chain.RunID().String(),
		TotalAssets:        toSeries(chain.TotalAssets()),
		EffectiveReturns:   toSeries(chain.EffectiveReturns()),
		TheoreticalReturns: toSeries(chain.TheoreticalReturns()),
		Turnover:           toSeries(chain.Turnover()),
		SkippedDays:        map[string]string{},
	}
	for _, skipped := range chain.SkippedDays() {
		out.SkippedDays[skipped.Date.Format(dateLayout)] = skipped.SkipReason.Error()
	}

	metrics, err := calculator.CalculateMetrics(chain.TotalAssets(), chain.EffectiveReturns())
	if err == nil {
		out.AnnualizedReturn = metrics.AnnualizedReturn
		out.AnnualizedStdev = metrics.AnnualizedStdev
		out.SharpeRatio = metrics.SharpeRatio
		out.MaxDrawdown = metrics.MaxDrawdown
	}

	c.JSON(200, out)
}

func buildTargets(requestBody simulateRequest, provider marketdata.Provider, start, end time.Time) ([]backtest.TargetRow, error) {
	if len(requestBody.Targets) > 0 {
		rows := []backtest.TargetRow{}
		for _, d := range provider.TradingCalendar() {
			if d.Before(start) || d.After(end) {
				continue
			}
			weights, ok := requestBody.Targets[d.Format(dateLayout)]
			if !ok {
				continue
			}
			rows = append(rows, backtest.TargetRow{Date: d, Weights: weights})
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("no target rows fall on trading days between %s and %s", requestBody.Start, requestBody.End)
		}
		return rows, nil
	}

	if requestBody.FactorExpression == "" {
		return nil, fmt.Errorf("request needs either targets or a factorExpression")
	}
	numAssets := requestBody.NumAssets
	if numAssets == 0 {
		numAssets = 10
	}
	source := factor.ExpressionFactorSource{
		Provider:   provider,
		Expression: requestBody.FactorExpression,
		NumAssets:  numAssets,
	}
	return source.TargetRows(start, end)
}

func toSeries(points []backtest.Point) []seriesPoint {
	out := make([]seriesPoint, 0, len(points))
	for _, p := range points {
		out = append(out, seriesPoint{Date: p.Date.Format(dateLayout), Value: p.Value})
	}
	return out
}
