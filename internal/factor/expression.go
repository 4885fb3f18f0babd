package factor

import (
	"fmt"
	"math"
	"time"

	"factorsim/internal/domain"
	"factorsim/internal/marketdata"

	"github.com/maja42/goval"
)

const dateLayout = "2006-01-02"

// priceOn resolves the adjusted close for a symbol on or just before the
// given date, stepping back over weekends/holidays up to a few days.
func priceOn(md marketdata.Provider, symbol string, date time.Time) (float64, error) {
	for i := 0; i < 5; i++ {
		p := md.Price(symbol, date.AddDate(0, 0, -i), marketdata.PriceKindSettle, true)
		if !math.IsNaN(p) {
			return p, nil
		}
	}
	return 0, &domain.DataGapError{Symbol: symbol, Date: date}
}

func constructFunctionMap(
	md marketdata.Provider,
	symbol string,
	currentDate time.Time,
) map[string]goval.ExpressionFunction {
	return map[string]goval.ExpressionFunction{
		// helper functions

		"addDate": func(args ...interface{}) (interface{}, error) {
			// addDate(date, years, months, days)
			if len(args) < 4 {
				return 0, fmt.Errorf("addDate needs 4 args, got %d", len(args))
			}
			date, err := time.Parse(dateLayout, args[0].(string))
			if err != nil {
				return 0, err
			}
			var years, months, days = args[1].(int), args[2].(int), args[3].(int)
			return date.AddDate(years, months, days).Format(dateLayout), nil
		},

		"nDaysAgo": func(args ...interface{}) (interface{}, error) {
			if len(args) < 1 {
				return 0, fmt.Errorf("nDaysAgo needs 1 arg, got %d", len(args))
			}
			return currentDate.AddDate(0, 0, -args[0].(int)).Format(dateLayout), nil
		},
		"nMonthsAgo": func(args ...interface{}) (interface{}, error) {
			if len(args) < 1 {
				return 0, fmt.Errorf("nMonthsAgo needs 1 arg, got %d", len(args))
			}
			return currentDate.AddDate(0, -args[0].(int), 0).Format(dateLayout), nil
		},

		// metric functions

		// price(date strDate)
		"price": func(args ...interface{}) (interface{}, error) {
			if len(args) < 1 {
				return 0, fmt.Errorf("price needs 1 arg, got %d", len(args))
			}
			date, err := time.Parse(dateLayout, args[0].(string))
			if err != nil {
				return 0, err
			}
			return priceOn(md, symbol, date)
		},

		// pricePercentChange(start, end strDate)
		"pricePercentChange": func(args ...interface{}) (interface{}, error) {
			if len(args) < 2 {
				return 0, fmt.Errorf("pricePercentChange needs 2 args, got %d", len(args))
			}
			start, err := time.Parse(dateLayout, args[0].(string))
			if err != nil {
				return 0, err
			}
			end, err := time.Parse(dateLayout, args[1].(string))
			if err != nil {
				return 0, err
			}
			startPrice, err := priceOn(md, symbol, start)
			if err != nil {
				return 0, err
			}
			endPrice, err := priceOn(md, symbol, end)
			if err != nil {
				return 0, err
			}
			return 100 * (endPrice - startPrice) / startPrice, nil
		},

		// stdev(start, end strDate) - annualized stdev of daily returns
		"stdev": func(args ...interface{}) (interface{}, error) {
			if len(args) < 2 {
				return 0, fmt.Errorf("stdev needs 2 args, got %d", len(args))
			}
			start, err := time.Parse(dateLayout, args[0].(string))
			if err != nil {
				return 0, err
			}
			end, err := time.Parse(dateLayout, args[1].(string))
			if err != nil {
				return 0, err
			}
			return annualizedStdevOfDailyReturns(md, symbol, start, end)
		},
	}
}

type ExpressionResult struct {
	Value float64
}

// EvaluateFactorExpression computes one symbol's factor score on a date.
// Expressions reference currentDate and the function map above, e.g.
// pricePercentChange(nDaysAgo(7), currentDate).
func EvaluateFactorExpression(
	md marketdata.Provider,
	expression string,
	symbol string,
	date time.Time,
) (*ExpressionResult, error) {
	eval := goval.NewEvaluator()
	variables := map[string]interface{}{
		"currentDate": date.Format(dateLayout),
	}

	functions := constructFunctionMap(md, symbol, date)
	result, err := eval.Evaluate(expression, variables, functions)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate factor expression: %w", err)
	}

	switch value := result.(type) {
	case float64:
		return &ExpressionResult{Value: value}, nil
	case int:
		return &ExpressionResult{Value: float64(value)}, nil
	}
	return nil, fmt.Errorf("factor expression returned non-numeric result %v", result)
}
