package domain

// TradingRules carries the per-scenario execution parameters. It is passed
// explicitly wherever it is needed so tests can override rates without
// touching shared state.
type TradingRules struct {
	// BuyLimitPct and SellLimitPct are the daily price band, e.g. 0.10
	// for a 10% limit-up/limit-down market.
	BuyLimitPct  float64
	SellLimitPct float64
	// TradeCostRate is charged on the absolute traded value of every fill.
	TradeCostRate float64
}

func DefaultTradingRules() TradingRules {
	return TradingRules{
		BuyLimitPct:   0.10,
		SellLimitPct:  0.10,
		TradeCostRate: 0.0015,
	}
}
