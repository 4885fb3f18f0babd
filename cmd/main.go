package main

import (
	"fmt"
	"time"

	"factorsim/internal/backtest"
	"factorsim/internal/calculator"
	"factorsim/internal/domain"
	"factorsim/internal/factor"
	"factorsim/internal/logger"
	"factorsim/internal/marketdata"
	"factorsim/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var (
	panelPath   string
	expression  string
	startStr    string
	endStr      string
	numAssets   int
	initialCash float64
	costRate    float64
	adjusted    bool
	reportEvery int
	dbConnStr   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "factorsim",
		Short: "factor-driven portfolio simulation",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation chain over a csv price panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	runCmd.Flags().StringVar(&panelPath, "panel", "", "path to the price/limit panel csv")
	runCmd.Flags().StringVar(&expression, "expression", "pricePercentChange(nDaysAgo(30), currentDate)", "factor expression ranking the universe")
	runCmd.Flags().StringVar(&startStr, "start", "", "first simulated day (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&endStr, "end", "", "last simulated day (YYYY-MM-DD)")
	runCmd.Flags().IntVar(&numAssets, "num-assets", 10, "number of assets held")
	runCmd.Flags().Float64Var(&initialCash, "cash", 1_000_000, "initial cash")
	runCmd.Flags().Float64Var(&costRate, "cost-rate", 0.0015, "transaction cost rate")
	runCmd.Flags().BoolVar(&adjusted, "adjusted", false, "simulate in adjusted share terms")
	runCmd.Flags().IntVar(&reportEvery, "report-every", 20, "progress log cadence in days")
	runCmd.Flags().StringVar(&dbConnStr, "db", "", "optional postgres conn string to persist results")
	runCmd.MarkFlagRequired("panel")
	runCmd.MarkFlagRequired("start")
	runCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(runCmd)
	cobra.CheckErr(rootCmd.Execute())
}

func run() error {
	log := logger.New()

	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return fmt.Errorf("bad --start: %w", err)
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return fmt.Errorf("bad --end: %w", err)
	}

	provider, err := marketdata.LoadPanelCSV(panelPath)
	if err != nil {
		return err
	}
	log.Infow("loaded panel",
		"symbols", len(provider.Symbols()),
		"tradingDays", len(provider.TradingCalendar()),
	)

	rules := domain.DefaultTradingRules()
	rules.TradeCostRate = costRate

	source := factor.ExpressionFactorSource{
		Provider:   provider,
		Expression: expression,
		NumAssets:  numAssets,
	}
	targets, err := source.TargetRows(start, end)
	if err != nil {
		return err
	}

	chain, err := backtest.NewSimulationChain(backtest.NewSimulationChainInput{
		Provider:    provider,
		Rules:       rules,
		Targets:     targets,
		InitialCash: initialCash,
		IsAdjusted:  adjusted,
		ReportEvery: reportEvery,
		Log:         log,
	})
	if err != nil {
		return err
	}
	if err := chain.Run(); err != nil {
		return err
	}

	totalAssets := chain.TotalAssets()
	if len(totalAssets) == 0 {
		return fmt.Errorf("simulation produced no completed days")
	}
	log.Infow("simulation complete",
		"runId", chain.RunID(),
		"days", len(chain.Results()),
		"skipped", len(chain.SkippedDays()),
		"finalAssets", totalAssets[len(totalAssets)-1].Value,
	)

	metrics, err := calculator.CalculateMetrics(totalAssets, chain.EffectiveReturns())
	if err != nil {
		return err
	}
	log.Infow("performance",
		"annualizedReturn", metrics.AnnualizedReturn,
		"annualizedStdev", metrics.AnnualizedStdev,
		"sharpe", metrics.SharpeRatio,
		"maxDrawdown", metrics.MaxDrawdown,
	)

	if dbConnStr != "" {
		if err := persist(chain, rules); err != nil {
			return fmt.Errorf("failed to persist run: %w", err)
		}
		log.Infow("persisted run", "runId", chain.RunID())
	}
	return nil
}

func persist(chain *backtest.SimulationChain, rules domain.TradingRules) error {
	db, err := repository.NewDB(dbConnStr)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	repo := repository.NewSimulationRunRepository()
	err = repo.AddRun(tx, repository.SimulationRun{
		RunID:         chain.RunID(),
		CreatedAt:     time.Now().UTC(),
		InitialCash:   decimal.NewFromFloat(initialCash),
		TradeCostRate: decimal.NewFromFloat(rules.TradeCostRate),
		NumDays:       len(chain.Results()),
		NumSkipped:    len(chain.SkippedDays()),
	})
	if err != nil {
		return err
	}

	days, err := repository.DaysFromChain(chain)
	if err != nil {
		return err
	}
	if err := repo.AddDays(tx, days); err != nil {
		return err
	}

	return tx.Commit()
}
