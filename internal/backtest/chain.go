package backtest

import (
	"fmt"
	"time"

	"factorsim/internal/domain"
	"factorsim/internal/marketdata"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TargetRow is one day's desired portfolio: symbol -> weight.
type TargetRow struct {
	Date    time.Time
	Weights map[string]float64
}

// DayResult is either a completed settlement or the reason the day was
// skipped. The chain never drops a day silently.
type DayResult struct {
	Date       time.Time
	Settlement *DaySettlement
	SkipReason error
}

func (r DayResult) Skipped() bool {
	return r.SkipReason != nil
}

// Point is one sample of a date-aligned series.
type Point struct {
	Date  time.Time
	Value float64
}

// SimulationChain drives the day-by-day recurrence: each day's settlement
// consumes the previous day's settled book and leftover order. A day that
// fails to build is recorded and skipped, with the last good state carried
// forward, so a multi-year run survives isolated bad days.
type SimulationChain struct {
	md          marketdata.Provider
	rules       domain.TradingRules
	targets     []TargetRow
	initialCash float64
	isAdjusted  bool
	reportEvery int
	log         *zap.SugaredLogger

	runID   uuid.UUID
	results []DayResult

	totalAssets        []Point
	effectiveReturns   []Point
	theoreticalReturns []Point
	turnover           []Point
}

type NewSimulationChainInput struct {
	Provider    marketdata.Provider
	Rules       domain.TradingRules
	Targets     []TargetRow
	InitialCash float64
	IsAdjusted  bool
	// ReportEvery is the progress-log cadence in days. 0 disables it.
	ReportEvery int
	Log         *zap.SugaredLogger
}

func NewSimulationChain(in NewSimulationChainInput) (*SimulationChain, error) {
	if in.Provider == nil {
		return nil, fmt.Errorf("simulation chain needs a market data provider")
	}
	if len(in.Targets) == 0 {
		return nil, fmt.Errorf("cannot simulate 0 target rows")
	}
	if in.InitialCash <= 0 {
		return nil, fmt.Errorf("initial cash must be positive, got %f", in.InitialCash)
	}
	log := in.Log
	if log == nil {
		log = zap.S()
	}
	return &SimulationChain{
		md:          in.Provider,
		rules:       in.Rules,
		targets:     in.Targets,
		initialCash: in.InitialCash,
		isAdjusted:  in.IsAdjusted,
		reportEvery: in.ReportEvery,
		log:         log,
		runID:       uuid.New(),
	}, nil
}

func (c *SimulationChain) RunID() uuid.UUID {
	return c.runID
}

// Run builds every day's settlement in order. It is not re-runnable; call
// it once and read the series accessors.
func (c *SimulationChain) Run() error {
	if c.results != nil {
		return fmt.Errorf("simulation chain already ran")
	}
	c.results = make([]DayResult, 0, len(c.targets))

	var prevSettle, prevOrder *domain.PortfolioVector
	for i, row := range c.targets {
		settlement, err := c.buildDay(row, prevSettle, prevOrder)
		if err != nil {
			c.log.Warnw("skipping day",
				"runId", c.runID,
				"date", row.Date.Format("2006-01-02"),
				"reason", err.Error(),
			)
			c.results = append(c.results, DayResult{Date: row.Date, SkipReason: err})
			continue
		}

		c.results = append(c.results, DayResult{Date: row.Date, Settlement: settlement})
		prevSettle, _ = settlement.SettleT1()
		prevOrder, _ = settlement.OrderT1()

		if c.reportEvery > 0 && (i+1)%c.reportEvery == 0 {
			total, _ := settlement.TotalAssets()
			c.log.Infow("simulation progress",
				"runId", c.runID,
				"day", i+1,
				"of", len(c.targets),
				"date", row.Date.Format("2006-01-02"),
				"totalAssets", total,
			)
		}
	}

	return nil
}

func (c *SimulationChain) buildDay(row TargetRow, prevSettle, prevOrder *domain.PortfolioVector) (*DaySettlement, error) {
	if len(row.Weights) == 0 {
		return nil, fmt.Errorf("empty target row")
	}

	target, err := domain.NewPortfolioVector(domain.NewPortfolioVectorInput{
		Holdings:   row.Weights,
		Unit:       domain.UnitWeight,
		State:      domain.StateOrder,
		TradeDate:  row.Date,
		IsAdjusted: c.isAdjusted,
		Provider:   c.md,
		Rules:      c.rules,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build target vector: %w", err)
	}

	settlement, err := NewDaySettlement(NewDaySettlementInput{
		Date:        row.Date,
		Target:      target,
		PrevSettle:  prevSettle,
		PrevOrder:   prevOrder,
		InitialCash: c.initialCash,
		IsAdjusted:  c.isAdjusted,
		Provider:    c.md,
		Rules:       c.rules,
	})
	if err != nil {
		return nil, err
	}
	if err := settlement.materialize(); err != nil {
		return nil, err
	}
	return settlement, nil
}

// Results returns every day's outcome in order, skipped days included.
func (c *SimulationChain) Results() []DayResult {
	return c.results
}

// SkippedDays returns the days the chain had to skip, with reasons.
func (c *SimulationChain) SkippedDays() []DayResult {
	skipped := []DayResult{}
	for _, r := range c.results {
		if r.Skipped() {
			skipped = append(skipped, r)
		}
	}
	return skipped
}

func (c *SimulationChain) series(cached *[]Point, get func(*DaySettlement) (float64, error)) []Point {
	if *cached != nil {
		return *cached
	}
	points := []Point{}
	for _, r := range c.results {
		if r.Skipped() {
			continue
		}
		value, err := get(r.Settlement)
		if err != nil {
			// materialize already vetted every settlement
			continue
		}
		points = append(points, Point{Date: r.Date, Value: value})
	}
	*cached = points
	return points
}

func (c *SimulationChain) TotalAssets() []Point {
	return c.series(&c.totalAssets, (*DaySettlement).TotalAssets)
}

// EffectiveReturns is the realized per-day return series.
func (c *SimulationChain) EffectiveReturns() []Point {
	return c.series(&c.effectiveReturns, (*DaySettlement).Returns)
}

func (c *SimulationChain) TheoreticalReturns() []Point {
	return c.series(&c.theoreticalReturns, (*DaySettlement).TheoreticalReturns)
}

func (c *SimulationChain) Turnover() []Point {
	return c.series(&c.turnover, (*DaySettlement).Turnover)
}
