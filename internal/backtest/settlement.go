package backtest

import (
	"fmt"
	"time"

	"factorsim/internal/domain"
	"factorsim/internal/marketdata"

	"github.com/shopspring/decimal"
)

// DaySettlement links one simulated day to the next: it takes yesterday's
// settled holdings and unfilled order, applies today's executability
// filters, and produces today's settled holdings plus the leftover order
// for tomorrow. Every stage is computed lazily on first access and cached,
// so a settlement is effectively immutable once read.
type DaySettlement struct {
	date        time.Time
	target      *domain.PortfolioVector
	prevSettle  *domain.PortfolioVector
	prevOrder   *domain.PortfolioVector
	initialCash float64
	isAdjusted  bool
	md          marketdata.Provider
	rules       domain.TradingRules

	settleT0 *domain.PortfolioVector
	orderT0  *domain.PortfolioVector
	tradeT1  *domain.PortfolioVector
	settleT1 *domain.PortfolioVector
	hopeT1   *domain.PortfolioVector
	orderT1  *domain.PortfolioVector
}

type NewDaySettlementInput struct {
	Date   time.Time
	Target *domain.PortfolioVector
	// PrevSettle and PrevOrder come from the prior day's settlement. Both
	// nil means this is the first simulated day and InitialCash seeds the
	// account.
	PrevSettle  *domain.PortfolioVector
	PrevOrder   *domain.PortfolioVector
	InitialCash float64
	IsAdjusted  bool
	Provider    marketdata.Provider
	Rules       domain.TradingRules
}

func NewDaySettlement(in NewDaySettlementInput) (*DaySettlement, error) {
	if in.Target == nil {
		return nil, fmt.Errorf("day settlement needs a target portfolio")
	}
	if in.Provider == nil {
		return nil, fmt.Errorf("day settlement needs a market data provider")
	}
	return &DaySettlement{
		date:        in.Date,
		target:      in.Target,
		prevSettle:  in.PrevSettle,
		prevOrder:   in.PrevOrder,
		initialCash: in.InitialCash,
		isAdjusted:  in.IsAdjusted,
		md:          in.Provider,
		rules:       in.Rules,
	}, nil
}

func (s *DaySettlement) Date() time.Time {
	return s.date
}

// SettleT0 is yesterday's settled book in share/settle terms. On the first
// day it is synthesized empty, dated one trading day before, holding the
// initial cash.
func (s *DaySettlement) SettleT0() (*domain.PortfolioVector, error) {
	if s.settleT0 != nil {
		return s.settleT0, nil
	}
	if s.prevSettle == nil {
		t0, err := marketdata.ShiftTradingDay(s.md, s.date, -1)
		if err != nil {
			return nil, fmt.Errorf("failed to find prior trading day for %s: %w", s.date.Format("2006-01-02"), err)
		}
		empty, err := domain.NewPortfolioVector(domain.NewPortfolioVectorInput{
			Unit:       domain.UnitShare,
			State:      domain.StateSettle,
			Cash:       decimal.NewFromFloat(s.initialCash),
			TradeDate:  t0,
			IsAdjusted: s.isAdjusted,
			Provider:   s.md,
			Rules:      s.rules,
		})
		if err != nil {
			return nil, err
		}
		s.settleT0 = empty
		return s.settleT0, nil
	}

	settleState := domain.StateSettle
	converted, err := s.prevSettle.To(domain.UnitShare, domain.ConvertOpts{State: &settleState})
	if err != nil {
		return nil, fmt.Errorf("failed to standardize prior settle: %w", err)
	}
	s.settleT0 = converted
	return s.settleT0, nil
}

// OrderT0 is yesterday's unfilled order in share/order terms, synthesized
// empty when there was none.
func (s *DaySettlement) OrderT0() (*domain.PortfolioVector, error) {
	if s.orderT0 != nil {
		return s.orderT0, nil
	}
	if s.prevOrder == nil {
		settleT0, err := s.SettleT0()
		if err != nil {
			return nil, err
		}
		empty, err := domain.NewPortfolioVector(domain.NewPortfolioVectorInput{
			Unit:       domain.UnitShare,
			State:      domain.StateOrder,
			TradeDate:  settleT0.TradeDate(),
			IsAdjusted: s.isAdjusted,
			Provider:   s.md,
			Rules:      s.rules,
		})
		if err != nil {
			return nil, err
		}
		s.orderT0 = empty
		return s.orderT0, nil
	}

	orderState := domain.StateOrder
	converted, err := s.prevOrder.To(domain.UnitShare, domain.ConvertOpts{State: &orderState})
	if err != nil {
		return nil, fmt.Errorf("failed to standardize prior order: %w", err)
	}
	s.orderT0 = converted
	return s.orderT0, nil
}

// TradeT1 is the slice of yesterday's order that can actually execute
// today, net of halts and price limits, with transaction cost debited.
func (s *DaySettlement) TradeT1() (*domain.PortfolioVector, error) {
	if s.tradeT1 != nil {
		return s.tradeT1, nil
	}
	orderT0, err := s.OrderT0()
	if err != nil {
		return nil, err
	}
	traded, err := orderT0.TradeableStandard(1, true)
	if err != nil {
		return nil, fmt.Errorf("failed to filter tradeable order: %w", err)
	}
	s.tradeT1 = traded
	return s.tradeT1, nil
}

// SettleT1 is today's settled book: yesterday's holdings carried one day
// forward plus whatever traded.
func (s *DaySettlement) SettleT1() (*domain.PortfolioVector, error) {
	if s.settleT1 != nil {
		return s.settleT1, nil
	}
	settleT0, err := s.SettleT0()
	if err != nil {
		return nil, err
	}
	tradeT1, err := s.TradeT1()
	if err != nil {
		return nil, err
	}
	carried, err := settleT0.DShift(1)
	if err != nil {
		return nil, fmt.Errorf("failed to carry settle forward: %w", err)
	}
	settled, err := carried.Add(tradeT1)
	if err != nil {
		return nil, fmt.Errorf("failed to settle trades: %w", err)
	}
	s.settleT1 = settled
	return s.settleT1, nil
}

// HopeT1 is the desired portfolio rescaled to post-trade wealth.
func (s *DaySettlement) HopeT1() (*domain.PortfolioVector, error) {
	if s.hopeT1 != nil {
		return s.hopeT1, nil
	}
	settleT1, err := s.SettleT1()
	if err != nil {
		return nil, err
	}
	wealth, err := settleT1.TotalAssets(true)
	if err != nil {
		return nil, err
	}
	hope, err := s.target.To(domain.UnitShare, domain.ConvertOpts{
		Assets:     &wealth,
		IsAdjusted: &s.isAdjusted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scale target to wealth: %w", err)
	}
	s.hopeT1 = hope
	return s.hopeT1, nil
}

// OrderT1 is what remains to be ordered after today's settlement, i.e.
// tomorrow's standing order.
func (s *DaySettlement) OrderT1() (*domain.PortfolioVector, error) {
	if s.orderT1 != nil {
		return s.orderT1, nil
	}
	hopeT1, err := s.HopeT1()
	if err != nil {
		return nil, err
	}
	settleT1, err := s.SettleT1()
	if err != nil {
		return nil, err
	}
	leftover, err := hopeT1.Sub(settleT1)
	if err != nil {
		return nil, fmt.Errorf("failed to compute leftover order: %w", err)
	}
	s.orderT1 = leftover
	return s.orderT1, nil
}

func (s *DaySettlement) prevTotalAssets() (float64, error) {
	settleT0, err := s.SettleT0()
	if err != nil {
		return 0, err
	}
	total, err := settleT0.TotalAssets(true)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, fmt.Errorf("prior day total assets is 0 on %s", s.date.Format("2006-01-02"))
	}
	return total, nil
}

// Cost is the day's total transaction cost, carried as a negative number.
func (s *DaySettlement) Cost() (float64, error) {
	tradeT1, err := s.TradeT1()
	if err != nil {
		return 0, err
	}
	cost, err := tradeT1.Cost()
	if err != nil {
		return 0, err
	}
	return cost.Sum(), nil
}

func (s *DaySettlement) CostPct() (float64, error) {
	cost, err := s.Cost()
	if err != nil {
		return 0, err
	}
	prevTotal, err := s.prevTotalAssets()
	if err != nil {
		return 0, err
	}
	return cost / prevTotal, nil
}

// Turnover is traded value over prior-day total assets.
func (s *DaySettlement) Turnover() (float64, error) {
	tradeT1, err := s.TradeT1()
	if err != nil {
		return 0, err
	}
	tradedValue, err := tradeT1.To(domain.UnitAssets, domain.ConvertOpts{})
	if err != nil {
		return 0, err
	}
	prevTotal, err := s.prevTotalAssets()
	if err != nil {
		return 0, err
	}
	return tradedValue.Abs().Sum() / prevTotal, nil
}

func (s *DaySettlement) TotalAssets() (float64, error) {
	settleT1, err := s.SettleT1()
	if err != nil {
		return 0, err
	}
	return settleT1.TotalAssets(true)
}

// Returns is the realized day-over-day return, net of filtering and cost.
func (s *DaySettlement) Returns() (float64, error) {
	total, err := s.TotalAssets()
	if err != nil {
		return 0, err
	}
	prevTotal, err := s.prevTotalAssets()
	if err != nil {
		return 0, err
	}
	return total/prevTotal - 1, nil
}

// TheoreticalReturns is the frictionless return had the full order filled.
// The formula deliberately mirrors the long-standing production behavior,
// mixing the T0-dated order with the day-shifted book; keep it intact for
// parity with historical runs.
func (s *DaySettlement) TheoreticalReturns() (float64, error) {
	orderT0, err := s.OrderT0()
	if err != nil {
		return 0, err
	}
	settleT0, err := s.SettleT0()
	if err != nil {
		return 0, err
	}
	combined, err := orderT0.Add(settleT0)
	if err != nil {
		return 0, err
	}
	shifted, err := combined.DShift(1)
	if err != nil {
		return 0, err
	}
	shiftedTotal, err := shifted.TotalAssets(true)
	if err != nil {
		return 0, err
	}
	orderTotal, err := orderT0.TotalAssets(true)
	if err != nil {
		return 0, err
	}
	prevTotal, err := s.prevTotalAssets()
	if err != nil {
		return 0, err
	}
	return (shiftedTotal-orderTotal)/prevTotal - 1, nil
}

// DroppedPositions counts order lines that were filtered out by halts,
// price limits, or missing data. Callers wanting strict data coverage can
// post-check this instead of the settlement failing the day.
func (s *DaySettlement) DroppedPositions() (int, error) {
	orderT0, err := s.OrderT0()
	if err != nil {
		return 0, err
	}
	tradeT1, err := s.TradeT1()
	if err != nil {
		return 0, err
	}
	return orderT0.Len() - tradeT1.Len(), nil
}

// materialize forces every stage and metric so construction errors surface
// before the settlement is chained into the next day.
func (s *DaySettlement) materialize() error {
	if _, err := s.OrderT1(); err != nil {
		return err
	}
	if _, err := s.Returns(); err != nil {
		return err
	}
	if _, err := s.TheoreticalReturns(); err != nil {
		return err
	}
	if _, err := s.Turnover(); err != nil {
		return err
	}
	if _, err := s.CostPct(); err != nil {
		return err
	}
	return nil
}
