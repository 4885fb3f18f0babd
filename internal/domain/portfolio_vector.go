package domain

import (
	"fmt"
	"math"
	"time"

	"factorsim/internal/marketdata"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Unit says what the holding quantities mean: fractional weights summing
// to 1, currency amounts, or share counts.
type Unit string

const (
	UnitWeight Unit = "weight"
	UnitAssets Unit = "assets"
	UnitShare  Unit = "share"
)

// State says where in the order lifecycle the vector sits. It decides
// which price field conversions use and what the cash balance means.
type State string

const (
	StateOrder  State = "order"
	StateTrade  State = "trade"
	StateSettle State = "settle"
)

func priceKindForState(s State) marketdata.PriceKind {
	switch s {
	case StateOrder:
		return marketdata.PriceKindOrder
	case StateTrade:
		return marketdata.PriceKindTrade
	default:
		return marketdata.PriceKindSettle
	}
}

// PortfolioVector is a sparse instrument -> quantity mapping plus the cash
// balance that travels with it. Quantities are interpreted through the
// unit/state pair; zero positions are never stored. Instances are value
// objects: every operation returns a new vector.
type PortfolioVector struct {
	holdings   map[string]float64
	unit       Unit
	state      State
	cash       decimal.Decimal
	tradeDate  time.Time
	isAdjusted bool
	md         marketdata.Provider
	rules      TradingRules
}

type NewPortfolioVectorInput struct {
	Holdings   map[string]float64
	Unit       Unit
	State      State
	Cash       decimal.Decimal
	TradeDate  time.Time
	IsAdjusted bool
	Provider   marketdata.Provider
	Rules      TradingRules
}

func NewPortfolioVector(in NewPortfolioVectorInput) (*PortfolioVector, error) {
	switch in.Unit {
	case UnitWeight, UnitAssets, UnitShare:
	default:
		return nil, fmt.Errorf("invalid unit %q", in.Unit)
	}
	switch in.State {
	case StateOrder, StateTrade, StateSettle:
	default:
		return nil, fmt.Errorf("invalid state %q", in.State)
	}
	if in.Provider == nil {
		return nil, fmt.Errorf("portfolio vector needs a market data provider")
	}

	holdings := map[string]float64{}
	for symbol, quantity := range in.Holdings {
		if quantity != 0 {
			holdings[symbol] = quantity
		}
	}

	return &PortfolioVector{
		holdings:   holdings,
		unit:       in.Unit,
		state:      in.State,
		cash:       in.Cash,
		tradeDate:  in.TradeDate,
		isAdjusted: in.IsAdjusted,
		md:         in.Provider,
		rules:      in.Rules,
	}, nil
}

func (v *PortfolioVector) clone() *PortfolioVector {
	holdings := make(map[string]float64, len(v.holdings))
	for symbol, quantity := range v.holdings {
		holdings[symbol] = quantity
	}
	out := *v
	out.holdings = holdings
	return &out
}

func (v *PortfolioVector) Unit() Unit            { return v.unit }
func (v *PortfolioVector) State() State          { return v.state }
func (v *PortfolioVector) Cash() decimal.Decimal { return v.cash }
func (v *PortfolioVector) TradeDate() time.Time  { return v.tradeDate }
func (v *PortfolioVector) IsAdjusted() bool      { return v.isAdjusted }
func (v *PortfolioVector) Rules() TradingRules   { return v.rules }
func (v *PortfolioVector) Len() int              { return len(v.holdings) }

func (v *PortfolioVector) Quantity(symbol string) float64 {
	return v.holdings[symbol]
}

func (v *PortfolioVector) Holdings() map[string]float64 {
	out := make(map[string]float64, len(v.holdings))
	for symbol, quantity := range v.holdings {
		out[symbol] = quantity
	}
	return out
}

func (v *PortfolioVector) HeldSymbols() []string {
	symbols := []string{}
	for symbol := range v.holdings {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Sum adds up the raw quantities, whatever the unit.
func (v *PortfolioVector) Sum() float64 {
	sum := 0.0
	for _, quantity := range v.holdings {
		sum += quantity
	}
	return sum
}

// Abs returns a copy with every quantity replaced by its absolute value.
// Cash is untouched.
func (v *PortfolioVector) Abs() *PortfolioVector {
	out := v.clone()
	for symbol, quantity := range out.holdings {
		out.holdings[symbol] = math.Abs(quantity)
	}
	return out
}

// ConvertOpts carries the extra parameters some conversions need. Assets
// is required when converting out of weight units; IsAdjusted selects the
// adjustment mode of a share-unit result; State, when set, is applied to
// the result afterward (with its usual cash side effect).
type ConvertOpts struct {
	Assets     *float64
	IsAdjusted *bool
	State      *State
}

// To converts the vector to the requested unit. All nine unit pairs are
// supported; see ConvertOpts for which ones need extra parameters.
func (v *PortfolioVector) To(unit Unit, opts ConvertOpts) (*PortfolioVector, error) {
	targetAdj := v.isAdjusted
	if opts.IsAdjusted != nil {
		targetAdj = *opts.IsAdjusted
	}

	var out *PortfolioVector
	var err error

	switch v.unit {
	case UnitWeight:
		switch unit {
		case UnitWeight:
			out, err = v.normalized()
		case UnitAssets:
			out, err = v.weightToAssets(opts.Assets)
		case UnitShare:
			out, err = v.weightToAssets(opts.Assets)
			if err == nil {
				out, err = out.assetsToShare(targetAdj)
			}
		default:
			err = &ConversionError{From: v.unit, To: unit, Reason: "unknown target unit"}
		}
	case UnitAssets:
		switch unit {
		case UnitWeight:
			out, err = v.normalized()
		case UnitAssets:
			out = v.clone()
		case UnitShare:
			out, err = v.assetsToShare(targetAdj)
		default:
			err = &ConversionError{From: v.unit, To: unit, Reason: "unknown target unit"}
		}
	case UnitShare:
		switch unit {
		case UnitWeight:
			out, err = v.shareToAssets()
			if err == nil {
				out, err = out.normalized()
			}
		case UnitAssets:
			out, err = v.shareToAssets()
		case UnitShare:
			if targetAdj == v.isAdjusted {
				out = v.clone()
			} else {
				// round-trip through assets so the position's value
				// survives the change of share basis
				out, err = v.shareToAssets()
				if err == nil {
					out, err = out.assetsToShare(targetAdj)
				}
			}
		default:
			err = &ConversionError{From: v.unit, To: unit, Reason: "unknown target unit"}
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.State != nil {
		out, err = out.WithState(*opts.State)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (v *PortfolioVector) normalized() (*PortfolioVector, error) {
	out := v.clone()
	out.unit = UnitWeight
	if len(out.holdings) == 0 {
		return out, nil
	}
	sum := out.Sum()
	if sum == 0 {
		return nil, &ConversionError{From: v.unit, To: UnitWeight, Reason: "holdings sum to 0"}
	}
	for symbol, quantity := range out.holdings {
		out.holdings[symbol] = quantity / sum
	}
	return out, nil
}

func (v *PortfolioVector) weightToAssets(assets *float64) (*PortfolioVector, error) {
	if assets == nil {
		return nil, &ConversionError{From: UnitWeight, To: UnitAssets, Reason: "missing required Assets parameter"}
	}
	out, err := v.normalized()
	if err != nil {
		return nil, err
	}
	out.unit = UnitAssets
	for symbol, weight := range out.holdings {
		out.holdings[symbol] = weight * *assets
	}
	out.prune()
	return out, nil
}

// assetsToShare divides each position by its state-resolved price. Symbols
// with no usable price that day are dropped rather than poisoning the
// whole vector with NaN.
func (v *PortfolioVector) assetsToShare(isAdjusted bool) (*PortfolioVector, error) {
	if v.tradeDate.IsZero() {
		return nil, ErrNoTradeDate
	}
	out := v.clone()
	out.unit = UnitShare
	out.isAdjusted = isAdjusted
	kind := priceKindForState(v.state)
	for symbol, value := range v.holdings {
		price := v.md.Price(symbol, v.tradeDate, kind, isAdjusted)
		if math.IsNaN(price) || price == 0 {
			delete(out.holdings, symbol)
			continue
		}
		out.holdings[symbol] = value / price
	}
	out.prune()
	return out, nil
}

func (v *PortfolioVector) shareToAssets() (*PortfolioVector, error) {
	if v.tradeDate.IsZero() {
		return nil, ErrNoTradeDate
	}
	out := v.clone()
	out.unit = UnitAssets
	kind := priceKindForState(v.state)
	for symbol, shares := range v.holdings {
		price := v.md.Price(symbol, v.tradeDate, kind, v.isAdjusted)
		if math.IsNaN(price) {
			delete(out.holdings, symbol)
			continue
		}
		out.holdings[symbol] = shares * price
	}
	out.prune()
	return out, nil
}

func (v *PortfolioVector) prune() {
	for symbol, quantity := range v.holdings {
		if quantity == 0 {
			delete(v.holdings, symbol)
		}
	}
}

// WithState returns a copy in the given state. Moving to order zeroes the
// cash balance (a wish costs nothing); moving to trade books the cash
// outlay/inflow needed to acquire the position, priced off the trade
// price field.
func (v *PortfolioVector) WithState(s State) (*PortfolioVector, error) {
	switch s {
	case StateOrder, StateTrade, StateSettle:
	default:
		return nil, fmt.Errorf("invalid state %q", s)
	}

	out := v.clone()
	out.state = s
	switch s {
	case StateOrder:
		out.cash = decimal.Zero
	case StateTrade:
		value, err := out.TotalAssets(false)
		if err != nil {
			return nil, err
		}
		out.cash = decimal.NewFromFloat(-value)
	}
	return out, nil
}

// WithTradeDate moves the vector to a new date. Unadjusted share counts
// are rescaled by the adjustment-factor ratio between the two dates so
// the economic value carried across the move stays constant.
func (v *PortfolioVector) WithTradeDate(date time.Time) (*PortfolioVector, error) {
	out := v.clone()
	if v.unit == UnitShare && !v.isAdjusted && !v.tradeDate.IsZero() {
		for symbol, shares := range out.holdings {
			oldFactor := v.md.AdjustmentFactor(symbol, v.tradeDate)
			newFactor := v.md.AdjustmentFactor(symbol, date)
			if math.IsNaN(oldFactor) || math.IsNaN(newFactor) || oldFactor == 0 {
				continue
			}
			out.holdings[symbol] = shares * newFactor / oldFactor
		}
	}
	out.tradeDate = date
	return out, nil
}

// WithAdjusted flips the adjustment flag in place of the usual
// To(share, IsAdjusted) round-trip. On share units this changes the
// position's economic value, which is almost never what you want.
func (v *PortfolioVector) WithAdjusted(isAdjusted bool) *PortfolioVector {
	if v.unit == UnitShare && isAdjusted != v.isAdjusted {
		zap.S().Warnf("flipping is_adjusted on a share-unit vector changes its value; use To(share) to preserve it")
	}
	out := v.clone()
	out.isAdjusted = isAdjusted
	return out
}

// DShift steps the trade date n trading days along the provider calendar.
func (v *PortfolioVector) DShift(n int) (*PortfolioVector, error) {
	if v.tradeDate.IsZero() {
		return nil, ErrNoTradeDate
	}
	date, err := marketdata.ShiftTradingDay(v.md, v.tradeDate, n)
	if err != nil {
		return nil, fmt.Errorf("failed to shift trade date: %w", err)
	}
	return v.WithTradeDate(date)
}

// Add combines two vectors position-wise. The right operand is first
// coerced to the left's unit and adjustment mode, cash balances add, and
// the later trade date wins. Exact-zero netted positions are pruned.
func (v *PortfolioVector) Add(other *PortfolioVector) (*PortfolioVector, error) {
	coerced, err := other.To(v.unit, ConvertOpts{IsAdjusted: &v.isAdjusted})
	if err != nil {
		return nil, fmt.Errorf("failed to coerce right operand: %w", err)
	}

	out := v.clone()
	for symbol, quantity := range coerced.holdings {
		out.holdings[symbol] += quantity
	}
	out.cash = v.cash.Add(coerced.cash)
	if coerced.tradeDate.After(out.tradeDate) {
		out.tradeDate = coerced.tradeDate
	}
	out.prune()
	return out, nil
}

func (v *PortfolioVector) Sub(other *PortfolioVector) (*PortfolioVector, error) {
	return v.Add(other.Scale(-1))
}

// Scale multiplies every position and the cash balance by k.
func (v *PortfolioVector) Scale(k float64) *PortfolioVector {
	out := v.clone()
	for symbol, quantity := range out.holdings {
		out.holdings[symbol] = quantity * k
	}
	out.cash = out.cash.Mul(decimal.NewFromFloat(k))
	out.prune()
	return out
}

func (v *PortfolioVector) Div(k float64) (*PortfolioVector, error) {
	if k == 0 {
		return nil, fmt.Errorf("cannot divide portfolio vector by 0")
	}
	return v.Scale(1 / k), nil
}

// Prices resolves the per-symbol price for the vector's date, picking the
// field that matches its state. Pass isAdjusted to override the vector's
// own adjustment mode; pass allSymbols to price the whole universe rather
// than just held positions.
func (v *PortfolioVector) Prices(isAdjusted *bool, allSymbols bool) (map[string]float64, error) {
	if v.tradeDate.IsZero() {
		return nil, ErrNoTradeDate
	}
	adj := v.isAdjusted
	if isAdjusted != nil {
		adj = *isAdjusted
	}
	symbols := v.HeldSymbols()
	if allSymbols {
		symbols = v.md.Symbols()
	}
	kind := priceKindForState(v.state)
	out := map[string]float64{}
	for _, symbol := range symbols {
		out[symbol] = v.md.Price(symbol, v.tradeDate, kind, adj)
	}
	return out, nil
}

// TotalAssets values the vector in currency terms, optionally including
// the cash balance.
func (v *PortfolioVector) TotalAssets(includeCash bool) (float64, error) {
	assets, err := v.To(UnitAssets, ConvertOpts{})
	if err != nil {
		return 0, err
	}
	total := assets.Sum()
	if includeCash {
		total += v.cash.InexactFloat64()
	}
	return total, nil
}

// Cost prices each position's transaction cost: -abs(value) * cost rate.
// It is a side computation, not a state transition.
func (v *PortfolioVector) Cost() (*PortfolioVector, error) {
	assets, err := v.To(UnitAssets, ConvertOpts{})
	if err != nil {
		return nil, err
	}
	out := assets.clone()
	out.cash = decimal.Zero
	for symbol, value := range out.holdings {
		out.holdings[symbol] = -math.Abs(value) * v.rules.TradeCostRate
	}
	out.prune()
	return out, nil
}

// TradeableStandard turns a desired order into what could actually fill:
// shift forward dShift trading days, drop halted symbols, drop buys that
// hit the high limit and sells that hit the low limit, then mark the
// result as traded (booking its cash outlay) and debit transaction costs.
func (v *PortfolioVector) TradeableStandard(dShift int, applyCost bool) (*PortfolioVector, error) {
	shifted, err := v.DShift(dShift)
	if err != nil {
		return nil, err
	}

	for symbol, quantity := range shifted.Holdings() {
		if shifted.md.TradingHalted(symbol, shifted.tradeDate) {
			delete(shifted.holdings, symbol)
			continue
		}
		if quantity > 0 && shifted.md.HighLimitHit(symbol, shifted.tradeDate) {
			delete(shifted.holdings, symbol)
		} else if quantity < 0 && shifted.md.LowLimitHit(symbol, shifted.tradeDate) {
			delete(shifted.holdings, symbol)
		}
	}

	traded, err := shifted.WithState(StateTrade)
	if err != nil {
		return nil, err
	}
	if applyCost {
		cost, err := traded.Cost()
		if err != nil {
			return nil, err
		}
		traded.cash = traded.cash.Add(decimal.NewFromFloat(cost.Sum()))
	}
	return traded, nil
}

// OrderStandard prepares the vector to be fed into the next day's
// settlement as a standing order: order state (no cash), shifted date,
// share units in the requested adjustment mode.
func (v *PortfolioVector) OrderStandard(dShift int, isAdjusted bool) (*PortfolioVector, error) {
	ordered, err := v.WithState(StateOrder)
	if err != nil {
		return nil, err
	}
	if dShift != 0 {
		ordered, err = ordered.DShift(dShift)
		if err != nil {
			return nil, err
		}
	}
	return ordered.To(UnitShare, ConvertOpts{IsAdjusted: &isAdjusted})
}
