// Package risk implements the pure decision rules that gate every trade:
// whether a position may be opened, how large it should be, and when an open
// position must be closed.
//
// Nothing here performs I/O or mutates a portfolio. Callers pass a snapshot
// and act on the result.
package risk

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
)

var (
	// ErrPositionExists is returned when the portfolio already holds the ticker.
	ErrPositionExists = errors.New("risk: position already open for ticker")

	// ErrReserveFloor is returned when the purchase would leave cash below
	// the reserve floor.
	ErrReserveFloor = errors.New("risk: purchase would breach cash reserve floor")

	// ErrPositionTooLarge is returned when the cost exceeds the per-position
	// fraction of total value.
	ErrPositionTooLarge = errors.New("risk: position exceeds max fraction of portfolio")

	// ErrMaxDrawdown is returned when the portfolio is too far below its peak.
	ErrMaxDrawdown = errors.New("risk: portfolio drawdown exceeds limit")

	// ErrPortfolioTooSmall is returned when total value is below the minimum
	// viable portfolio.
	ErrPortfolioTooSmall = errors.New("risk: portfolio below minimum viable value")
)

// ExitReason explains why ShouldClosePosition chose to close.
type ExitReason string

const (
	ExitHold          ExitReason = ""
	ExitExpired       ExitReason = "expired"
	ExitLowConfidence ExitReason = "low_confidence"
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
)

// ExitDecision is the outcome of ShouldClosePosition.
type ExitDecision struct {
	Close  bool
	Reason ExitReason
	Return decimal.Decimal // unrealized return at the evaluated price
}

// Policy applies a fixed Parameters set. It is immutable and safe for
// concurrent use by every model's pipeline.
type Policy struct {
	params Parameters
	one    decimal.Decimal
}

// NewPolicy creates a policy over params.
func NewPolicy(params Parameters) *Policy {
	return &Policy{params: params, one: decimal.NewFromInt(1)}
}

// Params returns the policy's parameters.
func (p *Policy) Params() Parameters {
	return p.params
}

// CanOpenPosition returns nil if a purchase costing proposedCost may open a
// new position in ticker. Checks run in a fixed order and the first failure
// is returned; log consumers depend on this priority.
func (p *Policy) CanOpenPosition(pf *model.Portfolio, ticker string, proposedCost decimal.Decimal) error {
	// 1. One position per ticker.
	if _, held := pf.Positions[ticker]; held {
		return ErrPositionExists
	}

	// 2. Reserve floor, evaluated on pre-trade cash.
	if pf.Cash.Sub(proposedCost).LessThan(p.params.ReserveFloor) {
		return ErrReserveFloor
	}

	// 3. Per-position fraction of total value.
	if proposedCost.GreaterThan(pf.TotalValue.Mul(p.params.MaxPositionFraction)) {
		return ErrPositionTooLarge
	}

	// 4. Drawdown against the peak recorded at the last revaluation.
	if pf.PeakValue.IsPositive() {
		drawdown := pf.PeakValue.Sub(pf.TotalValue).Div(pf.PeakValue)
		if drawdown.GreaterThan(p.params.MaxDrawdown) {
			return ErrMaxDrawdown
		}
	}

	// 5. Minimum viable portfolio.
	if pf.TotalValue.LessThan(p.params.MinPortfolioValue) {
		return ErrPortfolioTooSmall
	}

	return nil
}

// SizePosition returns how many contracts to buy at priceCents. Zero means
// the trade is too small to place, which is a normal outcome.
func (p *Policy) SizePosition(pf *model.Portfolio, priceCents int) int {
	if priceCents <= 0 {
		return 0
	}
	available := pf.Cash.Sub(p.params.ReserveFloor)
	if !available.IsPositive() {
		return 0
	}

	target := decimal.Min(
		p.params.TargetPositionFraction.Mul(pf.TotalValue),
		p.params.MaxPositionFraction.Mul(pf.TotalValue),
		p.params.MaxPositionValue,
		available,
	)
	if !target.IsPositive() {
		return 0
	}

	contracts := target.Div(model.CentsToDollars(priceCents)).Floor().IntPart()

	perContract := p.Cost(priceCents, 1)
	affordable := available.Div(perContract).Floor().IntPart()
	if affordable < contracts {
		contracts = affordable
	}
	// Div rounds at 16 digits; never let rounding push cost past the floor.
	for contracts > 0 && p.Cost(priceCents, int(contracts)).GreaterThan(available) {
		contracts--
	}
	if contracts < 0 {
		return 0
	}
	return int(contracts)
}

// ShouldClosePosition decides whether to exit pos. Reasons are checked in
// order: market closed, confidence below hold threshold, stop-loss,
// take-profit. An expired market closes regardless of confidence.
func (p *Policy) ShouldClosePosition(
	pos model.Position,
	currentPriceCents int,
	confidence float64,
	marketCloseTime *time.Time,
	now time.Time,
) ExitDecision {
	ret := UnrealizedReturn(pos, currentPriceCents)

	if marketCloseTime != nil && !now.Before(*marketCloseTime) {
		return ExitDecision{Close: true, Reason: ExitExpired, Return: ret}
	}
	if confidence < p.params.HoldConfidence {
		return ExitDecision{Close: true, Reason: ExitLowConfidence, Return: ret}
	}
	if ret.LessThanOrEqual(p.params.StopLoss) {
		return ExitDecision{Close: true, Reason: ExitStopLoss, Return: ret}
	}
	if ret.GreaterThanOrEqual(p.params.TakeProfit) {
		return ExitDecision{Close: true, Reason: ExitTakeProfit, Return: ret}
	}
	return ExitDecision{Return: ret}
}

// Cost is the cash paid for contracts at priceCents, fee included.
func (p *Policy) Cost(priceCents, contracts int) decimal.Decimal {
	return model.Notional(priceCents, contracts).Mul(p.one.Add(p.params.FeeRate))
}

// Proceeds is the cash received selling contracts at priceCents, fee deducted.
// The fee is charged on both legs, so a flat round trip loses 2 × fee × notional.
func (p *Policy) Proceeds(priceCents, contracts int) decimal.Decimal {
	return model.Notional(priceCents, contracts).Mul(p.one.Sub(p.params.FeeRate))
}

// UnrealizedReturn is (mark − cost) / cost at priceCents.
func UnrealizedReturn(pos model.Position, priceCents int) decimal.Decimal {
	if !pos.Cost.IsPositive() {
		return decimal.Zero
	}
	return pos.MarketValue(priceCents).Sub(pos.Cost).Div(pos.Cost)
}

// NextPeak returns the high-water mark after a revaluation to total.
// Call once per tick, after revaluation.
func NextPeak(peak, total decimal.Decimal) decimal.Decimal {
	if total.GreaterThan(peak) {
		return total
	}
	return peak
}

// Drawdown is the fractional decline of total from peak.
func Drawdown(peak, total decimal.Decimal) decimal.Decimal {
	if !peak.IsPositive() || total.GreaterThanOrEqual(peak) {
		return decimal.Zero
	}
	return peak.Sub(total).Div(peak)
}

// DenialReason returns a stable label for a CanOpenPosition error, for logs
// and metrics.
func DenialReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPositionExists):
		return "position_exists"
	case errors.Is(err, ErrReserveFloor):
		return "reserve_floor"
	case errors.Is(err, ErrPositionTooLarge):
		return "position_too_large"
	case errors.Is(err, ErrMaxDrawdown):
		return "max_drawdown"
	case errors.Is(err, ErrPortfolioTooSmall):
		return "portfolio_too_small"
	default:
		return "unknown"
	}
}
