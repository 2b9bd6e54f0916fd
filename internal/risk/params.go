package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Parameters is the static risk configuration shared by every model.
// Money fields are dollars; fractions are plain ratios (0.10 = 10%).
type Parameters struct {
	// ReserveFloor is the minimum cash a portfolio keeps after any purchase.
	ReserveFloor decimal.Decimal `yaml:"reserve_floor"`

	// MaxPositionFraction caps one position's cost relative to total value.
	MaxPositionFraction decimal.Decimal `yaml:"max_position_fraction"`

	// MaxPositionValue caps one position's notional in absolute dollars.
	MaxPositionValue decimal.Decimal `yaml:"max_position_value"`

	// TargetPositionFraction is the preferred position size.
	TargetPositionFraction decimal.Decimal `yaml:"target_position_fraction"`

	// BuyConfidence is the minimum oracle confidence (0..100) to open.
	BuyConfidence float64 `yaml:"buy_confidence"`

	// HoldConfidence is the confidence below which a held position closes.
	HoldConfidence float64 `yaml:"hold_confidence"`

	// FeeRate is charged on both entry and exit notional.
	FeeRate decimal.Decimal `yaml:"fee_rate"`

	// MaxDrawdown is the largest tolerated decline from the peak value.
	MaxDrawdown decimal.Decimal `yaml:"max_drawdown"`

	// MinPortfolioValue halts new entries below this total value.
	MinPortfolioValue decimal.Decimal `yaml:"min_portfolio_value"`

	// StopLoss closes a position at or below this unrealized return (negative).
	StopLoss decimal.Decimal `yaml:"stop_loss"`

	// TakeProfit closes a position at or above this unrealized return.
	TakeProfit decimal.Decimal `yaml:"take_profit"`
}

// DefaultParameters returns the arena's standard limits for a $10,000 book.
func DefaultParameters() Parameters {
	return Parameters{
		ReserveFloor:           decimal.NewFromInt(1000),
		MaxPositionFraction:    decimal.NewFromFloat(0.10),
		MaxPositionValue:       decimal.NewFromInt(1000),
		TargetPositionFraction: decimal.NewFromFloat(0.05),
		BuyConfidence:          70,
		HoldConfidence:         50,
		FeeRate:                decimal.NewFromFloat(0.001),
		MaxDrawdown:            decimal.NewFromFloat(0.25),
		MinPortfolioValue:      decimal.NewFromInt(2000),
		StopLoss:               decimal.NewFromFloat(-0.30),
		TakeProfit:             decimal.NewFromInt(1),
	}
}

// Validate rejects parameter sets that would make the policy meaningless.
func (p Parameters) Validate() error {
	if p.ReserveFloor.IsNegative() {
		return errors.New("risk.reserve_floor must be >= 0")
	}
	if !p.MaxPositionFraction.IsPositive() || p.MaxPositionFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("risk.max_position_fraction must be in (0, 1], got %s", p.MaxPositionFraction)
	}
	if !p.TargetPositionFraction.IsPositive() {
		return errors.New("risk.target_position_fraction must be > 0")
	}
	if !p.MaxPositionValue.IsPositive() {
		return errors.New("risk.max_position_value must be > 0")
	}
	if p.BuyConfidence < 0 || p.BuyConfidence > 100 {
		return fmt.Errorf("risk.buy_confidence must be in [0, 100], got %v", p.BuyConfidence)
	}
	if p.HoldConfidence < 0 || p.HoldConfidence > 100 {
		return fmt.Errorf("risk.hold_confidence must be in [0, 100], got %v", p.HoldConfidence)
	}
	if p.FeeRate.IsNegative() || p.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("risk.fee_rate must be in [0, 1), got %s", p.FeeRate)
	}
	if !p.MaxDrawdown.IsPositive() {
		return errors.New("risk.max_drawdown must be > 0")
	}
	if !p.StopLoss.IsNegative() {
		return fmt.Errorf("risk.stop_loss must be negative, got %s", p.StopLoss)
	}
	if !p.TakeProfit.IsPositive() {
		return fmt.Errorf("risk.take_profit must be positive, got %s", p.TakeProfit)
	}
	return nil
}
