// Package model defines the core domain types shared across the trading arena.
// Quotes are integer cents; all money is shopspring/decimal in dollars, never
// float64.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the outcome a contract pays out on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is YES or NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Action is the kind of decision recorded in the audit trail.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Settlement results reported by the feed for resolved markets.
const (
	ResultYes = "yes"
	ResultNo  = "no"
)

var (
	ErrInvalidMarket = errors.New("model: invalid market")

	centsPerDollar = decimal.NewFromInt(100)
)

// Market is an immutable quote snapshot of one tradable contract. A refresh
// replaces the whole set; markets are never patched in place.
type Market struct {
	Ticker    string     `json:"ticker"`
	Title     string     `json:"title"`
	YesPrice  int        `json:"yes_price"` // cents
	NoPrice   int        `json:"no_price"`  // cents, 100 - YesPrice
	CloseTime *time.Time `json:"close_time,omitempty"`
	Volume    int64      `json:"volume"`
	Result    string     `json:"result,omitempty"` // "yes", "no" or empty while unresolved
}

// Validate checks the boundary invariants of a quote.
func (m Market) Validate() error {
	if m.Ticker == "" {
		return fmt.Errorf("%w: empty ticker", ErrInvalidMarket)
	}
	if m.YesPrice < 0 || m.YesPrice > 100 {
		return fmt.Errorf("%w: %s yes price %d out of range", ErrInvalidMarket, m.Ticker, m.YesPrice)
	}
	if m.YesPrice+m.NoPrice != 100 {
		return fmt.Errorf("%w: %s prices %d/%d do not sum to 100", ErrInvalidMarket, m.Ticker, m.YesPrice, m.NoPrice)
	}
	return nil
}

// PriceFor returns the quoted price in cents for one side of the market.
func (m Market) PriceFor(side Side) int {
	if side == SideNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// ClosedAt reports whether the market's settlement deadline has passed.
func (m Market) ClosedAt(now time.Time) bool {
	return m.CloseTime != nil && !now.Before(*m.CloseTime)
}

// SettlementPrice returns the payout in cents for side once the market has
// resolved. ok is false while the market is unresolved.
func (m Market) SettlementPrice(side Side) (price int, ok bool) {
	switch m.Result {
	case ResultYes:
		if side == SideYes {
			return 100, true
		}
		return 0, true
	case ResultNo:
		if side == SideNo {
			return 100, true
		}
		return 0, true
	}
	return 0, false
}

// Position is a model's stake in one market. A portfolio holds at most one
// per ticker.
type Position struct {
	Ticker     string          `json:"ticker"`
	Title      string          `json:"title"`
	Side       Side            `json:"side"`
	Contracts  int             `json:"contracts"`
	EntryPrice int             `json:"entry_price"` // cents per contract
	Cost       decimal.Decimal `json:"cost"`        // dollars paid including fee
	OpenedAt   time.Time       `json:"opened_at"`
	CloseTime  *time.Time      `json:"close_time,omitempty"`
}

// MarketValue marks the position at priceCents.
func (p Position) MarketValue(priceCents int) decimal.Decimal {
	return Notional(priceCents, p.Contracts)
}

// ExpiredAt reports whether the copied close time has passed.
func (p Position) ExpiredAt(now time.Time) bool {
	return p.CloseTime != nil && !now.Before(*p.CloseTime)
}

// ValuePoint is one entry of a portfolio's value history.
type ValuePoint struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

// Portfolio is one model's cash and positions.
type Portfolio struct {
	ModelID           string               `json:"model_id"`
	Cash              decimal.Decimal      `json:"cash"`
	Positions         map[string]*Position `json:"positions"`
	InitialCapital    decimal.Decimal      `json:"initial_capital"`
	TotalValue        decimal.Decimal      `json:"total_value"`
	PeakValue         decimal.Decimal      `json:"peak_value"`
	ValueHistory      []ValuePoint         `json:"value_history"`
	TradesThisSession int                  `json:"trades_this_session"`
	ClosedTrades      int                  `json:"closed_trades"`
	WinningTrades     int                  `json:"winning_trades"`
	RealizedProfit    decimal.Decimal      `json:"realized_profit"`
}

// Clone returns a deep copy safe to hand to readers outside the owning task.
func (p *Portfolio) Clone() Portfolio {
	c := *p
	c.Positions = make(map[string]*Position, len(p.Positions))
	for k, pos := range p.Positions {
		cp := *pos
		c.Positions[k] = &cp
	}
	c.ValueHistory = append([]ValuePoint(nil), p.ValueHistory...)
	return c
}

// Prediction is one oracle signal for one ticker.
type Prediction struct {
	Ticker     string  `json:"ticker"`
	Vote       Side    `json:"vote"`
	Confidence float64 `json:"confidence"` // 0..100
	Reasoning  string  `json:"reasoning"`
}

// TradeEvent is an append-only audit record of one decision.
type TradeEvent struct {
	ID             string           `json:"id" db:"id"`
	ModelID        string           `json:"model_id" db:"model_id"`
	Ticker         string           `json:"ticker" db:"ticker"`
	MarketTitle    string           `json:"market_title" db:"market_title"`
	Action         Action           `json:"action" db:"action"`
	Side           Side             `json:"side" db:"side"`
	Contracts      int              `json:"contracts" db:"contracts"`
	PriceCents     int              `json:"price_cents" db:"price_cents"`
	Confidence     float64          `json:"confidence" db:"confidence"`
	Reason         string           `json:"reason" db:"reason"`
	Reasoning      string           `json:"reasoning" db:"reasoning"`
	RealizedProfit *decimal.Decimal `json:"realized_profit,omitempty" db:"realized_profit"`
	Timestamp      time.Time        `json:"timestamp" db:"timestamp"`
}

// ModelRecord is the persisted summary row for one model.
type ModelRecord struct {
	ModelID      string          `json:"model_id" db:"model_id"`
	TotalValue   decimal.Decimal `json:"total_value" db:"total_value"`
	ValueHistory []ValuePoint    `json:"value_history" db:"value_history"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Notional converts contracts at priceCents into dollars.
func Notional(priceCents, contracts int) decimal.Decimal {
	return decimal.NewFromInt(int64(priceCents)).
		Mul(decimal.NewFromInt(int64(contracts))).
		Div(centsPerDollar)
}

// CentsToDollars converts a per-contract price into dollars.
func CentsToDollars(priceCents int) decimal.Decimal {
	return decimal.NewFromInt(int64(priceCents)).Div(centsPerDollar)
}

// Snippet truncates reasoning text for the audit trail. A non-positive max
// drops the text.
func Snippet(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
