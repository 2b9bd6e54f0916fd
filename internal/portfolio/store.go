// Package portfolio owns the mutable state of every model's book: cash, open
// positions, value history and the high-water mark.
//
// The store is built once at startup for a fixed set of models and handed to
// the coordinator by reference. Each model has exactly one writer per tick;
// the per-entry mutex only guards concurrent readers such as the status API.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
	"github.com/mixh8/Truth-Bench/internal/risk"
)

var (
	ErrUnknownModel = errors.New("portfolio: unknown model")

	// ErrDuplicatePosition signals a broken single-writer invariant: a buy
	// for a ticker the portfolio already holds.
	ErrDuplicatePosition = errors.New("portfolio: position already open for ticker")

	ErrNoPosition        = errors.New("portfolio: no open position for ticker")
	ErrInvalidOrder      = errors.New("portfolio: invalid order")
	ErrInsufficientCash  = errors.New("portfolio: insufficient cash")
	ErrUnsupportedAction = errors.New("portfolio: unsupported action")
)

// Order is an approved action to apply to one portfolio.
type Order struct {
	Action     model.Action
	Ticker     string
	Title      string
	Side       model.Side
	Contracts  int // buys only; sells always close the full position
	PriceCents int
	CloseTime  *time.Time
	At         time.Time
	// Settle closes at the resolution payout without the exit fee.
	Settle bool
}

// Fill is the result of an executed order.
type Fill struct {
	Action     model.Action
	Ticker     string
	Side       model.Side
	Contracts  int
	PriceCents int
	Amount     decimal.Decimal  // cost for buys, proceeds for sells
	Profit     *decimal.Decimal // sells only
	CashAfter  decimal.Decimal
}

// Valuation is the outcome of a revaluation.
type Valuation struct {
	TotalValue decimal.Decimal
	// Unpriced lists tickers marked at entry price because no quote existed.
	Unpriced []string
}

type entry struct {
	mu sync.Mutex
	pf model.Portfolio
}

// Store is the in-memory map of model portfolios.
type Store struct {
	entries       map[string]*entry
	ids           []string
	policy        *risk.Policy
	historyWindow int
}

// NewStore creates one portfolio per model with cash, peak and total value
// all equal to initialCapital.
func NewStore(modelIDs []string, initialCapital decimal.Decimal, policy *risk.Policy, historyWindow int) *Store {
	if historyWindow < 1 {
		historyWindow = 1
	}
	s := &Store{
		entries:       make(map[string]*entry, len(modelIDs)),
		policy:        policy,
		historyWindow: historyWindow,
	}
	for _, id := range modelIDs {
		if _, dup := s.entries[id]; dup {
			continue
		}
		s.entries[id] = &entry{pf: model.Portfolio{
			ModelID:        id,
			Cash:           initialCapital,
			Positions:      make(map[string]*model.Position),
			InitialCapital: initialCapital,
			TotalValue:     initialCapital,
			PeakValue:      initialCapital,
		}}
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)
	return s
}

// ModelIDs returns the known models in stable order.
func (s *Store) ModelIDs() []string {
	return append([]string(nil), s.ids...)
}

// Snapshot returns a deep copy of one portfolio.
func (s *Store) Snapshot(modelID string) (model.Portfolio, error) {
	e, err := s.entry(modelID)
	if err != nil {
		return model.Portfolio{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pf.Clone(), nil
}

// Snapshots returns deep copies of every portfolio in stable order.
func (s *Store) Snapshots() []model.Portfolio {
	out := make([]model.Portfolio, 0, len(s.ids))
	for _, id := range s.ids {
		pf, _ := s.Snapshot(id)
		out = append(out, pf)
	}
	return out
}

// Execute applies an order. It is the only trade mutation entry point and
// must not be called concurrently for the same model.
func (s *Store) Execute(modelID string, o Order) (Fill, error) {
	e, err := s.entry(modelID)
	if err != nil {
		return Fill{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch o.Action {
	case model.ActionBuy:
		return s.buy(&e.pf, o)
	case model.ActionSell:
		return s.sell(&e.pf, o)
	default:
		return Fill{}, fmt.Errorf("%w: %s", ErrUnsupportedAction, o.Action)
	}
}

func (s *Store) buy(pf *model.Portfolio, o Order) (Fill, error) {
	if o.Ticker == "" || !o.Side.Valid() || o.Contracts <= 0 || o.PriceCents <= 0 || o.PriceCents > 100 {
		return Fill{}, fmt.Errorf("%w: buy %d %s %s @ %d", ErrInvalidOrder, o.Contracts, o.Side, o.Ticker, o.PriceCents)
	}
	if _, held := pf.Positions[o.Ticker]; held {
		return Fill{}, fmt.Errorf("%w: %s", ErrDuplicatePosition, o.Ticker)
	}

	cost := s.policy.Cost(o.PriceCents, o.Contracts)
	if cost.GreaterThan(pf.Cash) {
		return Fill{}, fmt.Errorf("%w: cost %s cash %s", ErrInsufficientCash, cost, pf.Cash)
	}

	pf.Cash = pf.Cash.Sub(cost)
	pf.Positions[o.Ticker] = &model.Position{
		Ticker:     o.Ticker,
		Title:      o.Title,
		Side:       o.Side,
		Contracts:  o.Contracts,
		EntryPrice: o.PriceCents,
		Cost:       cost,
		OpenedAt:   o.At,
		CloseTime:  o.CloseTime,
	}
	pf.TradesThisSession++

	return Fill{
		Action:     model.ActionBuy,
		Ticker:     o.Ticker,
		Side:       o.Side,
		Contracts:  o.Contracts,
		PriceCents: o.PriceCents,
		Amount:     cost,
		CashAfter:  pf.Cash,
	}, nil
}

func (s *Store) sell(pf *model.Portfolio, o Order) (Fill, error) {
	pos, held := pf.Positions[o.Ticker]
	if !held {
		return Fill{}, fmt.Errorf("%w: %s", ErrNoPosition, o.Ticker)
	}
	// Settlement can pay 0¢; quotes above 100¢ are never valid.
	if o.PriceCents < 0 || o.PriceCents > 100 {
		return Fill{}, fmt.Errorf("%w: sell %s @ %d", ErrInvalidOrder, o.Ticker, o.PriceCents)
	}

	proceeds := s.policy.Proceeds(o.PriceCents, pos.Contracts)
	if o.Settle {
		proceeds = pos.MarketValue(o.PriceCents)
	}
	profit := proceeds.Sub(pos.Cost)

	pf.Cash = pf.Cash.Add(proceeds)
	delete(pf.Positions, o.Ticker)
	pf.TradesThisSession++
	pf.ClosedTrades++
	if profit.IsPositive() {
		pf.WinningTrades++
	}
	pf.RealizedProfit = pf.RealizedProfit.Add(profit)

	return Fill{
		Action:     model.ActionSell,
		Ticker:     o.Ticker,
		Side:       pos.Side,
		Contracts:  pos.Contracts,
		PriceCents: o.PriceCents,
		Amount:     proceeds,
		Profit:     &profit,
		CashAfter:  pf.Cash,
	}, nil
}

// Revalue recomputes total value as cash plus every open position marked at
// its quote. Resolved markets mark at settlement. A position with no quote
// anywhere is marked at its entry price and reported in Unpriced.
func (s *Store) Revalue(modelID string, quotes map[string]model.Market) (Valuation, error) {
	e, err := s.entry(modelID)
	if err != nil {
		return Valuation{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var v Valuation
	total := e.pf.Cash
	for ticker, pos := range e.pf.Positions {
		price := pos.EntryPrice
		if m, ok := quotes[ticker]; ok {
			if settled, ok := m.SettlementPrice(pos.Side); ok {
				price = settled
			} else {
				price = m.PriceFor(pos.Side)
			}
		} else {
			v.Unpriced = append(v.Unpriced, ticker)
		}
		total = total.Add(pos.MarketValue(price))
	}
	sort.Strings(v.Unpriced)

	e.pf.TotalValue = total
	v.TotalValue = total
	return v, nil
}

// Checkpoint advances the peak and appends total value to the bounded
// history. Call once per tick, after Revalue.
func (s *Store) Checkpoint(modelID string, at time.Time) (model.Portfolio, error) {
	e, err := s.entry(modelID)
	if err != nil {
		return model.Portfolio{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pf.PeakValue = risk.NextPeak(e.pf.PeakValue, e.pf.TotalValue)
	e.pf.ValueHistory = append(e.pf.ValueHistory, model.ValuePoint{Time: at, Value: e.pf.TotalValue})
	if over := len(e.pf.ValueHistory) - s.historyWindow; over > 0 {
		e.pf.ValueHistory = append([]model.ValuePoint(nil), e.pf.ValueHistory[over:]...)
	}
	return e.pf.Clone(), nil
}

// AdjustCash moves cash by delta without a trade. Used by the simulated
// random-walk mode.
func (s *Store) AdjustCash(modelID string, delta decimal.Decimal) error {
	e, err := s.entry(modelID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pf.Cash = e.pf.Cash.Add(delta)
	return nil
}

func (s *Store) entry(modelID string) (*entry, error) {
	e, ok := s.entries[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return e, nil
}
