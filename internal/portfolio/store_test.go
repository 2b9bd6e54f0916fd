package portfolio_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
	"github.com/mixh8/Truth-Bench/internal/portfolio"
	"github.com/mixh8/Truth-Bench/internal/risk"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newStore(t *testing.T, window int) *portfolio.Store {
	t.Helper()
	return portfolio.NewStore([]string{"beta", "alpha"}, d(10000), risk.NewPolicy(risk.DefaultParameters()), window)
}

func quote(ticker string, yes int) model.Market {
	return model.Market{Ticker: ticker, Title: ticker, YesPrice: yes, NoPrice: 100 - yes}
}

func TestNewStore_InitialState(t *testing.T) {
	s := newStore(t, 10)

	ids := s.ModelIDs()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "beta" {
		t.Fatalf("expected sorted [alpha beta], got %v", ids)
	}

	pf, err := s.Snapshot("alpha")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for name, v := range map[string]decimal.Decimal{"cash": pf.Cash, "total": pf.TotalValue, "peak": pf.PeakValue} {
		if !v.Equal(d(10000)) {
			t.Errorf("expected %s=10000, got %s", name, v)
		}
	}
}

func TestExecute_WorkedScenario(t *testing.T) {
	s := newStore(t, 10)
	now := time.Now()

	// Buy 100 YES of T1 at 40¢ with a 0.1% fee.
	fill, err := s.Execute("alpha", portfolio.Order{
		Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes,
		Contracts: 100, PriceCents: 40, At: now,
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !fill.Amount.Equal(d(40.04)) {
		t.Errorf("expected cost 40.04, got %s", fill.Amount)
	}
	if !fill.CashAfter.Equal(d(9959.96)) {
		t.Errorf("expected cash 9959.96, got %s", fill.CashAfter)
	}

	// Next tick: T1 at 80¢.
	v, err := s.Revalue("alpha", map[string]model.Market{"T1": quote("T1", 80)})
	if err != nil {
		t.Fatalf("revalue: %v", err)
	}
	if !v.TotalValue.Equal(d(10039.96)) {
		t.Errorf("expected total 10039.96, got %s", v.TotalValue)
	}

	// Next tick: T1 at 85¢ and the position is sold.
	fill, err = s.Execute("alpha", portfolio.Order{Action: model.ActionSell, Ticker: "T1", PriceCents: 85, At: now})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !fill.Amount.Equal(d(84.915)) {
		t.Errorf("expected proceeds 84.915, got %s", fill.Amount)
	}
	if fill.Profit == nil || !fill.Profit.Equal(d(44.875)) {
		t.Errorf("expected profit 44.875, got %v", fill.Profit)
	}
	if !fill.CashAfter.Equal(d(10044.875)) {
		t.Errorf("expected cash 10044.875, got %s", fill.CashAfter)
	}

	pf, _ := s.Snapshot("alpha")
	if len(pf.Positions) != 0 {
		t.Errorf("expected no positions after sell, got %d", len(pf.Positions))
	}
	if pf.TradesThisSession != 2 || pf.ClosedTrades != 1 || pf.WinningTrades != 1 {
		t.Errorf("unexpected counters: %+v", pf)
	}
}

func TestExecute_DuplicateBuyRejected(t *testing.T) {
	s := newStore(t, 10)
	order := portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes, Contracts: 10, PriceCents: 50}

	if _, err := s.Execute("alpha", order); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := s.Execute("alpha", order); !errors.Is(err, portfolio.ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}

	pf, _ := s.Snapshot("alpha")
	if len(pf.Positions) != 1 {
		t.Errorf("expected exactly one position, got %d", len(pf.Positions))
	}
	if !pf.Cash.Equal(d(10000).Sub(d(5.005))) {
		t.Errorf("rejected buy must not touch cash, got %s", pf.Cash)
	}
}

func TestExecute_InvalidOrders(t *testing.T) {
	s := newStore(t, 10)

	tests := []struct {
		name  string
		order portfolio.Order
		want  error
	}{
		{"zero contracts", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes, PriceCents: 50}, portfolio.ErrInvalidOrder},
		{"zero price", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes, Contracts: 1}, portfolio.ErrInvalidOrder},
		{"bad side", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: "MAYBE", Contracts: 1, PriceCents: 50}, portfolio.ErrInvalidOrder},
		{"too expensive", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes, Contracts: 100000, PriceCents: 50}, portfolio.ErrInsufficientCash},
		{"sell without position", portfolio.Order{Action: model.ActionSell, Ticker: "T9", PriceCents: 50}, portfolio.ErrNoPosition},
		{"hold is not executable", portfolio.Order{Action: model.ActionHold, Ticker: "T1"}, portfolio.ErrUnsupportedAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Execute("alpha", tt.order); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := s.Execute("nobody", portfolio.Order{Action: model.ActionBuy}); !errors.Is(err, portfolio.ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

func TestRevalue_MissingQuoteMarksAtCost(t *testing.T) {
	s := newStore(t, 10)
	s.Execute("alpha", portfolio.Order{Action: model.ActionBuy, Ticker: "NICHE", Side: model.SideNo, Contracts: 10, PriceCents: 30})

	v, err := s.Revalue("alpha", map[string]model.Market{})
	if err != nil {
		t.Fatalf("revalue: %v", err)
	}
	if len(v.Unpriced) != 1 || v.Unpriced[0] != "NICHE" {
		t.Errorf("expected NICHE unpriced, got %v", v.Unpriced)
	}
	// cash 10000 - 3.003 + 10 × 0.30 = 9999.997
	if !v.TotalValue.Equal(d(9999.997)) {
		t.Errorf("expected 9999.997, got %s", v.TotalValue)
	}
}

func TestRevalue_NoSideUsesNoPrice(t *testing.T) {
	s := newStore(t, 10)
	s.Execute("alpha", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideNo, Contracts: 100, PriceCents: 30})

	// YES at 60 → NO at 40.
	v, _ := s.Revalue("alpha", map[string]model.Market{"T1": quote("T1", 60)})
	want := d(10000).Sub(d(30.03)).Add(d(40))
	if !v.TotalValue.Equal(want) {
		t.Errorf("expected %s, got %s", want, v.TotalValue)
	}
}

func TestRevalue_ResolvedMarketMarksAtSettlement(t *testing.T) {
	s := newStore(t, 10)
	s.Execute("alpha", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes, Contracts: 100, PriceCents: 30})

	m := quote("T1", 55)
	m.Result = model.ResultYes
	v, _ := s.Revalue("alpha", map[string]model.Market{"T1": m})
	want := d(10000).Sub(d(30.03)).Add(d(100))
	if !v.TotalValue.Equal(want) {
		t.Errorf("expected %s, got %s", want, v.TotalValue)
	}
}

func TestExecute_SettlementPaysWithoutFee(t *testing.T) {
	s := newStore(t, 10)
	s.Execute("alpha", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes, Contracts: 100, PriceCents: 30})
	s.Execute("alpha", portfolio.Order{Action: model.ActionBuy, Ticker: "T2", Side: model.SideNo, Contracts: 100, PriceCents: 30})

	win, err := s.Execute("alpha", portfolio.Order{Action: model.ActionSell, Ticker: "T1", PriceCents: 100, Settle: true})
	if err != nil {
		t.Fatalf("settle T1: %v", err)
	}
	if !win.Amount.Equal(d(100)) || !win.Profit.Equal(d(69.97)) {
		t.Errorf("expected proceeds 100 profit 69.97, got %s / %s", win.Amount, win.Profit)
	}

	loss, err := s.Execute("alpha", portfolio.Order{Action: model.ActionSell, Ticker: "T2", PriceCents: 0, Settle: true})
	if err != nil {
		t.Fatalf("settle T2: %v", err)
	}
	if !loss.Amount.IsZero() || !loss.Profit.Equal(d(-30.03)) {
		t.Errorf("expected proceeds 0 profit -30.03, got %s / %s", loss.Amount, loss.Profit)
	}

	pf, _ := s.Snapshot("alpha")
	// 10000 - 2 × 30.03 + 100
	if !pf.Cash.Equal(d(10039.94)) {
		t.Errorf("expected cash 10039.94, got %s", pf.Cash)
	}
	if pf.ClosedTrades != 2 || pf.WinningTrades != 1 {
		t.Errorf("expected 2 closed / 1 winning, got %d / %d", pf.ClosedTrades, pf.WinningTrades)
	}
}

func TestCheckpoint_PeakAndBoundedHistory(t *testing.T) {
	s := newStore(t, 3)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, delta := range []float64{100, -300, 50, 400} {
		s.AdjustCash("alpha", d(delta))
		s.Revalue("alpha", nil)
		pf, err := s.Checkpoint("alpha", base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("checkpoint: %v", err)
		}
		if pf.PeakValue.LessThan(pf.TotalValue) {
			t.Fatalf("peak %s below total %s", pf.PeakValue, pf.TotalValue)
		}
	}

	pf, _ := s.Snapshot("alpha")
	if len(pf.ValueHistory) != 3 {
		t.Fatalf("expected history bounded to 3, got %d", len(pf.ValueHistory))
	}
	if !pf.ValueHistory[0].Time.Equal(base.Add(time.Minute)) {
		t.Errorf("oldest entry should be evicted first, got %v", pf.ValueHistory[0].Time)
	}
	// 10000 → 10100 → 9800 → 9850 → 10250.
	if !pf.PeakValue.Equal(d(10250)) {
		t.Errorf("expected peak 10250, got %s", pf.PeakValue)
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := newStore(t, 10)
	s.Execute("alpha", portfolio.Order{Action: model.ActionBuy, Ticker: "T1", Side: model.SideYes, Contracts: 10, PriceCents: 50})

	pf, _ := s.Snapshot("alpha")
	pf.Positions["T1"].Contracts = 999
	delete(pf.Positions, "T1")

	again, _ := s.Snapshot("alpha")
	if again.Positions["T1"] == nil || again.Positions["T1"].Contracts != 10 {
		t.Errorf("snapshot mutation leaked into store: %+v", again.Positions["T1"])
	}
}
