package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func history(values ...float64) []model.ValuePoint {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.ValuePoint, 0, len(values))
	for i, v := range values {
		out = append(out, model.ValuePoint{Time: base.Add(time.Duration(i) * time.Hour), Value: d(v)})
	}
	return out
}

func TestROI(t *testing.T) {
	pf := model.Portfolio{InitialCapital: d(10000), TotalValue: d(10500)}
	if got := ROI(pf); !got.Equal(d(0.05)) {
		t.Errorf("expected ROI 0.05, got %s", got)
	}
	if got := ROI(model.Portfolio{TotalValue: d(5)}); !got.IsZero() {
		t.Errorf("expected zero ROI without capital, got %s", got)
	}
}

func TestWinRate(t *testing.T) {
	if got := WinRate(model.Portfolio{ClosedTrades: 4, WinningTrades: 3}); got != 0.75 {
		t.Errorf("expected 0.75, got %v", got)
	}
	if got := WinRate(model.Portfolio{}); got != 0 {
		t.Errorf("expected 0 with no trades, got %v", got)
	}
}

func TestSharpe(t *testing.T) {
	if got := Sharpe(history(100, 110), HourlyPeriods); got != 0 {
		t.Errorf("expected 0 with one return, got %v", got)
	}
	if got := Sharpe(history(100, 100, 100), HourlyPeriods); got != 0 {
		t.Errorf("expected 0 with zero variance, got %v", got)
	}

	// returns 0.10 and -0.10: mean 0
	if got := Sharpe(history(100, 110, 99), 1); math.Abs(got) > 1e-9 {
		t.Errorf("expected ~0 for symmetric returns, got %v", got)
	}

	// returns 0.02 and 0.04: mean 0.03, sample std 0.01414
	got := Sharpe(history(100, 102, 106.08), 1)
	want := 0.03 / math.Sqrt(0.0002)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMaxDrawdown(t *testing.T) {
	got := MaxDrawdown(history(100, 120, 90, 110, 60, 130))
	if !got.Equal(d(0.5)) {
		t.Errorf("expected drawdown 0.5, got %s", got)
	}
	if got := MaxDrawdown(nil); !got.IsZero() {
		t.Errorf("expected zero for empty history, got %s", got)
	}
}

func TestLeaderboard_Order(t *testing.T) {
	pfs := []model.Portfolio{
		{ModelID: "b", InitialCapital: d(10000), TotalValue: d(10000)},
		{ModelID: "c", InitialCapital: d(10000), TotalValue: d(12000)},
		{ModelID: "a", InitialCapital: d(10000), TotalValue: d(10000)},
	}

	board := Leaderboard(pfs, HourlyPeriods, nil)
	if len(board) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(board))
	}
	order := []string{board[0].ModelID, board[1].ModelID, board[2].ModelID}
	if order[0] != "c" || order[1] != "a" || order[2] != "b" {
		t.Errorf("expected [c a b], got %v", order)
	}
	if board[0].Rank != 1 || board[2].Rank != 3 {
		t.Errorf("unexpected ranks: %d, %d", board[0].Rank, board[2].Rank)
	}
	if !board[0].ROI.Equal(d(0.2)) {
		t.Errorf("expected ROI 0.2, got %s", board[0].ROI)
	}
}
