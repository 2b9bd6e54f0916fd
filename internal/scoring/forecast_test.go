package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/mixh8/Truth-Bench/internal/model"
)

func vote(ticker string, side model.Side, conf float64) model.Prediction {
	return model.Prediction{Ticker: ticker, Vote: side, Confidence: conf}
}

func TestProbabilityYes(t *testing.T) {
	tests := []struct {
		pred model.Prediction
		want float64
	}{
		{vote("T", model.SideYes, 80), 0.8},
		{vote("T", model.SideNo, 70), 0.3},
		{vote("T", model.SideNo, 0), 1},
	}
	for _, tt := range tests {
		if got := ProbabilityYes(tt.pred); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("ProbabilityYes(%s %v) = %v, want %v", tt.pred.Vote, tt.pred.Confidence, got, tt.want)
		}
	}
}

func TestForecastBook_Calibration(t *testing.T) {
	book := NewForecastBook()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// The latest forecast before resolution is the one scored.
	book.Record("a", vote("T1", model.SideYes, 20), at)
	book.Record("a", vote("T1", model.SideYes, 80), at.Add(time.Hour))
	book.Record("a", vote("T2", model.SideNo, 70), at)
	book.Record("b", vote("T3", model.SideYes, 90), at)

	if n := book.Resolve("T1", model.ResultYes); n != 1 {
		t.Fatalf("expected 1 forecast scored on T1, got %d", n)
	}
	if n := book.Resolve("T2", model.ResultYes); n != 1 {
		t.Fatalf("expected 1 forecast scored on T2, got %d", n)
	}
	if n := book.Resolve("T1", model.ResultYes); n != 0 {
		t.Errorf("expected repeat resolve to score nothing, got %d", n)
	}
	book.Record("a", vote("T1", model.SideYes, 10), at.Add(2*time.Hour))

	// (0.8-1)² = 0.04, (0.3-1)² = 0.49
	cal := book.Calibration("a")
	if math.Abs(cal.Brier-0.265) > 1e-9 {
		t.Errorf("expected brier 0.265, got %v", cal.Brier)
	}
	if cal.Accuracy != 0.5 || cal.Resolved != 2 {
		t.Errorf("expected accuracy 0.5 over 2, got %v over %d", cal.Accuracy, cal.Resolved)
	}
	if book.Pending() != 1 {
		t.Errorf("expected T3 still pending, got %d", book.Pending())
	}
}

func TestForecastBook_Baselines(t *testing.T) {
	book := NewForecastBook()
	book.Record("a", vote("T1", model.SideYes, 90), time.Now())
	book.Resolve("T1", "")

	for name, b := range map[string]*ForecastBook{"empty": book, "nil": nil} {
		cal := b.Calibration("a")
		if cal.Brier != BaselineBrier || cal.Accuracy != BaselineAccuracy || cal.Resolved != 0 {
			t.Errorf("%s: expected baselines, got %+v", name, cal)
		}
	}
}

func TestLeaderboard_IncludesCalibration(t *testing.T) {
	book := NewForecastBook()
	book.Record("a", vote("T1", model.SideNo, 100), time.Now())
	book.Resolve("T1", model.ResultNo)

	board := Leaderboard([]model.Portfolio{
		{ModelID: "a", InitialCapital: d(10000), TotalValue: d(10000)},
		{ModelID: "b", InitialCapital: d(10000), TotalValue: d(9000)},
	}, HourlyPeriods, book)

	if board[0].Brier != 0 || board[0].Accuracy != 1 || board[0].Resolved != 1 {
		t.Errorf("expected perfect calibration for a, got %+v", board[0].Calibration)
	}
	if board[1].Brier != BaselineBrier {
		t.Errorf("expected baseline brier for b, got %v", board[1].Brier)
	}
}
