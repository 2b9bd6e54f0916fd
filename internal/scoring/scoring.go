// Package scoring ranks model portfolios by trading performance and
// forecast calibration.
package scoring

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// HourlyPeriods annualises returns sampled once per hour.
const HourlyPeriods = 24 * 365

// Score is one leaderboard row.
type Score struct {
	Rank           int             `json:"rank"`
	ModelID        string          `json:"model_id"`
	TotalValue     decimal.Decimal `json:"total_value"`
	ROI            decimal.Decimal `json:"roi"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	ClosedTrades   int             `json:"closed_trades"`
	WinRate        float64         `json:"win_rate"`
	Sharpe         float64         `json:"sharpe"`
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`
	OpenPositions  int             `json:"open_positions"`
	Calibration
}

// ROI is (total - initial) / initial, or zero without capital.
func ROI(pf model.Portfolio) decimal.Decimal {
	if !pf.InitialCapital.IsPositive() {
		return decimal.Zero
	}
	return pf.TotalValue.Sub(pf.InitialCapital).Div(pf.InitialCapital)
}

// WinRate is the share of closed trades with positive profit.
func WinRate(pf model.Portfolio) float64 {
	if pf.ClosedTrades == 0 {
		return 0
	}
	return float64(pf.WinningTrades) / float64(pf.ClosedTrades)
}

// Sharpe computes the annualised Sharpe ratio of period returns over the
// value history with a zero risk-free rate. It is zero with fewer than two
// returns or no variance.
func Sharpe(history []model.ValuePoint, periodsPerYear float64) float64 {
	returns := make([]float64, 0, len(history))
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Value.InexactFloat64()
		if prev <= 0 {
			continue
		}
		returns = append(returns, (history[i].Value.InexactFloat64()-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// MaxDrawdown is the largest peak-to-trough decline over history as a
// fraction of the peak.
func MaxDrawdown(history []model.ValuePoint) decimal.Decimal {
	worst := decimal.Zero
	peak := decimal.Zero
	for _, p := range history {
		if p.Value.GreaterThan(peak) {
			peak = p.Value
		}
		if !peak.IsPositive() {
			continue
		}
		if dd := peak.Sub(p.Value).Div(peak); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}

// Evaluate scores one portfolio. book may be nil.
func Evaluate(pf model.Portfolio, periodsPerYear float64, book *ForecastBook) Score {
	return Score{
		ModelID:        pf.ModelID,
		TotalValue:     pf.TotalValue,
		ROI:            ROI(pf),
		RealizedProfit: pf.RealizedProfit,
		ClosedTrades:   pf.ClosedTrades,
		WinRate:        WinRate(pf),
		Sharpe:         Sharpe(pf.ValueHistory, periodsPerYear),
		MaxDrawdown:    MaxDrawdown(pf.ValueHistory),
		OpenPositions:  len(pf.Positions),
		Calibration:    book.Calibration(pf.ModelID),
	}
}

// Leaderboard ranks portfolios by total value, highest first, ties broken
// by model id. book may be nil.
func Leaderboard(portfolios []model.Portfolio, periodsPerYear float64, book *ForecastBook) []Score {
	scores := make([]Score, 0, len(portfolios))
	for _, pf := range portfolios {
		scores = append(scores, Evaluate(pf, periodsPerYear, book))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if c := scores[i].TotalValue.Cmp(scores[j].TotalValue); c != 0 {
			return c > 0
		}
		return scores[i].ModelID < scores[j].ModelID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}
