// Package predict is the boundary to the external prediction oracle that
// turns a batch of markets into per-ticker votes.
package predict

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// Gateway returns predictions for markets on behalf of one model. A ticker
// with no prediction means "no signal", not an error.
type Gateway interface {
	Predict(ctx context.Context, modelID string, markets []model.Market) ([]model.Prediction, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, modelID string, markets []model.Market) ([]model.Prediction, error)

// Predict calls f.
func (f GatewayFunc) Predict(ctx context.Context, modelID string, markets []model.Market) ([]model.Prediction, error) {
	return f(ctx, modelID, markets)
}

// Sanitize validates raw oracle output against the requested markets. It
// drops predictions for tickers that were not requested, votes other than
// YES or NO, confidences outside 0..100 and repeated tickers (first wins).
func Sanitize(raw []model.Prediction, requested []model.Market, logger *slog.Logger) []model.Prediction {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(requested))
	for _, m := range requested {
		allowed[m.Ticker] = struct{}{}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]model.Prediction, 0, len(raw))
	for _, p := range raw {
		p.Vote = model.Side(strings.ToUpper(strings.TrimSpace(string(p.Vote))))
		switch {
		case !hasKey(allowed, p.Ticker):
			logger.Warn("dropping prediction for unrequested ticker", "ticker", p.Ticker)
			continue
		case !p.Vote.Valid():
			logger.Warn("dropping prediction with invalid vote", "ticker", p.Ticker, "vote", p.Vote)
			continue
		case math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 100:
			logger.Warn("dropping prediction with invalid confidence", "ticker", p.Ticker, "confidence", p.Confidence)
			continue
		case hasKey(seen, p.Ticker):
			continue
		}
		seen[p.Ticker] = struct{}{}
		out = append(out, p)
	}
	return out
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
