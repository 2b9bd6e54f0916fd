// Package store defines the persistence boundary for portfolio snapshots and
// the trade audit trail. Implementations include PostgreSQL, SQLite, Redis
// (read-through cache) and in-memory (for testing).
//
// The in-memory portfolio store stays authoritative; nothing here is read
// back into a running tick.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// MaxRecentEvents caps ReadRecentEvents.
const MaxRecentEvents = 500

var ErrInvalidLimit = errors.New("store: limit must be positive")

// Store is the persistence interface. Calls are independent; no transaction
// spans more than one of them.
type Store interface {
	// UpsertPortfolioSnapshot replaces the stored summary of one model.
	UpsertPortfolioSnapshot(ctx context.Context, modelID string, totalValue decimal.Decimal, history []model.ValuePoint) error

	// AppendTradeEvent adds an immutable audit record.
	AppendTradeEvent(ctx context.Context, event *model.TradeEvent) error

	// ReadAllModels returns every stored model summary ordered by model id.
	ReadAllModels(ctx context.Context) ([]model.ModelRecord, error)

	// ReadRecentEvents returns up to limit events, newest first.
	ReadRecentEvents(ctx context.Context, limit int) ([]model.TradeEvent, error)
}

func clampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidLimit
	}
	if limit > MaxRecentEvents {
		return MaxRecentEvents, nil
	}
	return limit, nil
}
