package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS model_portfolios (
	model_id      TEXT PRIMARY KEY,
	total_value   NUMERIC NOT NULL,
	value_history JSONB NOT NULL DEFAULT '[]',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trade_events (
	id              UUID PRIMARY KEY,
	model_id        TEXT NOT NULL,
	ticker          TEXT NOT NULL,
	market_title    TEXT NOT NULL,
	action          TEXT NOT NULL,
	side            TEXT NOT NULL,
	contracts       INTEGER NOT NULL,
	price_cents     INTEGER NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	reason          TEXT NOT NULL,
	reasoning       TEXT NOT NULL,
	realized_profit NUMERIC,
	timestamp       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS trade_events_timestamp_idx ON trade_events (timestamp DESC);
`

// PostgresStore implements Store using PostgreSQL.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertPortfolioSnapshot(ctx context.Context, modelID string, totalValue decimal.Decimal, history []model.ValuePoint) error {
	if history == nil {
		history = []model.ValuePoint{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO model_portfolios (model_id, total_value, value_history, updated_at)
		 VALUES ($1, $2::NUMERIC, $3::JSONB, now())
		 ON CONFLICT (model_id) DO UPDATE
		 SET total_value = EXCLUDED.total_value,
		     value_history = EXCLUDED.value_history,
		     updated_at = EXCLUDED.updated_at`,
		modelID, totalValue.String(), string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert portfolio %s: %w", modelID, err)
	}
	return nil
}

func (s *PostgresStore) AppendTradeEvent(ctx context.Context, e *model.TradeEvent) error {
	var profit *string
	if e.RealizedProfit != nil {
		p := e.RealizedProfit.String()
		profit = &p
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_events (id, model_id, ticker, market_title, action, side, contracts,
		                           price_cents, confidence, reason, reasoning, realized_profit, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::NUMERIC, $13)`,
		e.ID, e.ModelID, e.Ticker, e.MarketTitle, string(e.Action), string(e.Side), e.Contracts,
		e.PriceCents, e.Confidence, e.Reason, e.Reasoning, profit, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) ReadAllModels(ctx context.Context) ([]model.ModelRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT model_id, total_value::TEXT, value_history::TEXT, updated_at
		 FROM model_portfolios ORDER BY model_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ModelRecord
	for rows.Next() {
		var r model.ModelRecord
		var total, history string
		if err := rows.Scan(&r.ModelID, &total, &history, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.TotalValue, _ = decimal.NewFromString(total)
		if err := json.Unmarshal([]byte(history), &r.ValueHistory); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", r.ModelID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) ReadRecentEvents(ctx context.Context, limit int) ([]model.TradeEvent, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, model_id, ticker, market_title, action, side, contracts,
		        price_cents, confidence, reason, reasoning, realized_profit::TEXT, timestamp
		 FROM trade_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.TradeEvent
	for rows.Next() {
		var e model.TradeEvent
		var action, side string
		var profit *string
		if err := rows.Scan(&e.ID, &e.ModelID, &e.Ticker, &e.MarketTitle, &action, &side, &e.Contracts,
			&e.PriceCents, &e.Confidence, &e.Reason, &e.Reasoning, &profit, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Action = model.Action(action)
		e.Side = model.Side(side)
		if profit != nil {
			p, _ := decimal.NewFromString(*profit)
			e.RealizedProfit = &p
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
