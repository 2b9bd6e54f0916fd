package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for the
// dashboard's read paths. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertPortfolioSnapshot(ctx context.Context, modelID string, totalValue decimal.Decimal, history []model.ValuePoint) error {
	if err := s.primary.UpsertPortfolioSnapshot(ctx, modelID, totalValue, history); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, modelsKey())
	return nil
}

func (s *CachedStore) AppendTradeEvent(ctx context.Context, event *model.TradeEvent) error {
	if err := s.primary.AppendTradeEvent(ctx, event); err != nil {
		return err
	}
	s.rdb.Del(ctx, eventsKey())
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ReadAllModels(ctx context.Context) ([]model.ModelRecord, error) {
	data, err := s.rdb.Get(ctx, modelsKey()).Bytes()
	if err == nil {
		var records []model.ModelRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	// Cache miss: read from primary.
	records, err := s.primary.ReadAllModels(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		s.rdb.Set(ctx, modelsKey(), data, s.ttl)
	}
	return records, nil
}

// ReadRecentEvents caches the newest MaxRecentEvents events once and serves
// every smaller limit from that list.
func (s *CachedStore) ReadRecentEvents(ctx context.Context, limit int) ([]model.TradeEvent, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	data, err := s.rdb.Get(ctx, eventsKey()).Bytes()
	if err == nil {
		var events []model.TradeEvent
		if json.Unmarshal(data, &events) == nil {
			return events[:min(limit, len(events))], nil
		}
	}

	// Cache miss.
	events, err := s.primary.ReadRecentEvents(ctx, MaxRecentEvents)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, eventsKey(), data, s.ttl)
	}
	return events[:min(limit, len(events))], nil
}

// --- Cache helpers ---

func modelsKey() string { return "truthbench:models" }
func eventsKey() string { return fmt.Sprintf("truthbench:events:recent:%d", MaxRecentEvents) }
