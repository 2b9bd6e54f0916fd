package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]model.ModelRecord
	events []model.TradeEvent
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: make(map[string]model.ModelRecord),
		now:    time.Now,
	}
}

func (s *MemoryStore) UpsertPortfolioSnapshot(_ context.Context, modelID string, totalValue decimal.Decimal, history []model.ValuePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.models[modelID] = model.ModelRecord{
		ModelID:      modelID,
		TotalValue:   totalValue,
		ValueHistory: append([]model.ValuePoint(nil), history...),
		UpdatedAt:    s.now().UTC(),
	}
	return nil
}

func (s *MemoryStore) AppendTradeEvent(_ context.Context, event *model.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) ReadAllModels(_ context.Context) ([]model.ModelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]model.ModelRecord, 0, len(s.models))
	for _, r := range s.models {
		r.ValueHistory = append([]model.ValuePoint(nil), r.ValueHistory...)
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ModelID < records[j].ModelID
	})
	return records, nil
}

func (s *MemoryStore) ReadRecentEvents(_ context.Context, limit int) ([]model.TradeEvent, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(limit, len(s.events))
	result := make([]model.TradeEvent, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.events[i])
	}
	return result, nil
}
