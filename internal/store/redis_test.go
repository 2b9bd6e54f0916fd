package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mixh8/Truth-Bench/internal/model"
	"github.com/mixh8/Truth-Bench/internal/store"
)

func seedEvents(t *testing.T, s store.Store, n int) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ev := &model.TradeEvent{
			ID:        fmt.Sprintf("ev-%d", i),
			ModelID:   "gpt",
			Action:    model.ActionHold,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendTradeEvent(context.Background(), ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

// An unreachable cache degrades every call to the primary store.
func TestCachedStore_RedisDownFallsBackToPrimary(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	primary := store.NewMemoryStore()
	s := store.NewCachedStore(primary, rdb, time.Minute)
	ctx := context.Background()

	if err := s.UpsertPortfolioSnapshot(ctx, "gpt", d(10100), nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	seedEvents(t, s, 3)

	records, err := s.ReadAllModels(ctx)
	if err != nil || len(records) != 1 || !records[0].TotalValue.Equal(d(10100)) {
		t.Fatalf("expected primary record, got %+v (%v)", records, err)
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{2, []string{"ev-2", "ev-1"}},
		{10, []string{"ev-2", "ev-1", "ev-0"}},
	}
	for _, tt := range tests {
		events, err := s.ReadRecentEvents(ctx, tt.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if len(events) != len(tt.want) {
			t.Fatalf("limit %d: expected %d events, got %d", tt.limit, len(tt.want), len(events))
		}
		for i, id := range tt.want {
			if events[i].ID != id {
				t.Errorf("limit %d: events[%d] = %s, want %s", tt.limit, i, events[i].ID, id)
			}
		}
	}

	if _, err := s.ReadRecentEvents(ctx, -1); err != store.ErrInvalidLimit {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}

// Runs against a real server when TRUTHBENCH_TEST_REDIS_URL is set.
func TestCachedStore_ServesSlicesFromCache(t *testing.T) {
	url := os.Getenv("TRUTHBENCH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TRUTHBENCH_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	ctx := context.Background()
	rdb.Del(ctx, "truthbench:models", fmt.Sprintf("truthbench:events:recent:%d", store.MaxRecentEvents))

	primary := store.NewMemoryStore()
	s := store.NewCachedStore(primary, rdb, time.Minute)
	seedEvents(t, s, 3)

	if _, err := s.ReadRecentEvents(ctx, 1); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	// Written behind the cache's back: a cached read must not see it.
	seedEvents(t, primary, 4)

	events, err := s.ReadRecentEvents(ctx, 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 || events[0].ID != "ev-2" {
		t.Errorf("expected cached [ev-2 ev-1], got %+v", events)
	}

	// A write through the cache invalidates it.
	seedEvents(t, s, 5)
	events, _ = s.ReadRecentEvents(ctx, 1)
	if len(events) != 1 || events[0].ID != "ev-4" {
		t.Errorf("expected fresh ev-4 after invalidation, got %+v", events)
	}
}
