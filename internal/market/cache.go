package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mixh8/Truth-Bench/internal/kalshi"
	"github.com/mixh8/Truth-Bench/internal/metrics"
	"github.com/mixh8/Truth-Bench/internal/model"
)

// DefaultTTL is how long a fetched market set is served without a refresh.
const DefaultTTL = 5 * time.Minute

// Snapshot is one immutable market set. Callers must not modify Markets.
type Snapshot struct {
	Markets   []model.Market
	FetchedAt time.Time
	// Stale is set when the last refresh failed and an older set is served.
	Stale bool
}

// Index maps each market in the snapshot by ticker.
func (s Snapshot) Index() map[string]model.Market {
	idx := make(map[string]model.Market, len(s.Markets))
	for _, m := range s.Markets {
		idx[m.Ticker] = m
	}
	return idx
}

// Cache holds the last successfully fetched market set. It is the only
// market state shared between model pipelines.
type Cache struct {
	feed   Feed
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	markets   []model.Market
	fetchedAt time.Time
	loaded    bool
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates an empty cache over feed.
func NewCache(feed Feed, opts ...CacheOption) *Cache {
	c := &Cache{
		feed:   feed,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached set while it is younger than the TTL, otherwise
// refreshes it. A failed refresh serves the previous set marked Stale; an
// error is returned only when nothing has ever been fetched.
func (c *Cache) Get(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.snapshot(false), nil
	}

	markets, err := c.feed.FetchMarkets(ctx)
	if err != nil {
		if !c.loaded {
			return Snapshot{}, err
		}
		metrics.FeedFallbacks.Inc()
		c.logger.Warn("market refresh failed, serving stale set",
			"err", err,
			"temporary", kalshi.IsTemporary(err),
			"age", c.now().Sub(c.fetchedAt).Round(time.Second),
			"markets", len(c.markets),
		)
		return c.snapshot(true), nil
	}

	c.markets = markets
	c.fetchedAt = c.now()
	c.loaded = true
	metrics.CachedMarkets.Set(float64(len(markets)))
	return c.snapshot(false), nil
}

func (c *Cache) snapshot(stale bool) Snapshot {
	return Snapshot{Markets: c.markets, FetchedAt: c.fetchedAt, Stale: stale}
}

// LookupByTickers queries the feed for tickers absent from snap. Tickers
// already in snap are never queried. Results are not cached; the next tick
// queries again. Failures are logged and the partial result returned.
func (c *Cache) LookupByTickers(ctx context.Context, snap Snapshot, tickers []string) map[string]model.Market {
	present := snap.Index()
	seen := make(map[string]struct{}, len(tickers))
	var missing []string
	for _, t := range tickers {
		if _, ok := present[t]; ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		missing = append(missing, t)
	}
	if len(missing) == 0 {
		return map[string]model.Market{}
	}

	found, err := c.feed.LookupTickers(ctx, missing)
	if err != nil {
		c.logger.Warn("ticker lookup incomplete", "requested", len(missing), "found", len(found), "err", err)
	}
	if found == nil {
		found = map[string]model.Market{}
	}
	return found
}
