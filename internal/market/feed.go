// Package market turns the Kalshi REST feed into validated quote snapshots
// and caches them with bounded staleness.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mixh8/Truth-Bench/internal/kalshi"
	"github.com/mixh8/Truth-Bench/internal/model"
)

// Feed is the market data source behind the cache.
type Feed interface {
	// FetchMarkets returns the tradable set, highest volume first.
	FetchMarkets(ctx context.Context) ([]model.Market, error)
	// LookupTickers queries individual markets. Tickers that fail are
	// omitted from the result and reported in the joined error.
	LookupTickers(ctx context.Context, tickers []string) (map[string]model.Market, error)
}

// MarketAPI is the subset of the Kalshi client the feed needs.
type MarketAPI interface {
	GetMarkets(ctx context.Context, opts kalshi.GetMarketsOptions) (*kalshi.MarketsResponse, error)
	GetMarket(ctx context.Context, ticker string) (*kalshi.Market, error)
}

// KalshiFeed adapts the Kalshi API to Feed.
type KalshiFeed struct {
	api         MarketAPI
	topN        int
	pageSize    int
	concurrency int
	logger      *slog.Logger
}

// FeedOption configures a KalshiFeed.
type FeedOption func(*KalshiFeed)

// WithTopN limits the snapshot to the n highest-volume markets.
func WithTopN(n int) FeedOption {
	return func(f *KalshiFeed) {
		if n > 0 {
			f.topN = n
		}
	}
}

// WithLookupConcurrency bounds parallel point queries.
func WithLookupConcurrency(n int) FeedOption {
	return func(f *KalshiFeed) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithFeedLogger sets the logger.
func WithFeedLogger(logger *slog.Logger) FeedOption {
	return func(f *KalshiFeed) {
		f.logger = logger
	}
}

// NewKalshiFeed creates a feed over api.
func NewKalshiFeed(api MarketAPI, opts ...FeedOption) *KalshiFeed {
	f := &KalshiFeed{
		api:         api,
		topN:        50,
		pageSize:    200,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchMarkets pulls one page of open markets and keeps the top N by volume.
// Rows that fail validation are dropped with a warning.
func (f *KalshiFeed) FetchMarkets(ctx context.Context) ([]model.Market, error) {
	resp, err := f.api.GetMarkets(ctx, kalshi.GetMarketsOptions{
		Limit:  f.pageSize,
		Status: "open",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}

	markets := make([]model.Market, 0, len(resp.Markets))
	seen := make(map[string]struct{}, len(resp.Markets))
	for _, raw := range resp.Markets {
		m, err := raw.ToModel()
		if err != nil {
			f.logger.Warn("dropping invalid market", "ticker", raw.Ticker, "err", err)
			continue
		}
		if _, dup := seen[m.Ticker]; dup {
			continue
		}
		seen[m.Ticker] = struct{}{}
		markets = append(markets, m)
	}

	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].Volume > markets[j].Volume
	})
	if len(markets) > f.topN {
		markets = markets[:f.topN]
	}
	return markets, nil
}

// LookupTickers fetches each ticker individually with bounded concurrency.
// One failure does not cancel the others.
func (f *KalshiFeed) LookupTickers(ctx context.Context, tickers []string) (map[string]model.Market, error) {
	var (
		mu   sync.Mutex
		out  = make(map[string]model.Market, len(tickers))
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for _, ticker := range tickers {
		g.Go(func() error {
			raw, err := f.api.GetMarket(ctx, ticker)
			if err == nil {
				var m model.Market
				if m, err = raw.ToModel(); err == nil {
					mu.Lock()
					out[m.Ticker] = m
					mu.Unlock()
					return nil
				}
			}
			mu.Lock()
			errs = append(errs, fmt.Errorf("lookup %s: %w", ticker, err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out, errors.Join(errs...)
}
