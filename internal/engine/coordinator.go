// Package engine runs the trading cycle: on every tick it fans out one
// pipeline per model, applies the risk policy to oracle signals, executes
// approved trades and then revalues every portfolio against the same market
// snapshot.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/market"
	"github.com/mixh8/Truth-Bench/internal/metrics"
	"github.com/mixh8/Truth-Bench/internal/model"
	"github.com/mixh8/Truth-Bench/internal/portfolio"
	"github.com/mixh8/Truth-Bench/internal/predict"
	"github.com/mixh8/Truth-Bench/internal/risk"
	"github.com/mixh8/Truth-Bench/internal/scoring"
	"github.com/mixh8/Truth-Bench/internal/store"
)

// Mode selects what a tick does.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// Message types sent to the Publisher.
const (
	MessageTradeEvent = "trade_event"
	MessageTick       = "tick"
)

// MarketSource is the shared market snapshot the pipelines read.
type MarketSource interface {
	Get(ctx context.Context) (market.Snapshot, error)
	LookupByTickers(ctx context.Context, snap market.Snapshot, tickers []string) map[string]model.Market
}

// Publisher pushes live updates to dashboard clients. It must not block.
type Publisher interface {
	Publish(msgType string, payload any)
}

// Config holds the coordinator's operational settings.
type Config struct {
	Mode                Mode
	Interval            time.Duration
	Jitter              time.Duration
	CandidatesPerModel  int
	PredictionTimeout   time.Duration
	PersistTimeout      time.Duration
	SimulatedVolatility float64
	ReasoningLength     int
}

// DefaultConfig returns live mode with a five minute interval.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeLive,
		Interval:            5 * time.Minute,
		Jitter:              30 * time.Second,
		CandidatesPerModel:  5,
		PredictionTimeout:   2 * time.Minute,
		PersistTimeout:      10 * time.Second,
		SimulatedVolatility: 0.01,
		ReasoningLength:     280,
	}
}

// TickSummary describes one completed tick.
type TickSummary struct {
	Tick         int64                      `json:"tick"`
	Mode         Mode                       `json:"mode"`
	StartedAt    time.Time                  `json:"started_at"`
	Duration     time.Duration              `json:"duration"`
	Markets      int                        `json:"markets"`
	StaleMarkets bool                       `json:"stale_markets"`
	Trades       int                        `json:"trades"`
	Failed       []string                   `json:"failed,omitempty"`
	Values       map[string]decimal.Decimal `json:"values"`
}

// Coordinator orchestrates ticks. It owns no portfolio state; the portfolio
// store is passed in at construction and shared by reference.
type Coordinator struct {
	cfg        Config
	portfolios *portfolio.Store
	policy     *risk.Policy
	markets    MarketSource
	gateway    predict.Gateway
	store      store.Store
	publisher  Publisher
	forecasts  *scoring.ForecastBook
	logger     *slog.Logger
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	tickMu sync.Mutex
	ticks  int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithPublisher sets the live update sink.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithForecasts records every model's signals for calibration scoring.
func WithForecasts(book *scoring.ForecastBook) Option {
	return func(c *Coordinator) {
		c.forecasts = book
	}
}

// WithRand sets the random source used for jitter and the simulated walk.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) {
		c.rng = r
	}
}

// NewCoordinator wires a coordinator. st may be nil to disable persistence.
func NewCoordinator(
	cfg Config,
	portfolios *portfolio.Store,
	policy *risk.Policy,
	markets MarketSource,
	gateway predict.Gateway,
	st store.Store,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		portfolios: portfolios,
		policy:     policy,
		markets:    markets,
		gateway:    gateway,
		store:      st,
		logger:     slog.Default(),
		now:        time.Now,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x7275746862656e63)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run ticks until ctx is cancelled. A cancellation lets the in-flight tick
// finish and takes effect at the next tick boundary.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator started",
		"mode", c.cfg.Mode,
		"interval", c.cfg.Interval,
		"models", len(c.portfolios.ModelIDs()),
	)
	for {
		if ctx.Err() != nil {
			c.logger.Info("coordinator stopped")
			return nil
		}

		if _, err := c.Tick(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("tick failed", "err", err)
		}

		timer := time.NewTimer(c.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("coordinator stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (c *Coordinator) nextDelay() time.Duration {
	d := c.cfg.Interval
	if c.cfg.Jitter > 0 {
		c.rngMu.Lock()
		d += time.Duration(c.rng.Int64N(int64(c.cfg.Jitter)))
		c.rngMu.Unlock()
	}
	return d
}

// Tick runs one full cycle across every model.
func (c *Coordinator) Tick(ctx context.Context) (TickSummary, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	c.ticks++

	start := time.Now()
	summary := TickSummary{
		Tick:      c.ticks,
		Mode:      c.cfg.Mode,
		StartedAt: c.now(),
		Values:    make(map[string]decimal.Decimal),
	}

	var quotes map[string]model.Market
	switch c.cfg.Mode {
	case ModeSimulated:
		quotes = c.simulate()
	case ModeLive:
		var results []modelResult
		quotes, results = c.trade(ctx, &summary)
		for _, r := range results {
			summary.Trades += r.trades
			if r.failed {
				summary.Failed = append(summary.Failed, r.modelID)
			}
		}
	default:
		return summary, fmt.Errorf("engine: unknown mode %q", c.cfg.Mode)
	}

	c.revalueAll(ctx, quotes, &summary)

	summary.Duration = time.Since(start)
	metrics.TicksTotal.WithLabelValues(string(c.cfg.Mode)).Inc()
	metrics.TickDuration.Observe(summary.Duration.Seconds())
	c.publish(MessageTick, summary)

	c.logger.Info("tick complete",
		"tick", summary.Tick,
		"mode", summary.Mode,
		"markets", summary.Markets,
		"trades", summary.Trades,
		"failed", len(summary.Failed),
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, nil
}

// trade refreshes the market set and fans out one pipeline per model. It
// returns the quote map every model is revalued against.
func (c *Coordinator) trade(ctx context.Context, summary *TickSummary) (map[string]model.Market, []modelResult) {
	snap, err := c.markets.Get(ctx)
	if err != nil {
		c.logger.Warn("no market data available", "err", err)
	}
	summary.Markets = len(snap.Markets)
	summary.StaleMarkets = snap.Stale

	quotes := snap.Index()
	if extra := c.markets.LookupByTickers(ctx, snap, c.heldTickers()); len(extra) > 0 {
		for t, m := range extra {
			quotes[t] = m
		}
	}
	c.resolveForecasts(quotes)

	ids := c.portfolios.ModelIDs()
	results := make([]modelResult, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.runModel(ctx, id, snap.Markets, quotes)
		}()
	}
	wg.Wait()

	return quotes, results
}

// resolveForecasts scores pending forecasts on every market this tick
// reports as resolved.
func (c *Coordinator) resolveForecasts(quotes map[string]model.Market) {
	if c.forecasts == nil {
		return
	}
	for ticker, m := range quotes {
		if m.Result == "" {
			continue
		}
		if n := c.forecasts.Resolve(ticker, m.Result); n > 0 {
			c.logger.Info("forecasts scored", "ticker", ticker, "result", m.Result, "forecasts", n)
		}
	}
}

func (c *Coordinator) heldTickers() []string {
	seen := make(map[string]struct{})
	var tickers []string
	for _, pf := range c.portfolios.Snapshots() {
		for t := range pf.Positions {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)
	return tickers
}

// simulate applies a Gaussian random walk to every model's cash.
func (c *Coordinator) simulate() map[string]model.Market {
	for _, id := range c.portfolios.ModelIDs() {
		pf, err := c.portfolios.Snapshot(id)
		if err != nil {
			continue
		}
		c.rngMu.Lock()
		shock := c.rng.NormFloat64() * c.cfg.SimulatedVolatility
		c.rngMu.Unlock()

		delta := pf.Cash.Mul(decimal.NewFromFloat(shock)).Round(6)
		if pf.Cash.Add(delta).IsNegative() {
			delta = pf.Cash.Neg()
		}
		if err := c.portfolios.AdjustCash(id, delta); err != nil {
			c.logger.Error("simulated walk failed", "model", id, "err", err)
		}
	}
	return map[string]model.Market{}
}

// revalueAll runs after every pipeline has joined so all models see the
// same quotes. Peaks advance only here.
func (c *Coordinator) revalueAll(ctx context.Context, quotes map[string]model.Market, summary *TickSummary) {
	at := c.now()
	var snaps []model.Portfolio
	for _, id := range c.portfolios.ModelIDs() {
		v, err := c.portfolios.Revalue(id, quotes)
		if err != nil {
			c.logger.Error("revalue failed", "model", id, "err", err)
			continue
		}
		if len(v.Unpriced) > 0 {
			metrics.UnpricedPositions.Add(float64(len(v.Unpriced)))
			c.logger.Warn("positions marked at cost", "model", id, "tickers", v.Unpriced)
		}

		pf, err := c.portfolios.Checkpoint(id, at)
		if err != nil {
			c.logger.Error("checkpoint failed", "model", id, "err", err)
			continue
		}
		summary.Values[id] = pf.TotalValue
		metrics.PortfolioValue.WithLabelValues(id).Set(pf.TotalValue.InexactFloat64())
		metrics.PortfolioCash.WithLabelValues(id).Set(pf.Cash.InexactFloat64())
		snaps = append(snaps, pf)
	}
	c.persistSnapshots(ctx, snaps)
}

// persistSnapshots writes every model concurrently and waits, bounded by
// the persist timeout. Failures are logged and never retried; memory stays
// authoritative.
func (c *Coordinator) persistSnapshots(ctx context.Context, snaps []model.Portfolio) {
	if c.store == nil || len(snaps) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout())
	defer cancel()

	var wg sync.WaitGroup
	for _, pf := range snaps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.store.UpsertPortfolioSnapshot(ctx, pf.ModelID, pf.TotalValue, pf.ValueHistory); err != nil {
				metrics.PersistFailures.WithLabelValues("snapshot").Inc()
				c.logger.Warn("persist snapshot failed", "model", pf.ModelID, "err", err)
			}
		}()
	}
	wg.Wait()
}

func (c *Coordinator) persistTimeout() time.Duration {
	if c.cfg.PersistTimeout > 0 {
		return c.cfg.PersistTimeout
	}
	return 10 * time.Second
}

func (c *Coordinator) publish(msgType string, payload any) {
	if c.publisher != nil {
		c.publisher.Publish(msgType, payload)
	}
}

func newEventID() string {
	return uuid.New().String()
}
