package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/kalshi"
	"github.com/mixh8/Truth-Bench/internal/market"
	"github.com/mixh8/Truth-Bench/internal/risk"
)

// Default values for optional configuration fields.
const (
	DefaultPort                = 8080
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultMode                = "live"
	DefaultInterval            = 5 * time.Minute
	DefaultJitter              = 30 * time.Second
	DefaultInitialCapital      = 10000
	DefaultHistoryWindow       = 500
	DefaultCandidatesPerModel  = 5
	DefaultPredictionTimeout   = 2 * time.Minute
	DefaultPersistTimeout      = 10 * time.Second
	DefaultSimulatedVolatility = 0.01
	DefaultReasoningLength     = 280
	DefaultMarketTimeout       = 30 * time.Second
	DefaultTopN                = 50
	DefaultLookupConcurrency   = 4
	DefaultPredictorTimeout    = 90 * time.Second
	DefaultSQLitePath          = "data/truthbench.db"
	DefaultCacheTTL            = 30 * time.Second
)

// DefaultModels is the roster used when none is configured.
var DefaultModels = []string{"gpt-4o", "claude-sonnet", "gemini-pro", "grok"}

// newConfig seeds the fields where zero is a valid setting: every risk
// limit, the jitter, the simulated volatility and the reasoning length.
// YAML decoding overwrites only the keys present in the file.
func newConfig() *Config {
	return &Config{
		Trading: TradingConfig{
			Jitter:              DefaultJitter,
			SimulatedVolatility: DefaultSimulatedVolatility,
			ReasoningLength:     DefaultReasoningLength,
		},
		Risk: risk.DefaultParameters(),
	}
}

// applyDefaults fills fields left at zero where zero is never valid.
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Trading defaults
	if c.Trading.Mode == "" {
		c.Trading.Mode = DefaultMode
	}
	if c.Trading.Interval == 0 {
		c.Trading.Interval = DefaultInterval
	}
	if len(c.Trading.Models) == 0 {
		c.Trading.Models = append([]string(nil), DefaultModels...)
	}
	if c.Trading.InitialCapital.IsZero() {
		c.Trading.InitialCapital = decimal.NewFromInt(DefaultInitialCapital)
	}
	if c.Trading.HistoryWindow == 0 {
		c.Trading.HistoryWindow = DefaultHistoryWindow
	}
	if c.Trading.CandidatesPerModel == 0 {
		c.Trading.CandidatesPerModel = DefaultCandidatesPerModel
	}
	if c.Trading.PredictionTimeout == 0 {
		c.Trading.PredictionTimeout = DefaultPredictionTimeout
	}
	if c.Trading.PersistTimeout == 0 {
		c.Trading.PersistTimeout = DefaultPersistTimeout
	}

	// Market defaults
	if c.Market.BaseURL == "" {
		c.Market.BaseURL = kalshi.DefaultBaseURL
	}
	if c.Market.Timeout == 0 {
		c.Market.Timeout = DefaultMarketTimeout
	}
	if c.Market.TTL == 0 {
		c.Market.TTL = market.DefaultTTL
	}
	if c.Market.TopN == 0 {
		c.Market.TopN = DefaultTopN
	}
	if c.Market.LookupConcurrency == 0 {
		c.Market.LookupConcurrency = DefaultLookupConcurrency
	}

	// Predictor defaults
	if c.Predictor.Timeout == 0 {
		c.Predictor.Timeout = DefaultPredictorTimeout
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		if c.Storage.DatabaseURL != "" {
			c.Storage.Driver = "postgres"
		} else {
			c.Storage.Driver = "memory"
		}
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}
	if c.Storage.CacheTTL == 0 {
		c.Storage.CacheTTL = DefaultCacheTTL
	}
}
