// Package config loads the arena's YAML configuration, applies defaults and
// environment overrides, and validates the result.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixh8/Truth-Bench/internal/risk"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Trading   TradingConfig   `yaml:"trading"`
	Risk      risk.Parameters `yaml:"risk"`
	Market    MarketConfig    `yaml:"market"`
	Predictor PredictorConfig `yaml:"predictor"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TradingConfig configures the tick loop.
type TradingConfig struct {
	// Mode is "live" (risk-gated trading) or "simulated" (random walk).
	Mode                string          `yaml:"mode"`
	Interval            time.Duration   `yaml:"interval"`
	Jitter              time.Duration   `yaml:"jitter"`
	Models              []string        `yaml:"models"`
	InitialCapital      decimal.Decimal `yaml:"initial_capital"`
	HistoryWindow       int             `yaml:"history_window"`
	CandidatesPerModel  int             `yaml:"candidates_per_model"`
	PredictionTimeout   time.Duration   `yaml:"prediction_timeout"`
	PersistTimeout      time.Duration   `yaml:"persist_timeout"`
	SimulatedVolatility float64         `yaml:"simulated_volatility"`
	ReasoningLength     int             `yaml:"reasoning_length"`
}

// MarketConfig configures the Kalshi feed and snapshot cache.
type MarketConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	TTL               time.Duration `yaml:"ttl"`
	TopN              int           `yaml:"top_n"`
	LookupConcurrency int           `yaml:"lookup_concurrency"`
}

// PredictorConfig configures the prediction oracle client.
type PredictorConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "memory", "postgres" or "sqlite".
	Driver      string        `yaml:"driver"`
	DatabaseURL string        `yaml:"database_url"`
	SQLitePath  string        `yaml:"sqlite_path"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}
