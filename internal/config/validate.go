package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}

	if c.Market.TopN < 1 {
		return errors.New("market.top_n must be >= 1")
	}
	if c.Market.LookupConcurrency < 1 {
		return errors.New("market.lookup_concurrency must be >= 1")
	}

	if c.Trading.Mode == "live" && c.Predictor.BaseURL == "" {
		return errors.New("predictor.base_url is required in live mode")
	}

	return c.Storage.validate()
}

func (t *TradingConfig) validate() error {
	if t.Mode != "live" && t.Mode != "simulated" {
		return fmt.Errorf("trading.mode must be live or simulated, got %q", t.Mode)
	}
	if t.Interval <= 0 {
		return errors.New("trading.interval must be > 0")
	}
	if t.Jitter < 0 {
		return errors.New("trading.jitter must be >= 0")
	}
	seen := make(map[string]bool, len(t.Models))
	for _, m := range t.Models {
		if m == "" {
			return errors.New("trading.models must not contain empty ids")
		}
		if seen[m] {
			return fmt.Errorf("trading.models contains duplicate id %q", m)
		}
		seen[m] = true
	}
	if len(t.Models) == 0 {
		return errors.New("trading.models is required")
	}
	if !t.InitialCapital.IsPositive() {
		return errors.New("trading.initial_capital must be > 0")
	}
	if t.HistoryWindow < 1 {
		return errors.New("trading.history_window must be >= 1")
	}
	if t.CandidatesPerModel < 1 {
		return errors.New("trading.candidates_per_model must be >= 1")
	}
	if t.ReasoningLength < 0 {
		return errors.New("trading.reasoning_length must be >= 0")
	}
	if t.SimulatedVolatility < 0 {
		return errors.New("trading.simulated_volatility must be >= 0")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Driver {
	case "memory":
	case "postgres":
		if s.DatabaseURL == "" {
			return errors.New("storage.database_url is required for postgres")
		}
	case "sqlite":
		if s.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for sqlite")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, postgres or sqlite, got %q", s.Driver)
	}
	return nil
}
