package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadWithDefaults_EmptyPath(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("TRADING_MODE", "")
	t.Setenv("MODELS", "")

	cfg, err := LoadWithDefaults("")
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Trading.Mode != "live" {
		t.Errorf("Trading.Mode = %q, want %q", cfg.Trading.Mode, "live")
	}
	if cfg.Trading.Interval != 5*time.Minute {
		t.Errorf("Trading.Interval = %v, want 5m", cfg.Trading.Interval)
	}
	if !cfg.Trading.InitialCapital.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Trading.InitialCapital = %s, want 10000", cfg.Trading.InitialCapital)
	}
	if len(cfg.Trading.Models) != len(DefaultModels) {
		t.Errorf("Trading.Models = %v, want %v", cfg.Trading.Models, DefaultModels)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "memory")
	}
	if cfg.Risk.BuyConfidence != 70 || !cfg.Risk.ReserveFloor.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Risk = %+v, want defaults", cfg.Risk)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_PREDICTOR_URL", "http://oracle:8000")
	path := writeTempFile(t, `
trading:
  mode: simulated
  interval: 1h
  models: [alpha, beta]
  initial_capital: 5000
predictor:
  base_url: ${TEST_PREDICTOR_URL}
risk:
  buy_confidence: 80
  stop_loss: -0.2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Predictor.BaseURL != "http://oracle:8000" {
		t.Errorf("Predictor.BaseURL = %q, want %q", cfg.Predictor.BaseURL, "http://oracle:8000")
	}
	if cfg.Trading.Interval != time.Hour {
		t.Errorf("Trading.Interval = %v, want 1h", cfg.Trading.Interval)
	}
	if got := strings.Join(cfg.Trading.Models, ","); got != "alpha,beta" {
		t.Errorf("Trading.Models = %q, want %q", got, "alpha,beta")
	}
	if !cfg.Trading.InitialCapital.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Trading.InitialCapital = %s, want 5000", cfg.Trading.InitialCapital)
	}
	if cfg.Risk.BuyConfidence != 80 {
		t.Errorf("Risk.BuyConfidence = %v, want 80", cfg.Risk.BuyConfidence)
	}
	if !cfg.Risk.StopLoss.Equal(decimal.NewFromFloat(-0.2)) {
		t.Errorf("Risk.StopLoss = %s, want -0.2", cfg.Risk.StopLoss)
	}
}

func TestLoadWithDefaults_ExplicitZeroKept(t *testing.T) {
	t.Setenv("TRADING_MODE", "")
	path := writeTempFile(t, `
trading:
  jitter: 0s
  reasoning_length: 0
risk:
  fee_rate: 0
  hold_confidence: 0
  reserve_floor: 0
predictor:
  base_url: http://oracle
`)
	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
	if cfg.Trading.Jitter != 0 {
		t.Errorf("Trading.Jitter = %v, want 0", cfg.Trading.Jitter)
	}
	if cfg.Trading.ReasoningLength != 0 {
		t.Errorf("Trading.ReasoningLength = %d, want 0", cfg.Trading.ReasoningLength)
	}
	if !cfg.Risk.FeeRate.IsZero() || cfg.Risk.HoldConfidence != 0 || !cfg.Risk.ReserveFloor.IsZero() {
		t.Errorf("Risk zeros overwritten: fee %s hold %v reserve %s", cfg.Risk.FeeRate, cfg.Risk.HoldConfidence, cfg.Risk.ReserveFloor)
	}
	// keys absent from the file keep their defaults
	if cfg.Risk.BuyConfidence != 70 || !cfg.Risk.StopLoss.Equal(decimal.NewFromFloat(-0.30)) {
		t.Errorf("Risk defaults lost: buy %v stop %s", cfg.Risk.BuyConfidence, cfg.Risk.StopLoss)
	}
	if cfg.Trading.SimulatedVolatility != DefaultSimulatedVolatility {
		t.Errorf("Trading.SimulatedVolatility = %v, want %v", cfg.Trading.SimulatedVolatility, DefaultSimulatedVolatility)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/arena")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRADING_MODE", "SIMULATED")
	t.Setenv("MODELS", " a , b ,,c")

	path := writeTempFile(t, "server:\n  port: 7000\ntrading:\n  mode: live\n")
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Trading.Mode != "simulated" {
		t.Errorf("Trading.Mode = %q, want %q", cfg.Trading.Mode, "simulated")
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "postgres")
	}
	if cfg.Storage.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Storage.RedisURL = %q", cfg.Storage.RedisURL)
	}
	if got := strings.Join(cfg.Trading.Models, ","); got != "a,b,c" {
		t.Errorf("Trading.Models = %q, want %q", got, "a,b,c")
	}
}

func TestLoadWithDefaults_BadPort(t *testing.T) {
	t.Setenv("PORT", "eighty")
	if _, err := LoadWithDefaults(""); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func validConfig() *Config {
	cfg := newConfig()
	cfg.Predictor.BaseURL = "http://oracle"
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Trading.Mode = "paper" }, "trading.mode"},
		{"no models", func(c *Config) { c.Trading.Models = nil }, "trading.models is required"},
		{"duplicate model", func(c *Config) { c.Trading.Models = []string{"a", "a"} }, "duplicate"},
		{"negative capital", func(c *Config) { c.Trading.InitialCapital = decimal.NewFromInt(-1) }, "initial_capital"},
		{"live without predictor", func(c *Config) { c.Predictor.BaseURL = "" }, "predictor.base_url"},
		{"simulated without predictor", func(c *Config) {
			c.Trading.Mode = "simulated"
			c.Predictor.BaseURL = ""
		}, ""},
		{"postgres without url", func(c *Config) { c.Storage.Driver = "postgres" }, "database_url"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"negative reasoning length", func(c *Config) { c.Trading.ReasoningLength = -1 }, "trading.reasoning_length"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad risk", func(c *Config) { c.Risk.BuyConfidence = 101 }, "risk.buy_confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAndValidate_RejectsNegativeReasoningLength(t *testing.T) {
	t.Setenv("TRADING_MODE", "")
	path := writeTempFile(t, "trading:\n  mode: simulated\n  reasoning_length: -1\n")
	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "trading.reasoning_length") {
		t.Fatalf("LoadAndValidate() = %v, want reasoning_length error", err)
	}
}
