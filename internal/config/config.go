// Package config loads the newsalpha YAML configuration file and applies
// environment variable overrides for credentials and paths.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the newsalpha platform.
type Config struct {
	Storage     Storage     `yaml:"storage"`
	Alpaca      Alpaca      `yaml:"alpaca"`
	Logging     Logging     `yaml:"logging"`
	Attribution Attribution `yaml:"attribution"`
	Backtest    Backtest    `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Attribution controls the price move attribution task.
type Attribution struct {
	Benchmark            string   `yaml:"benchmark"`
	Exchange             string   `yaml:"exchange_timezone"`
	IntradayLookbackDays int      `yaml:"intraday_lookback_days"`
	MaxWorkers           int      `yaml:"max_workers"`
	RateLimitPerMin      int      `yaml:"rate_limit_per_min"`
	Publishers           []string `yaml:"publishers"`
}

// Backtest holds default simulation parameters.
type Backtest struct {
	InitialCapital       float64 `yaml:"initial_capital"`
	PositionSizeFraction float64 `yaml:"position_size_fraction"`
	TakeProfit           float64 `yaml:"take_profit"`
	StopLoss             float64 `yaml:"stop_loss"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("NEWSALPHA_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("NEWSALPHA_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Attribution.Benchmark == "" {
		cfg.Attribution.Benchmark = "SPY"
	}
	if cfg.Attribution.Exchange == "" {
		cfg.Attribution.Exchange = "America/New_York"
	}
	if cfg.Attribution.IntradayLookbackDays <= 0 {
		cfg.Attribution.IntradayLookbackDays = 25
	}
	if cfg.Attribution.MaxWorkers <= 0 {
		cfg.Attribution.MaxWorkers = 4
	}
	if cfg.Attribution.RateLimitPerMin <= 0 {
		cfg.Attribution.RateLimitPerMin = 200
	}
	if cfg.Backtest.InitialCapital <= 0 {
		cfg.Backtest.InitialCapital = 10000
	}
	if cfg.Backtest.PositionSizeFraction <= 0 {
		cfg.Backtest.PositionSizeFraction = 0.20
	}
	if cfg.Backtest.TakeProfit <= 0 {
		cfg.Backtest.TakeProfit = 0.01
	}
	if cfg.Backtest.StopLoss <= 0 {
		cfg.Backtest.StopLoss = 0.005
	}
}
