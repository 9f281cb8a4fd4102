// Package config loads and validates the YAML configuration that drives a
// run or a sweep: per-symbol slippage coefficients, starting cash, logging
// and dashboard options. Load validates what it parsed and returns an error
// for an invalid config; Validate is exported for configs built in code.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// SlippageConfig is one symbol's linear price-impact coefficient.
type SlippageConfig struct {
	LinearCoeff float64 `mapstructure:"linear_coeff"`
}

// SymbolConfig groups the per-symbol settings under the "symbols" key.
type SymbolConfig struct {
	Slippage SlippageConfig `mapstructure:"slippage"`
}

// BacktesterConfig holds the core simulation parameters.
type BacktesterConfig struct {
	InitialCash  float64 `mapstructure:"initial_cash"`
	BarInterval  string  `mapstructure:"bar_interval"`
}

// LoggingConfig selects slog's level and output encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// DashboardConfig controls the optional live HTTP+WS viewer.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SweepConfig holds the sweep settings. The sweep subcommand reads only
// Workers; its strategy and symbol lists come from its command-line flags,
// not from Strategies and Symbols.
type SweepConfig struct {
	Strategies []string `mapstructure:"strategies"`
	Symbols    []string `mapstructure:"symbols"`
	Workers    int      `mapstructure:"workers"`
}

// RiskConfig bounds a single run's equity drawdown before it is aborted.
type RiskConfig struct {
	MaxDrawdown float64 `mapstructure:"max_drawdown"` // fraction, e.g. 0.2 for 20%; <= 0 disables the check
}

// Config is the fully-parsed configuration for one invocation of the CLI.
type Config struct {
	Symbols    map[string]SymbolConfig `mapstructure:"symbols"`
	Backtester BacktesterConfig        `mapstructure:"backtester"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Dashboard  DashboardConfig         `mapstructure:"dashboard"`
	Sweep      SweepConfig             `mapstructure:"sweep"`
	Risk       RiskConfig              `mapstructure:"risk"`
}

// Load reads path (YAML) into a Config, applying BACKTEST_*-prefixed
// environment variable overrides on top, and defaulting unset scalars.
// A missing file and a malformed file are distinguished in the wrapped
// error so the caller can tell "create one" apart from "fix the syntax".
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("backtester.initial_cash", 1_000_000.0)
	v.SetDefault("backtester.bar_interval", "1s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.addr", ":8089")
	v.SetDefault("sweep.workers", 4)
	v.SetDefault("risk.max_drawdown", 0.0)

	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks field-level invariants that Unmarshal cannot enforce.
func (c *Config) Validate() error {
	if c.Backtester.InitialCash <= 0 {
		return fmt.Errorf("backtester.initial_cash must be positive, got %v", c.Backtester.InitialCash)
	}
	for symbol, sc := range c.Symbols {
		if sc.Slippage.LinearCoeff < 0 {
			return fmt.Errorf("symbols.%s.slippage.linear_coeff must be non-negative, got %v", symbol, sc.Slippage.LinearCoeff)
		}
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
	}
	if c.Sweep.Workers < 0 {
		return fmt.Errorf("sweep.workers must be non-negative, got %d", c.Sweep.Workers)
	}
	if c.Risk.MaxDrawdown < 0 {
		return fmt.Errorf("risk.max_drawdown must be non-negative, got %v", c.Risk.MaxDrawdown)
	}
	return nil
}

// SlippageTable flattens Symbols into the coefficient map matching.Manager
// expects.
func (c *Config) SlippageTable() map[string]float64 {
	table := make(map[string]float64, len(c.Symbols))
	for symbol, sc := range c.Symbols {
		table[symbol] = sc.Slippage.LinearCoeff
	}
	return table
}
