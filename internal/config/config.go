// Package config defines all configuration for the backtest engine.
// Config is loaded from a YAML file with fields overridable via
// BACKTEST_* environment variables, the same viper-based pattern the
// market-making bot this project started from uses for its own config.
package config

import (
	"fmt"
	"strings"

	"optbacktest/internal/errs"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Backtest    BacktestConfig    `mapstructure:"backtest"`
	Risk        RiskConfig        `mapstructure:"risk"`
	CoveredCall CoveredCallConfig `mapstructure:"covered_call"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// BacktestConfig controls the kernel's run-level behaviour.
type BacktestConfig struct {
	InitialCash             decimal.Decimal `mapstructure:"initial_cash"`
	CheckpointInterval      uint64          `mapstructure:"checkpoint_interval"`
	EnableCheckpointing     bool            `mapstructure:"enable_checkpointing"`
	CheckpointPath          string          `mapstructure:"checkpoint_path"`
	EnableProgressReporting bool            `mapstructure:"enable_progress_reporting"`
}

// RiskConfig sets the notional and delta caps the risk predicate enforces.
type RiskConfig struct {
	MaxOrderNotional    decimal.Decimal `mapstructure:"max_order_notional"`
	MaxPositionNotional decimal.Decimal `mapstructure:"max_position_notional"`
	MaxPortfolioDelta   float64         `mapstructure:"max_portfolio_delta"`
}

// CoveredCallConfig tunes the reference covered-call strategy.
type CoveredCallConfig struct {
	MinDelta            float64  `mapstructure:"min_delta"`
	MaxDelta            float64  `mapstructure:"max_delta"`
	TargetDaysToExpiry  int      `mapstructure:"target_days_to_expiry"`
	RollAtDTE           int      `mapstructure:"roll_at_dte"`
	RollAtPnLPercent    float64  `mapstructure:"roll_at_pnl_percent"`
	LotSize             int      `mapstructure:"lot_size"`
	MaxPositions        int      `mapstructure:"max_positions"`
	Symbols             []string `mapstructure:"symbols"`
}

// LoggingConfig controls the slog handler the ambient stack wires up.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultBacktestConfig returns the baseline backtest defaults.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCash:        decimal.NewFromInt(100_000),
		CheckpointInterval: 10_000,
	}
}

// Load reads config from a YAML file with BACKTEST_* env var overrides,
// using viper's New/SetEnvPrefix/AutomaticEnv pattern.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backtest.initial_cash", "100000")
	v.SetDefault("backtest.checkpoint_interval", 10_000)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w: %w", path, err, errs.ErrInput)
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		decimalDecodeHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w: %w", err, errs.ErrInput)
	}

	return &cfg, nil
}

// Validate checks the required fields and value ranges
// A failing Validate is always an input error, surfaced before the run
// starts.
func (c *Config) Validate() error {
	if c.Backtest.InitialCash.IsNegative() {
		return fmt.Errorf("config: backtest.initial_cash must be >= 0: %w", errs.ErrInput)
	}
	if c.Backtest.EnableCheckpointing && c.Backtest.CheckpointPath == "" {
		return fmt.Errorf("config: backtest.checkpoint_path is required when enable_checkpointing is true: %w", errs.ErrInput)
	}
	if c.Backtest.EnableCheckpointing && c.Backtest.CheckpointInterval == 0 {
		return fmt.Errorf("config: backtest.checkpoint_interval must be > 0 when checkpointing is enabled: %w", errs.ErrInput)
	}

	if c.CoveredCall.MinDelta < 0 || c.CoveredCall.MinDelta > 1 {
		return fmt.Errorf("config: covered_call.min_delta must be in [0,1]: %w", errs.ErrInput)
	}
	if c.CoveredCall.MaxDelta < 0 || c.CoveredCall.MaxDelta > 1 {
		return fmt.Errorf("config: covered_call.max_delta must be in [0,1]: %w", errs.ErrInput)
	}
	if c.CoveredCall.MinDelta >= c.CoveredCall.MaxDelta {
		return fmt.Errorf("config: covered_call.min_delta must be < max_delta: %w", errs.ErrInput)
	}
	if c.CoveredCall.TargetDaysToExpiry <= 0 {
		return fmt.Errorf("config: covered_call.target_days_to_expiry must be > 0: %w", errs.ErrInput)
	}
	if c.CoveredCall.RollAtDTE <= 0 || c.CoveredCall.RollAtDTE >= c.CoveredCall.TargetDaysToExpiry {
		return fmt.Errorf("config: covered_call.roll_at_dte must be > 0 and < target_days_to_expiry: %w", errs.ErrInput)
	}
	if c.CoveredCall.RollAtPnLPercent < 0 || c.CoveredCall.RollAtPnLPercent > 100 {
		return fmt.Errorf("config: covered_call.roll_at_pnl_percent must be in [0,100]: %w", errs.ErrInput)
	}
	if len(c.CoveredCall.Symbols) == 0 {
		return fmt.Errorf("config: covered_call.symbols must not be empty: %w", errs.ErrInput)
	}
	for _, s := range c.CoveredCall.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("config: covered_call.symbols contains an empty symbol: %w", errs.ErrInput)
		}
	}

	return nil
}
