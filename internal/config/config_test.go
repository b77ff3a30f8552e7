package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

const sampleYAML = `
backtest:
  initial_cash: "50000"
  checkpoint_interval: 500
  enable_checkpointing: true
  checkpoint_path: /tmp/run.json
  enable_progress_reporting: true
risk:
  max_order_notional: "10000"
  max_position_notional: "50000"
  max_portfolio_delta: 250
covered_call:
  min_delta: 0.2
  max_delta: 0.4
  target_days_to_expiry: 30
  roll_at_dte: 7
  roll_at_pnl_percent: 50
  lot_size: 100
  max_positions: 5
  symbols:
    - SPY
    - QQQ
logging:
  level: info
  format: json
`

func writeSample(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write sample config: %v", err)
	}
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	t.Parallel()

	path := writeSample(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Backtest.InitialCash.Equal(decimal.NewFromInt(50_000)) {
		t.Errorf("InitialCash = %s, want 50000", cfg.Backtest.InitialCash)
	}
	if cfg.Backtest.CheckpointInterval != 500 {
		t.Errorf("CheckpointInterval = %d, want 500", cfg.Backtest.CheckpointInterval)
	}
	if !cfg.Risk.MaxOrderNotional.Equal(decimal.NewFromInt(10_000)) {
		t.Errorf("MaxOrderNotional = %s, want 10000", cfg.Risk.MaxOrderNotional)
	}
	if cfg.CoveredCall.MinDelta != 0.2 || cfg.CoveredCall.MaxDelta != 0.4 {
		t.Errorf("delta band = [%v,%v], want [0.2,0.4]", cfg.CoveredCall.MinDelta, cfg.CoveredCall.MaxDelta)
	}
	if len(cfg.CoveredCall.Symbols) != 2 || cfg.CoveredCall.Symbols[0] != "SPY" {
		t.Errorf("Symbols = %v, want [SPY QQQ]", cfg.CoveredCall.Symbols)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsInvertedDeltaBand(t *testing.T) {
	t.Parallel()

	path := writeSample(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.CoveredCall.MinDelta = 0.5
	cfg.CoveredCall.MaxDelta = 0.3

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject min_delta >= max_delta")
	}
}

func TestValidateRequiresCheckpointPathWhenEnabled(t *testing.T) {
	t.Parallel()

	path := writeSample(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Backtest.CheckpointPath = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject empty checkpoint_path when enabled")
	}
}

func TestValidateRejectsEmptySymbols(t *testing.T) {
	t.Parallel()

	path := writeSample(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.CoveredCall.Symbols = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject empty symbols")
	}
}
