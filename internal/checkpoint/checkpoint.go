// Package checkpoint provides crash-safe portfolio snapshot persistence
// for the simulation kernel's optional checkpointing. Only the writer is
// implemented; resuming a run from a checkpoint is not supported.
//
// Each checkpoint is written as a single JSON file at the configured path,
// keyed by run rather than by market. Writes use atomic file replacement
// (write to .tmp, then rename) so a crash mid-write never leaves a
// corrupted checkpoint behind.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// Record is the on-disk shape of one checkpoint: the portfolio snapshot
// plus the run-progress metadata needed to identify it.
type Record struct {
	WrittenAt     time.Time                          `json:"written_at"`
	RunEventCount uint64                              `json:"run_event_count"`
	TsNs          uint64                              `json:"ts_ns"`
	Cash          decimal.Decimal                     `json:"cash"`
	RealizedPnL   decimal.Decimal                     `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal                      `json:"unrealized_pnl"`
	NetGreeks     simtypes.Greeks                     `json:"net_greeks"`
	Positions     map[simtypes.Symbol]simtypes.Position `json:"positions"`
}

// Writer persists checkpoints to a single configured file path.
type Writer struct {
	path string
}

// NewWriter returns a Writer targeting path. path's parent directory must
// already exist or be creatable; WriteCheckpoint creates it on first use.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// WriteCheckpoint implements kernel.Checkpointer. It is reported but
// non-fatal on failure — callers log the returned error
// and continue the run.
func (w *Writer) WriteCheckpoint(runEventCount uint64, snapshot simtypes.PortfolioState) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}

	rec := Record{
		WrittenAt:     timeNow(),
		RunEventCount: runEventCount,
		TsNs:          snapshot.TsNs,
		Cash:          snapshot.Cash,
		RealizedPnL:   snapshot.RealizedPnL,
		UnrealizedPnL: snapshot.UnrealizedPnL,
		NetGreeks:     snapshot.NetGreeks,
		Positions:     snapshot.Positions,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

// timeNow is a seam so tests can't accidentally depend on wall-clock
// output; production callers always get time.Now.
var timeNow = time.Now
