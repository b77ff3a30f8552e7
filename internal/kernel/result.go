package kernel

import (
	"time"

	"optbacktest/internal/simtypes"
)

// RunStatus is the top-level outcome of a run
type RunStatus string

const (
	StatusOk        RunStatus = "OK"
	StatusCancelled RunStatus = "CANCELLED"
	StatusAborted   RunStatus = "ABORTED"
)

// LatencyStats summarises one LatencyHistogram for the result record
//: count, mean, min, max, and the percentiles callers expect
// from a backtest report.
type LatencyStats struct {
	Count  uint64
	MeanUs float64
	MinUs  int64
	MaxUs  int64
	P50Us  int64
	P90Us  int64
	P99Us  int64
	P999Us int64
}

func statsFromHistogram(h *LatencyHistogram) LatencyStats {
	return LatencyStats{
		Count:  h.Count(),
		MeanUs: h.Mean(),
		MinUs:  h.Min(),
		MaxUs:  h.Max(),
		P50Us:  h.Percentile(0.50),
		P90Us:  h.Percentile(0.90),
		P99Us:  h.Percentile(0.99),
		P999Us: h.Percentile(0.999),
	}
}

// PerformanceSnapshot carries the run's throughput and latency metrics.
type PerformanceSnapshot struct {
	BacktestDuration time.Duration
	EventsPerSecond  float64
	PerKindLatency   map[simtypes.EventKind]LatencyStats
	OrderLatency     LatencyStats
	FillCounts       map[simtypes.Symbol]int
	AckCounts        map[simtypes.OrderStatus]int
}

// BacktestResult is the final record a run produces
type BacktestResult struct {
	StartTsNs        uint64
	EndTsNs          uint64
	EventsProcessed  uint64
	FinalPortfolio   simtypes.PortfolioState
	Performance      PerformanceSnapshot
	StrategyState    map[string]any
	Duration         time.Duration
	Status           RunStatus
	Errors           []error
}
