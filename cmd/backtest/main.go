// Command backtest runs the deterministic options-backtesting kernel
// over a tick-log file and prints the resulting BacktestResult.
//
// Architecture:
//
//	main.go                   — entry point: parses flags, wires the kernel, waits for SIGINT/SIGTERM
//	internal/kernel           — the event-ordered dispatch loop, order state machine, latency histograms
//	internal/strategy         — CoveredCall, the reference strategy the kernel drives
//	internal/matching         — fill model and risk predicate the kernel routes orders through
//	internal/portfolio        — avg-price accounting, realized/unrealized P&L, net Greeks
//	internal/ticklog          — the fixed-record binary tick-log codec fed into the kernel
//	internal/checkpoint       — atomic JSON snapshot writer for mid-run resume points
//	internal/metrics          — optional Prometheus exposition of the final PerformanceSnapshot
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"optbacktest/internal/checkpoint"
	"optbacktest/internal/config"
	"optbacktest/internal/kernel"
	"optbacktest/internal/matching"
	"optbacktest/internal/metrics"
	"optbacktest/internal/strategy"
	"optbacktest/internal/ticklog"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	tickLogPath string
	metricsAddr string
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Backtest config YAML path")
	rootCmd.Flags().StringVarP(&tickLogPath, "ticks", "t", "", "Tick-log file to replay (required)")
	rootCmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "m", "", "If set, serve Prometheus metrics on this address after the run completes")
	rootCmd.MarkFlagRequired("ticks")
}

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Deterministic event-driven options backtesting engine",
	Long: `Replays a tick-log file through the simulation kernel, driving a
configured strategy through the same order-ack-fill-portfolio cycle a live
engine would use, and reports the resulting performance snapshot.`,
	RunE: runBacktest,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Logging)

	tickFile, err := os.Open(tickLogPath)
	if err != nil {
		logger.Error("failed to open tick log", "error", err, "path", tickLogPath)
		return err
	}
	defer tickFile.Close()

	reader, err := ticklog.NewReader(tickFile)
	if err != nil {
		logger.Error("failed to read tick log header", "error", err, "path", tickLogPath)
		return err
	}
	logger.Info("tick log opened", "path", tickLogPath, "version", reader.Header.Version, "description", reader.Header.Description)

	strat := strategy.NewCoveredCall(cfg.CoveredCall, logger)

	fillModel := matching.NewDefaultFillModel()
	risk := matching.NewDefaultRiskPredicate(matching.RiskConfig{
		MaxOrderNotional:    cfg.Risk.MaxOrderNotional,
		MaxPositionNotional: cfg.Risk.MaxPositionNotional,
		MaxPortfolioDelta:   cfg.Risk.MaxPortfolioDelta,
	})

	var checkpointer kernel.Checkpointer
	if cfg.Backtest.EnableCheckpointing {
		checkpointer = checkpoint.NewWriter(cfg.Backtest.CheckpointPath)
	}

	kcfg := kernel.Config{
		InitialCash:             cfg.Backtest.InitialCash,
		CheckpointInterval:      cfg.Backtest.CheckpointInterval,
		EnableCheckpointing:     cfg.Backtest.EnableCheckpointing,
		EnableProgressReporting: cfg.Backtest.EnableProgressReporting,
	}

	k := kernel.New(kcfg, fillModel, risk, strat, checkpointer, logger)
	strat.AttachPortfolio(k.Portfolio())

	recordCount, err := loadTickLog(k, reader)
	if err != nil {
		logger.Error("failed to load tick log", "error", err)
		return err
	}
	logger.Info("tick log loaded", "records", humanize.Comma(int64(recordCount)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := k.Run(ctx)

	logger.Info("backtest finished",
		"status", result.Status,
		"events_processed", humanize.Comma(int64(result.EventsProcessed)),
		"duration", result.Duration,
		"realized_pnl", result.FinalPortfolio.RealizedPnL,
		"unrealized_pnl", result.FinalPortfolio.UnrealizedPnL,
		"net_delta", result.FinalPortfolio.NetGreeks.Delta,
		"errors", len(result.Errors),
	)

	if err := printResult(result); err != nil {
		return err
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector := metrics.NewCollector(reg)
		collector.Observe(result)
		serveMetrics(logger, reg, metricsAddr)
	}

	return nil
}

// loadTickLog drains reader into the kernel's pre-Run event queue,
// following the reader's own ReadAny discrimination between trade and
// quote records until it reports io.EOF.
func loadTickLog(k *kernel.Kernel, reader *ticklog.Reader) (int, error) {
	count := 0
	for {
		tick, quote, isQuote, err := reader.ReadAny()
		if err == ticklog.ErrEOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		if isQuote {
			k.AddQuote(quote)
		} else {
			k.AddTick(tick)
		}
		count++
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reportableResult mirrors kernel.BacktestResult but renders Errors as
// strings, since the error interface carries no exported fields for
// encoding/json to marshal.
type reportableResult struct {
	kernel.BacktestResult
	Errors []string
}

func printResult(result kernel.BacktestResult) error {
	report := reportableResult{BacktestResult: result}
	for _, e := range result.Errors {
		report.Errors = append(report.Errors, e.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func serveMetrics(logger *slog.Logger, reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
