// Package metrics is an optional Prometheus adapter exposing the
// simulation kernel's latency histogram and throughput counters, using
// prometheus.NewGaugeVec/CounterVec registration. Nothing in
// the simulation kernel depends on
// this package — a caller wires it up after a run to publish the
// BacktestResult's PerformanceSnapshot for scraping.
package metrics

import (
	"optbacktest/internal/kernel"
	"optbacktest/internal/simtypes"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the registered series for one backtest run's metrics.
// Construct with NewCollector and call Observe once after Run returns.
type Collector struct {
	eventsProcessed prometheus.Counter
	eventsPerSecond prometheus.Gauge
	fillsTotal      *prometheus.CounterVec
	acksTotal       *prometheus.CounterVec
	latencyP99Us    *prometheus.GaugeVec
	realizedPnL     prometheus.Gauge
	unrealizedPnL   prometheus.Gauge
	netDelta        prometheus.Gauge
}

// NewCollector creates and registers a Collector's metrics against reg.
// Passing prometheus.NewRegistry() (rather than the global default
// registry) keeps repeated backtest runs in tests from colliding on
// duplicate registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_events_processed_total",
			Help: "Total events drained from the simulation kernel's queue.",
		}),
		eventsPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_events_per_second",
			Help: "Throughput of the most recently completed run.",
		}),
		fillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_fills_total",
			Help: "Fills applied to the portfolio, by symbol.",
		}, []string{"symbol"}),
		acksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_order_acks_total",
			Help: "Order acknowledgements emitted, by status.",
		}, []string{"status"}),
		latencyP99Us: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_dispatch_latency_p99_us",
			Help: "p99 per-event dispatch latency in microseconds, by event kind.",
		}, []string{"kind"}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_realized_pnl",
			Help: "Realised P&L at the end of the most recently completed run.",
		}),
		unrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_unrealized_pnl",
			Help: "Unrealised P&L at the end of the most recently completed run.",
		}),
		netDelta: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_net_delta",
			Help: "Net portfolio delta at the end of the most recently completed run.",
		}),
	}
	reg.MustRegister(
		c.eventsProcessed, c.eventsPerSecond, c.fillsTotal, c.acksTotal,
		c.latencyP99Us, c.realizedPnL, c.unrealizedPnL, c.netDelta,
	)
	return c
}

// Observe publishes one BacktestResult's metrics. It is safe to call
// after every run; counters accumulate across calls on the same
// Collector, gauges reflect the latest observation.
func (c *Collector) Observe(result kernel.BacktestResult) {
	c.eventsProcessed.Add(float64(result.EventsProcessed))
	c.eventsPerSecond.Set(result.Performance.EventsPerSecond)

	for symbol, count := range result.Performance.FillCounts {
		c.fillsTotal.WithLabelValues(string(symbol)).Add(float64(count))
	}
	for status, count := range result.Performance.AckCounts {
		c.acksTotal.WithLabelValues(string(status)).Add(float64(count))
	}
	for kind, stats := range result.Performance.PerKindLatency {
		c.latencyP99Us.WithLabelValues(kindLabel(kind)).Set(float64(stats.P99Us))
	}

	final := result.FinalPortfolio
	realized, _ := final.RealizedPnL.Float64()
	unrealized, _ := final.UnrealizedPnL.Float64()
	c.realizedPnL.Set(realized)
	c.unrealizedPnL.Set(unrealized)
	c.netDelta.Set(final.NetGreeks.Delta)
}

func kindLabel(kind simtypes.EventKind) string {
	return kind.String()
}
