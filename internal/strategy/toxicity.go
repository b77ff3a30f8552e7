// Package strategy holds the reference strategy implementations that
// consume the simulation kernel. CoveredCall is the reference implementation; FlowTracker is
// a read-only diagnostic any strategy in this package can embed.
package strategy

import (
	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// toxicityWindowNs bounds how far back FlowTracker looks when scoring
// recent fills, expressed in simulated time rather than wall time so the
// diagnostic stays deterministic across runs.
const toxicityWindowNs = uint64(60 * 60 * 1e9) // 1 simulated hour

// ToxicityMetrics summarises recent fill flow for one strategy instance.
// Unlike the quoting bot this package is descended from, there is no
// spread to widen here — the metrics are purely informational and land in
// Strategy.GetState() for a caller to act on (e.g. pause new entries).
type ToxicityMetrics struct {
	FillCount            int
	DirectionalImbalance float64 // [0,1]: share of fills in the dominant side
	FillVelocity         float64 // fills per simulated hour
	AvgAdverseBps        float64 // average post-fill adverse price move, in bps
	ToxicityScore        float64 // [0,1] composite of the above
	IsToxic              bool
}

type fillRecord struct {
	Symbol simtypes.Symbol
	Side   simtypes.Side
	Price  decimal.Decimal
	TsNs   uint64
}

// FlowTracker keeps a rolling window of recent fills plus the latest
// observed mark per symbol, and scores adverse selection: fills whose
// price looks bad in hindsight once the market has moved. Generalized
// from a wall-clock window and a direction-only proxy (no post-fill
// price is available without a live market to keep quoting) to
// simulated-time eviction and a true post-fill price-drift score, which
// a backtest can compute exactly.
type FlowTracker struct {
	toxicityThreshold float64

	fills []fillRecord
	marks map[simtypes.Symbol]decimal.Decimal
}

// NewFlowTracker returns a tracker that flags IsToxic once the composite
// score exceeds threshold.
func NewFlowTracker(threshold float64) *FlowTracker {
	return &FlowTracker{
		toxicityThreshold: threshold,
		marks:             make(map[simtypes.Symbol]decimal.Decimal),
	}
}

// RecordMark updates the latest observed price for symbol, used to score
// fills recorded earlier against it.
func (ft *FlowTracker) RecordMark(symbol simtypes.Symbol, price decimal.Decimal) {
	if price.IsZero() {
		return
	}
	ft.marks[symbol] = price
}

// RecordFill appends a fill to the rolling window and evicts anything now
// outside toxicityWindowNs of it.
func (ft *FlowTracker) RecordFill(fill simtypes.Fill, symbol simtypes.Symbol) {
	side := simtypes.SideBuy
	if fill.FilledQty.IsNegative() {
		side = simtypes.SideSell
	}
	ft.fills = append(ft.fills, fillRecord{Symbol: symbol, Side: side, Price: fill.FillPx, TsNs: fill.TsNs})
	ft.evictStale(fill.TsNs)
}

func (ft *FlowTracker) evictStale(now uint64) {
	var cutoff uint64
	if now > toxicityWindowNs {
		cutoff = now - toxicityWindowNs
	}
	i := 0
	for ; i < len(ft.fills); i++ {
		if ft.fills[i].TsNs >= cutoff {
			break
		}
	}
	if i > 0 {
		ft.fills = ft.fills[i:]
	}
}

// Metrics computes the current ToxicityMetrics as of now, first evicting
// anything that has aged out of the window.
func (ft *FlowTracker) Metrics(now uint64) ToxicityMetrics {
	ft.evictStale(now)
	if len(ft.fills) == 0 {
		return ToxicityMetrics{}
	}

	var buyCount, sellCount int
	var adverseSum float64
	var adverseSamples int

	for _, f := range ft.fills {
		if f.Side == simtypes.SideBuy {
			buyCount++
		} else {
			sellCount++
		}

		mark, ok := ft.marks[f.Symbol]
		if !ok || f.Price.IsZero() {
			continue
		}
		moveBps, _ := f.Price.Sub(mark).Div(f.Price).Mul(decimal.NewFromInt(10_000)).Float64()
		if f.Side == simtypes.SideSell {
			moveBps = -moveBps // a sell is adverse when price rises afterward
		}
		adverseSum += moveBps
		adverseSamples++
	}

	total := float64(len(ft.fills))
	dominant := float64(buyCount)
	if sellCount > buyCount {
		dominant = float64(sellCount)
	}
	directional := dominant / total

	var avgAdverse float64
	if adverseSamples > 0 {
		avgAdverse = adverseSum / float64(adverseSamples)
	}

	span := ft.fills[len(ft.fills)-1].TsNs - ft.fills[0].TsNs
	velocity := total // degenerate case: everything arrived at one instant
	if span > 0 {
		hours := float64(span) / float64(toxicityWindowNs)
		velocity = total / hours
	}
	velocityFactor := velocity / 12.0 // >12 fills/hour treated as saturating
	if velocityFactor > 1 {
		velocityFactor = 1
	}
	adverseFactor := avgAdverse / 50.0 // 50bps of adverse drift treated as saturating
	if adverseFactor < 0 {
		adverseFactor = 0
	}
	if adverseFactor > 1 {
		adverseFactor = 1
	}

	score := 0.5*adverseFactor + 0.3*directional + 0.2*velocityFactor

	return ToxicityMetrics{
		FillCount:            len(ft.fills),
		DirectionalImbalance: directional,
		FillVelocity:         velocity,
		AvgAdverseBps:        avgAdverse,
		ToxicityScore:        score,
		IsToxic:              score > ft.toxicityThreshold,
	}
}
