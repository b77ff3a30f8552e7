// Package portfolio implements the engine's live accounting state: cash,
// per-symbol positions, realised/unrealised P&L, and net Greeks. It is
// owned exclusively by the simulation kernel for the duration of a run
// (see internal/kernel) and is not safe for concurrent use.
package portfolio

import (
	"fmt"
	"log/slog"
	"strings"

	"optbacktest/internal/errs"
	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// orderIDSymbolIndex is the component index the "<PREFIX>_<SYMBOL>_..."
// order-id convention places the symbol at.
const orderIDSymbolIndex = 1

// Portfolio is the live, mutable accounting state for one backtest run.
// Positions with qty==0 never persist in the map.
type Portfolio struct {
	logger *slog.Logger

	cash        decimal.Decimal
	positions   map[simtypes.Symbol]simtypes.Position
	realizedPnL decimal.Decimal
	lastTsNs    uint64

	// orderSymbols records the symbol each live order was accepted
	// against, keyed by order id. apply_fill consults this first and
	// falls back to the order-id string convention so strategies that
	// set Order.Symbol explicitly don't depend on the brittle parse.
	orderSymbols map[string]simtypes.Symbol
}

// New constructs a Portfolio seeded with the given initial cash.
func New(initialCash decimal.Decimal, logger *slog.Logger) *Portfolio {
	return &Portfolio{
		logger:       logger.With("component", "portfolio"),
		cash:         initialCash,
		positions:    make(map[simtypes.Symbol]simtypes.Position),
		orderSymbols: make(map[string]simtypes.Symbol),
	}
}

// RegisterOrder associates an order id with its symbol so a later Fill
// referencing only the order id can be routed without parsing it. The
// kernel calls this for every well-formed order, before its risk check.
func (p *Portfolio) RegisterOrder(orderID string, symbol simtypes.Symbol) {
	p.orderSymbols[orderID] = symbol
}

// symbolForOrder resolves the symbol for a fill's order id, preferring the
// explicit registration and falling back to the "<PREFIX>_<SYMBOL>_..."
// order-id convention.
func (p *Portfolio) symbolForOrder(orderID string) (simtypes.Symbol, error) {
	if sym, ok := p.orderSymbols[orderID]; ok {
		return sym, nil
	}
	parts := strings.Split(orderID, "_")
	if len(parts) <= orderIDSymbolIndex || parts[orderIDSymbolIndex] == "" {
		return "", fmt.Errorf("portfolio: cannot resolve symbol for order id %q: %w", orderID, errs.ErrBookkeeping)
	}
	return simtypes.Symbol(parts[orderIDSymbolIndex]), nil
}

// ApplyFill mutates cash and the position for the fill's symbol, folding
// closed lots into realised P&L, and drops the position entirely once
// its signed quantity returns to zero.
func (p *Portfolio) ApplyFill(fill simtypes.Fill) error {
	symbol, err := p.symbolForOrder(fill.OrderID)
	if err != nil {
		return err
	}

	deltaQty := fill.FilledQty
	fillPx := fill.FillPx

	pos, existed := p.positions[symbol]
	if !existed || pos.Qty.IsZero() {
		pos = simtypes.Position{
			Symbol: symbol,
			Qty:    deltaQty,
			AvgPx:  fillPx,
			MarkPx: fillPx,
		}
	} else {
		q0 := pos.Qty
		a0 := pos.AvgPx
		q1 := q0.Add(deltaQty)

		switch {
		case sameSign(q0, deltaQty):
			// Open or increase: blend the average price.
			pos.AvgPx = q0.Mul(a0).Add(deltaQty.Mul(fillPx)).Div(q1)
			pos.Qty = q1
		case deltaQty.Abs().LessThanOrEqual(q0.Abs()):
			// Close (partial or exact): realise P&L on the closed lots,
			// average price of any remaining lot is unchanged.
			closed := deltaQty.Neg()
			p.realizedPnL = p.realizedPnL.Add(fillPx.Sub(a0).Mul(closed))
			pos.Qty = q1
		default:
			// Flip: close the entire existing lot, then open the
			// remainder at the fill price.
			closed := q0
			p.realizedPnL = p.realizedPnL.Add(fillPx.Sub(a0).Mul(closed))
			pos.Qty = q1
			pos.AvgPx = fillPx
		}
		pos.MarkPx = fillPx
	}

	p.cash = p.cash.Sub(deltaQty.Mul(fillPx)).Sub(fill.Commission)

	if pos.Qty.IsZero() {
		delete(p.positions, symbol)
	} else {
		p.positions[symbol] = pos
	}
	p.lastTsNs = fill.TsNs
	return nil
}

func sameSign(q0, delta decimal.Decimal) bool {
	if q0.IsZero() {
		return true
	}
	return q0.Sign() == delta.Sign()
}

// UpdateMarketData sets mark_px for the tick's symbol and advances
// last_ts_ns. Ticks for symbols with no open position are ignored; mark
// is seeded on first fill instead.
func (p *Portfolio) UpdateMarketData(tick simtypes.MarketTick) {
	p.lastTsNs = tick.TsNs
	pos, ok := p.positions[tick.Symbol]
	if !ok {
		return
	}
	pos.MarkPx = tick.Price
	p.positions[tick.Symbol] = pos
}

// UpdateQuote sets mark_px to the quote mid.
func (p *Portfolio) UpdateQuote(quote simtypes.QuoteUpdate) {
	p.lastTsNs = quote.TsNs
	pos, ok := p.positions[quote.Symbol]
	if !ok {
		return
	}
	pos.MarkPx = quote.Mid()
	p.positions[quote.Symbol] = pos
}

// SetGreeks attaches the latest Greeks for an open position, typically
// computed by the strategy or a pricing pass over the current mark. No-op
// if the symbol has no open position.
func (p *Portfolio) SetGreeks(symbol simtypes.Symbol, g simtypes.Greeks) {
	pos, ok := p.positions[symbol]
	if !ok {
		return
	}
	pos.Greeks = g
	p.positions[symbol] = pos
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// RealizedPnL returns the realised P&L accumulated so far.
func (p *Portfolio) RealizedPnL() decimal.Decimal { return p.realizedPnL }

// Position returns the live position for symbol and whether it exists.
func (p *Portfolio) Position(symbol simtypes.Symbol) (simtypes.Position, bool) {
	pos, ok := p.positions[symbol]
	return pos, ok
}

// Snapshot returns a point-in-time, caller-owned copy with unrealised
// P&L and net Greeks folded in. The returned map never aliases the live
// positions map.
func (p *Portfolio) Snapshot(tsNs uint64) simtypes.PortfolioState {
	positions := make(map[simtypes.Symbol]simtypes.Position, len(p.positions))
	unrealized := decimal.Zero
	var netGreeks simtypes.Greeks

	for sym, pos := range p.positions {
		positions[sym] = pos
		unrealized = unrealized.Add(pos.Qty.Mul(pos.MarkPx.Sub(pos.AvgPx)))
		qtyF, _ := pos.Qty.Float64()
		netGreeks = netGreeks.Add(pos.Greeks.Scale(qtyF))
	}

	return simtypes.PortfolioState{
		TsNs:          tsNs,
		Positions:     positions,
		UnrealizedPnL: unrealized,
		RealizedPnL:   p.realizedPnL,
		NetGreeks:     netGreeks,
		Cash:          p.cash,
	}
}

// LastTsNs returns the timestamp of the most recent event the portfolio
// observed (fill or market data), for diagnostics and logging.
func (p *Portfolio) LastTsNs() uint64 { return p.lastTsNs }
