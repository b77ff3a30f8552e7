package matching

import (
	"fmt"

	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// RiskPredicate decides whether a candidate order may proceed to the fill
// model, given the live portfolio snapshot and current book it would be
// dispatched against. A false return must carry a human-readable reason; a
// true return an empty one.
type RiskPredicate interface {
	Check(order simtypes.Order, snapshot simtypes.PortfolioState, book BookState) (ok bool, reason string)
}

// RiskConfig carries the notional and delta caps a DefaultRiskPredicate
// enforces.
type RiskConfig struct {
	MaxOrderNotional    decimal.Decimal
	MaxPositionNotional decimal.Decimal
	MaxPortfolioDelta   float64
}

// DefaultRiskPredicate checks order notional, projected position
// notional, and projected net delta against configured caps.
type DefaultRiskPredicate struct {
	Config RiskConfig
}

// NewDefaultRiskPredicate returns a predicate enforcing cfg.
func NewDefaultRiskPredicate(cfg RiskConfig) *DefaultRiskPredicate {
	return &DefaultRiskPredicate{Config: cfg}
}

// Check implements RiskPredicate.
func (r *DefaultRiskPredicate) Check(order simtypes.Order, snapshot simtypes.PortfolioState, book BookState) (bool, string) {
	price := order.LimitPx
	if order.Type == simtypes.OrderMarket {
		price = marketReferencePrice(order, snapshot, book)
	}

	notional := order.Qty.Abs().Mul(price)
	if !r.Config.MaxOrderNotional.IsZero() && notional.GreaterThan(r.Config.MaxOrderNotional) {
		return false, fmt.Sprintf("order notional %s exceeds max_order_notional %s", notional, r.Config.MaxOrderNotional)
	}

	currentQty := decimal.Zero
	if pos, ok := snapshot.Positions[order.Symbol]; ok {
		currentQty = pos.Qty
	}
	signedQty := order.Qty
	if order.Side == simtypes.SideSell {
		signedQty = signedQty.Neg()
	}
	projectedQty := currentQty.Add(signedQty)
	projectedNotional := projectedQty.Abs().Mul(price)
	if !r.Config.MaxPositionNotional.IsZero() && projectedNotional.GreaterThan(r.Config.MaxPositionNotional) {
		return false, fmt.Sprintf("projected position notional %s exceeds max_position_notional %s", projectedNotional, r.Config.MaxPositionNotional)
	}

	if r.Config.MaxPortfolioDelta > 0 {
		estimatedDelta := 1.0
		if order.Side == simtypes.SideSell {
			estimatedDelta = -1.0
		}
		qtyF, _ := order.Qty.Float64()
		estimatedDelta *= qtyF
		projectedDelta := snapshot.NetGreeks.Delta + estimatedDelta
		if abs(projectedDelta) > r.Config.MaxPortfolioDelta {
			return false, fmt.Sprintf("projected net delta %.4f exceeds max_portfolio_delta %.4f", projectedDelta, r.Config.MaxPortfolioDelta)
		}
	}

	return true, ""
}

// marketReferencePrice prices a market order for notional checks: a mark
// price on an existing position takes precedence, falling back to the
// current book's mid (or whichever single side is quoted) so that a
// first-touch market order against a fresh symbol is still priced off
// something other than its zero LimitPx.
func marketReferencePrice(order simtypes.Order, snapshot simtypes.PortfolioState, book BookState) decimal.Decimal {
	if pos, ok := snapshot.Positions[order.Symbol]; ok && !pos.MarkPx.IsZero() {
		return pos.MarkPx
	}
	switch {
	case book.HasBid() && book.HasAsk():
		return book.BestBid.Add(book.BestAsk).Div(decimal.NewFromInt(2))
	case book.HasBid():
		return book.BestBid
	case book.HasAsk():
		return book.BestAsk
	default:
		return order.LimitPx
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
