package matching

import (
	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// DefaultCommission is the flat per-fill commission, configurable.
var DefaultCommission = decimal.NewFromFloat(0.65)

var (
	slippageCushion    = decimal.NewFromFloat(1.01) // 1% cushion when the touched side is empty
	slippageCushionLow = decimal.NewFromFloat(0.99)
	slippageUnit       = decimal.NewFromFloat(1e-4)
	slippageQtyScale   = decimal.NewFromInt(10_000)
	liquidityBase      = decimal.NewFromInt(1000)
	oneDecimal         = decimal.NewFromInt(1)
	spreadFloor        = decimal.NewFromFloat(0.1)
	spreadCeil         = decimal.NewFromFloat(2.0)
)

// FillModel simulates execution of an accepted order against the current
// book state. It is a pure function of its inputs: no
// resting orders, no cross-order state.
type FillModel interface {
	Fill(order simtypes.Order, book BookState) ([]simtypes.Fill, error)
}

// DefaultFillModel implements the market/limit fill rules: market orders
// fill in full with a size-proportional slippage cushion, limit orders
// cross-or-nothing with a spread-driven liquidity cap on the filled
// quantity.
type DefaultFillModel struct {
	Commission decimal.Decimal
}

// NewDefaultFillModel returns a DefaultFillModel charging DefaultCommission.
func NewDefaultFillModel() *DefaultFillModel {
	return &DefaultFillModel{Commission: DefaultCommission}
}

// Fill implements FillModel. A nil slice return (with a nil error) means
// the order produced no execution (an empty book, or a limit that does
// not cross), not a failure.
func (m *DefaultFillModel) Fill(order simtypes.Order, book BookState) ([]simtypes.Fill, error) {
	switch order.Type {
	case simtypes.OrderMarket:
		return m.fillMarket(order, book)
	case simtypes.OrderLimit:
		return m.fillLimit(order, book)
	default:
		return nil, nil
	}
}

func (m *DefaultFillModel) fillMarket(order simtypes.Order, book BookState) ([]simtypes.Fill, error) {
	var price decimal.Decimal
	switch order.Side {
	case simtypes.SideBuy:
		switch {
		case book.HasAsk():
			price = book.BestAsk
		case book.HasBid():
			price = book.BestBid.Mul(slippageCushion)
		default:
			return nil, nil
		}
	case simtypes.SideSell:
		switch {
		case book.HasBid():
			price = book.BestBid
		case book.HasAsk():
			price = book.BestAsk.Mul(slippageCushionLow)
		default:
			return nil, nil
		}
	default:
		return nil, nil
	}

	slip := oneDecimal.Add(order.Qty.Abs().Div(slippageQtyScale).Mul(slippageUnit))
	if order.Side == simtypes.SideBuy {
		price = price.Mul(slip)
	} else {
		price = price.Div(slip)
	}

	signedQty := order.Qty
	if order.Side == simtypes.SideSell {
		signedQty = signedQty.Neg()
	}

	return []simtypes.Fill{{
		OrderID:    order.OrderID,
		FilledQty:  signedQty,
		FillPx:     price,
		LeavesQty:  decimal.Zero,
		TsNs:       order.TsNs,
		Commission: m.Commission,
	}}, nil
}

func (m *DefaultFillModel) fillLimit(order simtypes.Order, book BookState) ([]simtypes.Fill, error) {
	crosses := false
	var fillPx decimal.Decimal

	switch order.Side {
	case simtypes.SideBuy:
		if book.HasAsk() && order.LimitPx.GreaterThanOrEqual(book.BestAsk) {
			crosses = true
			fillPx = book.BestAsk
		}
	case simtypes.SideSell:
		if book.HasBid() && order.LimitPx.LessThanOrEqual(book.BestBid) {
			crosses = true
			fillPx = book.BestBid
		}
	}

	if !crosses {
		return nil, nil
	}

	available := m.availableLiquidity(book)
	filledAbs := decimal.Min(order.Qty, available)
	signedQty := filledAbs
	if order.Side == simtypes.SideSell {
		signedQty = signedQty.Neg()
	}

	return []simtypes.Fill{{
		OrderID:    order.OrderID,
		FilledQty:  signedQty,
		FillPx:     fillPx,
		LeavesQty:  order.Qty.Sub(filledAbs),
		TsNs:       order.TsNs,
		Commission: m.Commission,
	}}, nil
}

// availableLiquidity implements the liquidity model: fill size is
// inversely proportional to the relative spread, floored at 1 contract.
func (m *DefaultFillModel) availableLiquidity(book BookState) decimal.Decimal {
	if book.BestBid.IsZero() {
		return oneDecimal
	}
	spread := book.BestAsk.Sub(book.BestBid)
	relSpread := spread.Div(book.BestBid)
	if relSpread.LessThan(spreadFloor) {
		relSpread = spreadFloor
	}
	if relSpread.GreaterThan(spreadCeil) {
		relSpread = spreadCeil
	}
	available := liquidityBase.Div(relSpread)
	if available.LessThan(oneDecimal) {
		return oneDecimal
	}
	return available
}
