package simtypes

import "github.com/shopspring/decimal"

// TickKind discriminates a MarketTick.
type TickKind uint8

const (
	Trade TickKind = iota
	Bid
	Ask
	Quote
)

func (k TickKind) String() string {
	switch k {
	case Trade:
		return "TRADE"
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	case Quote:
		return "QUOTE"
	default:
		return "UNKNOWN"
	}
}

// MarketTick is a single market observation. Immutable once produced.
type MarketTick struct {
	TsNs   uint64
	Symbol Symbol
	Price  decimal.Decimal
	Qty    decimal.Decimal
	Kind   TickKind
}

// QuoteUpdate is a two-sided top-of-book snapshot for a symbol.
//
// Invariant: when both sides are present, BidPx <= AskPx. The kernel
// still accepts a crossed quote; only the fill model may refuse to cross
// it (see matching.FillModel).
type QuoteUpdate struct {
	TsNs   uint64
	Symbol Symbol
	BidPx  decimal.Decimal
	BidSz  decimal.Decimal
	AskPx  decimal.Decimal
	AskSz  decimal.Decimal
}

// Mid returns (bid+ask)/2.
func (q QuoteUpdate) Mid() decimal.Decimal {
	return q.BidPx.Add(q.AskPx).Div(decimal.NewFromInt(2))
}
