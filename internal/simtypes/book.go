package simtypes

import "github.com/shopspring/decimal"

// BookLevel is one price/size rung of a book. Size == 0 marks emptiness.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is a point-in-time view of a symbol's book. Bids are
// sorted descending by price, asks ascending.
type OrderBookSnapshot struct {
	Symbol Symbol
	TsNs   uint64
	Bids   []BookLevel
	Asks   []BookLevel
}
