package simtypes

import "github.com/shopspring/decimal"

// Fill is a single execution against an order. FilledQty's sign matches
// Side (positive for buys, negative for sells).
type Fill struct {
	OrderID    string
	ExchangeID string
	FilledQty  decimal.Decimal
	FillPx     decimal.Decimal
	LeavesQty  decimal.Decimal
	TsNs       uint64
	Commission decimal.Decimal
}
