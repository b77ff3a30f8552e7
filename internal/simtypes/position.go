package simtypes

import "github.com/shopspring/decimal"

// Position is one open lot. Invariant: a position with Qty == 0 must not
// persist in the portfolio's active set (see internal/portfolio).
type Position struct {
	Symbol Symbol
	Qty    decimal.Decimal // signed
	AvgPx  decimal.Decimal // running weighted-average execution price
	MarkPx decimal.Decimal
	Greeks Greeks
}

// PortfolioState is a point-in-time, caller-owned copy of the live
// portfolio. It never aliases the kernel's internal maps.
type PortfolioState struct {
	TsNs          uint64
	Positions     map[Symbol]Position
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	NetGreeks     Greeks
	Cash          decimal.Decimal
}
