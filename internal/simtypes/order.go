package simtypes

import "github.com/shopspring/decimal"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType enumerates the supported order kinds.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// TimeInForce enumerates order lifecycles.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // good-til-cancelled
	TIFIOC TimeInForce = "IOC" // immediate-or-cancel
	TIFFOK TimeInForce = "FOK" // fill-or-kill
)

// OrderStatus is the order's position in the kernel's order state
// machine.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusAccepted        OrderStatus = "ACCEPTED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
)

// Terminal reports whether a status is a terminal state in the order
// state machine — no further fills are accepted for that order id.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusFilled, StatusCanceled:
		return true
	default:
		return false
	}
}

// Order is a candidate order produced by a strategy.
//
// OrderID should follow the "<PREFIX>_<SYMBOL>_..." convention if the
// strategy wants portfolio accounting to infer Symbol from the id;
// otherwise set Symbol explicitly (the reference strategy does both, for
// defense and for log readability).
type Order struct {
	OrderID string
	Symbol  Symbol
	Side    Side
	Type    OrderType
	Qty     decimal.Decimal
	LimitPx decimal.Decimal // ignored for OrderMarket
	TIF     TimeInForce
	TsNs    uint64
}

// OrderAck reports a lifecycle transition for an order id.
type OrderAck struct {
	OrderID    string
	ExchangeID string
	Status     OrderStatus
	TsNs       uint64
	Reason     string
}
