package simtypes

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptionType is Call or Put.
type OptionType uint8

const (
	Call OptionType = iota
	Put
)

func (t OptionType) String() string {
	if t == Put {
		return "PUT"
	}
	return "CALL"
}

// daysPerYear is the Act/365.25 convention used for computing T.
const daysPerYear = 365.25

// OptionContract identifies a single listed option.
type OptionContract struct {
	Ticker     Symbol
	Underlying Symbol
	Strike     decimal.Decimal
	ExpiryUTC  time.Time
	Type       OptionType
}

// YearsToExpiry computes T(now) = max(0, (expiry-now)/365.25 days).
func (c OptionContract) YearsToExpiry(now time.Time) float64 {
	d := c.ExpiryUTC.Sub(now).Hours() / 24
	t := d / daysPerYear
	if t < 0 {
		return 0
	}
	return t
}

// OptionQuote is a contract plus its current market and computed Greeks.
type OptionQuote struct {
	Contract     OptionContract
	BidPx, AskPx decimal.Decimal
	BidSz, AskSz decimal.Decimal
	ImpliedVol   float64
	Greeks       Greeks
}
