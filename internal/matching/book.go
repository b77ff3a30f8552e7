// Package matching implements the fill model and risk predicate the
// simulation kernel drives on every accepted order: a pure function of an
// order and the current per-symbol book state, and a stateless notional/
// delta risk filter.
package matching

import "github.com/shopspring/decimal"

// BookState is the synthetic top-of-book the kernel maintains per symbol,
// updated from market ticks (single-level synthetic book on the tick's
// side) and quote updates (both sides overwritten at once).
type BookState struct {
	BestBid      decimal.Decimal
	BestAsk      decimal.Decimal
	LastUpdateNs uint64
}

// HasBid reports whether the book currently carries a usable bid.
func (b BookState) HasBid() bool { return !b.BestBid.IsZero() }

// HasAsk reports whether the book currently carries a usable ask.
func (b BookState) HasAsk() bool { return !b.BestAsk.IsZero() }
