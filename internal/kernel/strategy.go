package kernel

import "optbacktest/internal/simtypes"

// Strategy is the kernel-facing contract. The kernel owns
// exactly one Strategy instance for the run's duration and calls it
// synchronously and non-blockingly from the single dispatch loop — a
// Strategy must never suspend.
type Strategy interface {
	// OnEvent is invoked once per top-level dispatched event, after the
	// kernel has applied that event's effect on books/portfolio, with a
	// fresh point-in-time snapshot. It returns candidate orders to route
	// through risk and the fill model.
	OnEvent(event simtypes.Event, snapshot simtypes.PortfolioState) ([]simtypes.Order, error)

	// OnFill is invoked whenever a fill is applied to the portfolio,
	// whether synthesised by the kernel's own fill model or replayed from
	// an externally supplied Fill event.
	OnFill(fill simtypes.Fill, snapshot simtypes.PortfolioState)

	// OnOrderAck is invoked for every acknowledgement the kernel
	// synthesises (Accepted, Rejected) or replays.
	OnOrderAck(ack simtypes.OrderAck)

	// GetState returns an implementation-defined snapshot of strategy
	// internals for diagnostics and the result record's strategy_state
	// field.
	GetState() map[string]any
}
