// Package errs defines the typed error taxonomy the kernel and its
// collaborators use to classify failures: input errors are fatal before a
// run starts, numerical failures are surfaced as NaN rather than errors,
// strategy/bookkeeping faults are local to an order or event, and I/O
// errors are reported but non-fatal. Callers match with errors.Is against
// the sentinels below; wrapped context travels with fmt.Errorf("...: %w").
package errs

import "errors"

// Sentinel errors, one per taxonomy class. Wrap these with fmt.Errorf's
// %w verb to preserve errors.Is matching while adding call-site detail.
var (
	// ErrInput marks invalid configuration or a malformed tick file header.
	// Surfaces before the run starts and is always fatal.
	ErrInput = errors.New("errs: input error")

	// ErrBookkeeping marks an accounting-layer invariant violation: a fill
	// after a terminal order state, or a leaves_qty inconsistent with
	// filled_qty. Fatal in strict mode, logged and dropped otherwise.
	ErrBookkeeping = errors.New("errs: bookkeeping violation")

	// ErrStrategyFault marks a malformed order returned by a strategy
	// (zero quantity, unknown side, non-positive limit price) or a panic
	// recovered from a strategy callback. Local to the offending order.
	ErrStrategyFault = errors.New("errs: strategy fault")

	// ErrIO marks a checkpoint write failure. Reported but non-fatal.
	ErrIO = errors.New("errs: io error")
)

// Is reports whether err is in the same taxonomy class as target,
// delegating to errors.Is. Exported as a convenience for callers that
// don't want to import errors directly just to classify a returned error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
