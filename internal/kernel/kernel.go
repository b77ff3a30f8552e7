// Package kernel implements the deterministic, single-threaded simulation
// kernel: the bucketed time-ordered event queue, the order-to-fill-to-
// portfolio feedback cycle, the order state machine, and the latency/
// throughput metrics that feed the final BacktestResult.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"optbacktest/internal/errs"
	"optbacktest/internal/matching"
	"optbacktest/internal/portfolio"
	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// Config carries the backtest-level knobs
type Config struct {
	InitialCash             decimal.Decimal
	CheckpointInterval       uint64
	EnableCheckpointing      bool
	EnableProgressReporting  bool
	// StrictMode makes bookkeeping violations and unrecovered strategy/
	// fill-model panics fatal (run-aborting) rather than local to the
	// order that triggered them.
	StrictMode bool
}

// DefaultConfig returns the baseline kernel configuration.
func DefaultConfig() Config {
	return Config{
		InitialCash:        decimal.NewFromInt(100_000),
		CheckpointInterval: 10_000,
	}
}

// Checkpointer persists a portfolio snapshot for resume. Only the writer
// side is in scope; the kernel calls it at most every
// CheckpointInterval events when enabled.
type Checkpointer interface {
	WriteCheckpoint(runEventCount uint64, snapshot simtypes.PortfolioState) error
}

// Kernel is the single-use simulation kernel. It owns the event queue, the
// live portfolio, per-symbol book state, the in-flight order registry, and
// all metrics for the duration of one run. Construct with New, enqueue
// events with Add*, then call Run exactly once.
type Kernel struct {
	logger *slog.Logger
	cfg    Config

	portfolio *portfolio.Portfolio
	fillModel matching.FillModel
	risk      matching.RiskPredicate
	strategy  Strategy
	checkpt   Checkpointer

	queue *eventQueue
	books map[simtypes.Symbol]matching.BookState

	orderStatus  map[string]simtypes.OrderStatus
	orderSymbols map[string]simtypes.Symbol
	exchangeSeq  uint64

	latencyByKind map[simtypes.EventKind]*LatencyHistogram
	orderLatency  *LatencyHistogram
	fillCounts    map[simtypes.Symbol]int
	ackCounts     map[simtypes.OrderStatus]int

	eventsProcessed uint64
	runErrors       []error
	fatalErr        error

	consumed bool
}

// New constructs a Kernel. fillModel, risk, and strategy are the caller's
// collaborators; checkpt may be nil to disable checkpointing
// regardless of cfg.EnableCheckpointing.
func New(cfg Config, fillModel matching.FillModel, risk matching.RiskPredicate, strategy Strategy, checkpt Checkpointer, logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	k := &Kernel{
		logger:    logger.With("component", "kernel"),
		cfg:       cfg,
		portfolio: portfolio.New(cfg.InitialCash, logger),
		fillModel: fillModel,
		risk:      risk,
		strategy:  strategy,
		checkpt:   checkpt,
		queue:     newEventQueue(),
		books:     make(map[simtypes.Symbol]matching.BookState),

		orderStatus:  make(map[string]simtypes.OrderStatus),
		orderSymbols: make(map[string]simtypes.Symbol),

		latencyByKind: map[simtypes.EventKind]*LatencyHistogram{
			simtypes.EventMarketData: NewLatencyHistogram(),
			simtypes.EventQuote:      NewLatencyHistogram(),
			simtypes.EventFill:       NewLatencyHistogram(),
			simtypes.EventOrderAck:   NewLatencyHistogram(),
		},
		orderLatency: NewLatencyHistogram(),
		fillCounts:   make(map[simtypes.Symbol]int),
		ackCounts:    make(map[simtypes.OrderStatus]int),
	}
	return k
}

// AddTick enqueues a market tick event prior to Run.
func (k *Kernel) AddTick(t simtypes.MarketTick) {
	k.queue.push(simtypes.NewMarketDataEvent(0, t))
}

// AddQuote enqueues a quote update event prior to Run.
func (k *Kernel) AddQuote(q simtypes.QuoteUpdate) {
	k.queue.push(simtypes.NewQuoteEvent(0, q))
}

// AddFill enqueues an externally supplied fill event prior to Run (e.g.
// replaying a recorded execution rather than simulating one).
func (k *Kernel) AddFill(f simtypes.Fill) {
	k.queue.push(simtypes.NewFillEvent(0, f))
}

// AddOrderAck enqueues an externally supplied acknowledgement event.
func (k *Kernel) AddOrderAck(a simtypes.OrderAck) {
	k.queue.push(simtypes.NewOrderAckEvent(0, a))
}

// Portfolio exposes the live portfolio for callers that want to inspect
// state between construction and Run (e.g. tests seeding positions).
func (k *Kernel) Portfolio() *portfolio.Portfolio { return k.portfolio }

// Run drains the queue in deterministic order, invoking the strategy and
// routing its orders through risk and the fill model, until the queue is
// empty, ctx is cancelled, or a fatal error occurs. The kernel is
// single-use: calling Run twice panics.
func (k *Kernel) Run(ctx context.Context) BacktestResult {
	if k.consumed {
		panic("kernel: Run called more than once")
	}
	k.consumed = true

	start := time.Now()
	var startTsNs, endTsNs uint64
	status := StatusOk

	keys := k.queue.bucketKeys()
	if len(keys) > 0 {
		startTsNs = keys[0]
	}

bucketLoop:
	for _, key := range keys {
		select {
		case <-ctx.Done():
			status = StatusCancelled
			break bucketLoop
		default:
		}

		// Synthesised acks/fills never re-enter the queue — dispatchTopLevel
		// dispatches them inline via dispatchCore — so this bucket is fixed
		// for the duration of the loop.
		bucket := k.queue.bucket(key)
		for i := 0; i < len(bucket); i++ {
			event := bucket[i]
			k.dispatchTopLevel(event)
			endTsNs = event.TsNs
			if k.fatalErr != nil {
				status = StatusAborted
				break bucketLoop
			}
		}

		if k.cfg.EnableCheckpointing && k.checkpt != nil && k.cfg.CheckpointInterval > 0 &&
			k.eventsProcessed > 0 && k.eventsProcessed%k.cfg.CheckpointInterval == 0 {
			snap := k.portfolio.Snapshot(endTsNs)
			if err := k.checkpt.WriteCheckpoint(k.eventsProcessed, snap); err != nil {
				k.logger.Error("checkpoint write failed", "error", err, "events", k.eventsProcessed)
				k.recordError(fmt.Errorf("checkpoint at %d events: %w", k.eventsProcessed, errs.ErrIO))
			}
		}
	}

	duration := time.Since(start)
	finalSnapshot := k.portfolio.Snapshot(endTsNs)

	if k.cfg.EnableProgressReporting {
		k.logger.Info("backtest complete",
			"events_processed", k.eventsProcessed,
			"duration", duration,
			"status", status,
			"final_cash", k.portfolio.Cash(),
			"realized_pnl", k.portfolio.RealizedPnL(),
		)
	}

	return BacktestResult{
		StartTsNs:       startTsNs,
		EndTsNs:         endTsNs,
		EventsProcessed: k.eventsProcessed,
		FinalPortfolio:  finalSnapshot,
		Performance:     k.buildPerformanceSnapshot(duration),
		StrategyState:   k.strategy.GetState(),
		Duration:        duration,
		Status:          status,
		Errors:          k.runErrors,
	}
}

func (k *Kernel) buildPerformanceSnapshot(duration time.Duration) PerformanceSnapshot {
	perKind := make(map[simtypes.EventKind]LatencyStats, len(k.latencyByKind))
	for kind, h := range k.latencyByKind {
		perKind[kind] = statsFromHistogram(h)
	}
	eps := 0.0
	if duration > 0 {
		eps = float64(k.eventsProcessed) / duration.Seconds()
	}
	return PerformanceSnapshot{
		BacktestDuration: duration,
		EventsPerSecond:  eps,
		PerKindLatency:   perKind,
		OrderLatency:     statsFromHistogram(k.orderLatency),
		FillCounts:       k.fillCounts,
		AckCounts:        k.ackCounts,
	}
}

// dispatchTopLevel runs the full per-event protocol for one event drawn
// directly from the input queue: book/portfolio update,
// strategy.OnEvent, order routing, and latency accounting. Events
// synthesised while routing an order (acks, fills) go through
// dispatchCore only — see routeOrder.
func (k *Kernel) dispatchTopLevel(event simtypes.Event) {
	markerStart := time.Now()

	if err := k.dispatchCore(event); err != nil {
		k.handleBookkeepingError(err)
		return
	}

	snapshot := k.portfolio.Snapshot(event.TsNs)
	orders, err := k.invokeOnEvent(event, snapshot)
	if err != nil {
		k.recordError(fmt.Errorf("strategy.OnEvent: %w", err))
		if k.cfg.StrictMode {
			k.fatalErr = err
			return
		}
	}

	for _, order := range orders {
		k.routeOrder(order, event.TsNs)
	}

	elapsed := time.Since(markerStart)
	ticks := elapsed.Nanoseconds() / 100
	k.latencyByKind[event.Kind].RecordTicks(ticks)
	k.eventsProcessed++
}

// dispatchCore performs the kind-dependent book/portfolio mutation and
// strategy notification shared by top-level and synthesised events.
func (k *Kernel) dispatchCore(event simtypes.Event) error {
	switch event.Kind {
	case simtypes.EventMarketData:
		tick, _ := event.Tick()
		k.applyTickToBook(tick)
		k.portfolio.UpdateMarketData(tick)
	case simtypes.EventQuote:
		quote, _ := event.QuoteUpdate()
		book := k.books[quote.Symbol]
		book.BestBid = quote.BidPx
		book.BestAsk = quote.AskPx
		book.LastUpdateNs = quote.TsNs
		k.books[quote.Symbol] = book
		k.portfolio.UpdateQuote(quote)
	case simtypes.EventFill:
		fill, _ := event.Fill()
		if err := k.applyFill(fill); err != nil {
			return err
		}
		snapshot := k.portfolio.Snapshot(fill.TsNs)
		k.strategy.OnFill(fill, snapshot)
	case simtypes.EventOrderAck:
		ack, _ := event.OrderAck()
		k.recordAckStatus(ack)
		k.strategy.OnOrderAck(ack)
	}
	return nil
}

// applyTickToBook stores the tick as a synthetic single-level book on its
// side: a trade touches both sides at the traded price (it represents a
// cross), a bid/ask tick sets only that side.
func (k *Kernel) applyTickToBook(tick simtypes.MarketTick) {
	book := k.books[tick.Symbol]
	switch tick.Kind {
	case simtypes.Bid:
		book.BestBid = tick.Price
	case simtypes.Ask:
		book.BestAsk = tick.Price
	default: // Trade, Quote: synthetic two-sided touch at the traded price
		book.BestBid = tick.Price
		book.BestAsk = tick.Price
	}
	book.LastUpdateNs = tick.TsNs
	k.books[tick.Symbol] = book
}

// applyFill enforces the terminal-state invariant before delegating to
// the portfolio, and tracks per-symbol fill counts and the order's
// position in the state machine.
func (k *Kernel) applyFill(fill simtypes.Fill) error {
	if status, ok := k.orderStatus[fill.OrderID]; ok && status.Terminal() {
		return fmt.Errorf("fill for terminal order %s (status %s): %w", fill.OrderID, status, errs.ErrBookkeeping)
	}
	if !fill.LeavesQty.IsZero() && fill.FilledQty.IsZero() {
		return fmt.Errorf("fill %s: leaves_qty %s inconsistent with zero filled_qty: %w", fill.OrderID, fill.LeavesQty, errs.ErrBookkeeping)
	}
	if err := k.portfolio.ApplyFill(fill); err != nil {
		return fmt.Errorf("apply fill %s: %w", fill.OrderID, err)
	}
	if fill.LeavesQty.IsZero() {
		k.orderStatus[fill.OrderID] = simtypes.StatusFilled
	} else {
		k.orderStatus[fill.OrderID] = simtypes.StatusPartiallyFilled
	}
	sym := k.orderSymbols[fill.OrderID]
	k.fillCounts[sym]++
	return nil
}

func (k *Kernel) recordAckStatus(ack simtypes.OrderAck) {
	k.orderStatus[ack.OrderID] = ack.Status
	k.ackCounts[ack.Status]++
}

// invokeOnEvent calls strategy.OnEvent, converting a panic into a
// StrategyFault error so a misbehaving strategy cannot corrupt the run.
func (k *Kernel) invokeOnEvent(event simtypes.Event, snapshot simtypes.PortfolioState) (orders []simtypes.Order, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v: %w", r, errs.ErrStrategyFault)
		}
	}()
	return k.strategy.OnEvent(event, snapshot)
}

// routeOrder runs the risk check, synthesised ack, fill model, and
// portfolio feedback for one candidate order. Synthesised acks and fills
// are dispatched through dispatchCore only — they do not recurse into
// strategy.OnEvent or the top-level latency/throughput counters, which
// are accounted only against the originating event.
func (k *Kernel) routeOrder(order simtypes.Order, tsNs uint64) {
	orderMarker := time.Now()
	defer func() {
		k.orderLatency.RecordTicks(time.Since(orderMarker).Nanoseconds() / 100)
	}()

	if reason, malformed := malformedOrderReason(order); malformed {
		k.logger.Warn("rejecting malformed order", "order_id", order.OrderID, "reason", reason)
		k.synthesizeAck(order, simtypes.StatusRejected, reason, tsNs)
		return
	}

	k.portfolio.RegisterOrder(order.OrderID, order.Symbol)
	k.orderSymbols[order.OrderID] = order.Symbol
	snapshot := k.portfolio.Snapshot(tsNs)

	if ok, reason := k.risk.Check(order, snapshot, k.books[order.Symbol]); !ok {
		k.synthesizeAck(order, simtypes.StatusRejected, reason, tsNs)
		return
	}

	k.synthesizeAck(order, simtypes.StatusAccepted, "", tsNs)
	if k.fatalErr != nil {
		return
	}

	fills, err := k.runFillModel(order)
	if err != nil {
		k.recordError(fmt.Errorf("fill model for order %s: %w", order.OrderID, err))
		if k.cfg.StrictMode {
			k.fatalErr = err
		}
		return
	}

	for _, fill := range fills {
		fillEvent := simtypes.NewFillEvent(k.queue.nextSeq(), fill)
		fillEvent.TsNs = tsNs
		if err := k.dispatchCore(fillEvent); err != nil {
			k.handleBookkeepingError(err)
			return
		}
	}
}

// runFillModel calls the fill model, converting a panic into a local
// fill-model fault rather than letting it escape the dispatch loop.
func (k *Kernel) runFillModel(order simtypes.Order) (fills []simtypes.Fill, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fill model panic: %v: %w", r, errs.ErrStrategyFault)
		}
	}()
	book := k.books[order.Symbol]
	return k.fillModel.Fill(order, book)
}

// synthesizeAck builds and dispatches an OrderAck for order, assigning a
// fresh exchange id from the monotonic counter on acceptance.
func (k *Kernel) synthesizeAck(order simtypes.Order, status simtypes.OrderStatus, reason string, tsNs uint64) {
	exchangeID := ""
	if status == simtypes.StatusAccepted {
		k.exchangeSeq++
		exchangeID = fmt.Sprintf("EX-%d", k.exchangeSeq)
	}
	ack := simtypes.OrderAck{
		OrderID:    order.OrderID,
		ExchangeID: exchangeID,
		Status:     status,
		TsNs:       tsNs,
		Reason:     reason,
	}
	ackEvent := simtypes.NewOrderAckEvent(k.queue.nextSeq(), ack)
	ackEvent.TsNs = tsNs
	if err := k.dispatchCore(ackEvent); err != nil {
		k.handleBookkeepingError(err)
	}
}

// malformedOrderReason validates an order for strategy faults:
// zero/negative quantity, unknown side, or a non-positive limit price on
// a limit order.
func malformedOrderReason(order simtypes.Order) (string, bool) {
	if order.Qty.IsZero() || order.Qty.IsNegative() {
		return "malformed order: non-positive quantity", true
	}
	switch order.Side {
	case simtypes.SideBuy, simtypes.SideSell:
	default:
		return "malformed order: unknown side", true
	}
	if order.Type == simtypes.OrderLimit && !order.LimitPx.IsPositive() {
		return "malformed order: non-positive limit price", true
	}
	return "", false
}

// recordError appends err to the run-level error list, logging the first
// one at Error and later ones at Warn. It does not stop the run; callers
// set fatalErr themselves when StrictMode applies.
func (k *Kernel) recordError(err error) {
	if len(k.runErrors) == 0 {
		k.logger.Error("run error", "error", err)
	} else {
		k.logger.Warn("subsequent run error", "error", err)
	}
	k.runErrors = append(k.runErrors, err)
}

// handleBookkeepingError classifies a bookkeeping violation: fatal in
// strict mode, logged and dropped otherwise.
func (k *Kernel) handleBookkeepingError(err error) {
	k.recordError(err)
	if k.cfg.StrictMode {
		k.fatalErr = err
	}
}
