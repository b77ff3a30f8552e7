package strategy

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"optbacktest/internal/config"
	"optbacktest/internal/optmath"
	"optbacktest/internal/portfolio"
	"optbacktest/internal/simtypes"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// referenceRiskFreeRate and referenceDividendYield are the fixed
	// pricing-model inputs the reference strategy uses when it has no
	// yield-curve or dividend feed of its own.
	referenceRiskFreeRate  = 0.04
	referenceDividendYield = 0.0
	// defaultImpliedVol is used when a quoted option price implies a
	// volatility the Newton+bisection solver can't back out (e.g. a
	// crossed or stale quote), so the strategy still has a Greeks
	// estimate to screen candidate contracts with.
	defaultImpliedVol = 0.30
)

type purposeKind int

const (
	purposeBuyUnderlying purposeKind = iota
	purposeBuyBackCall
	purposeSellCall
)

// orderPurpose remembers why CoveredCall sent an order, so OnFill and
// OnOrderAck can drive the roll state machine once the ack/fill for it
// comes back.
type orderPurpose struct {
	Underlying   simtypes.Symbol
	Kind         purposeKind
	TradedSymbol simtypes.Symbol
}

// contractView is the strategy's own view of one listed option: the last
// observed price and the Greeks/IV recomputed from it.
type contractView struct {
	Contract   simtypes.OptionContract
	LastPx     decimal.Decimal
	ImpliedVol float64
	Greeks     simtypes.Greeks
}

// CoveredCall is the reference strategy: for each
// configured underlying, hold a round lot of shares and keep exactly one
// short call against it, rolling it once the position nears expiry or
// has captured most of its premium.
//
// The rolling protocol: buy back the existing short call at market, then
// sell the call that selectContract picks on a later event (delta inside
// the configured band, days to expiry closest to target). The new
// contract's expiry is not compared with the one bought back, so the
// replacement is not guaranteed to be further-dated. Between those two
// steps the underlying is held uncovered, which GetState() reports via
// roll_pending so a caller can see the gap.
type CoveredCall struct {
	cfg    config.CoveredCallConfig
	logger *slog.Logger

	portfolio *portfolio.Portfolio
	flow      *FlowTracker

	symbols map[simtypes.Symbol]bool

	underlyingPx map[simtypes.Symbol]decimal.Decimal
	universe     map[simtypes.Symbol]contractView

	shortCall   map[simtypes.Symbol]simtypes.Symbol // underlying -> short option ticker
	rollPending map[simtypes.Symbol]bool
	pendingOrd  map[simtypes.Symbol]string // underlying -> in-flight order id
	orders      map[string]orderPurpose

	lastTsNs uint64
}

// NewCoveredCall constructs a CoveredCall strategy from cfg. Call
// AttachPortfolio once the owning kernel exists so the strategy can push
// recomputed Greeks back into the live portfolio for net-Greeks
// aggregation.
func NewCoveredCall(cfg config.CoveredCallConfig, logger *slog.Logger) *CoveredCall {
	if logger == nil {
		logger = slog.Default()
	}
	symbols := make(map[simtypes.Symbol]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[simtypes.Symbol(s)] = true
	}
	return &CoveredCall{
		cfg:          cfg,
		logger:       logger.With("component", "coveredcall"),
		flow:         NewFlowTracker(0.6),
		symbols:      symbols,
		underlyingPx: make(map[simtypes.Symbol]decimal.Decimal),
		universe:     make(map[simtypes.Symbol]contractView),
		shortCall:    make(map[simtypes.Symbol]simtypes.Symbol),
		rollPending:  make(map[simtypes.Symbol]bool),
		pendingOrd:   make(map[simtypes.Symbol]string),
		orders:       make(map[string]orderPurpose),
	}
}

// AttachPortfolio wires the live portfolio so recomputed option Greeks
// feed the kernel's net-Greeks aggregation. Safe to skip in tests that
// only care about order generation.
func (cc *CoveredCall) AttachPortfolio(p *portfolio.Portfolio) {
	cc.portfolio = p
}

// OnEvent implements kernel.Strategy.
func (cc *CoveredCall) OnEvent(event simtypes.Event, snapshot simtypes.PortfolioState) ([]simtypes.Order, error) {
	switch event.Kind {
	case simtypes.EventMarketData:
		tick, _ := event.Tick()
		cc.lastTsNs = tick.TsNs
		cc.observePrice(tick.Symbol, tick.Price, tick.TsNs)
		return cc.decide(tick.TsNs, snapshot), nil
	case simtypes.EventQuote:
		quote, _ := event.QuoteUpdate()
		cc.lastTsNs = quote.TsNs
		cc.observePrice(quote.Symbol, quote.Mid(), quote.TsNs)
		return cc.decide(quote.TsNs, snapshot), nil
	default:
		return nil, nil
	}
}

// observePrice updates either the underlying price table or the option
// universe, depending on whether symbol parses as an OCC ticker.
func (cc *CoveredCall) observePrice(symbol simtypes.Symbol, price decimal.Decimal, tsNs uint64) {
	cc.flow.RecordMark(symbol, price)

	parsed, err := optmath.ParseOCC(string(symbol))
	if err != nil {
		cc.underlyingPx[symbol] = price
		return
	}

	optType := simtypes.Put
	if parsed.IsCall {
		optType = simtypes.Call
	}
	view := cc.universe[symbol]
	view.Contract = simtypes.OptionContract{
		Ticker:     symbol,
		Underlying: simtypes.Symbol(parsed.Underlying),
		Strike:     decimal.NewFromFloat(parsed.Strike),
		ExpiryUTC:  parsed.Expiry,
		Type:       optType,
	}
	view.LastPx = price
	cc.recomputeGreeks(symbol, view, tsNs)
}

// recomputeGreeks rebuilds the IV/Greeks estimate for one option ticker
// from the latest observed price and underlying level, and pushes it to
// the live portfolio if attached.
func (cc *CoveredCall) recomputeGreeks(symbol simtypes.Symbol, view contractView, tsNs uint64) {
	underlyingPx, ok := cc.underlyingPx[view.Contract.Underlying]
	if !ok || underlyingPx.IsZero() || view.LastPx.IsZero() {
		cc.universe[symbol] = view
		return
	}

	s, _ := underlyingPx.Float64()
	k, _ := view.Contract.Strike.Float64()
	price, _ := view.LastPx.Float64()
	now := time.Unix(0, int64(tsNs)).UTC()
	t := view.Contract.YearsToExpiry(now)
	isCall := view.Contract.Type == simtypes.Call

	iv := optmath.ImpliedVol(price, s, k, t, referenceRiskFreeRate, referenceDividendYield, isCall)
	if math.IsNaN(iv) {
		iv = defaultImpliedVol
	}
	g := optmath.ComputeGreeks(s, k, t, iv, referenceRiskFreeRate, referenceDividendYield, isCall)

	view.ImpliedVol = iv
	view.Greeks = simtypes.Greeks{Delta: g.Delta, Gamma: g.Gamma, Theta: g.Theta, Vega: g.Vega, Rho: g.Rho}
	cc.universe[symbol] = view

	if cc.portfolio != nil {
		cc.portfolio.SetGreeks(symbol, view.Greeks)
	}
}

// decide evaluates every configured underlying against the roll/sell
// state machine and returns the orders, if any, it wants to place this
// event.
func (cc *CoveredCall) decide(tsNs uint64, snapshot simtypes.PortfolioState) []simtypes.Order {
	var orders []simtypes.Order
	for underlying := range cc.symbols {
		if cc.pendingOrd[underlying] != "" {
			continue // already have an order in flight for this name
		}
		if order, ok := cc.decideForUnderlying(underlying, tsNs, snapshot); ok {
			orders = append(orders, order)
		}
	}
	return orders
}

func (cc *CoveredCall) decideForUnderlying(underlying simtypes.Symbol, tsNs uint64, snapshot simtypes.PortfolioState) (simtypes.Order, bool) {
	if optionSym, short := cc.shortCall[underlying]; short {
		return cc.decideRoll(underlying, optionSym, tsNs, snapshot)
	}

	if cc.rollPending[underlying] {
		if contract, ok := cc.selectContract(underlying, tsNs); ok {
			lot := decimal.NewFromInt(int64(cc.cfg.LotSize))
			return cc.buildOrder(underlying, contract, simtypes.SideSell, lot, tsNs, purposeSellCall), true
		}
		return simtypes.Order{}, false
	}

	if len(cc.shortCall) >= cc.cfg.MaxPositions {
		return simtypes.Order{}, false
	}

	lot := decimal.NewFromInt(int64(cc.cfg.LotSize))
	sharesPos, hasShares := snapshot.Positions[underlying]
	if !hasShares || sharesPos.Qty.LessThan(lot) {
		return cc.buildOrder(underlying, underlying, simtypes.SideBuy, lot, tsNs, purposeBuyUnderlying), true
	}

	if contract, ok := cc.selectContract(underlying, tsNs); ok {
		return cc.buildOrder(underlying, contract, simtypes.SideSell, lot, tsNs, purposeSellCall), true
	}
	return simtypes.Order{}, false
}

// decideRoll checks the roll_at_dte / roll_at_pnl_percent triggers for an
// existing short call and, if either fires, buys it back at market.
func (cc *CoveredCall) decideRoll(underlying, optionSym simtypes.Symbol, tsNs uint64, snapshot simtypes.PortfolioState) (simtypes.Order, bool) {
	pos, ok := snapshot.Positions[optionSym]
	if !ok {
		return simtypes.Order{}, false
	}

	daysToExpiry := -1
	if view, ok := cc.universe[optionSym]; ok {
		now := time.Unix(0, int64(tsNs)).UTC()
		daysToExpiry = int(view.Contract.ExpiryUTC.Sub(now).Hours() / 24)
	}

	pnlPercent := 0.0
	if !pos.AvgPx.IsZero() {
		// Short call: profit is captured as the mark falls below the
		// entry credit.
		pct, _ := pos.AvgPx.Sub(pos.MarkPx).Div(pos.AvgPx).Mul(decimal.NewFromInt(100)).Float64()
		pnlPercent = pct
	}

	triggered := (daysToExpiry >= 0 && daysToExpiry <= cc.cfg.RollAtDTE) || pnlPercent >= cc.cfg.RollAtPnLPercent
	if !triggered {
		return simtypes.Order{}, false
	}

	qty := pos.Qty.Abs()
	return cc.buildOrder(underlying, optionSym, simtypes.SideBuy, qty, tsNs, purposeBuyBackCall), true
}

// selectContract scans the observed option universe for the best call
// candidate for underlying: delta inside [min_delta, max_delta] and days
// to expiry closest to target_days_to_expiry.
func (cc *CoveredCall) selectContract(underlying simtypes.Symbol, tsNs uint64) (simtypes.Symbol, bool) {
	now := time.Unix(0, int64(tsNs)).UTC()
	var best simtypes.Symbol
	bestDiff := -1
	found := false

	for sym, view := range cc.universe {
		if view.Contract.Underlying != underlying || view.Contract.Type != simtypes.Call {
			continue
		}
		if view.Greeks.Delta < cc.cfg.MinDelta || view.Greeks.Delta > cc.cfg.MaxDelta {
			continue
		}
		dte := int(view.Contract.ExpiryUTC.Sub(now).Hours() / 24)
		diff := dte - cc.cfg.TargetDaysToExpiry
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < bestDiff {
			best = sym
			bestDiff = diff
			found = true
		}
	}
	return best, found
}

// buildOrder constructs a market order, assigns it a fresh uuid-suffixed
// id following the "<PREFIX>_<SYMBOL>_..." convention,
// and records its purpose so OnFill/OnOrderAck can drive the state
// machine once it settles.
func (cc *CoveredCall) buildOrder(underlying, tradedSymbol simtypes.Symbol, side simtypes.Side, qty decimal.Decimal, tsNs uint64, kind purposeKind) simtypes.Order {
	id := fmt.Sprintf("CC_%s_%s", tradedSymbol, uuid.New().String())
	cc.pendingOrd[underlying] = id
	cc.orders[id] = orderPurpose{Underlying: underlying, Kind: kind, TradedSymbol: tradedSymbol}

	return simtypes.Order{
		OrderID: id,
		Symbol:  tradedSymbol,
		Side:    side,
		Type:    simtypes.OrderMarket,
		Qty:     qty,
		TIF:     simtypes.TIFIOC,
		TsNs:    tsNs,
	}
}

// OnFill implements kernel.Strategy: advances the roll state machine once
// an order this strategy sent settles.
func (cc *CoveredCall) OnFill(fill simtypes.Fill, snapshot simtypes.PortfolioState) {
	purpose, ok := cc.orders[fill.OrderID]
	if !ok {
		return // externally injected fill this strategy didn't originate
	}
	cc.flow.RecordFill(fill, purpose.TradedSymbol)

	if !fill.LeavesQty.IsZero() {
		return // partially filled; wait for the rest before transitioning
	}

	delete(cc.orders, fill.OrderID)
	if cc.pendingOrd[purpose.Underlying] == fill.OrderID {
		delete(cc.pendingOrd, purpose.Underlying)
	}

	switch purpose.Kind {
	case purposeBuyUnderlying:
		// Nothing further; the next decide() call sells the call now
		// that the round lot is held.
	case purposeBuyBackCall:
		delete(cc.shortCall, purpose.Underlying)
		cc.rollPending[purpose.Underlying] = true
		cc.logger.Info("rolled off short call", "underlying", purpose.Underlying, "option", purpose.TradedSymbol)
	case purposeSellCall:
		cc.shortCall[purpose.Underlying] = purpose.TradedSymbol
		cc.rollPending[purpose.Underlying] = false
		cc.logger.Info("sold covered call", "underlying", purpose.Underlying, "option", purpose.TradedSymbol)
	}
}

// OnOrderAck implements kernel.Strategy: clears the in-flight guard for a
// rejected order so decide() retries on the next event.
func (cc *CoveredCall) OnOrderAck(ack simtypes.OrderAck) {
	purpose, ok := cc.orders[ack.OrderID]
	if !ok {
		return
	}
	if ack.Status != simtypes.StatusRejected {
		return
	}
	cc.logger.Warn("order rejected", "order_id", ack.OrderID, "reason", ack.Reason)
	delete(cc.orders, ack.OrderID)
	if cc.pendingOrd[purpose.Underlying] == ack.OrderID {
		delete(cc.pendingOrd, purpose.Underlying)
	}
}

// GetState implements kernel.Strategy: exposes the roll state machine and
// the flow-toxicity diagnostic for logging/inspection.
func (cc *CoveredCall) GetState() map[string]any {
	shortCalls := make(map[string]string, len(cc.shortCall))
	for u, opt := range cc.shortCall {
		shortCalls[string(u)] = string(opt)
	}
	rollPending := make(map[string]bool, len(cc.rollPending))
	for u, pending := range cc.rollPending {
		if pending {
			rollPending[string(u)] = true
		}
	}

	return map[string]any{
		"short_calls":  shortCalls,
		"roll_pending": rollPending,
		"toxicity":     cc.flow.Metrics(cc.lastTsNs),
	}
}
