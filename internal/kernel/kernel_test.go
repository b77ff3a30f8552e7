package kernel

import (
	"context"
	"log/slog"
	"testing"

	"optbacktest/internal/matching"
	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// scriptedStrategy emits orders on demand and records everything the
// kernel hands it back, for deterministic behavioural assertions without
// depending on the reference covered-call implementation.
type scriptedStrategy struct {
	onEvent func(event simtypes.Event, snapshot simtypes.PortfolioState) ([]simtypes.Order, error)

	fills []simtypes.Fill
	acks  []simtypes.OrderAck
}

func (s *scriptedStrategy) OnEvent(event simtypes.Event, snapshot simtypes.PortfolioState) ([]simtypes.Order, error) {
	if s.onEvent == nil {
		return nil, nil
	}
	return s.onEvent(event, snapshot)
}

func (s *scriptedStrategy) OnFill(fill simtypes.Fill, snapshot simtypes.PortfolioState) {
	s.fills = append(s.fills, fill)
}

func (s *scriptedStrategy) OnOrderAck(ack simtypes.OrderAck) {
	s.acks = append(s.acks, ack)
}

func (s *scriptedStrategy) GetState() map[string]any { return nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialCash = decimal.NewFromInt(100_000)
	return cfg
}

func newTestKernel(strat Strategy, risk matching.RiskPredicate) *Kernel {
	if risk == nil {
		risk = matching.NewDefaultRiskPredicate(matching.RiskConfig{})
	}
	return New(testConfig(), matching.NewDefaultFillModel(), risk, strat, nil, slog.Default())
}

func TestEmptyRunProducesZeroEventsAndOKStatus(t *testing.T) {
	strat := &scriptedStrategy{}
	k := newTestKernel(strat, nil)

	result := k.Run(context.Background())

	if result.Status != StatusOk {
		t.Errorf("Status = %v, want StatusOk", result.Status)
	}
	if result.EventsProcessed != 0 {
		t.Errorf("EventsProcessed = %d, want 0", result.EventsProcessed)
	}
	if !result.FinalPortfolio.Cash.Equal(decimal.NewFromInt(100_000)) {
		t.Errorf("FinalPortfolio.Cash = %s, want 100000 (no events, no cash movement)", result.FinalPortfolio.Cash)
	}
}

func TestThreeTickDispatchOrderIsDeterministic(t *testing.T) {
	var order []simtypes.Symbol
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, _ simtypes.PortfolioState) ([]simtypes.Order, error) {
			if tick, err := event.Tick(); err == nil {
				order = append(order, tick.Symbol)
			}
			return nil, nil
		},
	}
	k := newTestKernel(strat, nil)

	// All three ticks share a timestamp; insertion order must be preserved
	// since they all carry the same MarketData priority.
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "AAA", Price: decimal.NewFromInt(1), Kind: simtypes.Trade})
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "BBB", Price: decimal.NewFromInt(1), Kind: simtypes.Trade})
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "CCC", Price: decimal.NewFromInt(1), Kind: simtypes.Trade})

	result := k.Run(context.Background())

	if result.EventsProcessed != 3 {
		t.Fatalf("EventsProcessed = %d, want 3", result.EventsProcessed)
	}
	want := []simtypes.Symbol{"AAA", "BBB", "CCC"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("dispatch order = %v, want %v", order, want)
	}
}

func TestMarketBuyOrderFillsAgainstTouchedAsk(t *testing.T) {
	emitted := false
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, snapshot simtypes.PortfolioState) ([]simtypes.Order, error) {
			if emitted {
				return nil, nil
			}
			if _, err := event.Tick(); err != nil {
				return nil, nil
			}
			emitted = true
			return []simtypes.Order{{
				OrderID: "TEST_SPY_1", Symbol: "SPY", Side: simtypes.SideBuy,
				Type: simtypes.OrderMarket, Qty: decimal.NewFromInt(10), TsNs: 1000,
			}}, nil
		},
	}
	k := newTestKernel(strat, nil)
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "SPY", Price: decimal.NewFromInt(100), Kind: simtypes.Trade})

	result := k.Run(context.Background())

	if result.Status != StatusOk {
		t.Fatalf("Status = %v, want StatusOk", result.Status)
	}
	if len(strat.acks) != 1 || strat.acks[0].Status != simtypes.StatusAccepted {
		t.Fatalf("acks = %+v, want a single Accepted ack", strat.acks)
	}
	if len(strat.fills) != 1 {
		t.Fatalf("fills = %+v, want a single fill", strat.fills)
	}
	if !strat.fills[0].FilledQty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("FilledQty = %s, want 10", strat.fills[0].FilledQty)
	}
	pos, ok := result.FinalPortfolio.Positions["SPY"]
	if !ok || !pos.Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("final SPY position = %+v, want Qty 10", pos)
	}
}

func TestNonCrossingLimitOrderProducesNoFill(t *testing.T) {
	emitted := false
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, _ simtypes.PortfolioState) ([]simtypes.Order, error) {
			if emitted {
				return nil, nil
			}
			if _, err := event.Tick(); err != nil {
				return nil, nil
			}
			emitted = true
			// The synthetic two-sided touch sets bid=ask=100; a buy limit
			// below that never crosses.
			return []simtypes.Order{{
				OrderID: "TEST_SPY_1", Symbol: "SPY", Side: simtypes.SideBuy,
				Type: simtypes.OrderLimit, Qty: decimal.NewFromInt(10),
				LimitPx: decimal.NewFromInt(90), TsNs: 1000,
			}}, nil
		},
	}
	k := newTestKernel(strat, nil)
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "SPY", Price: decimal.NewFromInt(100), Kind: simtypes.Trade})

	_ = k.Run(context.Background())

	if len(strat.fills) != 0 {
		t.Errorf("fills = %+v, want none for a non-crossing limit order", strat.fills)
	}
	if len(strat.acks) != 1 || strat.acks[0].Status != simtypes.StatusAccepted {
		t.Errorf("acks = %+v, want a single Accepted ack (the order is still live, just unfilled)", strat.acks)
	}
}

func TestCrossingLimitOrderFills(t *testing.T) {
	emitted := false
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, _ simtypes.PortfolioState) ([]simtypes.Order, error) {
			if emitted {
				return nil, nil
			}
			if _, err := event.Tick(); err != nil {
				return nil, nil
			}
			emitted = true
			return []simtypes.Order{{
				OrderID: "TEST_SPY_1", Symbol: "SPY", Side: simtypes.SideBuy,
				Type: simtypes.OrderLimit, Qty: decimal.NewFromInt(10),
				LimitPx: decimal.NewFromInt(110), TsNs: 1000,
			}}, nil
		},
	}
	k := newTestKernel(strat, nil)
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "SPY", Price: decimal.NewFromInt(100), Kind: simtypes.Trade})

	_ = k.Run(context.Background())

	if len(strat.fills) != 1 {
		t.Fatalf("fills = %+v, want a single fill for a crossing limit order", strat.fills)
	}
	if !strat.fills[0].FillPx.Equal(decimal.NewFromInt(100)) {
		t.Errorf("FillPx = %s, want 100 (the touched ask)", strat.fills[0].FillPx)
	}
}

func TestOversizedOrderRejectedByRisk(t *testing.T) {
	emitted := false
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, _ simtypes.PortfolioState) ([]simtypes.Order, error) {
			if emitted {
				return nil, nil
			}
			if _, err := event.Tick(); err != nil {
				return nil, nil
			}
			emitted = true
			return []simtypes.Order{{
				OrderID: "TEST_SPY_1", Symbol: "SPY", Side: simtypes.SideBuy,
				Type: simtypes.OrderLimit, Qty: decimal.NewFromInt(10_000),
				LimitPx: decimal.NewFromInt(110), TsNs: 1000,
			}}, nil
		},
	}
	risk := matching.NewDefaultRiskPredicate(matching.RiskConfig{MaxOrderNotional: decimal.NewFromInt(1_000)})
	k := newTestKernel(strat, risk)
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "SPY", Price: decimal.NewFromInt(100), Kind: simtypes.Trade})

	_ = k.Run(context.Background())

	if len(strat.fills) != 0 {
		t.Errorf("fills = %+v, want none: order should have been rejected", strat.fills)
	}
	if len(strat.acks) != 1 || strat.acks[0].Status != simtypes.StatusRejected {
		t.Fatalf("acks = %+v, want a single Rejected ack", strat.acks)
	}
	if strat.acks[0].Reason == "" {
		t.Error("a rejected ack must carry a human-readable reason")
	}
}

func TestOversizedMarketOrderRejectedOnFirstTouch(t *testing.T) {
	emitted := false
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, _ simtypes.PortfolioState) ([]simtypes.Order, error) {
			if emitted {
				return nil, nil
			}
			if _, err := event.Tick(); err != nil {
				return nil, nil
			}
			emitted = true
			// No prior position exists for SPY, so the risk check must
			// price this market order's notional off the book the
			// preceding tick just populated, not off LimitPx (zero for
			// a market order).
			return []simtypes.Order{{
				OrderID: "TEST_SPY_1", Symbol: "SPY", Side: simtypes.SideBuy,
				Type: simtypes.OrderMarket, Qty: decimal.NewFromInt(10_000), TsNs: 1000,
			}}, nil
		},
	}
	risk := matching.NewDefaultRiskPredicate(matching.RiskConfig{MaxOrderNotional: decimal.NewFromInt(1_000)})
	k := newTestKernel(strat, risk)
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "SPY", Price: decimal.NewFromInt(100), Kind: simtypes.Trade})

	_ = k.Run(context.Background())

	if len(strat.fills) != 0 {
		t.Errorf("fills = %+v, want none: order should have been rejected", strat.fills)
	}
	if len(strat.acks) != 1 || strat.acks[0].Status != simtypes.StatusRejected {
		t.Fatalf("acks = %+v, want a single Rejected ack", strat.acks)
	}
}

func TestMalformedOrderRejectedWithoutReachingRiskOrFillModel(t *testing.T) {
	emitted := false
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, _ simtypes.PortfolioState) ([]simtypes.Order, error) {
			if emitted {
				return nil, nil
			}
			if _, err := event.Tick(); err != nil {
				return nil, nil
			}
			emitted = true
			return []simtypes.Order{{
				OrderID: "TEST_SPY_1", Symbol: "SPY", Side: simtypes.SideBuy,
				Type: simtypes.OrderMarket, Qty: decimal.Zero, TsNs: 1000,
			}}, nil
		},
	}
	k := newTestKernel(strat, nil)
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "SPY", Price: decimal.NewFromInt(100), Kind: simtypes.Trade})

	_ = k.Run(context.Background())

	if len(strat.acks) != 1 || strat.acks[0].Status != simtypes.StatusRejected {
		t.Fatalf("acks = %+v, want a single Rejected ack for a zero-quantity order", strat.acks)
	}
}

func TestStrategyPanicIsContainedAsRunError(t *testing.T) {
	strat := &scriptedStrategy{
		onEvent: func(event simtypes.Event, _ simtypes.PortfolioState) ([]simtypes.Order, error) {
			panic("boom")
		},
	}
	k := newTestKernel(strat, nil)
	k.AddTick(simtypes.MarketTick{TsNs: 1000, Symbol: "SPY", Price: decimal.NewFromInt(100), Kind: simtypes.Trade})

	result := k.Run(context.Background())

	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %+v, want exactly one (the contained panic)", result.Errors)
	}
	if result.Status != StatusOk {
		t.Errorf("Status = %v, want StatusOk (non-strict mode tolerates a strategy fault)", result.Status)
	}
}

func TestRunTwicePanics(t *testing.T) {
	strat := &scriptedStrategy{}
	k := newTestKernel(strat, nil)

	k.Run(context.Background())

	defer func() {
		if recover() == nil {
			t.Error("expected a panic calling Run a second time")
		}
	}()
	k.Run(context.Background())
}
