package portfolio

import (
	"log/slog"
	"testing"

	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func fill(orderID string, qty, px, commission string, ts uint64) simtypes.Fill {
	return simtypes.Fill{
		OrderID:    orderID,
		FilledQty:  dec(qty),
		FillPx:     dec(px),
		Commission: dec(commission),
		TsNs:       ts,
	}
}

func TestApplyFillOpensPosition(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	p.RegisterOrder("ORD_SPY_1", "SPY")

	if err := p.ApplyFill(fill("ORD_SPY_1", "100", "101.00", "0.65", 1000)); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}

	pos, ok := p.Position("SPY")
	if !ok {
		t.Fatal("expected SPY position to exist")
	}
	if !pos.Qty.Equal(dec("100")) {
		t.Errorf("Qty = %v, want 100", pos.Qty)
	}
	if !pos.AvgPx.Equal(dec("101.00")) {
		t.Errorf("AvgPx = %v, want 101.00", pos.AvgPx)
	}

	wantCash := dec("100000").Sub(dec("100").Mul(dec("101.00"))).Sub(dec("0.65"))
	if !p.Cash().Equal(wantCash) {
		t.Errorf("Cash = %v, want %v", p.Cash(), wantCash)
	}
}

func TestApplyFillIncreasesBlendsAvgPx(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	p.RegisterOrder("ORD_SPY_1", "SPY")

	mustApply(t, p, fill("ORD_SPY_1", "100", "100.00", "0", 1000))
	mustApply(t, p, fill("ORD_SPY_1", "100", "110.00", "0", 2000))

	pos, _ := p.Position("SPY")
	if !pos.Qty.Equal(dec("200")) {
		t.Errorf("Qty = %v, want 200", pos.Qty)
	}
	if !pos.AvgPx.Equal(dec("105")) {
		t.Errorf("AvgPx = %v, want 105 (blended)", pos.AvgPx)
	}
}

func TestApplyFillPartialCloseRealizesPnL(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	p.RegisterOrder("ORD_SPY_1", "SPY")

	mustApply(t, p, fill("ORD_SPY_1", "100", "100.00", "0", 1000))
	mustApply(t, p, fill("ORD_SPY_1", "-40", "110.00", "0", 2000))

	pos, ok := p.Position("SPY")
	if !ok {
		t.Fatal("expected residual SPY position")
	}
	if !pos.Qty.Equal(dec("60")) {
		t.Errorf("Qty = %v, want 60", pos.Qty)
	}
	if !pos.AvgPx.Equal(dec("100.00")) {
		t.Errorf("AvgPx = %v, want 100.00 (unchanged on close)", pos.AvgPx)
	}

	wantRealized := dec("400") // (110-100)*40
	if !p.RealizedPnL().Equal(wantRealized) {
		t.Errorf("RealizedPnL = %v, want %v", p.RealizedPnL(), wantRealized)
	}
}

func TestApplyFillExactCloseDropsPosition(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	p.RegisterOrder("ORD_SPY_1", "SPY")

	mustApply(t, p, fill("ORD_SPY_1", "100", "100.00", "0", 1000))
	mustApply(t, p, fill("ORD_SPY_1", "-100", "105.00", "0", 2000))

	if _, ok := p.Position("SPY"); ok {
		t.Error("position should be removed once qty returns to zero")
	}
	if !p.RealizedPnL().Equal(dec("500")) {
		t.Errorf("RealizedPnL = %v, want 500", p.RealizedPnL())
	}
}

func TestApplyFillFlipRealizesThenReopens(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	p.RegisterOrder("ORD_SPY_1", "SPY")

	mustApply(t, p, fill("ORD_SPY_1", "100", "100.00", "0", 1000))
	mustApply(t, p, fill("ORD_SPY_1", "-150", "110.00", "0", 2000))

	pos, ok := p.Position("SPY")
	if !ok {
		t.Fatal("expected a new short position after the flip")
	}
	if !pos.Qty.Equal(dec("-50")) {
		t.Errorf("Qty = %v, want -50", pos.Qty)
	}
	if !pos.AvgPx.Equal(dec("110.00")) {
		t.Errorf("AvgPx = %v, want 110.00 (reopened at fill price)", pos.AvgPx)
	}
	if !p.RealizedPnL().Equal(dec("1000")) { // (110-100)*100
		t.Errorf("RealizedPnL = %v, want 1000", p.RealizedPnL())
	}
}

// TestApplyFillOrderIDConvention checks that portfolio accounting falls
// back to splitting the order id on "_" when no explicit registration
// exists.
func TestApplyFillOrderIDConvention(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	if err := p.ApplyFill(fill("STRAT_SPY_42", "10", "50.00", "0.65", 1000)); err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	if _, ok := p.Position("SPY"); !ok {
		t.Error("expected SPY position inferred from order id convention")
	}
}

func TestApplyFillUnresolvableSymbolErrors(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	if err := p.ApplyFill(fill("nosymbol", "10", "50.00", "0", 1000)); err == nil {
		t.Error("expected an error for an order id with no resolvable symbol")
	}
}

// TestCashConservation cash + Σ qty·avg_px +
// realised_pnl is conserved against initial_cash minus commissions.
func TestCashConservation(t *testing.T) {
	t.Parallel()

	initial := dec("100000")
	p := New(initial, discardLogger())
	p.RegisterOrder("ORD_SPY_1", "SPY")

	fills := []simtypes.Fill{
		fill("ORD_SPY_1", "100", "100.00", "0.65", 1000),
		fill("ORD_SPY_1", "50", "102.00", "0.65", 2000),
		fill("ORD_SPY_1", "-80", "105.00", "0.65", 3000),
	}

	totalCommission := decimal.Zero
	for _, f := range fills {
		mustApply(t, p, f)
		totalCommission = totalCommission.Add(f.Commission)
	}

	posValue := decimal.Zero
	if pos, ok := p.Position("SPY"); ok {
		posValue = pos.Qty.Mul(pos.AvgPx)
	}

	got := p.Cash().Add(posValue).Add(p.RealizedPnL())
	want := initial.Sub(totalCommission)
	if !got.Equal(want) {
		t.Errorf("cash conservation: got %v, want %v", got, want)
	}
}

// TestNetGreeksAdditivity .
func TestNetGreeksAdditivity(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	p.RegisterOrder("ORD_OPT_1", "SPY240119C00450000")
	mustApply(t, p, fill("ORD_OPT_1", "10", "5.00", "0", 1000))
	p.SetGreeks("SPY240119C00450000", simtypes.Greeks{Delta: 0.5, Gamma: 0.02, Vega: 0.3})

	snap := p.Snapshot(1000)
	qty, _ := dec("10").Float64()
	want := simtypes.Greeks{Delta: 0.5, Gamma: 0.02, Vega: 0.3}.Scale(qty)
	if snap.NetGreeks != want {
		t.Errorf("NetGreeks = %+v, want %+v", snap.NetGreeks, want)
	}
}

func TestSnapshotDoesNotAliasLivePositions(t *testing.T) {
	t.Parallel()

	p := New(dec("100000"), discardLogger())
	p.RegisterOrder("ORD_SPY_1", "SPY")
	mustApply(t, p, fill("ORD_SPY_1", "10", "100.00", "0", 1000))

	snap := p.Snapshot(1000)
	snap.Positions["SPY"] = simtypes.Position{Symbol: "SPY", Qty: dec("999")}

	pos, _ := p.Position("SPY")
	if pos.Qty.Equal(dec("999")) {
		t.Error("mutating a snapshot must not affect the live portfolio")
	}
}

func mustApply(t *testing.T, p *Portfolio, f simtypes.Fill) {
	t.Helper()
	if err := p.ApplyFill(f); err != nil {
		t.Fatalf("ApplyFill(%+v): %v", f, err)
	}
}
