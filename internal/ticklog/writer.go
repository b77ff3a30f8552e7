package ticklog

import (
	"bufio"
	"fmt"
	"io"

	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// Writer appends fixed-record ticks and quotes to a tick-log file,
// symmetric with Reader. The engine itself never writes a
// tick log — only checkpoint snapshots — but the format is specified here
// so an external producer can populate one to feed the kernel.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter writes the file header and returns a Writer ready for
// records.
func NewWriter(w io.Writer, header Header) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(EncodeHeader(header)); err != nil {
		return nil, fmt.Errorf("ticklog: write header: %w", err)
	}
	return &Writer{bw: bw}, nil
}

// WriteTick appends a trade/bid/ask tick as a 27-byte record. A tick with
// Kind == simtypes.Quote must go through WriteQuote instead: writing it
// here would produce a 27-byte record carrying a quote kind byte, which
// ReadAny would then misparse as the start of a 39-byte quote record and
// desync the rest of the stream.
func (w *Writer) WriteTick(t simtypes.MarketTick) error {
	if t.Kind == simtypes.Quote {
		return fmt.Errorf("ticklog: WriteTick called with Kind=Quote for %s at ts=%d, use WriteQuote", t.Symbol, t.TsNs)
	}
	priceScaled := t.Price.Mul(scaleFactor).IntPart()
	qty := int32(t.Qty.IntPart())
	rec := TradeRecord{
		TsNs:        t.TsNs,
		Kind:        uint8(t.Kind),
		Symbol:      string(t.Symbol),
		PriceScaled: priceScaled,
		Qty:         qty,
	}
	_, err := w.bw.Write(EncodeTradeRecord(rec))
	return err
}

// WriteQuote appends a two-sided quote as a 39-byte record.
func (w *Writer) WriteQuote(q simtypes.QuoteUpdate) error {
	rec := QuoteRecord{
		TsNs:           q.TsNs,
		Symbol:         string(q.Symbol),
		BidPriceScaled: q.BidPx.Mul(scaleFactor).IntPart(),
		BidSize:        int32(q.BidSz.IntPart()),
		AskPriceScaled: q.AskPx.Mul(scaleFactor).IntPart(),
		AskSize:        int32(q.AskSz.IntPart()),
	}
	_, err := w.bw.Write(EncodeQuoteRecord(rec))
	return err
}

// Flush flushes any buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

var scaleFactor = decimal.NewFromInt(priceScale)
