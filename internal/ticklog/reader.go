package ticklog

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"optbacktest/internal/errs"
	"optbacktest/internal/simtypes"

	"github.com/shopspring/decimal"
)

// Reader streams ticks and quotes out of a tick-log file in on-disk
// order. ReadAny distinguishes a 39-byte quote record from a 27-byte
// trade/bid/ask record by peeking the kind byte: kind=Quote is always the
// 39-byte layout.
type Reader struct {
	br     *bufio.Reader
	Header Header
}

// NewReader reads and validates the file header, then returns a Reader
// positioned at the first record. A malformed header is an input error
//, fatal before any record is read.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, fmt.Errorf("ticklog: read header: %w: %w", err, errs.ErrInput)
	}
	header, err := DecodeHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("ticklog: decode header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return nil, fmt.Errorf("ticklog: %w: %w", err, errs.ErrInput)
	}
	return &Reader{br: br, Header: header}, nil
}

// ReadTick reads the next 27-byte record and returns it as a
// simtypes.MarketTick. It does not check for a 39-byte quote record, so
// callers should use ReadAny unless they know the stream carries only
// trade/bid/ask records.
func (r *Reader) ReadTick() (simtypes.MarketTick, error) {
	buf := make([]byte, TradeRecordSize)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return simtypes.MarketTick{}, err
	}
	rec, err := DecodeTradeRecord(buf)
	if err != nil {
		return simtypes.MarketTick{}, err
	}
	return simtypes.MarketTick{
		TsNs:   rec.TsNs,
		Symbol: simtypes.Symbol(rec.Symbol),
		Price:  decimal.NewFromFloat(rec.Price()),
		Qty:    decimal.NewFromInt32(rec.Qty),
		Kind:   simtypes.TickKind(rec.Kind),
	}, nil
}

// ReadQuote reads the next 39-byte record and returns it as a
// simtypes.QuoteUpdate.
func (r *Reader) ReadQuote() (simtypes.QuoteUpdate, error) {
	buf := make([]byte, QuoteRecordSize)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return simtypes.QuoteUpdate{}, err
	}
	rec, err := DecodeQuoteRecord(buf)
	if err != nil {
		return simtypes.QuoteUpdate{}, err
	}
	return simtypes.QuoteUpdate{
		TsNs:   rec.TsNs,
		Symbol: simtypes.Symbol(rec.Symbol),
		BidPx:  decimal.NewFromFloat(rec.BidPrice()),
		BidSz:  decimal.NewFromInt32(rec.BidSize),
		AskPx:  decimal.NewFromFloat(rec.AskPrice()),
		AskSz:  decimal.NewFromInt32(rec.AskSize),
	}, nil
}

// ErrEOF is returned by ReadAny once the stream is exhausted cleanly; it
// is io.EOF itself, so callers can use errors.Is(err, io.EOF) or ErrEOF
// interchangeably.
var ErrEOF = io.EOF

// ReadAny reads the next record, returning exactly one of tick/quote
// populated depending on the record's on-disk size. It discriminates
// trade vs quote records by the kind byte (peeked without consuming) —
// kind=Quote always means a 39-byte record, any other kind a 27-byte
// record.
func (r *Reader) ReadAny() (tick simtypes.MarketTick, quote simtypes.QuoteUpdate, isQuote bool, err error) {
	kindByte, err := r.br.Peek(9)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return simtypes.MarketTick{}, simtypes.QuoteUpdate{}, false, ErrEOF
		}
		return simtypes.MarketTick{}, simtypes.QuoteUpdate{}, false, err
	}
	kind := kindByte[8]
	if simtypes.TickKind(kind) == simtypes.Quote {
		q, err := r.ReadQuote()
		return simtypes.MarketTick{}, q, true, err
	}
	t, err := r.ReadTick()
	return t, simtypes.QuoteUpdate{}, false, err
}
