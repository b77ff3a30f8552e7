// Package ticklog implements the fixed-record binary tick-log codec: a
// 64-byte file header followed by 27-byte trade/bid/ask records and
// 39-byte quote records. The engine only needs the reader side; the
// writer is symmetric so the format can be produced as well as consumed.
package ticklog

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Magic identifies a tick-log file: ASCII "TIKX".
const Magic uint32 = 0x54494B58

const (
	// HeaderSize is the fixed size of the file header in bytes.
	HeaderSize = 64

	versionLen     = 8
	descriptionLen = 32
	reservedLen    = 8

	// TradeRecordSize is the byte size of a trade/bid/ask tick record.
	TradeRecordSize = 27
	// QuoteRecordSize is the byte size of a quote record.
	QuoteRecordSize = 39

	symbolFieldLen = 6
	priceScale     = 10_000
)

// recordKind is the on-wire tick kind byte, matching simtypes.TickKind's
// ordinals; kindQuote (3) marks the 39-byte quote layout.
type recordKind uint8

const (
	kindTrade recordKind = 0
	kindBid   recordKind = 1
	kindAsk   recordKind = 2
	kindQuote recordKind = 3 // always a 39-byte record; Writer.WriteTick refuses to write it as 27 bytes
)

// Header is the 64-byte fixed file header.
type Header struct {
	Magic       uint32
	Version     string // up to 8 ASCII bytes
	CreatedAtNs uint64
	Description string // up to 32 UTF-8 bytes
}

// Validate checks for a malformed tick file header.
func (h Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("ticklog: bad magic %#x, want %#x", h.Magic, Magic)
	}
	if len(h.Version) > versionLen {
		return fmt.Errorf("ticklog: version %q exceeds %d bytes", h.Version, versionLen)
	}
	if len(h.Description) > descriptionLen {
		return fmt.Errorf("ticklog: description exceeds %d bytes", descriptionLen)
	}
	return nil
}

// EncodeHeader writes h into a HeaderSize-byte little-endian buffer.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	copy(buf[4:4+versionLen], padTrunc(h.Version, versionLen))
	binary.LittleEndian.PutUint64(buf[12:20], h.CreatedAtNs)
	copy(buf[20:20+descriptionLen], padTrunc(h.Description, descriptionLen))
	// buf[52:60] reserved, buf[60:64] padding to round HeaderSize to 64 —
	// left zeroed.
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header, without
// validating it (callers should call Header.Validate explicitly so a
// malformed header surfaces as a typed input error at the right layer).
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("ticklog: header buffer too short: %d bytes, want %d", len(buf), HeaderSize)
	}
	return Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     trimPadding(buf[4 : 4+versionLen]),
		CreatedAtNs: binary.LittleEndian.Uint64(buf[12:20]),
		Description: trimPadding(buf[20 : 20+descriptionLen]),
	}, nil
}

// TradeRecord is the decoded form of a 27-byte trade/bid/ask record.
type TradeRecord struct {
	TsNs        uint64
	Kind        uint8 // matches simtypes.TickKind ordinals at the reader boundary
	Symbol      string
	PriceScaled int64 // price * 10_000
	Qty         int32
}

// Price returns the record's price as a float64, undoing the ×10_000
// fixed-point scale. Conversion to the engine's decimal type happens at
// the reader's call site.
func (r TradeRecord) Price() float64 { return float64(r.PriceScaled) / priceScale }

// EncodeTradeRecord writes r into a TradeRecordSize-byte buffer.
func EncodeTradeRecord(r TradeRecord) []byte {
	buf := make([]byte, TradeRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.TsNs)
	buf[8] = r.Kind
	copy(buf[9:9+symbolFieldLen], padTruncBytes(r.Symbol, symbolFieldLen))
	binary.LittleEndian.PutUint64(buf[15:23], uint64(r.PriceScaled))
	binary.LittleEndian.PutUint32(buf[23:27], uint32(r.Qty))
	return buf
}

// DecodeTradeRecord parses a TradeRecordSize-byte buffer.
func DecodeTradeRecord(buf []byte) (TradeRecord, error) {
	if len(buf) < TradeRecordSize {
		return TradeRecord{}, fmt.Errorf("ticklog: trade record too short: %d bytes, want %d", len(buf), TradeRecordSize)
	}
	return TradeRecord{
		TsNs:        binary.LittleEndian.Uint64(buf[0:8]),
		Kind:        buf[8],
		Symbol:      trimPadding(buf[9 : 9+symbolFieldLen]),
		PriceScaled: int64(binary.LittleEndian.Uint64(buf[15:23])),
		Qty:         int32(binary.LittleEndian.Uint32(buf[23:27])),
	}, nil
}

// QuoteRecord is the decoded form of a 39-byte two-sided quote record.
type QuoteRecord struct {
	TsNs           uint64
	Symbol         string
	BidPriceScaled int64
	BidSize        int32
	AskPriceScaled int64
	AskSize        int32
}

// BidPrice undoes the ×10_000 fixed-point scale for the bid side.
func (r QuoteRecord) BidPrice() float64 { return float64(r.BidPriceScaled) / priceScale }

// AskPrice undoes the ×10_000 fixed-point scale for the ask side.
func (r QuoteRecord) AskPrice() float64 { return float64(r.AskPriceScaled) / priceScale }

// EncodeQuoteRecord writes r into a QuoteRecordSize-byte buffer: the
// 15-byte trade-record prefix (ts_ns, kind=quote, symbol) followed by the
// two-sided price/size fields.
func EncodeQuoteRecord(r QuoteRecord) []byte {
	buf := make([]byte, QuoteRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.TsNs)
	buf[8] = uint8(kindQuote)
	copy(buf[9:9+symbolFieldLen], padTruncBytes(r.Symbol, symbolFieldLen))
	binary.LittleEndian.PutUint64(buf[15:23], uint64(r.BidPriceScaled))
	binary.LittleEndian.PutUint32(buf[23:27], uint32(r.BidSize))
	binary.LittleEndian.PutUint64(buf[27:35], uint64(r.AskPriceScaled))
	binary.LittleEndian.PutUint32(buf[35:39], uint32(r.AskSize))
	return buf
}

// DecodeQuoteRecord parses a QuoteRecordSize-byte buffer.
func DecodeQuoteRecord(buf []byte) (QuoteRecord, error) {
	if len(buf) < QuoteRecordSize {
		return QuoteRecord{}, fmt.Errorf("ticklog: quote record too short: %d bytes, want %d", len(buf), QuoteRecordSize)
	}
	return QuoteRecord{
		TsNs:           binary.LittleEndian.Uint64(buf[0:8]),
		Symbol:         trimPadding(buf[9 : 9+symbolFieldLen]),
		BidPriceScaled: int64(binary.LittleEndian.Uint64(buf[15:23])),
		BidSize:        int32(binary.LittleEndian.Uint32(buf[23:27])),
		AskPriceScaled: int64(binary.LittleEndian.Uint64(buf[27:35])),
		AskSize:        int32(binary.LittleEndian.Uint32(buf[35:39])),
	}, nil
}

// NewHeader builds a header stamped with the current time, for writers.
func NewHeader(version, description string) Header {
	return Header{
		Magic:       Magic,
		Version:     version,
		CreatedAtNs: uint64(timeNow().UnixNano()),
		Description: description,
	}
}

var timeNow = time.Now

func padTrunc(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + string(make([]byte, n-len(s)))
}

func padTruncBytes(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func trimPadding(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return string(b[:i])
}
