package optmath

import (
	"fmt"
	"strconv"
	"time"
)

// ParsedOCC is the decoded form of an OCC-style option ticker
// "<UNDERLYING><YYMMDD><C|P><strike*1000, 8 digits>"
type ParsedOCC struct {
	Underlying string
	Expiry     time.Time
	IsCall     bool
	Strike     float64
}

// ParseOCC decodes an OCC ticker. The strike field is always 8 digits
// (price * 1000); the underlying is whatever prefix remains once the
// fixed 15-byte suffix (6 digits + C/P + 8 digits) is peeled off.
func ParseOCC(ticker string) (ParsedOCC, error) {
	const suffixLen = 6 + 1 + 8
	if len(ticker) <= suffixLen {
		return ParsedOCC{}, fmt.Errorf("optmath: %q too short for an OCC ticker", ticker)
	}

	split := len(ticker) - suffixLen
	underlying := ticker[:split]
	dateStr := ticker[split : split+6]
	cp := ticker[split+6]
	strikeStr := ticker[split+7:]

	expiry, err := time.Parse("060102", dateStr)
	if err != nil {
		return ParsedOCC{}, fmt.Errorf("optmath: bad OCC expiry %q: %w", dateStr, err)
	}

	var isCall bool
	switch cp {
	case 'C':
		isCall = true
	case 'P':
		isCall = false
	default:
		return ParsedOCC{}, fmt.Errorf("optmath: bad OCC type byte %q", string(cp))
	}

	strikeRaw, err := strconv.ParseInt(strikeStr, 10, 64)
	if err != nil {
		return ParsedOCC{}, fmt.Errorf("optmath: bad OCC strike %q: %w", strikeStr, err)
	}

	return ParsedOCC{
		Underlying: underlying,
		Expiry:     expiry.UTC(),
		IsCall:     isCall,
		Strike:     float64(strikeRaw) / 1000,
	}, nil
}

// FormatOCC encodes a ticker in the same convention; within this module
// it is used by tests.
func FormatOCC(underlying string, expiry time.Time, isCall bool, strike float64) string {
	cp := byte('P')
	if isCall {
		cp = 'C'
	}
	return fmt.Sprintf("%s%s%c%08d", underlying, expiry.Format("060102"), cp, int64(strike*1000))
}
