package market

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Key identifies a cached request. Time-series kinds use all three fields,
// snapshot kinds (kpi, info, summary) only carry the symbol.
type Key struct {
	Symbol   string `json:"symbol" msgpack:"symbol"`
	Period   string `json:"period,omitempty" msgpack:"period,omitempty"`
	Interval string `json:"interval,omitempty" msgpack:"interval,omitempty"`
}

const keySeparator = "|"

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols normalizes a list of symbols, dropping empties and
// duplicates while keeping the first-seen order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// NewKey returns a canonical time-series key.
func NewKey(symbol, period, interval string) Key {
	return Key{
		Symbol:   NormalizeSymbol(symbol),
		Period:   strings.ToLower(strings.TrimSpace(period)),
		Interval: strings.ToLower(strings.TrimSpace(interval)),
	}
}

// SymbolKey returns a canonical key for the snapshot kinds.
func SymbolKey(symbol string) Key {
	return Key{Symbol: NormalizeSymbol(symbol)}
}

// IsSeries is true when the key carries a period or interval.
func (k Key) IsSeries() bool {
	return k.Period != "" || k.Interval != ""
}

// String returns the flattened form used for persisted snapshot records.
func (k Key) String() string {
	if !k.IsSeries() {
		return k.Symbol
	}
	return k.Symbol + keySeparator + k.Period + keySeparator + k.Interval
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, keySeparator)
	switch len(parts) {
	case 1:
		if NormalizeSymbol(parts[0]) == "" {
			return Key{}, errors.Newf("market: empty key %q", s)
		}
		return SymbolKey(parts[0]), nil
	case 3:
		if NormalizeSymbol(parts[0]) == "" {
			return Key{}, errors.Newf("market: empty symbol in key %q", s)
		}
		return NewKey(parts[0], parts[1], parts[2]), nil
	default:
		return Key{}, errors.Newf("market: malformed key %q", s)
	}
}
