package upstream

import (
	"context"
	"fmt"

	"github.com/agentuity/go-marketdata/market"
	"github.com/cockroachdb/errors"
)

var (
	// ErrRateLimited marks any signal that the provider is throttling us.
	ErrRateLimited = errors.New("upstream: rate limited")
	// ErrEmpty marks a call that succeeded but returned no data.
	ErrEmpty = errors.New("upstream: empty result")
	// ErrUnauthorized marks a rejected request (401/403, invalid crumb).
	// Retrying the same request does not help.
	ErrUnauthorized = errors.New("upstream: unauthorized")
)

// Frame is the raw tabular result of a history call.
type Frame struct {
	Symbol string
	Bars   []market.Bar
	// Meta carries provider metadata such as longName, exchangeName and currency.
	Meta map[string]any
}

// Empty reports whether the frame has no rows.
func (f Frame) Empty() bool {
	return len(f.Bars) == 0
}

// MetaString returns a string metadata field or "".
func (f Frame) MetaString(key string) string {
	v, ok := f.Meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Client is the boundary to the rate-limited provider. Implementations report
// throttling that did not surface as an error through MarkRateLimited on the
// call's context.
type Client interface {
	// FetchSeries returns the OHLCV history of one instrument.
	FetchSeries(ctx context.Context, symbol, period, interval string) (Frame, error)
	// FetchBatch returns histories for several instruments in one call.
	// Instruments the provider had no data for are absent from the map.
	FetchBatch(ctx context.Context, symbols []string, period, interval string) (map[string]Frame, error)
	// FetchInfo returns the flattened company profile.
	FetchInfo(ctx context.Context, symbol string) (map[string]any, error)
	// Search runs a free-text lookup returning up to quotes matching
	// instruments and up to news headlines.
	Search(ctx context.Context, query string, quotes, news int) (SearchResult, error)
}

// SearchResult is the raw answer of a search call.
type SearchResult struct {
	Quotes []market.SearchQuote
	News   []market.NewsItem
}

// Empty reports whether the search matched nothing.
func (r SearchResult) Empty() bool {
	return len(r.Quotes) == 0 && len(r.News) == 0
}

// Outcome is the classification of a single upstream attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeEmpty
	OutcomeRateLimited
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Classify maps the result of one attempt onto an Outcome. Rate limiting wins
// over everything else, including an empty result that only looked successful.
func Classify(err error, empty bool, rateLimited bool) Outcome {
	switch {
	case errors.Is(err, ErrRateLimited), rateLimited:
		return OutcomeRateLimited
	case errors.Is(err, ErrEmpty):
		return OutcomeEmpty
	case err != nil:
		return OutcomeTransient
	case empty:
		return OutcomeEmpty
	default:
		return OutcomeOK
	}
}
