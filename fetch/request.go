package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentuity/go-marketdata/flight"
	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/upstream"
	"github.com/cockroachdb/errors"
)

// Request is one logical upstream operation.
type Request interface {
	fmt.Stringer
	// Op names the operation for logs and spans.
	Op() string
	flightKey() string
	validate() error
	call(ctx context.Context, c upstream.Client) (Response, error)
}

// Response carries whichever payload the request produced.
type Response struct {
	Frame  upstream.Frame
	Frames map[string]upstream.Frame
	Info   map[string]any
	Search upstream.SearchResult
}

// RequestSeries fetches the history of one instrument.
type RequestSeries struct {
	Symbol   string
	Period   string
	Interval string
}

// RequestBatch fetches histories for several instruments in one call.
type RequestBatch struct {
	Symbols  []string
	Period   string
	Interval string
}

// RequestInfo fetches the profile of one instrument.
type RequestInfo struct {
	Symbol string
}

// RequestSearch runs a free-text search for up to Quotes instruments and
// up to News headlines.
type RequestSearch struct {
	Query  string
	Quotes int
	News   int
}

var (
	_ Request = RequestSeries{}
	_ Request = RequestBatch{}
	_ Request = RequestInfo{}
	_ Request = RequestSearch{}
)

func (r RequestSeries) Op() string { return "series" }
func (r RequestSeries) String() string {
	return market.NewKey(r.Symbol, r.Period, r.Interval).String()
}
func (r RequestSeries) flightKey() string {
	return flight.Key(r.Op(), flight.Symbol(r.Symbol), strings.ToLower(r.Period), strings.ToLower(r.Interval))
}
func (r RequestSeries) validate() error {
	if market.NormalizeSymbol(r.Symbol) == "" {
		return errors.Wrap(ErrInvalidRequest, "empty symbol")
	}
	return nil
}
func (r RequestSeries) call(ctx context.Context, c upstream.Client) (Response, error) {
	f, err := c.FetchSeries(ctx, market.NormalizeSymbol(r.Symbol), strings.ToLower(r.Period), strings.ToLower(r.Interval))
	return Response{Frame: f}, err
}

func (r RequestBatch) Op() string { return "batch" }
func (r RequestBatch) String() string {
	return fmt.Sprintf("[%s]|%s|%s", strings.Join(market.NormalizeSymbols(r.Symbols), ","), r.Period, r.Interval)
}
func (r RequestBatch) flightKey() string {
	return flight.Key(r.Op(), flight.Symbols(r.Symbols), strings.ToLower(r.Period), strings.ToLower(r.Interval))
}
func (r RequestBatch) validate() error {
	if len(market.NormalizeSymbols(r.Symbols)) == 0 {
		return errors.Wrap(ErrInvalidRequest, "no symbols")
	}
	return nil
}
func (r RequestBatch) call(ctx context.Context, c upstream.Client) (Response, error) {
	frames, err := c.FetchBatch(ctx, market.NormalizeSymbols(r.Symbols), strings.ToLower(r.Period), strings.ToLower(r.Interval))
	return Response{Frames: frames}, err
}

func (r RequestInfo) Op() string     { return "info" }
func (r RequestInfo) String() string { return market.NormalizeSymbol(r.Symbol) }
func (r RequestInfo) flightKey() string {
	return flight.Key(r.Op(), flight.Symbol(r.Symbol))
}
func (r RequestInfo) validate() error {
	if market.NormalizeSymbol(r.Symbol) == "" {
		return errors.Wrap(ErrInvalidRequest, "empty symbol")
	}
	return nil
}
func (r RequestInfo) call(ctx context.Context, c upstream.Client) (Response, error) {
	info, err := c.FetchInfo(ctx, market.NormalizeSymbol(r.Symbol))
	return Response{Info: info}, err
}

func (r RequestSearch) Op() string { return "search" }
func (r RequestSearch) String() string {
	return fmt.Sprintf("%q|quotes=%d|news=%d", strings.TrimSpace(r.Query), r.Quotes, r.News)
}
func (r RequestSearch) flightKey() string {
	return flight.Key(r.Op(), strings.ToLower(strings.TrimSpace(r.Query)), r.Quotes, r.News)
}
func (r RequestSearch) validate() error {
	q := strings.TrimSpace(r.Query)
	switch {
	case q == "":
		return errors.Wrap(ErrInvalidRequest, "empty query")
	case strings.Contains(q, "|"):
		return errors.Wrapf(ErrInvalidRequest, "query %q contains '|'", q)
	case r.Quotes < 0 || r.News < 0 || r.Quotes+r.News == 0:
		return errors.Wrap(ErrInvalidRequest, "nothing requested")
	}
	return nil
}
func (r RequestSearch) call(ctx context.Context, c upstream.Client) (Response, error) {
	res, err := c.Search(ctx, strings.TrimSpace(r.Query), r.Quotes, r.News)
	return Response{Search: res}, err
}

func (r Response) empty(req Request) bool {
	switch req.(type) {
	case RequestSeries:
		return r.Frame.Empty()
	case RequestBatch:
		for _, f := range r.Frames {
			if !f.Empty() {
				return false
			}
		}
		return true
	case RequestInfo:
		return len(r.Info) == 0
	case RequestSearch:
		return r.Search.Empty()
	}
	return true
}
