// Package upstreamtest provides a scripted upstream.Client for tests.
package upstreamtest

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/upstream"
	"github.com/cockroachdb/errors"
)

// Response is one scripted reply.
type Response struct {
	Frame  upstream.Frame
	Frames map[string]upstream.Frame
	Info   map[string]any
	Search upstream.SearchResult
	Err    error
	// RateLimited signals throttling on the call's context without
	// returning an error.
	RateLimited bool
	// Wait blocks the call until closed or the context is done.
	Wait <-chan struct{}
	// Delay sleeps before replying.
	Delay time.Duration
}

// RateLimited is a Response carrying an upstream.ErrRateLimited error.
func RateLimited() Response {
	return Response{Err: errors.Mark(errors.New("upstreamtest: 429 Too Many Requests"), upstream.ErrRateLimited), RateLimited: true}
}

// Transient is a Response carrying a plain network error.
func Transient() Response {
	return Response{Err: errors.New("upstreamtest: connection reset")}
}

// NotFound is a Response carrying upstream.ErrEmpty.
func NotFound() Response {
	return Response{Err: errors.Mark(errors.New("upstreamtest: no data found"), upstream.ErrEmpty)}
}

type scriptKey struct {
	method string
	symbol string
}

// Mock is a concurrency-safe fake Client. Scripted responses are consumed in
// order; the last one repeats. Unscripted calls are answered from Frames and
// Infos, or with an empty result.
type Mock struct {
	mutex    sync.Mutex
	frames   map[string]upstream.Frame
	infos    map[string]map[string]any
	searches map[string]upstream.SearchResult
	scripts  map[scriptKey][]Response
	calls    map[scriptKey]int
	batches  [][]string
}

var _ upstream.Client = (*Mock)(nil)

// New returns an empty Mock.
func New() *Mock {
	return &Mock{
		frames:   make(map[string]upstream.Frame),
		infos:    make(map[string]map[string]any),
		searches: make(map[string]upstream.SearchResult),
		scripts:  make(map[scriptKey][]Response),
		calls:    make(map[scriptKey]int),
	}
}

// WithFrame registers the default history for a symbol.
func (m *Mock) WithFrame(f upstream.Frame) *Mock {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.frames[market.NormalizeSymbol(f.Symbol)] = f
	return m
}

// WithInfo registers the default profile for a symbol.
func (m *Mock) WithInfo(symbol string, info map[string]any) *Mock {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.infos[market.NormalizeSymbol(symbol)] = info
	return m
}

// WithSearch registers the default search answer for query.
func (m *Mock) WithSearch(query string, res upstream.SearchResult) *Mock {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.searches[market.NormalizeSymbol(query)] = res
	return m
}

// OnSeries scripts FetchSeries for symbol.
func (m *Mock) OnSeries(symbol string, rs ...Response) *Mock {
	return m.script(scriptKey{"series", market.NormalizeSymbol(symbol)}, rs)
}

// OnBatch scripts FetchBatch regardless of the symbols requested.
func (m *Mock) OnBatch(rs ...Response) *Mock {
	return m.script(scriptKey{"batch", ""}, rs)
}

// OnInfo scripts FetchInfo for symbol.
func (m *Mock) OnInfo(symbol string, rs ...Response) *Mock {
	return m.script(scriptKey{"info", market.NormalizeSymbol(symbol)}, rs)
}

// OnSearch scripts Search for query.
func (m *Mock) OnSearch(query string, rs ...Response) *Mock {
	return m.script(scriptKey{"search", market.NormalizeSymbol(query)}, rs)
}

func (m *Mock) script(k scriptKey, rs []Response) *Mock {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.scripts[k] = append(m.scripts[k], rs...)
	return m
}

func (m *Mock) next(k scriptKey) (Response, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls[k]++
	rs := m.scripts[k]
	if len(rs) == 0 {
		return Response{}, false
	}
	r := rs[0]
	if len(rs) > 1 {
		m.scripts[k] = rs[1:]
	}
	return r, true
}

func wait(ctx context.Context, r Response) error {
	if r.RateLimited {
		upstream.MarkRateLimited(ctx)
	}
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if r.Wait != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.Wait:
		}
	}
	return nil
}

func (m *Mock) FetchSeries(ctx context.Context, symbol, period, interval string) (upstream.Frame, error) {
	symbol = market.NormalizeSymbol(symbol)
	r, scripted := m.next(scriptKey{"series", symbol})
	if err := wait(ctx, r); err != nil {
		return upstream.Frame{}, err
	}
	if scripted {
		if r.Err != nil {
			return upstream.Frame{}, r.Err
		}
		return r.Frame, nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if f, ok := m.frames[symbol]; ok {
		return f, nil
	}
	return upstream.Frame{Symbol: symbol}, nil
}

func (m *Mock) FetchBatch(ctx context.Context, symbols []string, period, interval string) (map[string]upstream.Frame, error) {
	m.mutex.Lock()
	m.batches = append(m.batches, append([]string(nil), symbols...))
	m.mutex.Unlock()

	r, scripted := m.next(scriptKey{"batch", ""})
	if err := wait(ctx, r); err != nil {
		return nil, err
	}
	if scripted {
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Frames != nil {
			return r.Frames, nil
		}
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make(map[string]upstream.Frame)
	for _, s := range symbols {
		if f, ok := m.frames[market.NormalizeSymbol(s)]; ok {
			out[market.NormalizeSymbol(s)] = f
		}
	}
	return out, nil
}

func (m *Mock) FetchInfo(ctx context.Context, symbol string) (map[string]any, error) {
	symbol = market.NormalizeSymbol(symbol)
	r, scripted := m.next(scriptKey{"info", symbol})
	if err := wait(ctx, r); err != nil {
		return nil, err
	}
	if scripted {
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Info, nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, ok := m.infos[symbol]; ok {
		return info, nil
	}
	return map[string]any{}, nil
}

// Search truncates the registered answer to the requested counts.
func (m *Mock) Search(ctx context.Context, query string, quotes, news int) (upstream.SearchResult, error) {
	query = market.NormalizeSymbol(query)
	r, scripted := m.next(scriptKey{"search", query})
	if err := wait(ctx, r); err != nil {
		return upstream.SearchResult{}, err
	}
	res := r.Search
	if scripted && r.Err != nil {
		return upstream.SearchResult{}, r.Err
	}
	if !scripted {
		m.mutex.Lock()
		res = m.searches[query]
		m.mutex.Unlock()
	}
	out := upstream.SearchResult{
		Quotes: append([]market.SearchQuote{}, res.Quotes[:min(quotes, len(res.Quotes))]...),
		News:   append([]market.NewsItem{}, res.News[:min(news, len(res.News))]...),
	}
	return out, nil
}

// SeriesCalls returns the number of FetchSeries calls for symbol.
func (m *Mock) SeriesCalls(symbol string) int {
	return m.count(scriptKey{"series", market.NormalizeSymbol(symbol)})
}

// InfoCalls returns the number of FetchInfo calls for symbol.
func (m *Mock) InfoCalls(symbol string) int {
	return m.count(scriptKey{"info", market.NormalizeSymbol(symbol)})
}

// SearchCalls returns the number of Search calls for query.
func (m *Mock) SearchCalls(query string) int {
	return m.count(scriptKey{"search", market.NormalizeSymbol(query)})
}

// BatchCalls returns the number of FetchBatch calls.
func (m *Mock) BatchCalls() int {
	return m.count(scriptKey{"batch", ""})
}

// Batches returns the symbol lists passed to FetchBatch, in call order.
func (m *Mock) Batches() [][]string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([][]string, len(m.batches))
	copy(out, m.batches)
	return out
}

// Calls returns the total number of upstream calls of any kind.
func (m *Mock) Calls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var n int
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *Mock) count(k scriptKey) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls[k]
}

// DailyFrame builds a frame of consecutive daily bars starting at start,
// one per close value, with a small intraday range around each close.
func DailyFrame(symbol string, start time.Time, closes ...float64) upstream.Frame {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:     start.AddDate(0, 0, i),
			Open:     c * 0.995,
			High:     c * 1.01,
			Low:      c * 0.99,
			Close:    c,
			AdjClose: c,
			Volume:   int64(1_000_000 + i*1000),
		}
	}
	return upstream.Frame{
		Symbol: market.NormalizeSymbol(symbol),
		Bars:   bars,
		Meta: map[string]any{
			"longName":     market.NormalizeSymbol(symbol) + " Inc.",
			"exchangeName": "NMS",
			"currency":     "USD",
		},
	}
}

// Trend builds n daily bars ending at end, starting at price and moving by step per day.
func Trend(symbol string, end time.Time, n int, price, step float64) upstream.Frame {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price + float64(i)*step
	}
	return DailyFrame(symbol, end.AddDate(0, 0, -(n-1)), closes...)
}
