package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/market"
	"github.com/cockroachdb/errors"
)

const (
	DefaultChartURL   = "https://query1.finance.yahoo.com"
	DefaultSummaryURL = "https://query2.finance.yahoo.com"
	DefaultTimeout    = 15 * time.Second
	DefaultUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) go-marketdata/1.0"

	maxBodySize = 16 << 20
)

var summaryModules = []string{
	"price",
	"summaryDetail",
	"defaultKeyStatistics",
	"financialData",
	"calendarEvents",
	"assetProfile",
}

// Yahoo is a Client for the public Yahoo Finance JSON endpoints. Profiles
// and batch histories go through go-yfinance unless a base URL is set, since
// the library always talks to Yahoo itself.
type Yahoo struct {
	client     *http.Client
	chartURL   string
	summaryURL string
	userAgent  string
	logger     logger.Logger
	library    *library
}

var _ Client = (*Yahoo)(nil)

type YahooOption func(*Yahoo)

// WithBaseURL points every endpoint at base, mainly for tests and proxies.
// Profiles and batches then use the raw endpoints instead of go-yfinance.
func WithBaseURL(base string) YahooOption {
	return func(y *Yahoo) {
		y.chartURL = strings.TrimRight(base, "/")
		y.summaryURL = strings.TrimRight(base, "/")
		y.library = nil
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) YahooOption {
	return func(y *Yahoo) { y.client = c }
}

// WithTimeout bounds every upstream request.
func WithTimeout(d time.Duration) YahooOption {
	return func(y *Yahoo) { y.client.Timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) YahooOption {
	return func(y *Yahoo) { y.userAgent = ua }
}

// NewYahoo returns a Yahoo client.
func NewYahoo(log logger.Logger, opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		client:     &http.Client{Timeout: DefaultTimeout},
		chartURL:   DefaultChartURL,
		summaryURL: DefaultSummaryURL,
		userAgent:  DefaultUserAgent,
		logger:     log.WithPrefix("[yahoo]"),
		library:    newLibrary(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) FetchSeries(ctx context.Context, symbol, period, interval string) (Frame, error) {
	q := url.Values{}
	q.Set("range", providerRange(period))
	q.Set("interval", interval)
	q.Set("includeAdjustedClose", "true")
	u := y.chartURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + q.Encode()

	var resp chartResponse
	if err := y.get(ctx, u, &resp); err != nil {
		return Frame{}, err
	}
	if resp.Chart.Error != nil {
		return Frame{}, resp.Chart.Error.err(ctx, symbol)
	}
	if len(resp.Chart.Result) == 0 {
		return Frame{}, errors.Mark(errors.Newf("upstream: no chart result for %s", symbol), ErrEmpty)
	}
	return resp.Chart.Result[0].frame(symbol), nil
}

func (y *Yahoo) FetchBatch(ctx context.Context, symbols []string, period, interval string) (map[string]Frame, error) {
	if y.library != nil {
		return y.library.batch(ctx, symbols, providerRange(period), interval)
	}
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("range", providerRange(period))
	q.Set("interval", interval)
	u := y.chartURL + "/v7/finance/spark?" + q.Encode()

	var resp sparkResponse
	if err := y.get(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Spark.Error != nil {
		return nil, resp.Spark.Error.err(ctx, strings.Join(symbols, ","))
	}
	out := make(map[string]Frame, len(resp.Spark.Result))
	for _, r := range resp.Spark.Result {
		if len(r.Response) == 0 {
			continue
		}
		f := r.Response[0].frame(r.Symbol)
		if !f.Empty() {
			out[r.Symbol] = f
		}
	}
	return out, nil
}

func (y *Yahoo) FetchInfo(ctx context.Context, symbol string) (map[string]any, error) {
	if y.library != nil {
		return y.library.profile(ctx, symbol)
	}
	q := url.Values{}
	q.Set("modules", strings.Join(summaryModules, ","))
	u := y.summaryURL + "/v10/finance/quoteSummary/" + url.PathEscape(symbol) + "?" + q.Encode()

	var resp summaryResponse
	if err := y.get(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.QuoteSummary.Error != nil {
		return nil, resp.QuoteSummary.Error.err(ctx, symbol)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, errors.Mark(errors.Newf("upstream: no profile for %s", symbol), ErrEmpty)
	}
	fields := make(map[string]any)
	modules := resp.QuoteSummary.Result[0]
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		flattenInto(fields, modules[name])
	}
	return fields, nil
}

func (y *Yahoo) Search(ctx context.Context, query string, quotes, news int) (SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("lang", "en-US")
	q.Set("region", "US")
	q.Set("quotesCount", strconv.Itoa(quotes))
	q.Set("newsCount", strconv.Itoa(news))
	u := y.summaryURL + "/v1/finance/search?" + q.Encode()

	var resp searchResponse
	if err := y.get(ctx, u, &resp); err != nil {
		return SearchResult{}, err
	}
	return resp.result(quotes, news), nil
}

func (y *Yahoo) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "upstream: build request")
	}
	req.Header.Set("User-Agent", y.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "upstream: request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "upstream: read body")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || bytes.Contains(body, []byte("Too Many Requests")):
		MarkRateLimited(ctx)
		y.logger.Warn("provider throttled request (status %d)", resp.StatusCode)
		return errors.Mark(errors.Newf("upstream: status %d", resp.StatusCode), ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Mark(errors.Newf("upstream: status %d", resp.StatusCode), ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return errors.Mark(errors.Newf("upstream: status %d", resp.StatusCode), ErrEmpty)
	case resp.StatusCode >= 400:
		return errors.Newf("upstream: status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "upstream: decode response")
	}
	return nil
}

// providerRange converts month periods ("1m", "6m") to the provider's "mo" unit.
func providerRange(period string) string {
	p := strings.ToLower(strings.TrimSpace(period))
	if strings.HasSuffix(p, "m") && !strings.HasSuffix(p, "mo") {
		return p + "o"
	}
	return p
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) err(ctx context.Context, symbol string) error {
	base := errors.Newf("upstream: %s: %s (%s)", symbol, e.Code, e.Description)
	code := strings.ToLower(e.Code)
	switch {
	case strings.Contains(code, "not found"), strings.Contains(strings.ToLower(e.Description), "no data found"):
		return errors.Mark(base, ErrEmpty)
	case strings.Contains(code, "too many"):
		MarkRateLimited(ctx)
		return errors.Mark(base, ErrRateLimited)
	case strings.Contains(code, "unauthorized"), strings.Contains(strings.ToLower(e.Description), "invalid crumb"):
		return errors.Mark(base, ErrUnauthorized)
	}
	return base
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type sparkResponse struct {
	Spark struct {
		Result []struct {
			Symbol   string        `json:"symbol"`
			Response []chartResult `json:"response"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"spark"`
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *apiError                    `json:"error"`
	} `json:"quoteSummary"`
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchDisp"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
	News []struct {
		UUID                string   `json:"uuid"`
		Title               string   `json:"title"`
		Publisher           string   `json:"publisher"`
		Link                string   `json:"link"`
		ProviderPublishTime int64    `json:"providerPublishTime"`
		RelatedTickers      []string `json:"relatedTickers"`
	} `json:"news"`
}

// result keeps at most the requested counts; quotes without a symbol are dropped.
func (r searchResponse) result(quotes, news int) SearchResult {
	out := SearchResult{Quotes: []market.SearchQuote{}, News: []market.NewsItem{}}
	for _, q := range r.Quotes {
		if q.Symbol == "" || len(out.Quotes) >= quotes {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		out.Quotes = append(out.Quotes, market.SearchQuote{
			Symbol:    market.NormalizeSymbol(q.Symbol),
			Name:      name,
			Exchange:  q.Exchange,
			QuoteType: q.QuoteType,
		})
	}
	for _, n := range r.News {
		if n.Title == "" || len(out.News) >= news {
			continue
		}
		item := market.NewsItem{
			UUID:           n.UUID,
			Title:          n.Title,
			Publisher:      n.Publisher,
			Link:           n.Link,
			RelatedTickers: n.RelatedTickers,
		}
		if n.ProviderPublishTime > 0 {
			item.Published = time.Unix(n.ProviderPublishTime, 0).UTC()
		}
		out.News = append(out.News, item)
	}
	sort.SliceStable(out.News, func(i, j int) bool { return out.News[i].Published.After(out.News[j].Published) })
	return out
}

type chartResult struct {
	Meta       map[string]any `json:"meta"`
	Timestamp  []int64        `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

func at(vals []*float64, i int) (float64, bool) {
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}

// frame converts the columnar chart payload into bars, skipping rows without a close.
func (r chartResult) frame(symbol string) Frame {
	f := Frame{Symbol: symbol, Meta: r.Meta, Bars: make([]market.Bar, 0, len(r.Timestamp))}
	if f.Meta == nil {
		f.Meta = map[string]any{}
	}
	if len(r.Indicators.Quote) == 0 {
		return f
	}
	q := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}
	for i, ts := range r.Timestamp {
		closeVal, ok := at(q.Close, i)
		if !ok {
			continue
		}
		bar := market.Bar{Time: time.Unix(ts, 0).UTC(), Close: closeVal, AdjClose: closeVal}
		bar.Open, _ = at(q.Open, i)
		bar.High, _ = at(q.High, i)
		bar.Low, _ = at(q.Low, i)
		if v, ok := at(adj, i); ok {
			bar.AdjClose = v
		}
		if v, ok := at(q.Volume, i); ok {
			bar.Volume = int64(v)
		}
		f.Bars = append(f.Bars, bar)
	}
	f.Bars = market.SortBars(f.Bars)
	return f
}

// flattenInto merges a quoteSummary module into fields. {"raw": x, "fmt": y}
// values collapse to x, nested objects are merged in place, lists of dates
// collapse to the first formatted value. The first module to set a key wins.
func flattenInto(fields map[string]any, raw json.RawMessage) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return
	}
	for key, val := range obj {
		if _, exists := fields[key]; exists {
			continue
		}
		var v any
		if err := json.Unmarshal(val, &v); err != nil || v == nil {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			if r, ok := t["raw"]; ok {
				fields[key] = r
			} else if _, ok := t["fmt"]; !ok && len(t) > 0 {
				flattenInto(fields, val)
			}
		case []any:
			if len(t) == 0 {
				continue
			}
			if first, ok := t[0].(map[string]any); ok {
				if s, ok := first["fmt"].(string); ok {
					fields[key] = s
				}
			}
		default:
			fields[key] = t
		}
	}
}
