package market

import (
	"fmt"
	"time"
)

// Bar is a single OHLCV row.
type Bar struct {
	Time     time.Time `json:"date" msgpack:"date"`
	Open     float64   `json:"open" msgpack:"open"`
	High     float64   `json:"high" msgpack:"high"`
	Low      float64   `json:"low" msgpack:"low"`
	Close    float64   `json:"close" msgpack:"close"`
	AdjClose float64   `json:"adjClose" msgpack:"adjClose"`
	Volume   int64     `json:"volume" msgpack:"volume"`
}

// Series is the public price series payload.
type Series struct {
	Symbol   string `json:"symbol" msgpack:"symbol"`
	Period   string `json:"period" msgpack:"period"`
	Interval string `json:"interval" msgpack:"interval"`
	Bars     []Bar  `json:"bars" msgpack:"bars"`
	// Stale is set when the payload was served from an expired cache entry.
	Stale bool `json:"stale,omitempty" msgpack:"-"`
}

// Closes returns the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Empty reports whether the series has no bars.
func (s Series) Empty() bool {
	return len(s.Bars) == 0
}

// Indicators is a columnar indicator table aligned on Dates. Warm-up rows of
// an indicator are nil.
type Indicators struct {
	Symbol   string                `json:"symbol" msgpack:"symbol"`
	Interval string                `json:"interval" msgpack:"interval"`
	Dates    []time.Time           `json:"dates" msgpack:"dates"`
	Columns  map[string][]*float64 `json:"columns" msgpack:"columns"`
	Stale    bool                  `json:"stale,omitempty" msgpack:"-"`
}

// Empty reports whether the table has no rows.
func (ind Indicators) Empty() bool {
	return len(ind.Dates) == 0
}

// KPI is the snapshot of headline figures for one instrument.
type KPI struct {
	Symbol            string   `json:"symbol" msgpack:"symbol"`
	CompanyName       string   `json:"companyName" msgpack:"companyName"`
	Exchange          string   `json:"exchange" msgpack:"exchange"`
	Currency          string   `json:"currency" msgpack:"currency"`
	CurrentPrice      *float64 `json:"currentPrice" msgpack:"currentPrice"`
	PERatio           *float64 `json:"peRatio" msgpack:"peRatio"`
	ForwardPE         *float64 `json:"forwardPE" msgpack:"forwardPE"`
	NextEarningsDate  string   `json:"nextEarningsDate" msgpack:"nextEarningsDate"`
	WeekHigh52        *float64 `json:"weekHigh52" msgpack:"weekHigh52"`
	WeekLow52         *float64 `json:"weekLow52" msgpack:"weekLow52"`
	MarketCap         *float64 `json:"marketCap" msgpack:"marketCap"`
	Beta              *float64 `json:"beta" msgpack:"beta"`
	EPS               *float64 `json:"eps" msgpack:"eps"`
	Dividend          *float64 `json:"dividend" msgpack:"dividend"`
	ExDividendDate    string   `json:"exDividendDate" msgpack:"exDividendDate"`
	OpenPrice         *float64 `json:"openPrice" msgpack:"openPrice"`
	PreviousClose     *float64 `json:"previousClose" msgpack:"previousClose"`
	DaysRange         string   `json:"daysRange" msgpack:"daysRange"`
	WeekRange         string   `json:"weekRange" msgpack:"weekRange"`
	AvgVolume         *float64 `json:"avgVolume" msgpack:"avgVolume"`
	FreeCashflow      *float64 `json:"freeCashflow" msgpack:"freeCashflow"`
	OperatingCashflow *float64 `json:"operatingCashflow" msgpack:"operatingCashflow"`
	FCFYield          *float64 `json:"fcfYield" msgpack:"fcfYield"`
	TotalCash         *float64 `json:"totalCash" msgpack:"totalCash"`
	TotalDebt         *float64 `json:"totalDebt" msgpack:"totalDebt"`
	EBITDA            *float64 `json:"ebitda" msgpack:"ebitda"`
	TotalRevenue      *float64 `json:"totalRevenue" msgpack:"totalRevenue"`
	ProfitMargin      *float64 `json:"profitMargin" msgpack:"profitMargin"`
	ReturnOnEquity    *float64 `json:"returnOnEquity" msgpack:"returnOnEquity"`
	DebtToEquity      *float64 `json:"debtToEquity" msgpack:"debtToEquity"`
	PriceToBook       *float64 `json:"priceToBook" msgpack:"priceToBook"`
	EnterpriseValue   *float64 `json:"enterpriseValue" msgpack:"enterpriseValue"`
	Stale             bool     `json:"stale,omitempty" msgpack:"-"`
}

// Info is the raw key/value company profile returned by the provider.
type Info struct {
	Symbol string         `json:"symbol" msgpack:"symbol"`
	Fields map[string]any `json:"fields" msgpack:"fields"`
	Stale  bool           `json:"stale,omitempty" msgpack:"-"`
}

// Float returns a numeric field, accepting any of the JSON/msgpack number shapes.
func (i Info) Float(key string) *float64 {
	v, ok := i.Fields[key]
	if !ok || v == nil {
		return nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return nil
	}
	return &f
}

// String returns a string field or "" when absent.
func (i Info) String(key string) string {
	v, ok := i.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Empty reports whether the profile has no fields.
func (i Info) Empty() bool {
	return len(i.Fields) == 0
}

// Summary is the compact watchlist row for one instrument.
type Summary struct {
	Symbol       string    `json:"symbol" msgpack:"symbol"`
	CompanyName  string    `json:"companyName" msgpack:"companyName"`
	Exchange     string    `json:"exchange" msgpack:"exchange"`
	CurrentPrice float64   `json:"currentPrice" msgpack:"currentPrice"`
	DailyChange  float64   `json:"dailyChange" msgpack:"dailyChange"`
	DailyPct     float64   `json:"dailyPct" msgpack:"dailyPct"`
	YTDChange    float64   `json:"ytdChange" msgpack:"ytdChange"`
	YTDPct       float64   `json:"ytdPct" msgpack:"ytdPct"`
	Sparkline    []float64 `json:"sparkline" msgpack:"sparkline"`
	Stale        bool      `json:"stale,omitempty" msgpack:"-"`
}

// SearchQuote is one instrument matched by a search.
type SearchQuote struct {
	Symbol    string `json:"symbol" msgpack:"symbol"`
	Name      string `json:"name" msgpack:"name"`
	Exchange  string `json:"exchange" msgpack:"exchange"`
	QuoteType string `json:"quoteType" msgpack:"quoteType"`
}

// SearchResult is the autocomplete payload for a free-text query.
type SearchResult struct {
	Query  string        `json:"query" msgpack:"query"`
	Quotes []SearchQuote `json:"quotes" msgpack:"quotes"`
	Stale  bool          `json:"stale,omitempty" msgpack:"-"`
}

// NewsItem is one headline.
type NewsItem struct {
	UUID           string    `json:"uuid" msgpack:"uuid"`
	Title          string    `json:"title" msgpack:"title"`
	Publisher      string    `json:"publisher" msgpack:"publisher"`
	Link           string    `json:"link" msgpack:"link"`
	Published      time.Time `json:"published" msgpack:"published"`
	RelatedTickers []string  `json:"relatedTickers,omitempty" msgpack:"relatedTickers,omitempty"`
}

// News is the headline list of one instrument, newest first.
type News struct {
	Symbol string     `json:"symbol" msgpack:"symbol"`
	Items  []NewsItem `json:"items" msgpack:"items"`
	Stale  bool       `json:"stale,omitempty" msgpack:"-"`
}

// Bundle groups everything a chart view needs for one instrument.
type Bundle struct {
	Series     Series     `json:"stock"`
	Indicators Indicators `json:"indicators"`
	KPI        KPI        `json:"kpi"`
}

const notAvailable = "N/A"

// EmptySeries returns a well-formed series with no bars.
func EmptySeries(k Key) Series {
	return Series{Symbol: k.Symbol, Period: k.Period, Interval: k.Interval, Bars: []Bar{}}
}

// EmptyIndicators returns a well-formed indicator table with no rows.
func EmptyIndicators(k Key) Indicators {
	return Indicators{
		Symbol:   k.Symbol,
		Interval: k.Interval,
		Dates:    []time.Time{},
		Columns:  map[string][]*float64{},
	}
}

// EmptyKPI returns the placeholder KPI shown when nothing is known.
func EmptyKPI(k Key) KPI {
	return KPI{
		Symbol:           k.Symbol,
		CompanyName:      notAvailable,
		NextEarningsDate: notAvailable,
		ExDividendDate:   notAvailable,
		DaysRange:        notAvailable,
		WeekRange:        notAvailable,
	}
}

// EmptyInfo returns a profile with no fields.
func EmptyInfo(k Key) Info {
	return Info{Symbol: k.Symbol, Fields: map[string]any{}}
}

// EmptySummary returns the zeroed watchlist row.
func EmptySummary(k Key) Summary {
	return Summary{Symbol: k.Symbol, CompanyName: "Unknown", Sparkline: []float64{}}
}

// EmptySearch returns a search result with no matches.
func EmptySearch(k Key) SearchResult {
	return SearchResult{Query: k.Symbol, Quotes: []SearchQuote{}}
}

// EmptyNews returns a headline list with no items.
func EmptyNews(k Key) News {
	return News{Symbol: k.Symbol, Items: []NewsItem{}}
}
