package screener

import (
	"sort"
	"strings"

	"github.com/agentuity/go-marketdata/indicators"
	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/sys"
	"github.com/cockroachdb/errors"
)

// ErrUnknownMetric is returned when a query names a metric that is not screened.
var ErrUnknownMetric = errors.New("screener: unknown metric")

// Order is the ranking direction.
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// ParseOrder accepts "asc" or "desc" in any case. ok is false otherwise.
func ParseOrder(s string) (Order, bool) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case Ascending:
		return Ascending, true
	case Descending:
		return Descending, true
	}
	return "", false
}

// Metric describes one rankable column and its natural order.
type Metric struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Order Order  `json:"order"`
}

const momentumDays = 126

var metrics = []Metric{
	{"fcfYield", "FCF Yield", Descending},
	{"fcfMargin", "FCF Margin", Descending},
	{"fcfPerShare", "FCF / Share", Descending},
	{"priceToFcf", "P / FCF", Ascending},
	{"evToFcf", "EV / FCF", Ascending},
	{"netDebtToEbitda", "Net Debt / EBITDA", Ascending},
	{"debtToEquity", "Debt / Equity", Ascending},
	{"returnOnEquity", "ROE", Descending},
	{"operatingMargin", "Operating Margin", Descending},
	{"profitMargin", "Profit Margin", Descending},
	{"evToEbitda", "EV / EBITDA", Ascending},
	{"trailingPE", "P/E (TTM)", Ascending},
	{"forwardPE", "P/E (Forward)", Ascending},
	{"pegRatio", "PEG", Ascending},
	{"priceToBook", "Price / Book", Ascending},
	{"priceToSales", "Price / Sales", Ascending},
	{"freeCashflow", "Free Cash Flow", Descending},
	{"marketCap", "Market Cap", Descending},
	{"volatility", "Volatility (1Y)", Ascending},
	{"momentum6m", "Momentum (6M)", Descending},
}

// Metrics lists the screened metrics.
func Metrics() []Metric {
	return append([]Metric(nil), metrics...)
}

// LookupMetric finds a metric by key.
func LookupMetric(key string) (Metric, bool) {
	for _, m := range metrics {
		if strings.EqualFold(m.Key, strings.TrimSpace(key)) {
			return m, true
		}
	}
	return Metric{}, false
}

// Row is the screened view of one instrument.
type Row struct {
	Ticker      string              `json:"ticker" msgpack:"ticker"`
	CompanyName string              `json:"companyName" msgpack:"companyName"`
	Sector      string              `json:"sector,omitempty" msgpack:"sector,omitempty"`
	Values      map[string]*float64 `json:"values" msgpack:"values"`
	// UpdatedAt is in epoch seconds.
	UpdatedAt float64 `json:"updatedAt" msgpack:"updatedAt"`
	// Unavailable marks instruments the provider has no data for.
	Unavailable bool `json:"unavailable,omitempty" msgpack:"unavailable,omitempty"`
}

// Value returns the metric value or nil.
func (r Row) Value(metric string) *float64 {
	if r.Values == nil {
		return nil
	}
	return r.Values[metric]
}

func div(a, b *float64) *float64 {
	if a == nil || b == nil || *b == 0 {
		return nil
	}
	return sys.FinitePtr(*a / *b)
}

func pct(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return sys.FinitePtr(*v * 100)
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

// computeValues derives every screened metric from a KPI, the raw profile and
// a daily close series.
func computeValues(k market.KPI, info market.Info, closes []float64) map[string]*float64 {
	fcf := k.FreeCashflow
	ebitda := k.EBITDA
	var netDebt *float64
	if k.TotalDebt != nil && k.TotalCash != nil {
		netDebt = sys.FinitePtr(*k.TotalDebt - *k.TotalCash)
	}
	values := map[string]*float64{
		"fcfYield":        k.FCFYield,
		"fcfMargin":       pct(div(fcf, k.TotalRevenue)),
		"fcfPerShare":     div(fcf, info.Float("sharesOutstanding")),
		"priceToFcf":      div(k.MarketCap, positive(fcf)),
		"evToFcf":         div(k.EnterpriseValue, positive(fcf)),
		"netDebtToEbitda": div(netDebt, positive(ebitda)),
		"debtToEquity":    k.DebtToEquity,
		"returnOnEquity":  pct(k.ReturnOnEquity),
		"operatingMargin": pct(info.Float("operatingMargins")),
		"profitMargin":    pct(k.ProfitMargin),
		"evToEbitda":      sys.Coalesce(info.Float("enterpriseToEbitda"), div(k.EnterpriseValue, positive(ebitda))),
		"trailingPE":      k.PERatio,
		"forwardPE":       k.ForwardPE,
		"pegRatio":        sys.Coalesce(info.Float("pegRatio"), info.Float("trailingPegRatio")),
		"priceToBook":     k.PriceToBook,
		"priceToSales":    info.Float("priceToSalesTrailing12Months"),
		"freeCashflow":    fcf,
		"marketCap":       k.MarketCap,
		"volatility":      pct(indicators.AnnualizedVolatility(closes)),
		"momentum6m":      pct(indicators.PeriodReturn(closes, momentumDays)),
	}
	for key, v := range values {
		if v == nil {
			delete(values, key)
		}
	}
	return values
}

// Rank orders rows by metric. Rows without the metric come last, ties break
// on ticker. limit <= 0 keeps every row. The input is not modified.
func Rank(rows []Row, metric string, order Order, limit int) []Row {
	out := append([]Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Value(metric), out[j].Value(metric)
		switch {
		case a == nil && b == nil:
			return out[i].Ticker < out[j].Ticker
		case a == nil:
			return false
		case b == nil:
			return true
		case *a == *b:
			return out[i].Ticker < out[j].Ticker
		case order == Ascending:
			return *a < *b
		default:
			return *a > *b
		}
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
