package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/tui"
)

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(tui.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func staleNote(stale bool) {
	if stale {
		tui.ShowWarning("served from an expired cache entry")
	}
}

func printSeries(s market.Series, tail int) {
	fmt.Fprintln(tui.Stdout, tui.Title(fmt.Sprintf("%s %s/%s", s.Symbol, s.Period, s.Interval)))
	if s.Empty() {
		tui.ShowWarning("no data for %s", s.Symbol)
		return
	}
	bars := s.Bars
	if tail > 0 && len(bars) > tail {
		bars = bars[len(bars)-tail:]
	}
	rows := make([][]string, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, []string{
			b.Time.Format(time.DateOnly),
			strconv.FormatFloat(b.Open, 'f', 2, 64),
			strconv.FormatFloat(b.High, 'f', 2, 64),
			strconv.FormatFloat(b.Low, 'f', 2, 64),
			strconv.FormatFloat(b.Close, 'f', 2, 64),
			strconv.FormatInt(b.Volume, 10),
		})
	}
	tui.Table([]string{"Date", "Open", "High", "Low", "Close", "Volume"}, rows)
	fmt.Fprintln(tui.Stdout, tui.Muted(fmt.Sprintf("%d of %d bars  %s", len(bars), len(s.Bars), tui.Sparkline(s.Closes()))))
	staleNote(s.Stale)
}

func printIndicators(ind market.Indicators, columns []string, tail int) {
	fmt.Fprintln(tui.Stdout, tui.Title(ind.Symbol + " indicators"))
	if ind.Empty() {
		tui.ShowWarning("no data for %s", ind.Symbol)
		return
	}
	start := 0
	if tail > 0 && len(ind.Dates) > tail {
		start = len(ind.Dates) - tail
	}
	headers := append([]string{"Date"}, columns...)
	rows := make([][]string, 0, len(ind.Dates)-start)
	for i := start; i < len(ind.Dates); i++ {
		row := []string{ind.Dates[i].Format(time.DateOnly)}
		for _, col := range columns {
			var v *float64
			if values := ind.Columns[col]; i < len(values) {
				v = values[i]
			}
			row = append(row, tui.Ratio(v))
		}
		rows = append(rows, row)
	}
	tui.Table(headers, rows)
	staleNote(ind.Stale)
}

func printKPI(k market.KPI) {
	fmt.Fprintln(tui.Stdout, tui.Title(fmt.Sprintf("%s  %s", k.Symbol, k.CompanyName)))
	rows := [][]string{
		{"Exchange", k.Exchange},
		{"Currency", k.Currency},
		{"Price", tui.Price(k.CurrentPrice)},
		{"Open", tui.Price(k.OpenPrice)},
		{"Previous close", tui.Price(k.PreviousClose)},
		{"Day's range", k.DaysRange},
		{"52 week range", k.WeekRange},
		{"Market cap", tui.Compact(k.MarketCap)},
		{"P/E", tui.Ratio(k.PERatio)},
		{"Forward P/E", tui.Ratio(k.ForwardPE)},
		{"EPS", tui.Ratio(k.EPS)},
		{"Beta", tui.Ratio(k.Beta)},
		{"Dividend", tui.Ratio(k.Dividend)},
		{"Ex-dividend", k.ExDividendDate},
		{"Next earnings", k.NextEarningsDate},
		{"Avg volume", tui.Compact(k.AvgVolume)},
		{"Free cash flow", tui.Compact(k.FreeCashflow)},
		{"FCF yield %", tui.Ratio(k.FCFYield)},
		{"EBITDA", tui.Compact(k.EBITDA)},
		{"Total debt", tui.Compact(k.TotalDebt)},
	}
	tui.Table([]string{"Field", "Value"}, rows)
	staleNote(k.Stale)
}

func printInfo(info market.Info) {
	fmt.Fprintln(tui.Stdout, tui.Title(info.Symbol + " profile"))
	if info.Empty() {
		tui.ShowWarning("no profile for %s", info.Symbol)
		return
	}
	keys := make([]string, 0, len(info.Fields))
	for k := range info.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, tui.MaxWidth(info.String(k), 60)})
	}
	tui.Table([]string{"Field", "Value"}, rows)
	staleNote(info.Stale)
}

func printSummaries(symbols []string, summaries map[string]market.Summary) {
	rows := make([][]string, 0, len(symbols))
	var stale int
	for _, sym := range symbols {
		s := summaries[sym]
		if s.Stale {
			stale++
		}
		rows = append(rows, []string{
			s.Symbol,
			tui.MaxWidth(s.CompanyName, 28),
			strconv.FormatFloat(s.CurrentPrice, 'f', 2, 64),
			tui.Change(s.DailyChange, ""),
			tui.Change(s.DailyPct, "%"),
			tui.Change(s.YTDPct, "%"),
			tui.Sparkline(s.Sparkline),
		})
	}
	tui.Table([]string{"Symbol", "Name", "Price", "Day", "Day %", "YTD %", "Trend"}, rows)
	if stale > 0 {
		tui.ShowWarning("%d of %d rows served from expired cache entries", stale, len(rows))
	}
}

func printSearch(res market.SearchResult) {
	fmt.Fprintln(tui.Stdout, tui.Title(fmt.Sprintf("matches for %q", strings.ToLower(res.Query))))
	if len(res.Quotes) == 0 {
		tui.ShowWarning("no instrument matches %q", strings.ToLower(res.Query))
		return
	}
	rows := make([][]string, 0, len(res.Quotes))
	for _, q := range res.Quotes {
		rows = append(rows, []string{q.Symbol, tui.MaxWidth(q.Name, 40), q.Exchange, q.QuoteType})
	}
	tui.Table([]string{"Symbol", "Name", "Exchange", "Type"}, rows)
	staleNote(res.Stale)
}

func printNews(news market.News) {
	fmt.Fprintln(tui.Stdout, tui.Title(news.Symbol+" news"))
	if len(news.Items) == 0 {
		tui.ShowWarning("no news for %s", news.Symbol)
		return
	}
	rows := make([][]string, 0, len(news.Items))
	for _, n := range news.Items {
		published := ""
		if !n.Published.IsZero() {
			published = n.Published.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{published, tui.MaxWidth(n.Publisher, 20), tui.MaxWidth(n.Title, 70)})
	}
	tui.Table([]string{"Published", "Publisher", "Headline"}, rows)
	staleNote(news.Stale)
}
