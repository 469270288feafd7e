package upstream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentuity/go-marketdata/market"
	"github.com/cockroachdb/errors"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/multi"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// library serves profiles and batch histories through go-yfinance, which
// performs the cookie and crumb handshake that quoteSummary requires.
type library struct {
	info     func(symbol string) (*models.Info, error)
	download func(symbols []string, period, interval string) (downloaded, error)
}

type downloaded struct {
	data   map[string][]models.Bar
	errors map[string]error
}

func newLibrary() *library {
	return &library{info: tickerInfo, download: downloadBars}
}

func tickerInfo(symbol string) (*models.Info, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.Info()
}

func downloadBars(symbols []string, period, interval string) (downloaded, error) {
	params := models.DefaultDownloadParams()
	params.Symbols = symbols
	params.Period = period
	params.Interval = interval
	result, err := multi.Download(symbols, &params)
	if err != nil {
		return downloaded{}, err
	}
	return downloaded{data: result.Data, errors: result.Errors}, nil
}

// await runs fn, which cannot be cancelled, and stops waiting when ctx is done.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.val, r.err
	}
}

func (l *library) profile(ctx context.Context, symbol string) (map[string]any, error) {
	info, err := await(ctx, func() (*models.Info, error) { return l.info(symbol) })
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, libraryError(ctx, err, symbol)
	}
	fields := infoFields(info)
	if len(fields) == 0 {
		return nil, errors.Mark(errors.Newf("upstream: no profile for %s", symbol), ErrEmpty)
	}
	return fields, nil
}

func (l *library) batch(ctx context.Context, symbols []string, period, interval string) (map[string]Frame, error) {
	res, err := await(ctx, func() (downloaded, error) { return l.download(symbols, period, interval) })
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, libraryError(ctx, err, strings.Join(symbols, ","))
	}
	out := make(map[string]Frame, len(res.data))
	var throttled error
	for _, symbol := range symbols {
		if f := libraryFrame(symbol, res.data[symbol]); !f.Empty() {
			out[symbol] = f
			continue
		}
		if e := res.errors[symbol]; e != nil {
			if mapped := libraryError(ctx, e, symbol); errors.Is(mapped, ErrRateLimited) && throttled == nil {
				throttled = mapped
			}
		}
	}
	if len(out) == 0 && throttled != nil {
		return nil, throttled
	}
	return out, nil
}

// libraryError maps a go-yfinance failure onto the upstream sentinels. The
// library reports HTTP failures as text carrying the status.
func libraryError(ctx context.Context, err error, subject string) error {
	wrapped := errors.Wrapf(err, "upstream: %s", subject)
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "too many requests", "rate limit"):
		MarkRateLimited(ctx)
		return errors.Mark(wrapped, ErrRateLimited)
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid crumb"):
		return errors.Mark(wrapped, ErrUnauthorized)
	case containsAny(msg, "404", "not found", "no data"):
		return errors.Mark(wrapped, ErrEmpty)
	}
	return wrapped
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// infoFields flattens the library's profile into the provider's key names.
// Zero numbers and empty strings mean unknown and are left out.
func infoFields(info *models.Info) map[string]any {
	fields := make(map[string]any)
	if info == nil {
		return fields
	}
	if raw, err := json.Marshal(info); err == nil {
		var all map[string]any
		if json.Unmarshal(raw, &all) == nil {
			for k, v := range all {
				if known(v) {
					fields[k] = v
				}
			}
		}
	}
	num := func(key string, v float64) {
		if v != 0 {
			fields[key] = v
		}
	}
	str := func(key, v string) {
		if v != "" {
			fields[key] = v
		}
	}
	str("longName", info.LongName)
	str("shortName", info.ShortName)
	str("exchange", info.Exchange)
	str("industry", info.Industry)
	str("country", info.Country)
	str("quoteType", info.QuoteType)
	num("currentPrice", info.CurrentPrice)
	num("regularMarketPreviousClose", info.RegularMarketPreviousClose)
	num("marketCap", float64(info.MarketCap))
	num("trailingPE", info.TrailingPE)
	num("forwardPE", info.ForwardPE)
	num("pegRatio", info.PegRatio)
	num("priceToBook", info.PriceToBook)
	num("revenueGrowth", info.RevenueGrowth)
	num("earningsGrowth", info.EarningsGrowth)
	num("profitMargins", info.ProfitMargins)
	num("operatingMargins", info.OperatingMargins)
	num("returnOnEquity", info.ReturnOnEquity)
	num("debtToEquity", info.DebtToEquity)
	num("currentRatio", info.CurrentRatio)
	num("dividendYield", info.DividendYield)
	num("fiveYearAvgDividendYield", info.FiveYearAvgDividendYield)
	return fields
}

func known(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case float64:
		return t != 0
	case string:
		return t != ""
	case bool:
		return true
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// libraryFrame converts downloaded bars, skipping rows without a close.
func libraryFrame(symbol string, bars []models.Bar) Frame {
	f := Frame{Symbol: symbol, Meta: map[string]any{}, Bars: make([]market.Bar, 0, len(bars))}
	for _, b := range bars {
		if b.Close == 0 {
			continue
		}
		bar := market.Bar{
			Time:     b.Date.UTC(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   int64(b.Volume),
		}
		if bar.AdjClose == 0 {
			bar.AdjClose = bar.Close
		}
		f.Bars = append(f.Bars, bar)
	}
	f.Bars = market.SortBars(f.Bars)
	return f
}
