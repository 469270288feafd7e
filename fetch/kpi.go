package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/sys"
)

// GetInfo returns the raw profile of symbol. Callers must not modify Fields.
func (s *Service) GetInfo(ctx context.Context, symbol string) (market.Info, error) {
	key := market.SymbolKey(symbol)
	if key.Symbol == "" {
		return market.EmptyInfo(key), invalidSymbol()
	}
	return resolve(ctx, s.info, key, func(ctx context.Context) (market.Info, error) {
		return s.loadInfo(ctx, key)
	})
}

func (s *Service) loadInfo(ctx context.Context, key market.Key) (market.Info, error) {
	resp, err := s.FetchWithRetry(ctx, RequestInfo{Symbol: key.Symbol})
	if err != nil {
		return market.Info{}, err
	}
	return market.Info{Symbol: key.Symbol, Fields: resp.Info}, nil
}

func (s *Service) freshInfo(ctx context.Context, key market.Key) (market.Info, error) {
	if v, ok := s.info.values.Get(key); ok {
		return v, nil
	}
	v, err := s.loadInfo(ctx, key)
	if err != nil {
		return v, err
	}
	s.info.commit(ctx, key, v)
	return v, nil
}

// GetKPI returns the headline figures of symbol. The profile is required;
// the one-year history that fills the ranges and averages is best-effort.
func (s *Service) GetKPI(ctx context.Context, symbol string) (market.KPI, error) {
	key := market.SymbolKey(symbol)
	if key.Symbol == "" {
		return market.EmptyKPI(key), invalidSymbol()
	}
	return resolve(ctx, s.kpi, key, func(ctx context.Context) (market.KPI, error) {
		info, err := s.freshInfo(ctx, key)
		if err != nil {
			return market.KPI{}, err
		}
		history, err := s.GetSeries(ctx, key.Symbol, "1y", "1d")
		if err != nil && !IsNotFound(err) {
			s.logger.Debug("kpi %s without history: %s", key.Symbol, err)
		}
		return buildKPI(key.Symbol, info, history), nil
	})
}

func buildKPI(symbol string, info market.Info, history market.Series) market.KPI {
	k := market.EmptyKPI(market.SymbolKey(symbol))
	if name := firstString(info, "longName", "shortName"); name != "" {
		k.CompanyName = name
	}
	k.Exchange = firstString(info, "exchange", "exchangeName")
	k.Currency = info.String("currency")

	k.PERatio = info.Float("trailingPE")
	k.ForwardPE = info.Float("forwardPE")
	k.MarketCap = info.Float("marketCap")
	k.Beta = info.Float("beta")
	k.EPS = info.Float("trailingEps")
	k.Dividend = info.Float("dividendRate")
	k.PreviousClose = firstFloat(info, "previousClose", "regularMarketPreviousClose")
	k.FreeCashflow = info.Float("freeCashflow")
	k.OperatingCashflow = info.Float("operatingCashflow")
	k.TotalCash = info.Float("totalCash")
	k.TotalDebt = info.Float("totalDebt")
	k.EBITDA = info.Float("ebitda")
	k.TotalRevenue = info.Float("totalRevenue")
	k.ProfitMargin = info.Float("profitMargins")
	k.ReturnOnEquity = info.Float("returnOnEquity")
	k.DebtToEquity = info.Float("debtToEquity")
	k.PriceToBook = info.Float("priceToBook")
	k.EnterpriseValue = info.Float("enterpriseValue")
	if k.FreeCashflow != nil && k.MarketCap != nil && *k.MarketCap != 0 {
		k.FCFYield = sys.Ptr(*k.FreeCashflow / *k.MarketCap * 100)
	}
	if d := dateField(info, "earningsTimestamp", "earningsDate"); d != "" {
		k.NextEarningsDate = d
	}
	if d := dateField(info, "exDividendDate"); d != "" {
		k.ExDividendDate = d
	}

	k.CurrentPrice = firstFloat(info, "currentPrice", "regularMarketPrice")
	if bars := history.Bars; len(bars) > 0 {
		last := bars[len(bars)-1]
		if k.CurrentPrice == nil {
			k.CurrentPrice = sys.Ptr(last.Close)
		}
		k.OpenPrice = sys.Ptr(last.Open)
		k.DaysRange = formatRange(last.Low, last.High)

		high, low, volume := bars[0].High, bars[0].Low, 0.0
		for _, b := range bars {
			high = max(high, b.High)
			low = min(low, b.Low)
			volume += float64(b.Volume)
		}
		k.WeekHigh52 = sys.Ptr(high)
		k.WeekLow52 = sys.Ptr(low)
		k.WeekRange = formatRange(low, high)
		k.AvgVolume = sys.Ptr(volume / float64(len(bars)))
	}
	return k
}

func formatRange(low, high float64) string {
	return fmt.Sprintf("%.2f - %.2f", low, high)
}

func firstString(info market.Info, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(info.String(k)); v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(info market.Info, keys ...string) *float64 {
	for _, k := range keys {
		if v := info.Float(k); v != nil {
			return v
		}
	}
	return nil
}

// dateField renders the first present key as YYYY-MM-DD. Numbers are epoch
// seconds, strings are taken as already formatted.
func dateField(info market.Info, keys ...string) string {
	for _, k := range keys {
		if f := info.Float(k); f != nil {
			if *f <= 0 {
				continue
			}
			return time.Unix(int64(*f), 0).UTC().Format(time.DateOnly)
		}
		if v := strings.TrimSpace(info.String(k)); v != "" {
			if t, err := time.Parse(time.DateOnly, v); err == nil {
				return t.Format(time.DateOnly)
			}
			return v
		}
	}
	return ""
}
