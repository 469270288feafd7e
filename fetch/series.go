package fetch

import (
	"context"

	"github.com/agentuity/go-marketdata/indicators"
	"github.com/agentuity/go-marketdata/market"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPeriod   = "1y"
	DefaultInterval = "1d"
	// IndicatorPeriod is the history indicators are computed over before
	// being sliced to the requested period.
	IndicatorPeriod = "max"
)

func seriesKey(symbol, period, interval string) market.Key {
	k := market.NewKey(symbol, period, interval)
	if k.Period == "" {
		k.Period = DefaultPeriod
	}
	if k.Interval == "" {
		k.Interval = DefaultInterval
	}
	return k
}

func invalidSymbol() error {
	return errors.Wrap(ErrInvalidRequest, "empty symbol")
}

// GetSeries returns the price history of symbol over period. The upstream is
// asked for a longer range so that neighbouring periods share one entry; the
// result is sliced back to period.
func (s *Service) GetSeries(ctx context.Context, symbol, period, interval string) (market.Series, error) {
	want := seriesKey(symbol, period, interval)
	if want.Symbol == "" {
		return market.EmptySeries(want), invalidSymbol()
	}
	ext := want
	ext.Period = market.ExtendedPeriod(want.Period)
	full, err := resolve(ctx, s.series, ext, func(ctx context.Context) (market.Series, error) {
		return s.loadSeries(ctx, ext)
	})
	return sliceSeries(full, want), err
}

func sliceSeries(full market.Series, want market.Key) market.Series {
	out := full
	out.Period = want.Period
	out.Bars = market.SliceBars(full.Bars, want.Period)
	return out
}

func (s *Service) loadSeries(ctx context.Context, key market.Key) (market.Series, error) {
	resp, err := s.FetchWithRetry(ctx, RequestSeries{Symbol: key.Symbol, Period: key.Period, Interval: key.Interval})
	if err != nil {
		return market.Series{}, err
	}
	// the response may be shared with other callers
	bars := append([]market.Bar(nil), resp.Frame.Bars...)
	return market.Series{
		Symbol:   key.Symbol,
		Period:   key.Period,
		Interval: key.Interval,
		Bars:     market.SortBars(bars),
	}, nil
}

// freshSeries returns a series usable as the input of a derived kind: a
// fresh cached entry or a new upstream result, never stale data.
func (s *Service) freshSeries(ctx context.Context, key market.Key) (market.Series, error) {
	if v, ok := s.series.values.Get(key); ok {
		return v, nil
	}
	v, err := s.loadSeries(ctx, key)
	if err != nil {
		return v, err
	}
	s.series.commit(ctx, key, v)
	return v, nil
}

// GetIndicators returns the indicator table of symbol sliced to period. The
// table is computed once over the full history per interval.
func (s *Service) GetIndicators(ctx context.Context, symbol, period, interval string) (market.Indicators, error) {
	want := seriesKey(symbol, period, interval)
	if want.Symbol == "" {
		return market.EmptyIndicators(want), invalidSymbol()
	}
	full := market.NewKey(want.Symbol, IndicatorPeriod, want.Interval)
	table, err := resolve(ctx, s.indicators, full, func(ctx context.Context) (market.Indicators, error) {
		series, err := s.freshSeries(ctx, full)
		if err != nil {
			return market.Indicators{}, err
		}
		return indicators.Compute(series), nil
	})
	return market.SliceIndicators(table, want.Period), err
}

// GetBundle returns the series, indicators and KPI of symbol together. The
// parts are fetched concurrently and degrade independently; the first error
// is reported alongside whatever was gathered.
func (s *Service) GetBundle(ctx context.Context, symbol, period, interval string) (market.Bundle, error) {
	if market.NormalizeSymbol(symbol) == "" {
		want := seriesKey(symbol, period, interval)
		return market.Bundle{
			Series:     market.EmptySeries(want),
			Indicators: market.EmptyIndicators(want),
			KPI:        market.EmptyKPI(want),
		}, invalidSymbol()
	}
	var (
		bundle market.Bundle
		g      errgroup.Group
	)
	g.Go(func() (err error) {
		bundle.Series, err = s.GetSeries(ctx, symbol, period, interval)
		return err
	})
	g.Go(func() (err error) {
		bundle.Indicators, err = s.GetIndicators(ctx, symbol, period, interval)
		return err
	})
	g.Go(func() (err error) {
		bundle.KPI, err = s.GetKPI(ctx, symbol)
		return err
	})
	err := g.Wait()
	return bundle, err
}
