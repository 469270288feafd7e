package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartBody = `{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL","exchangeName":"NMS","longName":"Apple Inc."},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"open":[187.1,184.2,null],"high":[188.4,185.8,null],"low":[183.8,183.4,null],"close":[185.6,184.2,null],"volume":[82488700,58414500,null]}],
"adjclose":[{"adjclose":[185.0,183.7,null]}]}}],"error":null}}`

const sparkBody = `{"spark":{"result":[
{"symbol":"AAPL","response":[{"meta":{"symbol":"AAPL"},"timestamp":[1704205800,1704292200],"indicators":{"quote":[{"close":[185.6,184.2]}]}}]},
{"symbol":"ZZZZ","response":[{"meta":{"symbol":"ZZZZ"},"timestamp":[],"indicators":{"quote":[{"close":[]}]}}]}
],"error":null}}`

const summaryBody = `{"quoteSummary":{"result":[{
"price":{"longName":"Apple Inc.","exchangeName":"NasdaqGS","currency":"USD","regularMarketPrice":{"raw":187.5,"fmt":"187.50"},"marketCap":{"raw":2900000000000,"fmt":"2.9T"}},
"summaryDetail":{"trailingPE":{"raw":29.1,"fmt":"29.10"},"beta":{"raw":1.29,"fmt":"1.29"},"marketCap":{"raw":1,"fmt":"1"}},
"calendarEvents":{"earnings":{"earningsDate":[{"raw":1714680000,"fmt":"2024-05-02"}]}},
"financialData":{"freeCashflow":{"raw":84726874112,"fmt":"84.73B"},"totalDebt":{}}
}],"error":null}}`

const searchBody = `{"quotes":[
{"symbol":"AAPL","shortname":"Apple","longname":"Apple Inc.","exchDisp":"NASDAQ","quoteType":"EQUITY"},
{"shortname":"no symbol"},
{"symbol":"aple","shortname":"Apple Hospitality","exchDisp":"NYSE","quoteType":"EQUITY"}],
"news":[
{"uuid":"1","title":"Older","publisher":"Wire","link":"https://example.com/1","providerPublishTime":1714000000},
{"uuid":"2","title":"Newer","publisher":"Wire","link":"https://example.com/2","providerPublishTime":1714680000,"relatedTickers":["AAPL"]},
{"uuid":"3","title":""}]}`

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *Yahoo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewYahoo(logger.NewTestLogger(), WithBaseURL(srv.URL), WithTimeout(2*time.Second))
}

func TestYahooFetchSeries(t *testing.T) {
	var gotPath, gotRange string
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		w.Write([]byte(chartBody))
	})

	ctx, state := WithCallState(context.Background())
	f, err := y.FetchSeries(ctx, "AAPL", "6m", "1d")
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Equal(t, "6mo", gotRange)
	require.Len(t, f.Bars, 2, "row without close skipped")
	assert.Equal(t, 185.6, f.Bars[0].Close)
	assert.Equal(t, 185.0, f.Bars[0].AdjClose)
	assert.Equal(t, int64(82488700), f.Bars[0].Volume)
	assert.Equal(t, "Apple Inc.", f.MetaString("longName"))
	assert.False(t, state.RateLimited())
}

func TestYahooRateLimited(t *testing.T) {
	status := http.StatusTooManyRequests
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("Too Many Requests"))
	})

	ctx, state := WithCallState(context.Background())
	_, err := y.FetchSeries(ctx, "AAPL", "1y", "1d")
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, state.RateLimited())
	assert.Equal(t, OutcomeRateLimited, Classify(err, true, state.RateLimited()))

	status = http.StatusOK
	ctx, state = WithCallState(context.Background())
	_, err = y.FetchInfo(ctx, "AAPL")
	assert.True(t, errors.Is(err, ErrRateLimited), "throttle text in a 200 body")
	assert.True(t, state.RateLimited())
}

func TestYahooNotFound(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})
	ctx, state := WithCallState(context.Background())
	_, err := y.FetchSeries(ctx, "NOPE", "1y", "1d")
	assert.True(t, errors.Is(err, ErrEmpty))
	assert.False(t, state.RateLimited())
}

func TestYahooChartErrorPayload(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	})
	_, err := y.FetchSeries(context.Background(), "NOPE", "1y", "1d")
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestYahooServerError(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := y.FetchSeries(context.Background(), "AAPL", "1y", "1d")
	require.Error(t, err)
	assert.Equal(t, OutcomeTransient, Classify(err, false, false))
}

func TestYahooUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"finance":{"error":{"code":"Unauthorized","description":"Invalid Crumb"}}}`))
		})
		_, err := y.FetchInfo(context.Background(), "AAPL")
		assert.True(t, errors.Is(err, ErrUnauthorized), "status %d", status)
		assert.False(t, errors.Is(err, ErrRateLimited))
	}
}

func TestYahooConcurrentCallsKeepTheirOwnSignal(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v8/finance/chart/SLOW" {
			time.Sleep(50 * time.Millisecond)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		time.Sleep(150 * time.Millisecond)
		w.Write([]byte(chartBody))
	})

	goodCtx, goodState := WithCallState(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := y.FetchSeries(goodCtx, "AAPL", "1y", "1d")
		done <- err
	}()
	slowCtx, slowState := WithCallState(context.Background())
	_, err := y.FetchSeries(slowCtx, "SLOW", "1y", "1d")
	assert.True(t, errors.Is(err, ErrRateLimited))
	require.NoError(t, <-done)
	assert.True(t, slowState.RateLimited())
	assert.False(t, goodState.RateLimited())
}

func TestYahooSearch(t *testing.T) {
	var gotQuery, gotQuotes, gotNews string
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotQuotes = r.URL.Query().Get("quotesCount")
		gotNews = r.URL.Query().Get("newsCount")
		w.Write([]byte(searchBody))
	})
	res, err := y.Search(context.Background(), "apple", 6, 10)
	require.NoError(t, err)
	assert.Equal(t, "apple", gotQuery)
	assert.Equal(t, "6", gotQuotes)
	assert.Equal(t, "10", gotNews)
	require.Len(t, res.Quotes, 2, "quote without symbol dropped")
	assert.Equal(t, "AAPL", res.Quotes[0].Symbol)
	assert.Equal(t, "Apple Inc.", res.Quotes[0].Name)
	assert.Equal(t, "NASDAQ", res.Quotes[0].Exchange)
	assert.Equal(t, "APLE", res.Quotes[1].Symbol)
	assert.Equal(t, "Apple Hospitality", res.Quotes[1].Name, "short name when long name missing")
	require.Len(t, res.News, 2)
	assert.Equal(t, "Newer", res.News[0].Title, "newest first")
	assert.Equal(t, time.Unix(1714680000, 0).UTC(), res.News[0].Published)
	assert.Equal(t, []string{"AAPL"}, res.News[0].RelatedTickers)
}

func TestYahooSearchTruncates(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	})
	res, err := y.Search(context.Background(), "apple", 1, 0)
	require.NoError(t, err)
	assert.Len(t, res.Quotes, 1)
	assert.Empty(t, res.News)
	assert.False(t, res.Empty())
}

func TestYahooFetchBatch(t *testing.T) {
	var gotSymbols string
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7/finance/spark", r.URL.Path)
		gotSymbols = r.URL.Query().Get("symbols")
		w.Write([]byte(sparkBody))
	})
	frames, err := y.FetchBatch(context.Background(), []string{"AAPL", "ZZZZ"}, "ytd", "1d")
	require.NoError(t, err)
	assert.Equal(t, "AAPL,ZZZZ", gotSymbols)
	require.Contains(t, frames, "AAPL")
	assert.NotContains(t, frames, "ZZZZ")
	assert.Len(t, frames["AAPL"].Bars, 2)
}

func TestYahooFetchInfo(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v10/finance/quoteSummary/AAPL", r.URL.Path)
		w.Write([]byte(summaryBody))
	})
	info, err := y.FetchInfo(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", info["longName"])
	assert.Equal(t, 187.5, info["regularMarketPrice"])
	assert.Equal(t, 2.9e12, info["marketCap"], "first module wins")
	assert.Equal(t, 29.1, info["trailingPE"])
	assert.Equal(t, "2024-05-02", info["earningsDate"])
	assert.Equal(t, 84726874112.0, info["freeCashflow"])
	assert.NotContains(t, info, "totalDebt")
}

func TestProviderRange(t *testing.T) {
	assert.Equal(t, "1mo", providerRange("1m"))
	assert.Equal(t, "6mo", providerRange("6M"))
	assert.Equal(t, "1y", providerRange("1y"))
	assert.Equal(t, "max", providerRange("max"))
	assert.Equal(t, "ytd", providerRange("ytd"))
}
