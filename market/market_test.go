package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNormalization(t *testing.T) {
	assert.Equal(t, NewKey("AAPL", "1y", "1d"), NewKey(" aapl ", "1Y", "1D"))
	assert.Equal(t, "AAPL|1y|1d", NewKey("aapl", "1Y", "1d").String())
	assert.Equal(t, "MSFT", SymbolKey(" msft").String())
	assert.False(t, SymbolKey("msft").IsSeries())
	assert.True(t, NewKey("msft", "1y", "").IsSeries())
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("AAPL|1y|1d")
	require.NoError(t, err)
	assert.Equal(t, NewKey("AAPL", "1y", "1d"), k)

	k, err = ParseKey("msft")
	require.NoError(t, err)
	assert.Equal(t, SymbolKey("MSFT"), k)

	_, err = ParseKey("A|B")
	assert.Error(t, err)
	_, err = ParseKey("")
	assert.Error(t, err)
}

func TestNormalizeSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, NormalizeSymbols([]string{"aapl", " ", "MSFT", "AAPL "}))
	assert.Empty(t, NormalizeSymbols(nil))
}

func TestKindNames(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("bogus")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestExtendedPeriod(t *testing.T) {
	tests := []struct {
		period   string
		expected string
	}{
		{"1d", "1y"},
		{"5D", "1y"},
		{"1M", "1y"},
		{"6m", "2y"},
		{"ytd", "2y"},
		{"1Y", "2y"},
		{"5y", "10y"},
		{"max", "max"},
		{"weird", "2y"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExtendedPeriod(tt.period), tt.period)
	}
}

func dailyBars(start time.Time, n int) []Bar {
	bars := make([]Bar, n)
	for i := range n {
		bars[i] = Bar{Time: start.AddDate(0, 0, i), Close: float64(i + 1)}
	}
	return bars
}

func TestSliceBars(t *testing.T) {
	start := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	bars := dailyBars(start, 400)
	last := bars[len(bars)-1].Time

	sliced := SliceBars(bars, "5d")
	require.Len(t, sliced, 6)
	assert.Equal(t, last.AddDate(0, 0, -5), sliced[0].Time)

	ytd := SliceBars(bars, "YTD")
	assert.Equal(t, time.Date(last.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), ytd[0].Time)

	assert.Len(t, SliceBars(bars, "max"), 400)
	assert.Empty(t, SliceBars(nil, "1y"))
}

func TestSliceBarsCopies(t *testing.T) {
	bars := dailyBars(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 30)
	for _, period := range []string{"5d", "max"} {
		sliced := SliceBars(bars, period)
		sliced[0].Close = -1
	}
	for _, b := range bars {
		assert.NotEqual(t, -1.0, b.Close)
	}
}

func TestSliceIndicators(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 40)
	col := make([]*float64, 40)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
		v := float64(i)
		col[i] = &v
	}
	ind := Indicators{Symbol: "AAPL", Dates: dates, Columns: map[string][]*float64{"RSI": col}}

	sliced := SliceIndicators(ind, "5D")
	require.Len(t, sliced.Dates, 6)
	require.Len(t, sliced.Columns["RSI"], 6)
	assert.Equal(t, 34.0, *sliced.Columns["RSI"][0])
	assert.Len(t, ind.Dates, 40, "input untouched")

	sliced.Columns["RSI"][1] = nil
	sliced.Dates[0] = time.Time{}
	whole := SliceIndicators(ind, "max")
	whole.Columns["RSI"][0] = nil
	assert.NotNil(t, col[35], "columns are copied")
	assert.NotNil(t, col[0])
	assert.Equal(t, start.AddDate(0, 0, 34), dates[34])

	empty := SliceIndicators(EmptyIndicators(NewKey("AAPL", "max", "1d")), "1y")
	assert.Empty(t, empty.Dates)
}

func TestSortBars(t *testing.T) {
	t0 := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{
		{Time: t0.AddDate(0, 0, 2), Close: 3},
		{Time: t0, Close: 1},
		{Time: t0.AddDate(0, 0, 1), Close: 2},
		{Time: t0.AddDate(0, 0, 1), Close: 22},
	}
	sorted := SortBars(bars)
	require.Len(t, sorted, 3)
	assert.Equal(t, []float64{1, 22, 3}, Series{Bars: sorted}.Closes())
}

func TestEmptyPayloadsAreWellFormed(t *testing.T) {
	k := NewKey("aapl", "1y", "1d")
	assert.NotNil(t, EmptySeries(k).Bars)
	assert.NotNil(t, EmptyIndicators(k).Columns)
	assert.Equal(t, "N/A", EmptyKPI(SymbolKey("aapl")).CompanyName)
	assert.NotNil(t, EmptyInfo(SymbolKey("aapl")).Fields)
	s := EmptySummary(SymbolKey("aapl"))
	assert.Equal(t, "Unknown", s.CompanyName)
	assert.Equal(t, 0.0, s.CurrentPrice)
	assert.NotNil(t, s.Sparkline)
}

func TestInfoAccessors(t *testing.T) {
	info := Info{Fields: map[string]any{"marketCap": int64(10), "beta": 1.2, "longName": "Apple", "bad": "x"}}
	require.NotNil(t, info.Float("marketCap"))
	assert.Equal(t, 10.0, *info.Float("marketCap"))
	assert.Equal(t, 1.2, *info.Float("beta"))
	assert.Nil(t, info.Float("bad"))
	assert.Nil(t, info.Float("missing"))
	assert.Equal(t, "Apple", info.String("longName"))
	assert.Equal(t, "", info.String("missing"))
}
