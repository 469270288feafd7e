// Package indicators derives the technical indicator table shown next to a
// price chart, and the summary statistics the screener ranks on.
package indicators

import (
	"math"
	"time"

	"github.com/agentuity/go-marketdata/market"
	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Column names of the indicator table.
const (
	MA50        = "MA50"
	MA100       = "MA100"
	MA150       = "MA150"
	MA200       = "MA200"
	EMA50       = "EMA50"
	RSI         = "RSI"
	BollingerMA = "Bollinger_MA"
	UpperBand   = "Upper_Band"
	LowerBand   = "Lower_Band"
	Momentum    = "Momentum"
	Volatility  = "Volatility"
	MACD        = "MACD"
	MACDSignal  = "MACD_Signal"
	ATR         = "ATR"
	OBV         = "OBV"
)

// Columns lists every column Compute produces.
func Columns() []string {
	return []string{MA50, MA100, MA150, MA200, EMA50, RSI, BollingerMA, UpperBand, LowerBand, Momentum, Volatility, MACD, MACDSignal, ATR, OBV}
}

const (
	rsiPeriod        = 14
	bollingerPeriod  = 20
	bollingerStdDevs = 2.0
	momentumPeriod   = 5
	volatilityPeriod = 20
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
	atrPeriod        = 14
)

// Compute builds the indicator table for a chronologically ordered series.
// Rows inside an indicator's warm-up window are nil.
func Compute(s market.Series) market.Indicators {
	out := market.Indicators{
		Symbol:   s.Symbol,
		Interval: s.Interval,
		Dates:    make([]time.Time, 0, len(s.Bars)),
		Columns:  make(map[string][]*float64, len(Columns())),
	}
	n := len(s.Bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range s.Bars {
		out.Dates = append(out.Dates, b.Time)
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = float64(b.Volume)
	}

	for name, period := range map[string]int{MA50: 50, MA100: 100, MA150: 150, MA200: 200} {
		out.Columns[name] = guarded(n, period-1, func() []float64 { return talib.Sma(closes, period) })
	}
	out.Columns[EMA50] = guarded(n, 49, func() []float64 { return talib.Ema(closes, 50) })
	out.Columns[RSI] = guarded(n, rsiPeriod, func() []float64 { return talib.Rsi(closes, rsiPeriod) })

	if n > bollingerPeriod-1 {
		upper, middle, lower := talib.BBands(closes, bollingerPeriod, bollingerStdDevs, bollingerStdDevs, talib.SMA)
		out.Columns[UpperBand] = column(upper, bollingerPeriod-1)
		out.Columns[BollingerMA] = column(middle, bollingerPeriod-1)
		out.Columns[LowerBand] = column(lower, bollingerPeriod-1)
	} else {
		out.Columns[UpperBand] = empty(n)
		out.Columns[BollingerMA] = empty(n)
		out.Columns[LowerBand] = empty(n)
	}

	out.Columns[Momentum] = guarded(n, momentumPeriod, func() []float64 { return talib.Rocp(closes, momentumPeriod) })
	out.Columns[Volatility] = rollingStdDev(closes, volatilityPeriod)

	macdLookback := macdSlow - 1 + macdSignal - 1
	if n > macdLookback {
		macd, signal, _ := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		out.Columns[MACD] = column(macd, macdLookback)
		out.Columns[MACDSignal] = column(signal, macdLookback)
	} else {
		out.Columns[MACD] = empty(n)
		out.Columns[MACDSignal] = empty(n)
	}

	out.Columns[ATR] = guarded(n, atrPeriod, func() []float64 { return talib.Atr(highs, lows, closes, atrPeriod) })
	out.Columns[OBV] = guarded(n, 0, func() []float64 { return talib.Obv(closes, volumes) })
	return out
}

func empty(n int) []*float64 {
	return make([]*float64, n)
}

// guarded runs fn only when the input is longer than the lookback; talib
// returns zero-filled output for shorter inputs.
func guarded(n, lookback int, fn func() []float64) []*float64 {
	if n == 0 || n <= lookback {
		return empty(n)
	}
	return column(fn(), lookback)
}

func column(vals []float64, lookback int) []*float64 {
	out := make([]*float64, len(vals))
	for i := lookback; i < len(vals); i++ {
		v := vals[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = &v
	}
	return out
}

// rollingStdDev is the sample standard deviation over a trailing window.
func rollingStdDev(vals []float64, window int) []*float64 {
	out := make([]*float64, len(vals))
	for i := window - 1; i < len(vals); i++ {
		v := stat.StdDev(vals[i-window+1:i+1], nil)
		if math.IsNaN(v) {
			continue
		}
		out[i] = &v
	}
	return out
}
