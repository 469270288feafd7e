package indicators

import (
	"math"

	"github.com/agentuity/go-marketdata/sys"
	"gonum.org/v1/gonum/stat"
)

// TradingDays annualizes daily statistics.
const TradingDays = 252

// Returns converts closes into simple daily returns.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// AnnualizedVolatility is the standard deviation of daily returns scaled to a year.
// It returns nil when fewer than two returns are available.
func AnnualizedVolatility(closes []float64) *float64 {
	r := Returns(closes)
	if len(r) < 2 {
		return nil
	}
	return sys.FinitePtr(stat.StdDev(r, nil) * math.Sqrt(TradingDays))
}

// MeanReturn is the average daily return.
func MeanReturn(closes []float64) *float64 {
	r := Returns(closes)
	if len(r) == 0 {
		return nil
	}
	return sys.FinitePtr(stat.Mean(r, nil))
}

// PeriodReturn is the fractional change over the last days observations.
func PeriodReturn(closes []float64, days int) *float64 {
	if days <= 0 || len(closes) <= days {
		return nil
	}
	base := closes[len(closes)-1-days]
	if base == 0 {
		return nil
	}
	return sys.FinitePtr(closes[len(closes)-1]/base - 1)
}
