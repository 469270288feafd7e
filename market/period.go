package market

import (
	"sort"
	"strings"
	"time"
)

// extendedPeriods maps the user-facing period onto the longer range fetched
// from the provider, so several views of one instrument share one upstream call.
var extendedPeriods = map[string]string{
	"1D":  "1y",
	"5D":  "1y",
	"1M":  "1y",
	"6M":  "2y",
	"YTD": "2y",
	"1Y":  "2y",
	"5Y":  "10y",
	"MAX": "max",
}

const defaultExtendedPeriod = "2y"

// ExtendedPeriod returns the provider range to fetch for a user period.
func ExtendedPeriod(period string) string {
	if ext, ok := extendedPeriods[strings.ToUpper(strings.TrimSpace(period))]; ok {
		return ext
	}
	return defaultExtendedPeriod
}

const (
	periodAll = -1
	periodYTD = -2
)

// PeriodDays returns the look-back window in days for a user period.
func PeriodDays(period string) int {
	switch strings.ToUpper(strings.TrimSpace(period)) {
	case "1D":
		return 1
	case "5D":
		return 5
	case "1M":
		return 30
	case "6M":
		return 180
	case "YTD":
		return periodYTD
	case "1Y":
		return 365
	case "5Y":
		return 365 * 5
	case "MAX":
		return periodAll
	default:
		return 365
	}
}

// periodCutoff returns the earliest timestamp kept for period given the last
// timestamp in the data. ok is false when nothing should be cut.
func periodCutoff(last time.Time, period string) (time.Time, bool) {
	switch days := PeriodDays(period); days {
	case periodAll:
		return time.Time{}, false
	case periodYTD:
		return time.Date(last.Year(), time.January, 1, 0, 0, 0, 0, last.Location()), true
	default:
		return last.AddDate(0, 0, -days), true
	}
}

func firstIndexFrom(n int, at func(int) time.Time, cutoff time.Time) int {
	return sort.Search(n, func(i int) bool { return !at(i).Before(cutoff) })
}

// SliceBars trims chronologically ordered bars to the requested period,
// anchored on the last bar. If the slice would be empty the whole input is
// kept. The result is a copy and never aliases bars.
func SliceBars(bars []Bar, period string) []Bar {
	return append([]Bar{}, bars[barsFrom(bars, period):]...)
}

func barsFrom(bars []Bar, period string) int {
	if len(bars) == 0 {
		return 0
	}
	cutoff, ok := periodCutoff(bars[len(bars)-1].Time, period)
	if !ok {
		return 0
	}
	i := firstIndexFrom(len(bars), func(i int) time.Time { return bars[i].Time }, cutoff)
	if i >= len(bars) {
		return 0
	}
	return i
}

// SliceIndicators trims an indicator table the same way SliceBars does. The
// result is a copy and never aliases ind.
func SliceIndicators(ind Indicators, period string) Indicators {
	i := 0
	if n := len(ind.Dates); n > 0 {
		if cutoff, ok := periodCutoff(ind.Dates[n-1], period); ok {
			i = firstIndexFrom(n, func(i int) time.Time { return ind.Dates[i] }, cutoff)
			if i >= n {
				i = 0
			}
		}
	}
	out := Indicators{
		Symbol:   ind.Symbol,
		Interval: ind.Interval,
		Dates:    append([]time.Time{}, ind.Dates[i:]...),
		Columns:  make(map[string][]*float64, len(ind.Columns)),
		Stale:    ind.Stale,
	}
	for name, col := range ind.Columns {
		if len(col) > i {
			out.Columns[name] = append([]*float64{}, col[i:]...)
		} else {
			out.Columns[name] = []*float64{}
		}
	}
	return out
}

// SortBars orders bars by time and drops duplicate timestamps, keeping the last.
func SortBars(bars []Bar) []Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && len(out) > 0 && out[len(out)-1].Time.Equal(b.Time) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
