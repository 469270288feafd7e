package screener

import (
	"context"
	"time"

	"github.com/agentuity/go-marketdata/resilience"
)

const (
	DefaultWarmInterval      = 6 * time.Second
	DefaultWarmMaxInterval   = 2 * time.Minute
	DefaultWarmMaxIterations = 300
	warmBackoffMultiplier    = 1.5
)

// WarmOptions drives Warm.
type WarmOptions struct {
	Query Query
	// Interval is the pause between ticks while the screener makes progress.
	Interval time.Duration
	// MaxInterval caps the pause when a tick makes no progress.
	MaxInterval   time.Duration
	MaxIterations int
	Sleep         func(ctx context.Context, d time.Duration) error
}

// WarmProgress is reported after every tick.
type WarmProgress struct {
	Iteration int
	Result    Result
	// Next is the pause before the next tick, zero after the last one.
	Next time.Duration
}

func (o *WarmOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultWarmInterval
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = max(DefaultWarmMaxInterval, o.Interval)
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultWarmMaxIterations
	}
	if o.Sleep == nil {
		o.Sleep = resilience.SleepContext
	}
}

// nextWarmDelay grows the pause by half while the remaining count does not
// shrink and resets it once it does.
func nextWarmDelay(prev, interval, limit time.Duration, progressed bool) time.Duration {
	if progressed {
		return interval
	}
	next := max(time.Duration(float64(prev)*warmBackoffMultiplier), interval)
	return min(next, limit)
}

// Warm ticks the screener until the universe is fully enriched or
// MaxIterations ticks have run. Query.Refresh only applies to the first tick.
// A running cooldown stretches the pause to its end.
func (s *Screener) Warm(ctx context.Context, opts WarmOptions, progress func(WarmProgress)) (Result, error) {
	opts.defaults()
	delay := opts.Interval
	lastRemaining := -1
	var res Result
	for i := 1; i <= opts.MaxIterations; i++ {
		q := opts.Query
		q.Refresh = q.Refresh && i == 1
		var err error
		res, err = s.Screen(ctx, q)
		if err != nil {
			return res, err
		}
		if res.Complete || i == opts.MaxIterations {
			if progress != nil {
				progress(WarmProgress{Iteration: i, Result: res})
			}
			return res, nil
		}
		if lastRemaining >= 0 {
			delay = nextWarmDelay(delay, opts.Interval, opts.MaxInterval, res.Remaining < lastRemaining)
		}
		lastRemaining = res.Remaining
		wait := max(delay, time.Duration(res.CooldownSeconds)*time.Second)
		if progress != nil {
			progress(WarmProgress{Iteration: i, Result: res, Next: wait})
		}
		if err := opts.Sleep(ctx, wait); err != nil {
			return res, err
		}
	}
	return res, nil
}
