package scheduler

import (
	"context"

	"github.com/agentuity/go-marketdata/fetch"
	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/screener"
)

// ScreenJob advances the screener by one tick.
type ScreenJob struct {
	Screener *screener.Screener
	Query    screener.Query
	Logger   logger.Logger
}

func (j ScreenJob) Name() string { return "screen:" + j.Query.Metric }

func (j ScreenJob) Run(ctx context.Context) error {
	res, err := j.Screener.Screen(ctx, j.Query)
	if err != nil {
		return err
	}
	switch {
	case res.CooldownSeconds > 0:
		j.Logger.Debug("screener waiting %ds for cooldown, %d remaining", res.CooldownSeconds, res.Remaining)
	case !res.Complete:
		j.Logger.Debug("screener enriched, %d of %d remaining", res.Remaining, res.UniverseSize)
	}
	return nil
}

// WatchlistJob refreshes the summaries of a fixed list of symbols. It does
// nothing while the gate is cooling down.
type WatchlistJob struct {
	Service *fetch.Service
	Symbols []string
	Logger  logger.Logger
}

func (j WatchlistJob) Name() string { return "watchlist" }

func (j WatchlistJob) Run(ctx context.Context) error {
	if len(j.Symbols) == 0 {
		return nil
	}
	if st := j.Service.Gate().Status(); st.CoolingDown() {
		j.Logger.Debug("watchlist skipped, cooling down for %s", st.Remaining)
		return nil
	}
	summaries := j.Service.GetBatch(ctx, j.Symbols)
	var stale int
	for _, s := range summaries {
		if s.Stale {
			stale++
		}
	}
	j.Logger.Debug("watchlist refreshed %d symbols (%d stale)", len(summaries), stale)
	return ctx.Err()
}
