package screener

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) warmOptions(sleeps *[]time.Duration) WarmOptions {
	return WarmOptions{
		Query: Query{Metric: "fcfYield"},
		Sleep: func(ctx context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			return h.clock.Sleep(ctx, d)
		},
	}
}

func TestWarmUntilComplete(t *testing.T) {
	h := newHarness(t)
	universe := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, sym := range universe {
		h.company(sym, float64(10*(i+1)))
	}
	sc := h.screener(universe, Config{MaxPerTick: 2})

	var sleeps []time.Duration
	var remaining []int
	res, err := sc.Warm(context.Background(), h.warmOptions(&sleeps), func(p WarmProgress) {
		remaining = append(remaining, p.Result.Remaining)
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Len(t, res.Rows, 7)
	assert.Equal(t, []int{5, 3, 1, 0}, remaining)
	assert.Equal(t, []time.Duration{DefaultWarmInterval, DefaultWarmInterval, DefaultWarmInterval}, sleeps)
}

func TestWarmWaitsOutCooldown(t *testing.T) {
	h := newHarness(t)
	h.company("A", 10)
	h.gate.TriggerCooldown(context.Background(), 0)
	sc := h.screener([]string{"A"}, DefaultConfig())

	var sleeps []time.Duration
	res, err := sc.Warm(context.Background(), h.warmOptions(&sleeps), nil)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, []time.Duration{5 * time.Minute}, sleeps)
}

func TestWarmStopsAtMaxIterations(t *testing.T) {
	h := newHarness(t)
	universe := []string{"A", "B", "C", "D", "E"}
	for _, sym := range universe {
		h.company(sym, 10)
	}
	sc := h.screener(universe, Config{MaxPerTick: 1})

	var sleeps []time.Duration
	var progress []WarmProgress
	opts := h.warmOptions(&sleeps)
	opts.MaxIterations = 2
	res, err := sc.Warm(context.Background(), opts, func(p WarmProgress) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, 3, res.Remaining)
	require.Len(t, progress, 2)
	assert.Equal(t, DefaultWarmInterval, progress[0].Next)
	assert.Zero(t, progress[1].Next)
	assert.Len(t, sleeps, 1)
}

func TestWarmCancelled(t *testing.T) {
	h := newHarness(t)
	h.company("A", 10)
	h.company("B", 10)
	sc := h.screener([]string{"A", "B"}, Config{MaxPerTick: 1})

	ctx, cancel := context.WithCancel(context.Background())
	opts := WarmOptions{
		Query: Query{Metric: "fcfYield"},
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	res, err := sc.Warm(ctx, opts, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, res.Remaining)
}

func TestNextWarmDelay(t *testing.T) {
	interval, limit := 6*time.Second, 2*time.Minute
	assert.Equal(t, 9*time.Second, nextWarmDelay(interval, interval, limit, false))
	assert.Equal(t, 13500*time.Millisecond, nextWarmDelay(9*time.Second, interval, limit, false))
	assert.Equal(t, limit, nextWarmDelay(100*time.Second, interval, limit, false))
	assert.Equal(t, interval, nextWarmDelay(limit, interval, limit, true))
	assert.Equal(t, interval, nextWarmDelay(0, interval, limit, false))
}
