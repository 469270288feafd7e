package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-marketdata/fetch"
	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/ratelimit"
	"github.com/agentuity/go-marketdata/screener"
	"github.com/agentuity/go-marketdata/upstream/upstreamtest"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(context.Background(), logger.NewTestLogger())
	err := s.AddJob("every minute", &countingJob{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counting")
	assert.Empty(t, s.Jobs())
}

func TestRunNow(t *testing.T) {
	s := New(context.Background(), logger.NewTestLogger())
	job := &countingJob{err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduledRunAndStop(t *testing.T) {
	log := logger.NewTestLogger()
	s := New(context.Background(), log)
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))
	assert.Equal(t, []string{"counting"}, s.Jobs())

	s.Start()
	require.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	assert.True(t, log.Has("INFO", "stopped"))
}

type blockingJob struct {
	started chan struct{}
	once    sync.Once
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.once.Do(func() { close(j.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestStopCancelsRunningJobs(t *testing.T) {
	s := New(context.Background(), logger.NewTestLogger())
	job := &blockingJob{started: make(chan struct{})}
	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	select {
	case <-job.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not cancel the running job")
	}
}

func newService(t *testing.T) (*fetch.Service, *upstreamtest.Mock) {
	t.Helper()
	log := logger.NewTestLogger()
	mock := upstreamtest.New()
	noSleep := func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	gate := ratelimit.New(context.Background(), log, ratelimit.DefaultConfig(),
		ratelimit.WithSleeper(noSleep),
		ratelimit.WithJitterSource(func(time.Duration) time.Duration { return 0 }),
	)
	cfg := fetch.DefaultConfig()
	cfg.ChunkDelay = 0
	cfg.Snapshots = false
	return fetch.New(mock, gate, log, cfg, fetch.WithSleeper(noSleep)), mock
}

func TestWatchlistJob(t *testing.T) {
	svc, mock := newService(t)
	start := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	mock.WithFrame(upstreamtest.DailyFrame("AAPL", start, 100, 101, 102))
	mock.WithFrame(upstreamtest.DailyFrame("MSFT", start, 300, 301, 302))

	job := WatchlistJob{Service: svc, Symbols: []string{"AAPL", "MSFT"}, Logger: logger.NewTestLogger()}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, mock.BatchCalls())

	summary, err := svc.GetSummary(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 102.0, summary.CurrentPrice)
	assert.Equal(t, 1, mock.BatchCalls(), "served from the warmed cache")
}

func TestWatchlistJobSkipsDuringCooldown(t *testing.T) {
	svc, mock := newService(t)
	svc.Gate().TriggerCooldown(context.Background(), 0)

	job := WatchlistJob{Service: svc, Symbols: []string{"AAPL"}, Logger: logger.NewTestLogger()}
	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, mock.Calls())
}

func TestScreenJob(t *testing.T) {
	svc, mock := newService(t)
	end := time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC)
	for _, sym := range []string{"AAPL", "MSFT"} {
		mock.WithFrame(upstreamtest.Trend(sym, end, 260, 100, 0.25))
		mock.WithInfo(sym, map[string]any{"longName": sym + " Corp", "marketCap": 1000.0, "freeCashflow": 50.0})
	}
	scr := screener.New(svc, screener.StaticSource{"AAPL", "MSFT"}, logger.NewTestLogger(), screener.DefaultConfig())

	job := ScreenJob{Screener: scr, Query: screener.Query{Metric: "fcfYield"}, Logger: logger.NewTestLogger()}
	assert.Equal(t, "screen:fcfYield", job.Name())
	require.NoError(t, job.Run(context.Background()))

	res, err := scr.Screen(context.Background(), screener.Query{Metric: "fcfYield"})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Len(t, res.Rows, 2)
}

func TestScreenJobUnknownMetric(t *testing.T) {
	svc, _ := newService(t)
	scr := screener.New(svc, screener.StaticSource{"AAPL"}, logger.NewTestLogger(), screener.DefaultConfig())
	job := ScreenJob{Screener: scr, Query: screener.Query{Metric: "vibes"}, Logger: logger.NewTestLogger()}
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, screener.ErrUnknownMetric))
}
