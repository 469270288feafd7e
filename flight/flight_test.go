package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCoalesces(t *testing.T) {
	var g Group
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, _, err := Do(context.Background(), &g, "series:AAPL", func(context.Context) (int, error) {
				if calls.Add(1) == 1 {
					close(started)
				}
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			results[i] = val
		}()
	}

	<-started
	assert.Eventually(t, func() bool { return g.InFlight() == 1 }, time.Second, time.Millisecond)
	// give the remaining callers time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
	assert.Equal(t, 0, g.InFlight())
}

func TestGroupForgetsAfterCompletion(t *testing.T) {
	var g Group
	var calls int
	for range 3 {
		_, shared, err := Do(context.Background(), &g, "k", func(context.Context) (int, error) {
			calls++
			return calls, nil
		})
		require.NoError(t, err)
		assert.False(t, shared)
	}
	assert.Equal(t, 3, calls, "not a cache")
}

func TestGroupSharesErrors(t *testing.T) {
	var g Group
	boom := errors.New("boom")
	_, _, err := Do(context.Background(), &g, "k", func(context.Context) (int, error) {
		return 0, boom
	})
	assert.True(t, errors.Is(err, boom))
}

func TestGroupRecoversPanic(t *testing.T) {
	var g Group
	release := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = g.Do(context.Background(), "k", func(context.Context) (any, error) {
				<-release
				panic("upstream exploded")
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPanicked))
	}
	assert.Equal(t, 0, g.InFlight())

	val, _, err := Do(context.Background(), &g, "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", val, "key usable after a panic")
}

func TestGroupWaiterCancellation(t *testing.T) {
	var g Group
	release := make(chan struct{})
	defer close(release)
	go g.Do(context.Background(), "k", func(context.Context) (any, error) {
		<-release
		return nil, nil
	})
	assert.Eventually(t, func() bool { return g.InFlight() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := g.Do(ctx, "k", func(context.Context) (any, error) { return nil, nil })
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDoTypeMismatch(t *testing.T) {
	var g Group
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		val, _, err := Do(context.Background(), &g, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 42, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 42, val)
	}()
	<-started

	waiter := make(chan error, 1)
	go func() {
		val, _, err := Do(context.Background(), &g, "k", func(context.Context) (string, error) { return "unused", nil })
		assert.Empty(t, val)
		waiter <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done

	err := <-waiter
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}

func TestDoNilResult(t *testing.T) {
	var g Group
	val, _, err := Do(context.Background(), &g, "k", func(context.Context) (error, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestKeyCanonical(t *testing.T) {
	assert.Equal(t,
		Key("batch", Symbols{"msft", "AAPL", "aapl "}, "ytd"),
		Key("batch", Symbols{"AAPL", "MSFT"}, " ytd"))
	assert.NotEqual(t,
		Key("batch", Symbols{"AAPL", "MSFT"}, "ytd"),
		Key("batch", Symbols{"AAPL", "GOOG"}, "ytd"))
	assert.Equal(t,
		Key("series", Symbol(" aapl"), "1y", "1d"),
		Key("series", Symbol("AAPL"), "1y", "1d"))
	assert.Equal(t,
		Key("q", map[string]any{"b": 2, "a": Symbol("x")}),
		Key("q", map[string]any{"a": Symbol("X"), "b": 2}))
	assert.NotEqual(t, Key("series", Symbol("AAPL")), Key("info", Symbol("AAPL")))

	k := Key("series", Symbol("AAPL"))
	assert.Regexp(t, `^series:[0-9a-f]+$`, k)
}
