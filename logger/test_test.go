package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLoggerMethods(t *testing.T) {
	logger := NewTestLogger()

	logger.Trace("Trace message %d", 1)
	logger.Debug("Debug message %d", 2)
	logger.Info("Info message %d", 3)
	logger.Warn("Warn message %d", 4)
	logger.Error("Error message %d", 5)

	entries := logger.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, "TRACE", entries[0].Severity)
	assert.Equal(t, "Trace message %d", entries[0].Message)
	assert.Equal(t, []interface{}{1}, entries[0].Arguments)
	assert.Equal(t, "WARNING", entries[3].Severity)
	assert.Equal(t, "Error message 5", entries[4].Formatted())

	assert.True(t, logger.Has("INFO", "message 3"))
	assert.False(t, logger.Has("INFO", "message 4"))
	assert.Equal(t, 1, logger.Count("ERROR"))
}

func TestTestLoggerDerivedShareEntries(t *testing.T) {
	root := NewTestLogger()
	child := root.With(map[string]interface{}{"symbol": "AAPL"}).WithPrefix("[fetch]")
	child.Warn("rate limited")

	entries := root.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "AAPL", entries[0].Metadata["symbol"])
	assert.Equal(t, []string{"[fetch]"}, entries[0].Prefixes)
	assert.Nil(t, root.metadata["symbol"], "parent metadata untouched")
}

func TestTestLoggerWithContext(t *testing.T) {
	logger := NewTestLogger()
	assert.Equal(t, logger, logger.WithContext(context.Background()))
}

func TestTestLoggerStack(t *testing.T) {
	first := NewTestLogger()
	second := NewTestLogger()

	first.Stack(second).Info("both")

	assert.True(t, first.Has("INFO", "both"))
	assert.True(t, second.Has("INFO", "both"))
}

func TestTestLoggerConcurrent(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			WithKV(logger, "i", i).Debug("tick")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, logger.Count("DEBUG"))
}
