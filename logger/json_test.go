package logger

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSink struct {
	mutex sync.Mutex
	buf   []byte
}

func (s *testSink) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *testSink) reset() {
	s.mutex.Lock()
	s.buf = nil
	s.mutex.Unlock()
}

func (s *testSink) last(t *testing.T) map[string]interface{} {
	t.Helper()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	lines := bytes.Split(bytes.TrimSpace(s.buf), []byte("\n"))
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &parsed))
	return parsed
}

func TestJSONLogEntryString(t *testing.T) {
	var parsed map[string]interface{}

	require.NoError(t, json.Unmarshal([]byte(JSONLogEntry{Message: "fetched"}.String()), &parsed))
	assert.Equal(t, "fetched", parsed["message"])
	assert.Equal(t, "INFO", parsed["severity"])

	entry := JSONLogEntry{
		Message:  "cooldown engaged",
		Severity: "WARNING",
		Metadata: map[string]interface{}{"symbol": "AAPL", "attempt": 2},
	}
	require.NoError(t, json.Unmarshal([]byte(entry.String()), &parsed))
	assert.Equal(t, "WARNING", parsed["severity"])
	metadata := parsed["metadata"].(map[string]interface{})
	assert.Equal(t, "AAPL", metadata["symbol"])
	assert.Equal(t, float64(2), metadata["attempt"])
}

func TestJSONLoggerComponent(t *testing.T) {
	sink := &testSink{}
	logger := NewJSONLoggerWithSink(sink, LevelTrace)

	logger.WithPrefix("[fetch]").Info("hit")
	assert.Equal(t, "fetch", sink.last(t)["component"])

	logger.WithPrefix("[fetch]").WithPrefix("[gate]").WithPrefix("[gate]").Info("hit")
	assert.Equal(t, "fetch, gate", sink.last(t)["component"])
}

func TestJSONLoggerWith(t *testing.T) {
	sink := &testSink{}
	logger := NewJSONLoggerWithSink(sink, LevelTrace)

	logger.With(map[string]interface{}{"trace": "trace-id"}).Info("x")
	assert.Equal(t, "trace-id", sink.last(t)["logging.googleapis.com/trace"])

	logger.With(map[string]interface{}{"component": "screener"}).Info("x")
	assert.Equal(t, "screener", sink.last(t)["component"])

	logger.With(map[string]interface{}{"symbol": "MSFT"}).Warn("Test %s %d", "message", 42)
	parsed := sink.last(t)
	assert.Equal(t, "Test message 42", parsed["message"])
	assert.Equal(t, "WARNING", parsed["severity"])
	assert.Equal(t, "MSFT", parsed["symbol"])
	assert.Nil(t, parsed["metadata"])

	logger.With(map[string]interface{}{"kind": "series", "attempt": 2}).Info("retry")
	parsed = sink.last(t)
	assert.Equal(t, "series", parsed["kind"])
	assert.Equal(t, float64(2), parsed["metadata"].(map[string]interface{})["attempt"])
}

func TestJSONLoggerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, LevelInfo)
	l.now = func() time.Time { return time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC) }

	l.WithPrefix("[screener]").Info("tick \x1b[32mdone\x1b[0m")
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &parsed))
	assert.Equal(t, "tick done", parsed["message"])
	assert.Equal(t, "screener", parsed["component"])
	assert.Equal(t, "2024-05-01T00:00:00Z", parsed["timestamp"])
}

func TestJSONLoggerLevelFiltering(t *testing.T) {
	sink := &testSink{}
	logger := NewJSONLoggerWithSink(sink, LevelInfo)

	assert.False(t, logger.IsDebugEnabled())
	assert.True(t, logger.IsInfoEnabled())

	logger.Debug("Debug message")
	assert.Nil(t, sink.buf)

	logger.Info("Info message")
	assert.NotNil(t, sink.buf)
	sink.reset()

	logger.Error("Error message")
	assert.Equal(t, "ERROR", sink.last(t)["severity"])
}

func TestNewJSONLoggerUsesEnvLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	logger := NewJSONLogger()
	assert.False(t, logger.IsInfoEnabled())
	assert.True(t, logger.IsWarnEnabled())

	assert.True(t, NewJSONLogger(LevelTrace).IsTraceEnabled())
}
