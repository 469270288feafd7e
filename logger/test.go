package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Metadata  map[string]interface{}
	Prefixes  []string
}

// Formatted returns the message with its arguments applied.
func (e TestLogEntry) Formatted() string {
	if len(e.Arguments) == 0 {
		return e.Message
	}
	return fmt.Sprintf(e.Message, e.Arguments...)
}

type testLogs struct {
	mutex   sync.Mutex
	entries []TestLogEntry
}

// TestLogger records entries in memory. Loggers derived through With,
// WithPrefix or Stack share the same record so a test can hand a derived
// logger to the code under test and assert on the root.
type TestLogger struct {
	metadata map[string]interface{}
	prefixes []string
	logs     *testLogs
	child    Logger
}

var _ Logger = (*TestLogger)(nil)

func (c *TestLogger) clone() *TestLogger {
	metadata := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	prefixes := make([]string, len(c.prefixes))
	copy(prefixes, c.prefixes)
	return &TestLogger{metadata: metadata, prefixes: prefixes, logs: c.logs, child: c.child}
}

func (c *TestLogger) WithContext(ctx context.Context) Logger {
	return c
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *TestLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	clone.prefixes = append(clone.prefixes, prefix)
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range metadata {
		clone.metadata[k] = v
	}
	if clone.child != nil {
		clone.child = clone.child.With(metadata)
	}
	return clone
}

func (c *TestLogger) Log(level string, msg string, args ...interface{}) {
	c.logs.mutex.Lock()
	defer c.logs.mutex.Unlock()
	c.logs.entries = append(c.logs.entries, TestLogEntry{
		Severity:  level,
		Message:   msg,
		Arguments: args,
		Metadata:  c.metadata,
		Prefixes:  c.prefixes,
	})
}

// Entries returns a copy of everything logged so far.
func (c *TestLogger) Entries() []TestLogEntry {
	c.logs.mutex.Lock()
	defer c.logs.mutex.Unlock()
	out := make([]TestLogEntry, len(c.logs.entries))
	copy(out, c.logs.entries)
	return out
}

// Has reports whether an entry with severity contains substr once formatted.
func (c *TestLogger) Has(severity string, substr string) bool {
	for _, e := range c.Entries() {
		if e.Severity == severity && strings.Contains(e.Formatted(), substr) {
			return true
		}
	}
	return false
}

// Count returns the number of entries with severity.
func (c *TestLogger) Count(severity string) int {
	var n int
	for _, e := range c.Entries() {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.Log("TRACE", msg, args...)
	if c.child != nil {
		c.child.Trace(msg, args...)
	}
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.Log("DEBUG", msg, args...)
	if c.child != nil {
		c.child.Debug(msg, args...)
	}
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.Log("INFO", msg, args...)
	if c.child != nil {
		c.child.Info(msg, args...)
	}
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.Log("WARNING", msg, args...)
	if c.child != nil {
		c.child.Warn(msg, args...)
	}
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.Log("ERROR", msg, args...)
	if c.child != nil {
		c.child.Error(msg, args...)
	}
}

func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.Log("FATAL", msg, args...)
	if c.child != nil {
		c.child.Fatal(msg, args...)
	}
	os.Exit(1)
}

func (c *TestLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool { return level < LevelNone }
func (c *TestLogger) IsTraceEnabled() bool               { return true }
func (c *TestLogger) IsDebugEnabled() bool               { return true }
func (c *TestLogger) IsInfoEnabled() bool                { return true }
func (c *TestLogger) IsWarnEnabled() bool                { return true }
func (c *TestLogger) IsErrorEnabled() bool               { return true }

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{logs: &testLogs{}}
}
