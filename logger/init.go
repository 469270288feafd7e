package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// LogLevel defines the level of logging
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// EnvLogLevel is the environment variable consulted by GetLevelFromEnv.
const EnvLogLevel = "MARKETDATA_LOG_LEVEL"

// ParseLevel converts a level name into a LogLevel. ok is false for unknown names.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "none", "off":
		return LevelNone, true
	default:
		return LevelInfo, false
	}
}

// GetLevelFromEnv will look at the environment var `MARKETDATA_LOG_LEVEL` and convert it into the appropriate LogLevel
func GetLevelFromEnv() LogLevel {
	level, _ := ParseLevel(os.Getenv(EnvLogLevel))
	return level
}

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "none"
	}
}

type Sink io.Writer

// Logger is an interface for logging
type Logger interface {
	// With will return a new logger using metadata as the base context
	With(metadata map[string]interface{}) Logger
	// WithPrefix will return a new logger with a prefix prepended to the message
	WithPrefix(prefix string) Logger
	// WithContext will return a new logger with the given context
	WithContext(ctx context.Context) Logger
	// Trace level logging
	Trace(msg string, args ...interface{})
	// Debug level logging
	Debug(msg string, args ...interface{})
	// Info level logging
	Info(msg string, args ...interface{})
	// Warning level logging
	Warn(msg string, args ...interface{})
	// Error level logging
	Error(msg string, args ...interface{})
	// Fatal level logging and exit with code 1
	Fatal(msg string, args ...interface{})
	// Stack will return a new logger that logs to the given logger as well as the current logger
	Stack(next Logger) Logger
	// IsLevelEnabled returns true if the given log level is enabled
	IsLevelEnabled(level LogLevel) bool
	// IsTraceEnabled returns true if trace level logging is enabled
	IsTraceEnabled() bool
	// IsDebugEnabled returns true if debug level logging is enabled
	IsDebugEnabled() bool
	// IsInfoEnabled returns true if info level logging is enabled
	IsInfoEnabled() bool
	// IsWarnEnabled returns true if warn level logging is enabled
	IsWarnEnabled() bool
	// IsErrorEnabled returns true if error level logging is enabled
	IsErrorEnabled() bool
}

type SinkLogger interface {
	Logger
	// SetSink will set the sink, and level to sink
	SetSink(sink Sink, level LogLevel)
}

var ansiColorStripper = regexp.MustCompile("\x1b\\[[0-9;]*[mK]")

// label is the bracketed console tag of a level, severity its Cloud Logging name.
func (l LogLevel) label() string {
	if l >= LevelNone {
		return "NONE"
	}
	return strings.ToUpper(l.String())
}

func (l LogLevel) severity() string {
	if l == LevelWarn {
		return "WARNING"
	}
	return l.label()
}

// forward repeats a call on a stacked logger. Fatal is forwarded as Error so
// the process only exits once.
func forward(next Logger, level LogLevel, msg string, args ...interface{}) {
	if next == nil {
		return
	}
	switch level {
	case LevelTrace:
		next.Trace(msg, args...)
	case LevelDebug:
		next.Debug(msg, args...)
	case LevelInfo:
		next.Info(msg, args...)
	case LevelWarn:
		next.Warn(msg, args...)
	case LevelError:
		next.Error(msg, args...)
	}
}

func format(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

func copyMetadata(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// WithKV returns a logger carrying a single metadata key.
func WithKV(log Logger, key string, value interface{}) Logger {
	return log.With(map[string]interface{}{key: value})
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return NewConsoleLogger(LevelNone)
}
