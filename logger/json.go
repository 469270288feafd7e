package logger

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// JSONLogEntry is one structured log line, shaped after the format Cloud Logging
// ingests. Symbol and Kind are lifted out of the metadata so entries can be
// filtered by instrument (`jsonPayload.symbol`).
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity,omitempty"`
	Trace     string                 `json:"logging.googleapis.com/trace,omitempty"`
	Component string                 `json:"component,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	Kind      string                 `json:"kind,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// String renders the entry as a single JSON line.
func (e JSONLogEntry) String() string {
	if e.Severity == "" {
		e.Severity = LevelInfo.severity()
	}
	out, err := json.Marshal(e)
	if err != nil {
		return `{"severity":"ERROR","message":"unencodable log entry"}`
	}
	return string(out)
}

// promoted metadata keys become entry fields instead of metadata.
var promoted = []string{"trace", "component", "symbol", "kind"}

type jsonLogger struct {
	metadata     map[string]interface{}
	traceID      string
	component    string
	symbol       string
	kind         string
	out          io.Writer
	mu           *sync.Mutex
	sink         Sink
	sinkLogLevel LogLevel
	now          func() time.Time
	logLevel     LogLevel
	child        Logger
}

var _ SinkLogger = (*jsonLogger)(nil)

func (c *jsonLogger) clone() *jsonLogger {
	cp := *c
	cp.metadata = copyMetadata(c.metadata)
	return &cp
}

func (c *jsonLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

func (c *jsonLogger) SetSink(sink Sink, level LogLevel) {
	c.sink = sink
	c.sinkLogLevel = level
	if child, ok := c.child.(SinkLogger); ok {
		child.SetSink(sink, level)
	}
}

var bracketRegex = regexp.MustCompile(`\[(.*?)\]`)

// WithPrefix adds prefix to the component, dropping the brackets used by
// console prefixes ("[fetch]" becomes "fetch").
func (c *jsonLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	name := prefix
	if tokens := bracketRegex.FindAllStringSubmatch(prefix, -1); len(tokens) > 0 {
		names := make([]string, len(tokens))
		for i, t := range tokens {
			names[i] = t[1]
		}
		name = strings.Join(names, ", ")
	}
	switch {
	case clone.component == "":
		clone.component = name
	case !strings.Contains(clone.component, name):
		clone.component += ", " + name
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

func (c *jsonLogger) With(fields map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range fields {
		clone.metadata[k] = v
	}
	for _, key := range promoted {
		val, ok := clone.metadata[key].(string)
		if !ok {
			continue
		}
		switch key {
		case "trace":
			clone.traceID = val
		case "component":
			clone.component = val
		case "symbol":
			clone.symbol = val
		case "kind":
			clone.kind = val
		}
		delete(clone.metadata, key)
	}
	if clone.child != nil {
		clone.child = clone.child.With(fields)
	}
	return clone
}

func (c *jsonLogger) entry(level LogLevel, msg string) JSONLogEntry {
	e := JSONLogEntry{
		Timestamp: c.now(),
		Message:   ansiColorStripper.ReplaceAllString(msg, ""),
		Severity:  level.severity(),
		Trace:     c.traceID,
		Component: c.component,
		Symbol:    c.symbol,
		Kind:      c.kind,
	}
	if len(c.metadata) > 0 {
		e.Metadata = c.metadata
	}
	return e
}

func (c *jsonLogger) log(level LogLevel, msg string, args ...interface{}) {
	if c.IsLevelEnabled(level) {
		line := c.entry(level, format(msg, args)).String() + "\n"
		if c.out != nil && level >= c.logLevel {
			c.mu.Lock()
			io.WriteString(c.out, line)
			c.mu.Unlock()
		}
		if c.sink != nil && level >= c.sinkLogLevel {
			c.sink.Write([]byte(line))
		}
	}
	forward(c.child, level, msg, args...)
}

func (c *jsonLogger) Trace(msg string, args ...interface{}) { c.log(LevelTrace, msg, args...) }
func (c *jsonLogger) Debug(msg string, args ...interface{}) { c.log(LevelDebug, msg, args...) }
func (c *jsonLogger) Info(msg string, args ...interface{})  { c.log(LevelInfo, msg, args...) }
func (c *jsonLogger) Warn(msg string, args ...interface{})  { c.log(LevelWarn, msg, args...) }
func (c *jsonLogger) Error(msg string, args ...interface{}) { c.log(LevelError, msg, args...) }

func (c *jsonLogger) Fatal(msg string, args ...interface{}) {
	c.log(LevelError, msg, args...)
	os.Exit(1)
}

func (c *jsonLogger) SetLogLevel(level LogLevel) {
	c.logLevel = level
}

func (c *jsonLogger) IsLevelEnabled(level LogLevel) bool {
	if level >= LevelNone {
		return false
	}
	return (c.out != nil && level >= c.logLevel) || (c.sink != nil && level >= c.sinkLogLevel)
}

func (c *jsonLogger) IsTraceEnabled() bool { return c.IsLevelEnabled(LevelTrace) }
func (c *jsonLogger) IsDebugEnabled() bool { return c.IsLevelEnabled(LevelDebug) }
func (c *jsonLogger) IsInfoEnabled() bool  { return c.IsLevelEnabled(LevelInfo) }
func (c *jsonLogger) IsWarnEnabled() bool  { return c.IsLevelEnabled(LevelWarn) }
func (c *jsonLogger) IsErrorEnabled() bool { return c.IsLevelEnabled(LevelError) }

func (c *jsonLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

func newJSONLogger(out io.Writer, level LogLevel) *jsonLogger {
	return &jsonLogger{
		out:          out,
		mu:           &sync.Mutex{},
		metadata:     map[string]interface{}{},
		now:          time.Now,
		logLevel:     level,
		sinkLogLevel: LevelNone,
	}
}

// NewJSONLogger returns a Logger writing one JSON entry per line to stderr
func NewJSONLogger(levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return newJSONLogger(os.Stderr, level)
}

// NewJSONLoggerWithSink returns a Logger writing only to sink
func NewJSONLoggerWithSink(sink Sink, level LogLevel) SinkLogger {
	l := newJSONLogger(nil, LevelNone)
	l.sink = sink
	l.sinkLogLevel = level
	return l
}
