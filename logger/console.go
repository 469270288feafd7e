package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Logs go to stderr so command output on stdout stays machine readable.
var noColor = runtime.GOOS == "windows" || os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" ||
	(!isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()))

var isCI = os.Getenv("CI") != ""

const (
	Reset       = "\033[0m"
	Red         = "\033[31m"
	Green       = "\033[32m"
	Magenta     = "\033[35m"
	BlueBold    = "\033[34;1m"
	MagentaBold = "\033[35;1m"
	RedBold     = "\033[31;1m"
	YellowBold  = "\033[33;1m"
	WhiteBold   = "\033[37;1m"
	CyanBold    = "\033[36;1m"
	Gray        = "\033[1;90m"
	Purple      = "\u001b[38;5;200m"
)

// palette holds the tag and message colour of each level.
type palette struct {
	tag     string
	message string
}

func defaultPalette(level LogLevel) palette {
	switch level {
	case LevelTrace:
		if isCI {
			return palette{CyanBold, Purple}
		}
		return palette{CyanBold, Gray}
	case LevelDebug:
		return palette{BlueBold, Green}
	case LevelInfo:
		return palette{YellowBold, WhiteBold}
	case LevelWarn:
		return palette{MagentaBold, Magenta}
	default:
		return palette{RedBold, Red}
	}
}

type consoleLogger struct {
	prefixes     []string
	metadata     map[string]interface{}
	out          io.Writer
	mu           *sync.Mutex
	color        bool
	sink         Sink
	logLevel     LogLevel
	sinkLogLevel LogLevel
	child        Logger
}

var _ SinkLogger = (*consoleLogger)(nil)

func (c *consoleLogger) clone() *consoleLogger {
	cp := *c
	cp.prefixes = slices.Clone(c.prefixes)
	cp.metadata = copyMetadata(c.metadata)
	return &cp
}

func (c *consoleLogger) WithContext(ctx context.Context) Logger {
	clone := c.clone()
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *consoleLogger) WithPrefix(prefix string) Logger {
	clone := c.clone()
	if !slices.Contains(clone.prefixes, prefix) {
		clone.prefixes = append(clone.prefixes, prefix)
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

func (c *consoleLogger) With(metadata map[string]interface{}) Logger {
	clone := c.clone()
	for k, v := range metadata {
		clone.metadata[k] = v
	}
	if clone.child != nil {
		clone.child = clone.child.With(metadata)
	}
	return clone
}

func (c *consoleLogger) SetSink(sink Sink, level LogLevel) {
	c.sink = sink
	c.sinkLogLevel = level
	if child, ok := c.child.(SinkLogger); ok {
		child.SetSink(sink, level)
	}
}

func (c *consoleLogger) paint(code, text string) string {
	if !c.color || code == "" {
		return text
	}
	return code + text + Reset
}

// fields renders metadata as sorted key=value pairs, quoting values with spaces.
func fields(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		val := fmt.Sprint(metadata[k])
		if strings.ContainsAny(val, " \t\"") {
			val = fmt.Sprintf("%q", val)
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(val)
	}
	return sb.String()
}

func (c *consoleLogger) render(level LogLevel, msg string) string {
	colors := defaultPalette(level)
	tag := fmt.Sprintf("[%s]", level.label())
	tag += strings.Repeat(" ", max(0, 7-len(tag)))
	var sb strings.Builder
	sb.WriteString(c.paint(colors.tag, tag))
	sb.WriteByte(' ')
	if len(c.prefixes) > 0 {
		sb.WriteString(c.paint(Purple, strings.Join(c.prefixes, " ")))
		sb.WriteByte(' ')
	}
	sb.WriteString(c.paint(colors.message, msg))
	if kv := fields(c.metadata); kv != "" {
		sb.WriteByte(' ')
		sb.WriteString(c.paint(Gray, kv))
	}
	return sb.String()
}

func (c *consoleLogger) log(level LogLevel, msg string, args ...interface{}) {
	if c.IsLevelEnabled(level) {
		line := c.render(level, format(msg, args))
		if level >= c.logLevel {
			c.mu.Lock()
			fmt.Fprintln(c.out, line)
			c.mu.Unlock()
		}
		if c.sink != nil && level >= c.sinkLogLevel {
			ts := time.Now().Format(time.RFC3339Nano)
			c.sink.Write([]byte(ts + " " + ansiColorStripper.ReplaceAllString(line, "") + "\n"))
		}
	}
	forward(c.child, level, msg, args...)
}

func (c *consoleLogger) Trace(msg string, args ...interface{}) { c.log(LevelTrace, msg, args...) }
func (c *consoleLogger) Debug(msg string, args ...interface{}) { c.log(LevelDebug, msg, args...) }
func (c *consoleLogger) Info(msg string, args ...interface{})  { c.log(LevelInfo, msg, args...) }
func (c *consoleLogger) Warn(msg string, args ...interface{})  { c.log(LevelWarn, msg, args...) }
func (c *consoleLogger) Error(msg string, args ...interface{}) { c.log(LevelError, msg, args...) }

func (c *consoleLogger) Fatal(msg string, args ...interface{}) {
	c.log(LevelError, msg, args...)
	os.Exit(1)
}

func (c *consoleLogger) Stack(next Logger) Logger {
	clone := c.clone()
	clone.child = next
	return clone
}

func (c *consoleLogger) SetLogLevel(level LogLevel) {
	c.logLevel = level
}

func (c *consoleLogger) IsLevelEnabled(level LogLevel) bool {
	return level < LevelNone && (level >= c.logLevel || (c.sink != nil && level >= c.sinkLogLevel))
}

func (c *consoleLogger) IsTraceEnabled() bool { return c.IsLevelEnabled(LevelTrace) }
func (c *consoleLogger) IsDebugEnabled() bool { return c.IsLevelEnabled(LevelDebug) }
func (c *consoleLogger) IsInfoEnabled() bool  { return c.IsLevelEnabled(LevelInfo) }
func (c *consoleLogger) IsWarnEnabled() bool  { return c.IsLevelEnabled(LevelWarn) }
func (c *consoleLogger) IsErrorEnabled() bool { return c.IsLevelEnabled(LevelError) }

// NewConsoleLogger returns a new Logger instance which will log to stderr
func NewConsoleLogger(levels ...LogLevel) SinkLogger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return NewConsoleLoggerWithWriter(os.Stderr, level, !noColor)
}

// NewConsoleLoggerWithWriter returns a console Logger writing lines to out.
func NewConsoleLoggerWithWriter(out io.Writer, level LogLevel, color bool) SinkLogger {
	return &consoleLogger{
		out:          out,
		mu:           &sync.Mutex{},
		color:        color,
		metadata:     map[string]interface{}{},
		logLevel:     level,
		sinkLogLevel: LevelNone,
	}
}
