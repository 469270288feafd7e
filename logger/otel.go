package logger

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/log"
)

// otelLogger implements the Logger interface for OpenTelemetry
type otelLogger struct {
	prefixes   []string
	metadata   map[string]log.Value
	logLevel   LogLevel
	otelLogger log.Logger
	context    context.Context
	child      Logger
}

var _ Logger = (*otelLogger)(nil)

// WithPrefix will return a new logger with a prefix prepended to the message
func (o *otelLogger) WithPrefix(prefix string) Logger {
	clone := o.clone(o.metadata)
	if !slices.Contains(clone.prefixes, prefix) {
		clone.prefixes = append(clone.prefixes, prefix)
	}
	if clone.child != nil {
		clone.child = clone.child.WithPrefix(prefix)
	}
	return clone
}

// WithContext binds ctx to emitted records so they pick up the active span.
func (o *otelLogger) WithContext(ctx context.Context) Logger {
	clone := o.clone(o.metadata)
	clone.context = ctx
	if clone.child != nil {
		clone.child = clone.child.WithContext(ctx)
	}
	return clone
}

// clone creates a copy of the logger with the given metadata
func (o *otelLogger) clone(kv map[string]log.Value) *otelLogger {
	prefixes := make([]string, 0, len(o.prefixes))
	prefixes = append(prefixes, o.prefixes...)
	return &otelLogger{
		prefixes:   prefixes,
		metadata:   kv,
		logLevel:   o.logLevel,
		otelLogger: o.otelLogger,
		context:    o.context,
		child:      o.child,
	}
}

func toLogValue(unknown interface{}) log.Value {
	switch v := unknown.(type) {
	case string:
		return log.StringValue(v)
	case int:
		return log.IntValue(v)
	case int64:
		return log.Int64Value(v)
	case bool:
		return log.BoolValue(v)
	case float64:
		return log.Float64Value(v)
	case time.Duration:
		return log.StringValue(v.String())
	case time.Time:
		return log.StringValue(v.Format(time.RFC3339Nano))
	case []byte:
		return log.BytesValue(v)
	case []string:
		values := make([]log.Value, 0, len(v))
		for _, s := range v {
			values = append(values, log.StringValue(s))
		}
		return log.SliceValue(values...)
	case []interface{}:
		var values []log.Value
		for _, arrayItem := range v {
			values = append(values, toLogValue(arrayItem))
		}
		return log.SliceValue(values...)
	case map[string]interface{}:
		var values []log.KeyValue
		for mapKey, mapUnknownValue := range v {
			values = append(values, log.KeyValue{Key: mapKey, Value: toLogValue(mapUnknownValue)})
		}
		return log.MapValue(values...)
	default:
		return log.StringValue(fmt.Sprintf("%v", v))
	}
}

// With will return a new logger using metadata as the base context
func (o *otelLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]log.Value, len(o.metadata)+len(metadata))
	for k, v := range o.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = toLogValue(v)
	}
	clone := o.clone(kv)
	if clone.child != nil {
		clone.child = clone.child.With(metadata)
	}
	return clone
}

// log handles the actual logging to OpenTelemetry
var otelSeverity = map[LogLevel]log.Severity{
	LevelTrace: log.SeverityTrace,
	LevelDebug: log.SeverityDebug,
	LevelInfo:  log.SeverityInfo,
	LevelWarn:  log.SeverityWarn,
	LevelError: log.SeverityError,
}

func (o *otelLogger) emit(level LogLevel, severity log.Severity, msg string, args []interface{}) {
	if !o.IsLevelEnabled(level) {
		return
	}
	body := format(msg, args)
	if len(o.prefixes) > 0 {
		body = strings.Join(o.prefixes, " ") + " " + body
	}

	now := time.Now()
	record := log.Record{}
	record.SetBody(log.StringValue(body))
	record.SetSeverity(severity)
	record.SetSeverityText(severity.String())
	record.SetObservedTimestamp(now)
	record.SetTimestamp(now)
	for k, v := range o.metadata {
		record.AddAttributes(log.KeyValue{Key: k, Value: v})
	}

	ctx := o.context
	if ctx == nil {
		ctx = context.Background()
	}
	o.otelLogger.Emit(ctx, record)
}

func (o *otelLogger) log(level LogLevel, msg string, args ...interface{}) {
	o.emit(level, otelSeverity[level], msg, args)
	forward(o.child, level, msg, args...)
}

func (o *otelLogger) Trace(msg string, args ...interface{}) { o.log(LevelTrace, msg, args...) }
func (o *otelLogger) Debug(msg string, args ...interface{}) { o.log(LevelDebug, msg, args...) }
func (o *otelLogger) Info(msg string, args ...interface{})  { o.log(LevelInfo, msg, args...) }
func (o *otelLogger) Warn(msg string, args ...interface{})  { o.log(LevelWarn, msg, args...) }
func (o *otelLogger) Error(msg string, args ...interface{}) { o.log(LevelError, msg, args...) }

// Fatal is emitted with fatal severity and exits with code 1
func (o *otelLogger) Fatal(msg string, args ...interface{}) {
	o.emit(LevelError, log.SeverityFatal, msg, args)
	forward(o.child, LevelError, msg, args...)
	os.Exit(1)
}

func (o *otelLogger) Stack(next Logger) Logger {
	clone := o.clone(o.metadata)
	clone.child = next
	return clone
}

func (o *otelLogger) IsLevelEnabled(level LogLevel) bool {
	return level < LevelNone && level >= o.logLevel
}

func (o *otelLogger) IsTraceEnabled() bool { return o.IsLevelEnabled(LevelTrace) }
func (o *otelLogger) IsDebugEnabled() bool { return o.IsLevelEnabled(LevelDebug) }
func (o *otelLogger) IsInfoEnabled() bool  { return o.IsLevelEnabled(LevelInfo) }
func (o *otelLogger) IsWarnEnabled() bool  { return o.IsLevelEnabled(LevelWarn) }
func (o *otelLogger) IsErrorEnabled() bool { return o.IsLevelEnabled(LevelError) }

// NewOtelLogger returns a Logger that emits records to an OpenTelemetry log.Logger.
func NewOtelLogger(otelsLogger log.Logger, level LogLevel) Logger {
	return &otelLogger{
		otelLogger: otelsLogger,
		logLevel:   level,
		context:    context.Background(),
	}
}
