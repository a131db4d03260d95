package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"
)

// SlogLogger is a standalone Logger writing JSON to an io.Writer. It backs
// tests and tooling that run without a CentralLogger.
type SlogLogger struct {
	handler  slog.Handler
	level    slog.Level
	module   string
	timezone *time.Location
	fields   []Field
}

// NewSlogLogger creates a new slog-based logger with JSON output
func NewSlogLogger(writer io.Writer, level LogLevel, timezone *time.Location) *SlogLogger {
	if writer == nil {
		writer = os.Stdout
	}
	if timezone == nil {
		timezone = time.UTC
	}

	return &SlogLogger{
		handler:  slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: parseSlogLevel(level)}),
		level:    parseSlogLevel(level),
		timezone: timezone,
	}
}

// NewConsoleLogger creates a text logger for use before the central logger
// is initialized.
func NewConsoleLogger(module string, level LogLevel) *SlogLogger {
	return &SlogLogger{
		handler:  newTextHandler(os.Stdout, parseSlogLevel(level), time.Local),
		level:    parseSlogLevel(level),
		module:   module,
		timezone: time.Local,
	}
}

func (l *SlogLogger) Module(name string) Logger {
	if l == nil {
		return nil
	}
	moduleName := name
	if l.module != "" {
		moduleName = l.module + "." + name
	}
	return &SlogLogger{
		handler:  l.handler,
		level:    l.level,
		module:   moduleName,
		timezone: l.timezone,
		fields:   slices.Clone(l.fields),
	}
}

func (l *SlogLogger) Trace(msg string, fields ...Field) { l.logAt(traceLevelValue, msg, fields) }
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.logAt(slog.LevelDebug, msg, fields) }
func (l *SlogLogger) Info(msg string, fields ...Field)  { l.logAt(slog.LevelInfo, msg, fields) }
func (l *SlogLogger) Warn(msg string, fields ...Field)  { l.logAt(slog.LevelWarn, msg, fields) }
func (l *SlogLogger) Error(msg string, fields ...Field) { l.logAt(slog.LevelError, msg, fields) }

func (l *SlogLogger) Log(level LogLevel, msg string, fields ...Field) {
	l.logAt(parseSlogLevel(level), msg, fields)
}

func (l *SlogLogger) With(fields ...Field) Logger {
	if l == nil {
		return nil
	}
	return &SlogLogger{
		handler:  l.handler,
		level:    l.level,
		module:   l.module,
		timezone: l.timezone,
		fields:   slices.Concat(l.fields, fields),
	}
}

func (l *SlogLogger) WithContext(ctx context.Context) Logger {
	if l == nil {
		return nil
	}
	if traceID := getTraceID(ctx); traceID != "" {
		return l.With(String(traceIDKey, traceID))
	}
	return l
}

func (l *SlogLogger) Flush() error { return nil }

func (l *SlogLogger) logAt(level slog.Level, msg string, fields []Field) {
	if l == nil || l.level > level {
		return
	}

	attrsPtr := getAttrs()
	attrs := *attrsPtr

	if l.module != "" {
		attrs = append(attrs, slog.String(moduleKey, l.module))
	}
	for i := range l.fields {
		attrs = append(attrs, fieldToAttr(l.fields[i]))
	}
	for i := range fields {
		attrs = append(attrs, fieldToAttr(fields[i]))
	}

	slog.New(l.handler).LogAttrs(context.Background(), level, msg, attrs...)

	*attrsPtr = attrs
	putAttrs(attrsPtr)
}

// parseSlogLevel converts LogLevel to slog.Level
func parseSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
