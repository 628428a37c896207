package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// ParseLevel maps a case-insensitive level name to a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "FATAL":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Format selects how log lines are rendered
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a format name to a Format, defaulting to text
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// Logger provides structured logging for one component
type Logger struct {
	component string
	minLevel  LogLevel
	out       io.Writer
	format    Format
	mu        sync.Mutex
	zl        zerolog.Logger
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	l := &Logger{
		component: component,
		minLevel:  LogLevelInfo,
		out:       os.Stdout,
		format:    FormatText,
	}
	l.rebuild()
	return l
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	l := &Logger{component: "discard", minLevel: LogLevelInfo, format: FormatJSON}
	l.rebuild()
	return l
}

// rebuild recreates the zerolog pipeline; caller must hold mu or own l exclusively
func (l *Logger) rebuild() {
	var out io.Writer = io.Discard
	switch {
	case l.out == nil:
	case l.format == FormatText:
		out = zerolog.ConsoleWriter{
			Out:        l.out,
			NoColor:    true,
			TimeFormat: "2006-01-02 15:04:05.000",
		}
	default:
		out = l.out
	}

	l.zl = zerolog.New(out).
		Level(l.minLevel.zerolog()).
		With().
		Timestamp().
		Str("component", l.component).
		Logger()
}

// Named returns a new logger sharing output and settings under another component
func (l *Logger) Named(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &Logger{
		component: component,
		minLevel:  l.minLevel,
		out:       l.out,
		format:    l.format,
	}
	child.rebuild()
	return child
}

// SetMinLevel sets the minimum log level to output
func (l *Logger) SetMinLevel(level LogLevel) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
	l.rebuild()
	return l
}

// SetOutput replaces the output writer
func (l *Logger) SetOutput(w io.Writer) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
	l.rebuild()
	return l
}

// SetFormat sets the log line format
func (l *Logger) SetFormat(format Format) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	l.rebuild()
	return l
}

// log writes a log entry
func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// WithLevel so FATAL entries are recorded without exiting the process
	ev := l.zl.WithLevel(level.zerolog())
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	if len(context) > 0 {
		ev = ev.Fields(context)
	}
	ev.Msg(message)
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LogLevelDebug, message, nil, nil)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LogLevelInfo, message, nil, nil)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LogLevelWarn, message, nil, nil)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LogLevelError, message, err, nil)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}

// Fatal logs a fatal error message. It does not exit.
func (l *Logger) Fatal(message string, err error) {
	l.log(LogLevelFatal, message, err, nil)
}

// WithContext returns a logger that includes context on every entry
func (l *Logger) WithContext(context map[string]interface{}) *ContextLogger {
	return &ContextLogger{
		logger:  l,
		context: context,
	}
}

// ContextLogger is a logger with pre-set context
type ContextLogger struct {
	logger  *Logger
	context map[string]interface{}
}

func (cl *ContextLogger) merge(extra map[string]interface{}) map[string]interface{} {
	if len(extra) == 0 {
		return cl.context
	}
	merged := make(map[string]interface{}, len(cl.context)+len(extra))
	for k, v := range cl.context {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// Info logs an info message with pre-set context
func (cl *ContextLogger) Info(message string) {
	cl.logger.log(LogLevelInfo, message, nil, cl.context)
}

// InfoWith logs an info message with pre-set and extra context
func (cl *ContextLogger) InfoWith(message string, extra map[string]interface{}) {
	cl.logger.log(LogLevelInfo, message, nil, cl.merge(extra))
}

// DebugWith logs a debug message with pre-set and extra context
func (cl *ContextLogger) DebugWith(message string, extra map[string]interface{}) {
	cl.logger.log(LogLevelDebug, message, nil, cl.merge(extra))
}

// Warn logs a warning message with pre-set context
func (cl *ContextLogger) Warn(message string) {
	cl.logger.log(LogLevelWarn, message, nil, cl.context)
}
