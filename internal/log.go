package internal

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents different logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLogLevel maps ERROR/WARN/INFO/DEBUG/TRACE (any case) to a level.
// Unknown names fall back to INFO.
func ParseLogLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ERROR":
		return LogLevelError
	case "WARN", "WARNING":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelTrace:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger provides leveled logging with optional structured fields
type Logger struct {
	level LogLevel
	entry *logrus.Entry
}

// NewLogger creates a new logger with the specified level writing to stderr
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stderr, level, false)
}

// NewLoggerTo creates a logger writing to w, as JSON when json is set
func NewLoggerTo(w io.Writer, level LogLevel, json bool) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(level.logrus())
	if json {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logger{level: level, entry: logrus.NewEntry(base)}
}

// NewDefaultLogger creates a logger based on LOG_LEVEL and LOG_FORMAT
// (text or json) environment variables
func NewDefaultLogger() *Logger {
	return NewLoggerTo(os.Stderr, ParseLogLevel(os.Getenv("LOG_LEVEL")),
		strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"))
}

// WithField returns a logger that attaches key=value to every entry
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{level: l.level, entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger that attaches all fields to every entry
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{level: l.level, entry: l.entry.WithFields(logrus.Fields(fields))}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Info logs info messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Trace logs trace messages
func (l *Logger) Trace(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// Global logger instance
var DefaultLogger = NewDefaultLogger()
