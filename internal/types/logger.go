package types

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel int

// Log levels
const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarning
	LogLevelError
	LogLevelNone // Disables all logging
)

// ParseLogLevel maps debug, info, warn, error and none to a LogLevel.
// Unknown values fall back to info.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarning
	case "error":
		return LogLevelError
	case "none", "off":
		return LogLevelNone
	default:
		return LogLevelInfo
	}
}

// Logger provides structured logging for the application
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// Global logger instance
var GlobalLogger *Logger

// InitLogger creates a new logger with the specified level
func InitLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	l := &Logger{base: base, entry: logrus.NewEntry(base)}
	l.SetLevel(level)
	return l
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level LogLevel) {
	switch level {
	case LogLevelDebug:
		l.base.SetLevel(logrus.DebugLevel)
	case LogLevelInfo:
		l.base.SetLevel(logrus.InfoLevel)
	case LogLevelWarning:
		l.base.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		l.base.SetLevel(logrus.ErrorLevel)
	default:
		l.base.SetLevel(logrus.PanicLevel)
	}
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	switch l.base.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return LogLevelDebug
	case logrus.InfoLevel:
		return LogLevelInfo
	case logrus.WarnLevel:
		return LogLevelWarning
	case logrus.ErrorLevel:
		return LogLevelError
	default:
		return LogLevelNone
	}
}

// SetFormat switches between "text" and "json" output.
func (l *Logger) SetFormat(format string) {
	if strings.ToLower(format) == "json" {
		l.base.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	l.base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// WithModule returns a child logger tagged with module=name.
func (l *Logger) WithModule(name string) *Logger {
	return l.WithField("module", name)
}

// WithField returns a child logger carrying an extra field. Level and
// format changes on the parent apply to the child.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

// WithFields is WithField for several fields at once.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithFields(logrus.Fields(fields))}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

// Initialize the global logger with default settings
func init() {
	GlobalLogger = InitLogger(LogLevelInfo, os.Stdout)
}
