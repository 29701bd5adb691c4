// SPDX-License-Identifier: MIT

// Package log is the leveled logger shared by every package. It keeps a
// small package-level API (SetLevel, Infof, ...) on top of a single logrus
// instance, and hands out component loggers that tag each line with the
// subsystem that wrote it.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// base is the process-wide logrus instance. logrus guards its level and
// output internally, so all functions here are safe for concurrent use.
var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel sets the global logging level.
func SetLevel(level LogLevel) {
	base.SetLevel(level.logrus())
}

// GetLevel gets the current global logging level.
func GetLevel() LogLevel {
	switch base.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return LevelDebug
	case logrus.WarnLevel:
		return LevelWarn
	case logrus.ErrorLevel:
		return LevelError
	case logrus.FatalLevel, logrus.PanicLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SetOutput redirects all log output, e.g. to io.Discard in tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// Logger writes lines tagged with a component field.
type Logger struct {
	entry *logrus.Entry
}

// WithComponent returns a Logger whose lines carry component=name.
func WithComponent(name string) *Logger {
	return &Logger{entry: base.WithField("component", name)}
}

// With returns a copy of the logger with an extra field attached.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, v ...any) { l.entry.Debugf(format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.entry.Infof(format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.entry.Warnf(format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.entry.Errorf(format, v...) }

// --- Package-level functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { base.Debugf(format, v...) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { base.Infof(format, v...) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { base.Warnf(format, v...) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { base.Errorf(format, v...) }

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...any) { base.Fatalf(format, v...) }
