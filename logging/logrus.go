package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusAdapter implements Logger on top of a logrus entry.
type LogrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusLogger creates a dedicated logrus logger writing to w.
func NewLogrusLogger(w io.Writer, level LogLevel, json bool) *LogrusAdapter {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrusLevel(level))
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &LogrusAdapter{entry: logrus.NewEntry(l)}
}

// NewLogrusAdapter wraps an existing logrus logger, e.g. logrus.StandardLogger().
func NewLogrusAdapter(l *logrus.Logger) *LogrusAdapter {
	return &LogrusAdapter{entry: logrus.NewEntry(l)}
}

// Debug logs a debug message.
func (a *LogrusAdapter) Debug(msg string, args ...any) {
	a.with(args).Debug(msg)
}

// Info logs an informational message.
func (a *LogrusAdapter) Info(msg string, args ...any) {
	a.with(args).Info(msg)
}

// Warn logs a warning message.
func (a *LogrusAdapter) Warn(msg string, args ...any) {
	a.with(args).Warn(msg)
}

// Error logs an error message.
func (a *LogrusAdapter) Error(msg string, args ...any) {
	a.with(args).Error(msg)
}

func (a *LogrusAdapter) with(args []any) *logrus.Entry {
	fields := pairs(args)
	if len(fields) == 0 {
		return a.entry
	}
	return a.entry.WithFields(logrus.Fields(fields))
}

func logrusLevel(l LogLevel) logrus.Level {
	switch l {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger returns the wrapped logrus logger.
func (a *LogrusAdapter) Logger() *logrus.Logger { return a.entry.Logger }
