// Package logging provides structured logging for the field agent.
package logging

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured log fields.
type Fields = logrus.Fields

var (
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. Subsequent calls are no-ops.
func Init(out io.Writer, debug bool) {
	once.Do(func() {
		global = newLogger(out, debug)
	})
}

func newLogger(out io.Writer, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		DisableLevelTruncation: true,
		PadLevelText:           true,
		TimestampFormat:        "2006/01/02 15:04:05",
		FullTimestamp:          true,
	})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(logrus.StandardLogger().Out, false)
	}
	return global
}

// WithFields returns an entry with the given structured fields.
func WithFields(fields Fields) *logrus.Entry {
	return Get().WithFields(fields)
}

// Convenience functions using the global logger

func Debugf(format string, args ...any) {
	Get().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	Get().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	Get().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	Get().Errorf(format, args...)
}
