package logging

import (
	"io"
)

// Logger is the logging interface shared by all gateway components. It is a
// narrow view of a structured logger so that packages never depend on a
// concrete logging backend.
type Logger interface {
	// WithField creates a new logger with an additional field
	WithField(key string, value interface{}) Logger
	// WithError creates a new logger with an error field
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugln(args ...interface{})
	Infoln(args ...interface{})
	Warnln(args ...interface{})
	Errorln(args ...interface{})

	// Writer returns a PipeWriter that writes to the logger
	Writer() *io.PipeWriter
}
