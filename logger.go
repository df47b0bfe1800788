package gobayeux

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger defines the logging interface gobayeux leverages. Arguments after
// the message are alternating key/value pairs.
type Logger interface {
	// Debug takes a message and any number of arguments and logs them at the
	// debug level
	Debug(msg string, args ...any)

	// Info takes a message and any number of arguments and logs them at the
	// info level
	Info(msg string, args ...any)

	// Warn takes a message and any number of arguments and logs them at the
	// warn level
	Warn(msg string, args ...any)

	// Error takes a message and any number of arguments and logs them at the
	// error level
	Error(msg string, args ...any)

	// WithError returns a new Logger that addes the given error to any log
	// messages emitted
	WithError(error) Logger

	// WithField returns a new Logger that adds the given key/value to any
	// log messages emitted
	WithField(key string, value any) Logger
}

type nullLogger struct {
}

func (*nullLogger) Debug(msg string, args ...any) {
}

func (*nullLogger) Info(msg string, args ...any) {
}

func (*nullLogger) Warn(msg string, args ...any) {
}

func (*nullLogger) Error(msg string, args ...any) {
}

func (l *nullLogger) WithError(err error) Logger {
	return l
}

func (l *nullLogger) WithField(key string, value any) Logger {
	return l
}

func newNullLogger() *nullLogger {
	return &nullLogger{}
}

type wrappedFieldLogger struct {
	logrus.FieldLogger
}

func (w *wrappedFieldLogger) withArgs(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return w.FieldLogger
	}
	return w.FieldLogger.WithFields(pairsToFields(args))
}

func (w *wrappedFieldLogger) Debug(msg string, args ...any) {
	w.withArgs(args).Debug(msg)
}

func (w *wrappedFieldLogger) Info(msg string, args ...any) {
	w.withArgs(args).Info(msg)
}

func (w *wrappedFieldLogger) Warn(msg string, args ...any) {
	w.withArgs(args).Warn(msg)
}

func (w *wrappedFieldLogger) Error(msg string, args ...any) {
	w.withArgs(args).Error(msg)
}

func (w *wrappedFieldLogger) WithError(err error) Logger {
	return &wrappedFieldLogger{w.FieldLogger.WithError(err)}
}

func (w *wrappedFieldLogger) WithField(key string, value any) Logger {
	return &wrappedFieldLogger{w.FieldLogger.WithField(key, value)}
}

// pairsToFields turns alternating key/value arguments into logrus fields. A
// dangling value is kept under "!BADKEY" the way slog does.
func pairsToFields(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return fields
}

// WithLogger sets a logrus logger for the client
func WithLogger(logger logrus.FieldLogger) Option {
	return func(options *Options) {
		options.Logger = &wrappedFieldLogger{logger}
	}
}
