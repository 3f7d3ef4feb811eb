// Package observability defines the logging primitives shared by the binding and the native layer.
package observability

import "sync/atomic"

// Logger captures structured logging behaviours shared across layers.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for a Field literal.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Err wraps an error as the conventional "error" field.
func Err(err error) Field { return Field{Key: "error", Value: err} }

type holder struct{ Logger }

var current atomic.Pointer[holder]

func init() {
	current.Store(&holder{noopLogger{}})
}

// SetLogger overrides the global logger. A nil logger restores the noop default.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	current.Store(&holder{logger})
}

// Log returns the current global logger instance.
func Log() Logger {
	return current.Load().Logger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Warn(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}
