// Package logger provides a process-wide structured logger built on log/slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(New(Options{}))
}

// Options configures the logger returned by New.
type Options struct {
	// Output is where log lines are written. Defaults to os.Stderr.
	Output io.Writer
	// JSON selects the JSON handler instead of the default text handler.
	JSON bool
	// Level sets the minimum level that will be logged. Defaults to Info.
	Level slog.Level
}

// New builds a slog.Logger from the given options without touching the
// package singleton.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler)
}

// SetDefault replaces the package singleton. Intended for tests and for
// process startup reconfiguration (e.g. switching to JSON output).
func SetDefault(l *slog.Logger) {
	singleton.Store(l)
}

func current() *slog.Logger {
	return singleton.Load()
}

// Debug logs at debug level.
func Debug(msg string) { current().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { current().Debug(sprintf(format, args...)) }

// Debugw logs at debug level with structured key/value pairs.
func Debugw(msg string, kv ...any) { current().Debug(msg, kv...) }

// Info logs at info level.
func Info(msg string) { current().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { current().Info(sprintf(format, args...)) }

// Infow logs at info level with structured key/value pairs.
func Infow(msg string, kv ...any) { current().Info(msg, kv...) }

// Warn logs at warn level.
func Warn(msg string) { current().Warn(msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { current().Warn(sprintf(format, args...)) }

// Warnw logs at warn level with structured key/value pairs.
func Warnw(msg string, kv ...any) { current().Warn(msg, kv...) }

// Error logs at error level.
func Error(msg string) { current().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { current().Error(sprintf(format, args...)) }

// Errorw logs at error level with structured key/value pairs.
func Errorw(msg string, kv ...any) { current().Error(msg, kv...) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
