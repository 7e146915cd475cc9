package internal

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
)

type logCtxKey struct{}

var _defaultLogger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

// Log returns the logger attached to the context, or a process-wide default
// if none is attached.
func Log(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(logCtxKey{}).(*log.Logger); ok {
		return l
	}
	return _defaultLogger
}

// CtxWithLog attaches a logger to the context, so downstream callers can
// carry request or task scoped fields.
func CtxWithLog(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, logCtxKey{}, logger)
}

// SetLogLevel adjusts the default logger's verbosity.
func SetLogLevel(level log.Level) {
	_defaultLogger.SetLevel(level)
}
