package rhi

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that discards all records. Enabled returns
// false, so callers skip building attributes and formatting the message
// and a silent logger costs one atomic load per call site.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger returns a logger backed by nopHandler.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr holds the active logger. It is read and replaced atomically,
// so SetLogger may run while backends log from other goroutines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for rhi and all backends.
// By default nothing is logged. Pass nil to restore the silent default.
//
// SetLogger is safe for concurrent use. Backends read the logger on every
// call, so a new logger takes effect for the next message.
//
// Log levels used:
//   - [slog.LevelDebug]: barrier counts, descriptor pool usage, shader sizes
//   - [slog.LevelInfo]: adapter selection, swapchain negotiation
//   - [slog.LevelWarn]: teardown failures, unsupported raster options
//
// Example:
//
//	// Lifecycle events only:
//	rhi.SetLogger(slog.Default())
//
//	// Full diagnostics, including barrier counts per compiled buffer:
//	rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Backend packages call this so they
// share one configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
