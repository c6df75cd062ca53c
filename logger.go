package sdfgraph

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/soypat/sdfgraph/glexpr"
)

// nopHandler discards all records. Enabled returns false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for sdfgraph and all its sub-packages.
// By default nothing is logged. Pass nil to restore silent behavior.
//
// Levels used:
//   - [slog.LevelDebug]: generated sources, stage transitions, texture reallocation.
//   - [slog.LevelInfo]: render completion.
//   - [slog.LevelWarn]: missing properties, unknown types, compile failures.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	glexpr.SetLogger(l)
}

// Logger returns the current logger. Sub-packages call this to share configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
