package glexpr

import (
	"context"
	"log/slog"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

// SetLogger sets the logger used to report recoverable programmer errors
// such as unknown type names. A nil logger disables logging.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func warn(msg string, args ...any) {
	l := logger.Load()
	if l != nil {
		l.Log(context.Background(), slog.LevelWarn, msg, args...)
	}
}
