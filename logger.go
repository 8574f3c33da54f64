package cellgc

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with cellgc-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithHeap adds the heap identity to the logger.
func (l *Logger) WithHeap(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("heap", id),
	}
}

// WithArena adds an arena field to the logger.
func (l *Logger) WithArena(id ArenaID) *Logger {
	return &Logger{
		Logger: l.Logger.With("arena", id.String()),
	}
}

// LogCycleStart logs the beginning of a collection cycle.
func (l *Logger) LogCycleStart(ctx context.Context, seq uint64, target ArenaID, roots int) {
	l.DebugContext(ctx, "collection started",
		"cycle", seq,
		"arena", target.String(),
		"roots", roots,
	)
}

// LogCycle logs a finished collection cycle.
func (l *Logger) LogCycle(ctx context.Context, s CycleStats) {
	l.DebugContext(ctx, "collection completed",
		"cycle", s.Seq,
		"arena", s.Target.String(),
		"roots", s.Roots,
		"marked", s.Marked,
		"reclaimed", s.Reclaimed,
		"survivors", s.Survivors,
		"mark", s.MarkDuration,
		"sweep", s.SweepDuration,
	)
	if s.Dangling > 0 {
		l.WarnContext(ctx, "dangling handles reached during marking",
			"cycle", s.Seq,
			"dangling", s.Dangling,
		)
	}
}

// LogHalt logs a mutator that waited for a background cycle.
func (l *Logger) LogHalt(ctx context.Context, wait time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "allocation halt aborted",
			"wait", wait,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "allocation halted for collection",
			"wait", wait,
		)
	}
}

// LogExhausted logs a fatal exhaustion of both arenas.
func (l *Logger) LogExhausted(ctx context.Context, active ArenaID) {
	l.ErrorContext(ctx, "pool exhausted",
		"active", active.String(),
	)
}

// LogStaleRoot logs root handles that no longer refer to a cell.
func (l *Logger) LogStaleRoot(ctx context.Context, n int) {
	l.WarnContext(ctx, "stale roots dropped",
		"count", n,
	)
}

// LogClose logs the shutdown of a heap.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "heap closed")
	}
}
