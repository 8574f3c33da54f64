package cellgc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).WithHeap("h1").WithArena(ArenaB)

	l.Info("hello")
	assert.Contains(t, buf.String(), "heap=h1")
	assert.Contains(t, buf.String(), "arena=B")
}

func TestLogger_Operations(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.LogCycleStart(ctx, 1, ArenaA, 4)
	l.LogCycle(ctx, CycleStats{Seq: 1, Target: ArenaA, Reclaimed: 3, Dangling: 2})
	l.LogHalt(ctx, time.Millisecond, nil)
	l.LogHalt(ctx, time.Millisecond, context.Canceled)
	l.LogExhausted(ctx, ArenaB)
	l.LogStaleRoot(ctx, 2)
	l.LogClose(ctx, errors.New("boom"))

	out := buf.String()
	for _, msg := range []string{
		"collection started",
		"collection completed",
		"dangling handles reached during marking",
		"allocation halted for collection",
		"allocation halt aborted",
		"pool exhausted",
		"stale roots dropped",
		"close failed",
	} {
		assert.Contains(t, out, msg)
	}
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
