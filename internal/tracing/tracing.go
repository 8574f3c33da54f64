// Package tracing records collection cycles and mutator halts as
// OpenTelemetry spans.
//
// Cycle boundaries are reported by the collector from callbacks, so spans are
// started and ended explicitly instead of through a context. Halts are
// reported once they are over and recorded with a back-dated start.
package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/cellgc/internal/collector"
)

// ScopeName is the instrumentation scope of every span.
const ScopeName = "github.com/hupe1980/cellgc"

// Span names.
const (
	SpanCycle     = "cellgc.cycle"
	SpanHalt      = "cellgc.halt"
	SpanExhausted = "cellgc.exhausted"
)

// Tracer turns collector events into spans.
type Tracer struct {
	tracer trace.Tracer
	heap   attribute.KeyValue

	mu    sync.Mutex
	cycle trace.Span
	seq   uint64
}

// New creates a Tracer. If tp is nil the global provider is used.
func New(tp trace.TracerProvider, heapID string) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer: tp.Tracer(ScopeName),
		heap:   attribute.String("cellgc.heap", heapID),
	}
}

// StartCycle opens the span of cycle seq. A cycle that is still open is ended
// first.
func (t *Tracer) StartCycle(seq uint64, target string, roots int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cycle != nil {
		t.cycle.End()
	}
	_, t.cycle = t.tracer.Start(context.Background(), SpanCycle,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			t.heap,
			attribute.Int64("cellgc.cycle.seq", int64(seq)),
			attribute.String("cellgc.arena", target),
			attribute.Int("cellgc.roots", roots),
		),
	)
	t.seq = seq
}

// EndCycle closes the span opened for s.Seq.
func (t *Tracer) EndCycle(s collector.CycleStats) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cycle == nil || t.seq != s.Seq {
		return
	}
	t.cycle.AddEvent("mark.done", trace.WithAttributes(
		attribute.Int("cellgc.marked", s.Marked),
		attribute.Int("cellgc.foreign", s.Foreign),
		attribute.Int("cellgc.dangling", s.Dangling),
		attribute.Int64("cellgc.mark.duration_ns", s.MarkDuration.Nanoseconds()),
	))
	t.cycle.SetAttributes(
		attribute.Int("cellgc.reclaimed", s.Reclaimed),
		attribute.Int("cellgc.survivors", s.Survivors),
	)
	t.cycle.SetStatus(codes.Ok, "")
	t.cycle.End()
	t.cycle = nil
}

// Halt records a mutator halt that lasted wait.
func (t *Tracer) Halt(wait time.Duration, err error) {
	if t == nil {
		return
	}
	end := time.Now()
	_, span := t.tracer.Start(context.Background(), SpanHalt,
		trace.WithTimestamp(end.Add(-wait)),
		trace.WithAttributes(t.heap),
	)
	setStatus(span, err)
	span.End(trace.WithTimestamp(end))
}

// Exhausted records a fatal exhaustion of both arenas.
func (t *Tracer) Exhausted(active string, err error) {
	if t == nil {
		return
	}
	_, span := t.tracer.Start(context.Background(), SpanExhausted,
		trace.WithAttributes(t.heap, attribute.String("cellgc.arena", active)),
	)
	setStatus(span, err)
	span.End()
}

func setStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
