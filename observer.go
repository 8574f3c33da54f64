package cellgc

import (
	"context"
	"time"

	"github.com/hupe1980/cellgc/internal/cell"
	"github.com/hupe1980/cellgc/internal/collector"
	"github.com/hupe1980/cellgc/internal/tracing"
)

// observer fans collector events out to the logger, the metrics collector and
// the span recorder. Events arrive in order after the heap lock is released.
type observer struct {
	logger  *Logger
	metrics MetricsCollector
	tracer  *tracing.Tracer
}

var _ collector.Observer = (*observer)(nil)

func (o *observer) CycleStarted(seq uint64, target cell.ArenaID, roots int) {
	o.logger.LogCycleStart(context.Background(), seq, target, roots)
	o.tracer.StartCycle(seq, target.String(), roots)
}

func (o *observer) CycleFinished(s collector.CycleStats) {
	o.logger.LogCycle(context.Background(), s)
	o.metrics.RecordCycle(s)
	o.tracer.EndCycle(s)
}

func (o *observer) Halted(wait time.Duration, err error) {
	o.logger.LogHalt(context.Background(), wait, err)
	o.metrics.RecordHalt(wait, err)
	o.tracer.Halt(wait, err)
}

func (o *observer) Exhausted(active cell.ArenaID) {
	o.logger.LogExhausted(context.Background(), active)
	o.tracer.Exhausted(active.String(), ErrPoolExhausted)
}

func (o *observer) StaleRoots(n int) {
	o.logger.LogStaleRoot(context.Background(), n)
}
