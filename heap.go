package cellgc

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cellgc/internal/cell"
	"github.com/hupe1980/cellgc/internal/collector"
	"github.com/hupe1980/cellgc/internal/conv"
	"github.com/hupe1980/cellgc/internal/tracing"
	"github.com/hupe1980/cellgc/resource"
)

// slotBytes is the memory held per slot: the cell, its generation and its
// free-list entry.
const slotBytes = int64(unsafe.Sizeof(cell.Cell{})) + 8 + 4

// Heap is a dual-arena cell heap with its collector.
//
// A Heap serves one mutator. Allocate, Collect and the accessors may be called
// from several goroutines, but allocations are serialized and the root set is
// the one reported by the single RootProvider.
type Heap struct {
	id       uuid.UUID
	orch     *collector.Orchestrator
	mode     Mode
	logger   *Logger
	metrics  MetricsCollector
	rc       *resource.Controller
	reserved int64

	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
}

// New creates a heap with two arenas of the configured capacity. Arena A
// serves allocations first. roots may be nil if the host keeps no roots.
//
// In ModeBackground a collector goroutine is started; Close stops it.
func New(roots RootProvider, optFns ...Option) (*Heap, error) {
	opts := applyOptions(optFns)
	if opts.capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, opts.capacity)
	}
	if _, err := conv.IntToUint32(opts.capacity); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}
	if opts.batchSize < 0 {
		return nil, fmt.Errorf("invalid batch size: %d", opts.batchSize)
	}

	footprint, err := conv.MulInt64(int64(opts.capacity)*cell.NumArenas, slotBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}
	if err := opts.resources.AcquireMemory(footprint); err != nil {
		return nil, err
	}

	id := uuid.New()
	logger := opts.logger.WithHeap(id.String())

	h := &Heap{
		id:       id,
		mode:     opts.mode,
		logger:   logger,
		metrics:  opts.metricsCollector,
		rc:       opts.resources,
		reserved: footprint,
	}

	orch, err := collector.New(collector.Config{
		Capacity:  opts.capacity,
		BatchSize: opts.batchSize,
		Manual:    opts.mode == ModeManual,
		Roots:     rootFunc(roots),
		Resources: opts.resources,
		Observer: &observer{
			logger:  logger,
			metrics: opts.metricsCollector,
			tracer:  tracing.New(opts.tracerProvider, id.String()),
		},
	})
	if err != nil {
		opts.resources.ReleaseMemory(footprint)
		return nil, translateError(err)
	}
	h.orch = orch

	if opts.mode == ModeBackground {
		ctx, cancel := context.WithCancel(context.Background())
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return orch.Run(gctx) })
		h.cancel = cancel
		h.group = g
	}

	logger.Info("heap created",
		"capacity", opts.capacity,
		"mode", opts.mode.String(),
		"footprint_bytes", footprint,
		"memory_limit_bytes", opts.resources.MemoryLimit(),
		"sweep_slots_per_sec", opts.resources.Config().SweepSlotsPerSec,
	)
	return h, nil
}

func rootFunc(p RootProvider) collector.RootFunc {
	if p == nil {
		return nil
	}
	return p.Roots
}

// ID returns the identity of the heap used in logs and spans.
func (h *Heap) ID() uuid.UUID { return h.id }

// Mode returns who drives collection cycles.
func (h *Heap) Mode() Mode { return h.mode }

// Capacity returns the number of cells per arena.
func (h *Heap) Capacity() int { return h.orch.Capacity() }

// Allocate creates a cell of the given kind in the active arena.
//
// The payload must match kind: Pair for KindCons, int64 or int for KindInt,
// float64 for KindReal, rune for KindChar and nil for KindNil. A mismatch
// returns a *KindPayloadError and creates no cell.
//
// Allocate blocks only when the active arena is exhausted while a background
// cycle is still running; ctx bounds that wait. If the arena is still full
// after the roles were swapped, ErrPoolExhausted is returned.
func (h *Heap) Allocate(ctx context.Context, kind Kind, payload any) (Handle, error) {
	start := time.Now()
	handle, err := h.allocate(ctx, kind, payload)
	h.metrics.RecordAllocate(time.Since(start), err)
	return handle, err
}

func (h *Heap) allocate(ctx context.Context, kind Kind, payload any) (Handle, error) {
	c, err := cell.New(kind, payload)
	if err != nil {
		return Handle{}, translateError(err)
	}
	handle, err := h.orch.Allocate(ctx, c)
	if err != nil {
		return Handle{}, translateError(err)
	}
	return handle, nil
}

// Cons allocates a pair cell.
func (h *Heap) Cons(ctx context.Context, car, cdr Handle) (Handle, error) {
	return h.Allocate(ctx, KindCons, Pair{Car: car, Cdr: cdr})
}

// Int allocates an integer cell.
func (h *Heap) Int(ctx context.Context, v int64) (Handle, error) {
	return h.Allocate(ctx, KindInt, v)
}

// Real allocates a real cell.
func (h *Heap) Real(ctx context.Context, v float64) (Handle, error) {
	return h.Allocate(ctx, KindReal, v)
}

// Char allocates a character cell.
func (h *Heap) Char(ctx context.Context, r rune) (Handle, error) {
	return h.Allocate(ctx, KindChar, r)
}

// Nil allocates an empty-list cell.
func (h *Heap) Nil(ctx context.Context) (Handle, error) {
	return h.Allocate(ctx, KindNil, nil)
}

// Deref returns the cell a handle refers to. A handle whose slot was recycled
// fails with ErrStaleHandle.
func (h *Heap) Deref(handle Handle) (Cell, error) {
	c, err := h.orch.Deref(handle)
	return c, translateError(err)
}

// Car returns the first element of a Cons cell.
func (h *Heap) Car(handle Handle) (Handle, error) {
	c, err := h.pair(handle)
	return c.Car(), err
}

// Cdr returns the second element of a Cons cell.
func (h *Heap) Cdr(handle Handle) (Handle, error) {
	c, err := h.pair(handle)
	return c.Cdr(), err
}

func (h *Heap) pair(handle Handle) (Cell, error) {
	c, err := h.Deref(handle)
	if err != nil {
		return Cell{}, err
	}
	if !c.IsCons() {
		return Cell{}, fmt.Errorf("%w: %s is %s", ErrNotCons, handle, c.Kind())
	}
	return c, nil
}

// SetCar replaces the first element of a Cons cell.
func (h *Heap) SetCar(handle, v Handle) error {
	return translateError(h.orch.SetCar(handle, v))
}

// SetCdr replaces the second element of a Cons cell.
func (h *Heap) SetCdr(handle, v Handle) error {
	return translateError(h.orch.SetCdr(handle, v))
}

// Collect runs a full collection of the active arena: it waits for a running
// cycle, swaps the arena roles and returns once the new cycle has finished.
// Cells unreachable from the roots are reclaimed.
func (h *Heap) Collect(ctx context.Context) error {
	return translateError(h.orch.Collect(ctx))
}

// CollectStep performs one bounded unit of collection work and reports
// whether the background arena is idle afterwards. It drives cycles of a
// ModeManual heap; in ModeBackground it only shares the work.
func (h *Heap) CollectStep() bool {
	return h.orch.Step()
}

// State returns the collector state.
func (h *Heap) State() State { return h.orch.State() }

// Active returns the arena currently serving allocations.
func (h *Heap) Active() ArenaID { return h.orch.Active() }

// Stats returns a snapshot of both arenas and the collector counters.
func (h *Heap) Stats() Stats { return h.orch.Stats() }

// Counters returns the collector event totals without taking the heap lock.
func (h *Heap) Counters() Counters { return h.orch.Counters() }
