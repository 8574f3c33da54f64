// Package cellgc provides an embedded memory manager for cons-cell runtimes.
//
// A Heap owns two fixed-capacity arenas of cells. One arena serves
// allocations while the other is traced and swept in the background, so an
// allocation only waits when the active arena runs out before the background
// cycle has finished.
//
// # Quick Start
//
//	var globals []cellgc.Handle
//	heap, _ := cellgc.New(cellgc.RootFunc(func() []cellgc.Handle {
//	    return globals
//	}), cellgc.WithCapacity(1<<16))
//	defer heap.Close()
//
//	ctx := context.Background()
//	four, _ := heap.Int(ctx, 4)
//	nilCell, _ := heap.Nil(ctx)
//	list, _ := heap.Cons(ctx, four, nilCell)
//	globals = append(globals, list)
//
// # Cells and Handles
//
// A cell is a Cons pair or one of the leaves Int, Real, Char and Nil. Cells
// are addressed through Handles made of an arena, a slot and a generation.
// Cells never move. When a slot is recycled its generation changes, and
// every older Handle to it fails with ErrStaleHandle.
//
// # Roots
//
// The host reports its live handles through a RootProvider. Roots are taken
// at the start of every cycle; a cell reachable from them (through Cons edges
// in either arena) survives the cycle. Handles held only in Go variables are
// not roots and their cells are reclaimed by the next cycle of their arena.
//
// # Collection Cycle
//
//	Idle ──exhaustion──▶ swap roles ──▶ Tracing ──▶ Sweeping ──▶ Idle
//
// If the active arena is exhausted while the background arena is still
// Tracing or Sweeping, the allocation reports HaltedForCollection until the
// cycle reaches Idle. If the arena it swaps to is still full, the allocation
// fails with ErrPoolExhausted.
//
// # Modes
//
// ModeBackground drives cycles on an internal goroutine. ModeManual leaves
// them to CollectStep and Collect, which makes every interleaving
// reproducible in tests.
//
// # Observability
//
// WithLogger, WithMetricsCollector and WithTracerProvider report cycles,
// halts and exhaustion; see the metrics/prometheus package for a Prometheus
// collector.
package cellgc
