// Package mark implements the mark phase of a collection cycle.
//
// The Tracer walks the cell graph from a root set with an explicit work
// stack, so deeply nested lists and cyclic structures never grow the Go call
// stack. A handle is visited at most once per cycle: it is checked before it
// is pushed and again when it is popped.
//
// Only the liveness bitmap of the target arena is written. Edges into the
// other arena are followed as well, because a target cell may only be
// reachable through a cell living there; those visits are recorded in a
// private visited set.
package mark

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
)

// Result summarizes a finished (or in-progress) mark phase.
type Result struct {
	Target   cell.ArenaID
	Marked   int // target cells marked live
	Foreign  int // cells of the other arena traversed
	Dangling int // stale handles met during the walk
}

// Tracer is a resumable mark phase. Not goroutine-safe.
type Tracer struct {
	arenas  [cell.NumArenas]*arena.Arena
	target  cell.ArenaID
	visited *bitset.BitSet
	stack   []cell.Handle
	result  Result
	running bool
}

// New creates a tracer over both arenas of a heap.
func New(arenas [cell.NumArenas]*arena.Arena) *Tracer {
	size := 0
	for _, a := range arenas {
		size = max(size, a.Capacity())
	}
	return &Tracer{
		arenas:  arenas,
		visited: bitset.New(uint(size)),
		stack:   make([]cell.Handle, 0, 64),
	}
}

// Start resets the target's liveness bitmap and seeds the work stack with roots.
func (t *Tracer) Start(target cell.ArenaID, roots []cell.Handle) {
	t.target = target
	t.arenas[target].ClearMarks()
	t.visited.ClearAll()
	t.stack = t.stack[:0]
	t.result = Result{Target: target}
	t.running = true

	for _, h := range roots {
		t.push(h)
	}
}

// Shade adds a handle to the work stack of a running phase. It is the
// deletion barrier hook: a pointer overwritten during marking is still traced.
func (t *Tracer) Shade(h cell.Handle) {
	if !t.running {
		return
	}
	t.push(h)
}

// Running reports whether a phase has been started and not finished.
func (t *Tracer) Running() bool { return t.running }

// Pending returns the size of the work stack.
func (t *Tracer) Pending() int { return len(t.stack) }

// Step pops at most budget handles and reports whether marking is complete.
// A non-positive budget drains the stack.
func (t *Tracer) Step(budget int) bool {
	if !t.running {
		return true
	}
	for n := 0; len(t.stack) > 0 && (budget <= 0 || n < budget); n++ {
		last := len(t.stack) - 1
		h := t.stack[last]
		t.stack = t.stack[:last]
		t.visit(h)
	}
	if len(t.stack) == 0 {
		t.running = false
	}
	return !t.running
}

// Mark runs a complete mark phase.
func (t *Tracer) Mark(target cell.ArenaID, roots []cell.Handle) Result {
	t.Start(target, roots)
	t.Step(0)
	return t.result
}

// Result returns the counters of the current or last phase.
func (t *Tracer) Result() Result { return t.result }

func (t *Tracer) visit(h cell.Handle) {
	a := t.arenas[h.Arena()]
	if !a.Valid(h) {
		t.result.Dangling++
		return
	}
	if t.seen(h) {
		return
	}
	if h.Arena() == t.target {
		a.Mark(h.Slot())
		t.result.Marked++
	} else {
		t.visited.Set(uint(h.Slot()))
		t.result.Foreign++
	}

	c := a.At(h.Slot())
	if c.IsCons() {
		t.push(c.Car())
		t.push(c.Cdr())
	}
}

func (t *Tracer) push(h cell.Handle) {
	if h.IsZero() || !h.Arena().Valid() {
		return
	}
	if t.seen(h) {
		return
	}
	t.stack = append(t.stack, h)
}

func (t *Tracer) seen(h cell.Handle) bool {
	if h.Arena() == t.target {
		return t.arenas[h.Arena()].Marked(h.Slot())
	}
	return t.visited.Test(uint(h.Slot()))
}
