// Package sweep implements the sweep phase of a collection cycle.
//
// The Sweeper scans an arena slot by slot after its mark phase completed and
// returns every allocated but unmarked slot to the free list. Marked slots are
// left untouched. It must only run on an arena that is not serving
// allocations.
package sweep

import (
	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
)

// Result summarizes a sweep phase.
type Result struct {
	Arena     cell.ArenaID
	Scanned   int
	Reclaimed int
	Survivors int
}

// Sweeper is a resumable sweep phase. Not goroutine-safe.
type Sweeper struct {
	arena   *arena.Arena
	cursor  int
	result  Result
	running bool
}

// New creates an idle sweeper.
func New() *Sweeper {
	return &Sweeper{}
}

// Start begins sweeping a.
func (s *Sweeper) Start(a *arena.Arena) {
	s.arena = a
	s.cursor = 0
	s.result = Result{Arena: a.ID()}
	s.running = true
}

// Running reports whether a sweep is in progress.
func (s *Sweeper) Running() bool { return s.running }

// Step scans at most budget slots and reports whether the sweep is complete.
// A non-positive budget scans the remainder of the arena.
func (s *Sweeper) Step(budget int) bool {
	if !s.running {
		return true
	}
	end := s.arena.Capacity()
	if budget > 0 {
		end = min(end, s.cursor+budget)
	}

	for ; s.cursor < end; s.cursor++ {
		slot := uint32(s.cursor) //nolint:gosec // cursor < capacity <= MaxUint32
		s.result.Scanned++
		if s.arena.IsFree(slot) {
			continue
		}
		if s.arena.Marked(slot) {
			s.result.Survivors++
			continue
		}
		s.arena.Return(slot)
		s.result.Reclaimed++
	}

	if s.cursor == s.arena.Capacity() {
		s.running = false
	}
	return !s.running
}

// Result returns the counters of the current or last sweep.
func (s *Sweeper) Result() Result { return s.result }

// Sweep runs a complete sweep of a.
func Sweep(a *arena.Arena) Result {
	s := New()
	s.Start(a)
	s.Step(0)
	return s.result
}
