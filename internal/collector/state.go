package collector

import (
	"fmt"
	"time"

	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
)

// State is the externally observable collector state.
type State int

const (
	// Idle means the background arena is clean and no cycle is running.
	Idle State = iota
	// Tracing means the background arena's mark phase is running.
	Tracing
	// Sweeping means the background arena's sweep phase is running.
	Sweeping
	// HaltedForCollection means an allocation is blocked waiting for the cycle.
	HaltedForCollection
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracing:
		return "tracing"
	case Sweeping:
		return "sweeping"
	case HaltedForCollection:
		return "halted-for-collection"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CycleStats describes one finished collection cycle.
type CycleStats struct {
	Seq           uint64
	Target        cell.ArenaID
	Roots         int
	Marked        int
	Foreign       int
	Dangling      int
	Reclaimed     int
	Survivors     int
	MarkDuration  time.Duration
	SweepDuration time.Duration
}

// Counters are monotonic event totals.
type Counters struct {
	Cycles uint64 // Collection cycles started
	Halts  uint64 // Allocations that waited for a running cycle
	Swaps  uint64 // Arena role swaps
}

// Stats is a snapshot of the orchestrator.
type Stats struct {
	Counters
	Active    cell.ArenaID
	State     State
	Arenas    [cell.NumArenas]arena.Stats
	LastCycle CycleStats
}

// Observer receives collector events. Events are recorded under the heap lock
// and delivered in order after it is released, so callbacks may read heap
// state. They must not allocate, collect or step.
type Observer interface {
	CycleStarted(seq uint64, target cell.ArenaID, roots int)
	CycleFinished(stats CycleStats)
	Halted(wait time.Duration, err error)
	Exhausted(active cell.ArenaID)
	StaleRoots(n int)
}

type noopObserver struct{}

func (noopObserver) CycleStarted(uint64, cell.ArenaID, int) {}
func (noopObserver) CycleFinished(CycleStats)              {}
func (noopObserver) Halted(time.Duration, error)           {}
func (noopObserver) Exhausted(cell.ArenaID)                {}
func (noopObserver) StaleRoots(int)                        {}
