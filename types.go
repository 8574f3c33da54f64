package cellgc

import (
	"fmt"
	"strings"

	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
	"github.com/hupe1980/cellgc/internal/collector"
)

type (
	// Handle is an opaque reference to a cell: arena, slot and generation.
	// The zero Handle never refers to a cell.
	Handle = cell.Handle
	// Cell is an immutable snapshot of a cell's kind and payload.
	Cell = cell.Cell
	// Kind is the variant tag of a cell.
	Kind = cell.Kind
	// Pair is the payload of a Cons cell.
	Pair = cell.Pair
	// ArenaID names one of the two arenas.
	ArenaID = cell.ArenaID
	// State is the collector state.
	State = collector.State
	// CycleStats describes a finished collection cycle.
	CycleStats = collector.CycleStats
	// Stats is a snapshot of both arenas and the collector counters.
	Stats = collector.Stats
	// Counters are the monotonic collector event totals.
	Counters = collector.Counters
	// ArenaStats is a snapshot of one arena.
	ArenaStats = arena.Stats
)

// Cell kinds.
const (
	KindNil  = cell.KindNil
	KindCons = cell.KindCons
	KindInt  = cell.KindInt
	KindReal = cell.KindReal
	KindChar = cell.KindChar
)

// Arenas.
const (
	ArenaA = cell.ArenaA
	ArenaB = cell.ArenaB
)

// Collector states.
const (
	Idle                = collector.Idle
	Tracing             = collector.Tracing
	Sweeping            = collector.Sweeping
	HaltedForCollection = collector.HaltedForCollection
)

// RootProvider reports the handles the host program can still reach.
//
// Roots is invoked at the start of every collection cycle on the goroutine
// that triggered it (an allocating or collecting caller), with the heap lock
// released. It may call Deref and the pair accessors but must not allocate.
type RootProvider interface {
	Roots() []Handle
}

// RootFunc adapts a function to a RootProvider.
type RootFunc func() []Handle

// Roots implements RootProvider.
func (f RootFunc) Roots() []Handle { return f() }

// Mode selects who drives collection cycles.
type Mode int

const (
	// ModeBackground runs cycles on a dedicated goroutine.
	ModeBackground Mode = iota
	// ModeManual leaves cycles to CollectStep and Collect.
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeBackground:
		return "background"
	case ModeManual:
		return "manual"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "background" or "manual". The empty string is ModeBackground.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "background":
		return ModeBackground, nil
	case "manual":
		return ModeManual, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}
