package cell

import "fmt"

// ArenaID identifies one of the two arenas of a heap.
type ArenaID uint8

const (
	// ArenaA is the arena that serves allocations after initialization.
	ArenaA ArenaID = iota
	// ArenaB starts out as the idle, already clean background arena.
	ArenaB
)

// NumArenas is the number of arenas per heap.
const NumArenas = 2

// Other returns the opposite arena.
func (id ArenaID) Other() ArenaID {
	return id ^ 1
}

// Valid reports whether id names an existing arena.
func (id ArenaID) Valid() bool {
	return id < NumArenas
}

func (id ArenaID) String() string {
	switch id {
	case ArenaA:
		return "A"
	case ArenaB:
		return "B"
	default:
		return fmt.Sprintf("ArenaID(%d)", uint8(id))
	}
}

// Handle is an opaque reference to a cell.
//
// Generations start at 1, so the zero Handle never refers to a cell. They are
// 64 bits wide and never wrap in practice.
type Handle struct {
	arena ArenaID
	slot  uint32
	gen   uint64
}

// NewHandle assembles a handle. Only arenas mint handles that resolve.
func NewHandle(arena ArenaID, slot uint32, gen uint64) Handle {
	return Handle{arena: arena, slot: slot, gen: gen}
}

// Arena returns the arena the handle points into.
func (h Handle) Arena() ArenaID { return h.arena }

// Slot returns the slot index within the arena.
func (h Handle) Slot() uint32 { return h.slot }

// Gen returns the slot generation the handle was minted for.
func (h Handle) Gen() uint64 { return h.gen }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	if h.IsZero() {
		return "<nil handle>"
	}
	return fmt.Sprintf("%s:%d@%d", h.arena, h.slot, h.gen)
}
