package arena

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/cellgc/internal/cell"
	"github.com/hupe1980/cellgc/internal/conv"
	"github.com/hupe1980/cellgc/internal/freelist"
)

var (
	// ErrArenaExhausted is returned when the free list is empty.
	ErrArenaExhausted = errors.New("arena: exhausted")
	// ErrStaleHandle is returned when a handle's generation no longer matches its slot.
	ErrStaleHandle = errors.New("arena: stale handle")
	// ErrForeignHandle is returned for handles that name another arena or an out-of-range slot.
	ErrForeignHandle = errors.New("arena: handle does not belong to arena")
	// ErrDoubleFree is the panic value (wrapped) for free-list consistency violations.
	ErrDoubleFree = errors.New("arena: double free")
	// ErrInvalidCapacity is returned for capacities that are not positive or exceed uint32.
	ErrInvalidCapacity = errors.New("arena: invalid capacity")
)

// Stats is a snapshot of arena usage.
type Stats struct {
	ID          cell.ArenaID
	Capacity    int     // Slots in the arena
	Free        int     // Slots on the free list
	InUse       int     // Capacity - Free
	Marked      int     // Liveness bits currently set
	Allocs      uint64  // Historical: slots handed out
	Recycles    uint64  // Historical: slots returned by sweeps
	Utilization float64 // InUse / Capacity (0.0-1.0)
}

// Arena is fixed-size cell storage.
type Arena struct {
	id    cell.ArenaID
	cells []cell.Cell
	gens  []uint64
	live  *bitset.BitSet
	free  *roaring.Bitmap
	ring  *freelist.Ring

	allocs   uint64
	recycles uint64
}

// New creates an arena with every slot free.
func New(id cell.ArenaID, capacity int) (*Arena, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("arena: unknown id %d", id)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	n, err := conv.IntToUint32(capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}

	ring, err := freelist.New(n)
	if err != nil {
		return nil, err
	}

	a := &Arena{
		id:    id,
		cells: make([]cell.Cell, capacity),
		gens:  make([]uint64, capacity),
		live:  bitset.New(uint(capacity)),
		free:  roaring.New(),
		ring:  ring,
	}
	// Generation 0 is reserved for the zero Handle.
	for i := range a.gens {
		a.gens[i] = 1
	}
	a.free.AddRange(0, uint64(n))
	return a, nil
}

// ID returns the arena identity.
func (a *Arena) ID() cell.ArenaID { return a.id }

// Capacity returns the number of slots.
func (a *Arena) Capacity() int { return len(a.cells) }

// Exhausted reports whether the free list is empty.
func (a *Arena) Exhausted() bool { return a.ring.Empty() }

// FreeSlots returns the number of free slots.
func (a *Arena) FreeSlots() int { return a.ring.Len() }

// Take pops a free slot index. The slot's liveness bit is set.
func (a *Arena) Take() (uint32, error) {
	slot, err := a.ring.Take()
	if err != nil {
		return 0, ErrArenaExhausted
	}
	if !a.free.CheckedRemove(slot) {
		panic(fmt.Errorf("%w: slot %s:%d handed out twice", ErrDoubleFree, a.id, slot))
	}
	a.live.Set(uint(slot))
	a.allocs++
	return slot, nil
}

// Alloc takes a slot, stores c in it and returns its handle.
func (a *Arena) Alloc(c cell.Cell) (cell.Handle, error) {
	slot, err := a.Take()
	if err != nil {
		return cell.Handle{}, err
	}
	a.cells[slot] = c
	return a.handle(slot), nil
}

// Return recycles a slot: the cell is cleared, the generation bumped and the
// index pushed back onto the free list.
func (a *Arena) Return(slot uint32) {
	if int(slot) >= len(a.cells) {
		panic(fmt.Errorf("%w: slot %s:%d out of range", ErrDoubleFree, a.id, slot))
	}
	if a.free.Contains(slot) {
		panic(fmt.Errorf("%w: slot %s:%d already free", ErrDoubleFree, a.id, slot))
	}
	if a.live.Test(uint(slot)) {
		panic(fmt.Errorf("%w: slot %s:%d freed while marked live", ErrDoubleFree, a.id, slot))
	}

	a.cells[slot] = cell.Cell{}
	a.gens[slot]++
	if err := a.ring.Put(slot); err != nil {
		panic(fmt.Errorf("%w: %w", ErrDoubleFree, err))
	}
	a.free.Add(slot)
	a.recycles++
}

// IsFree reports whether slot is on the free list.
func (a *Arena) IsFree(slot uint32) bool {
	return a.free.Contains(slot)
}

// Resolve returns the cell a handle refers to.
func (a *Arena) Resolve(h cell.Handle) (cell.Cell, error) {
	if err := a.check(h); err != nil {
		return cell.Cell{}, err
	}
	return a.cells[h.Slot()], nil
}

// Store overwrites the cell a handle refers to.
func (a *Arena) Store(h cell.Handle, c cell.Cell) error {
	if err := a.check(h); err != nil {
		return err
	}
	a.cells[h.Slot()] = c
	return nil
}

// Valid reports whether h currently refers to an allocated slot of this arena.
func (a *Arena) Valid(h cell.Handle) bool {
	return a.check(h) == nil
}

// At returns the cell in slot without any handle check.
func (a *Arena) At(slot uint32) cell.Cell {
	return a.cells[slot]
}

func (a *Arena) check(h cell.Handle) error {
	slot := h.Slot()
	if h.Arena() != a.id || int(slot) >= len(a.cells) {
		return fmt.Errorf("%w: %s", ErrForeignHandle, h)
	}
	if h.Gen() == 0 || a.gens[slot] != h.Gen() || a.free.Contains(slot) {
		return fmt.Errorf("%w: %s (slot generation %d)", ErrStaleHandle, h, a.gens[slot])
	}
	return nil
}

func (a *Arena) handle(slot uint32) cell.Handle {
	return cell.NewHandle(a.id, slot, a.gens[slot])
}

// Marked reports the liveness bit of slot.
func (a *Arena) Marked(slot uint32) bool {
	return a.live.Test(uint(slot))
}

// Mark sets the liveness bit of slot.
func (a *Arena) Mark(slot uint32) {
	a.live.Set(uint(slot))
}

// ClearMarks resets every liveness bit.
func (a *Arena) ClearMarks() {
	a.live.ClearAll()
}

// Stats returns a snapshot of arena usage.
func (a *Arena) Stats() Stats {
	capacity := len(a.cells)
	free := a.ring.Len()
	s := Stats{
		ID:       a.id,
		Capacity: capacity,
		Free:     free,
		InUse:    capacity - free,
		Marked:   int(a.live.Count()),
		Allocs:   a.allocs,
		Recycles: a.recycles,
	}
	if capacity > 0 {
		s.Utilization = float64(s.InUse) / float64(capacity)
	}
	return s
}

func (a *Arena) String() string {
	s := a.Stats()
	return fmt.Sprintf(
		"Arena{id: %s, capacity: %d, free: %d, marked: %d, allocs: %d, recycles: %d, usage: %.1f%%}",
		s.ID, s.Capacity, s.Free, s.Marked, s.Allocs, s.Recycles, s.Utilization*100,
	)
}
