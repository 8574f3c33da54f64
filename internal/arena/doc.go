// Package arena provides the fixed-capacity cell storage of a heap.
//
// An Arena owns POOL_SIZE cell slots, a per-slot generation counter, a
// liveness bitmap and a ring of free slot indices. Slots are reclaimed in
// place and never move; recycling a slot bumps its generation so handles taken
// before the recycle are detected as stale.
//
// # Features
//
//   - O(1) Take/Return through a ring buffer of free indices
//   - Liveness bitmap (bits-and-blooms/bitset) written by the tracer
//   - Roaring set of free indices for double-free assertions
//   - Generation tracking for stale-handle detection
//
// # Safety
//
// Arena is not goroutine-safe; the owning heap serializes access. Broken
// invariants (double free, freeing a marked slot) panic with ErrDoubleFree
// because continuing would corrupt the cell graph.
package arena
