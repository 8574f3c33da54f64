// Package freelist implements the per-arena ring buffer of free slot indices.
//
// The ring holds every index exactly once at capacity, so take and put
// cursors are equal both when nothing is free and when everything is free.
// An explicit count disambiguates the two states.
package freelist

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned by Take when no index is free.
	ErrEmpty = errors.New("freelist: empty")
	// ErrFull is returned by Put when every index is already free.
	ErrFull = errors.New("freelist: full")
	// ErrInvalidCapacity is returned for a non-positive capacity.
	ErrInvalidCapacity = errors.New("freelist: capacity must be positive")
)

// Ring is a fixed-capacity FIFO of slot indices. Not goroutine-safe.
type Ring struct {
	buf   []uint32
	take  uint32 // next index to hand out
	put   uint32 // next position to store a returned index
	count uint32 // indices currently queued
}

// New creates a ring holding 0..capacity-1 in slot order.
func New(capacity uint32) (*Ring, error) {
	if capacity == 0 {
		return nil, ErrInvalidCapacity
	}
	r := &Ring{
		buf:   make([]uint32, capacity),
		count: capacity,
	}
	for i := range r.buf {
		r.buf[i] = uint32(i)
	}
	return r, nil
}

// Take pops the oldest free index.
func (r *Ring) Take() (uint32, error) {
	if r.count == 0 {
		return 0, ErrEmpty
	}
	idx := r.buf[r.take]
	r.take = r.advance(r.take)
	r.count--
	return idx, nil
}

// Put pushes an index back.
func (r *Ring) Put(idx uint32) error {
	if r.count == r.Cap() {
		return fmt.Errorf("%w: cannot return slot %d", ErrFull, idx)
	}
	r.buf[r.put] = idx
	r.put = r.advance(r.put)
	r.count++
	return nil
}

// Len returns the number of free indices.
func (r *Ring) Len() int { return int(r.count) }

// Cap returns the ring capacity.
func (r *Ring) Cap() uint32 { return uint32(len(r.buf)) }

// Empty reports whether no index is free.
func (r *Ring) Empty() bool { return r.count == 0 }

// Full reports whether every index is free.
func (r *Ring) Full() bool { return r.count == r.Cap() }

func (r *Ring) advance(pos uint32) uint32 {
	pos++
	if pos == r.Cap() {
		return 0
	}
	return pos
}
