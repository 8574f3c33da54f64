package testutil

import (
	"math/rand"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/hupe1980/cellgc"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63 returns a non-negative pseudo-random 63-bit integer.
func (r *RNG) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Leaf returns a random leaf kind with a matching payload.
func (r *RNG) Leaf() (cellgc.Kind, any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.rand.Intn(4) {
	case 0:
		return cellgc.KindInt, r.rand.Int63() - r.rand.Int63()
	case 1:
		return cellgc.KindReal, r.rand.NormFloat64()
	case 2:
		c := rune(r.rand.Intn(utf8.MaxRune + 1))
		if !utf8.ValidRune(c) {
			c = utf8.RuneError
		}
		return cellgc.KindChar, c
	default:
		return cellgc.KindNil, nil
	}
}

// RootSet is a mutable, goroutine-safe root set. The zero value is empty
// and ready to use.
type RootSet struct {
	mu    sync.Mutex
	roots []cellgc.Handle
}

var _ cellgc.RootProvider = (*RootSet)(nil)

// Add appends handles to the set.
func (s *RootSet) Add(hs ...cellgc.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = append(s.roots, hs...)
}

// Remove deletes every occurrence of h and reports whether one was found.
func (s *RootSet) Remove(h cellgc.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.roots)
	s.roots = slices.DeleteFunc(s.roots, func(x cellgc.Handle) bool { return x == h })
	return len(s.roots) != n
}

// Set replaces the set.
func (s *RootSet) Set(hs ...cellgc.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = append(s.roots[:0], hs...)
}

// Clear empties the set.
func (s *RootSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = s.roots[:0]
}

// Len returns the number of handles in the set.
func (s *RootSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roots)
}

// Roots implements cellgc.RootProvider. It returns a copy.
func (s *RootSet) Roots() []cellgc.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.roots)
}
