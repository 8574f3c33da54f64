// Package testutil provides testing utilities for cellgc.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Payloads
//
//	rng := testutil.NewRNG(seed)
//	kind, payload := rng.Leaf() // Int, Real, Char or Nil
//
// # Roots
//
//	var roots testutil.RootSet
//	heap, _ := cellgc.New(&roots)
//	h, _ := heap.Int(ctx, 1)
//	roots.Add(h)
package testutil
