// Package collector coordinates the two arenas of a heap.
//
// At any instant one arena is active and serves allocations while the other
// is background: either running a collection cycle (Tracing, then Sweeping)
// or idle and clean. When the active arena runs out of slots the
// Orchestrator swaps the roles and immediately starts a cycle on the arena
// that just filled up. If the background cycle has not finished yet the
// allocating caller is halted until it has.
//
//	            exhaustion, background Idle
//	  ┌──────┐ ───────────────────────────► swap roles ──► ┌─────────┐
//	  │ Idle │                                             │ Tracing │
//	  └──────┘ ◄──────────── ┌──────────┐ ◄─────────────── └─────────┘
//	     ▲                   │ Sweeping │
//	     │                   └──────────┘
//	     │ cycle reaches Idle
//	  ┌─────────────────────┐
//	  │ HaltedForCollection │ ◄── exhaustion while a cycle is running
//	  └─────────────────────┘
//
// # Concurrency Model
//
// All arena state is guarded by one mutex. The collector context (a
// background goroutine running Run, or a host calling Step) holds it for one
// bounded batch at a time, so a running cycle delays an allocation by at most
// one batch. Waiting uses a sync.Cond, never a polling loop.
//
// Cycles are snapshot-at-the-beginning: roots are captured when the cycle
// starts, cells allocated during the cycle live in the other arena, and a
// Cons field overwritten while tracing is shaded by a deletion barrier.
package collector
