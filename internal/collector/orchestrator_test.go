package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
	"github.com/hupe1980/cellgc/resource"
)

type rootSet struct {
	mu    sync.Mutex
	roots []cell.Handle
}

func (r *rootSet) set(hs ...cell.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots = append(r.roots[:0], hs...)
}

func (r *rootSet) get() []cell.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cell.Handle(nil), r.roots...)
}

type recorder struct {
	mu       sync.Mutex
	started  []cell.ArenaID
	finished []CycleStats
	halts    int
	fatal    int
	stale    int
}

func (r *recorder) CycleStarted(_ uint64, target cell.ArenaID, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, target)
}

func (r *recorder) CycleFinished(s CycleStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, s)
}

func (r *recorder) Halted(time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halts++
}

func (r *recorder) Exhausted(cell.ArenaID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal++
}

func (r *recorder) StaleRoots(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale += n
}

func newManual(t *testing.T, capacity int, roots *rootSet, obs Observer) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Capacity:  capacity,
		BatchSize: 2,
		Manual:    true,
		Roots:     roots.get,
		Observer:  obs,
	})
	require.NoError(t, err)
	return o
}

func newBackground(t *testing.T, capacity int, roots *rootSet) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Capacity: capacity,
		Roots:    roots.get,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	t.Cleanup(func() {
		o.Close()
		cancel()
		<-done
	})
	return o
}

func mustAlloc(t *testing.T, o *Orchestrator, c cell.Cell) cell.Handle {
	t.Helper()
	h, err := o.Allocate(context.Background(), c)
	require.NoError(t, err)
	return h
}

func drain(t *testing.T, o *Orchestrator) {
	t.Helper()
	for i := 0; !o.Step(); i++ {
		require.Less(t, i, 1_000_000, "cycle does not terminate")
	}
}

func TestOrchestrator_InitialState(t *testing.T) {
	o := newManual(t, 4, &rootSet{}, nil)

	assert.Equal(t, cell.ArenaA, o.Active())
	assert.Equal(t, Idle, o.State())
	assert.Equal(t, 4, o.Capacity())

	s := o.Stats()
	assert.Equal(t, 4, s.Arenas[cell.ArenaA].Free)
	assert.Equal(t, 4, s.Arenas[cell.ArenaB].Free)
	assert.Zero(t, s.Cycles)
}

func TestOrchestrator_InvalidCapacity(t *testing.T) {
	_, err := New(Config{Capacity: 0})
	assert.ErrorIs(t, err, arena.ErrInvalidCapacity)
}

func TestOrchestrator_CollectPreservesRootedSet(t *testing.T) {
	roots := &rootSet{}
	o := newManual(t, 8, roots, nil)

	four := mustAlloc(t, o, cell.Int(4))
	nilH := mustAlloc(t, o, cell.Nil())
	p := mustAlloc(t, o, cell.Cons(four, nilH))
	nine := mustAlloc(t, o, cell.Int(9))
	roots.set(p)

	require.NoError(t, o.Collect(context.Background()))

	assert.Equal(t, cell.ArenaB, o.Active())
	assert.Equal(t, Idle, o.State())
	last := o.Stats().LastCycle
	assert.Equal(t, cell.ArenaA, last.Target)
	assert.Equal(t, 3, last.Marked)
	assert.Equal(t, 1, last.Reclaimed)

	for _, h := range []cell.Handle{p, four, nilH} {
		_, err := o.Deref(h)
		assert.NoError(t, err)
	}
	_, err := o.Deref(nine)
	assert.ErrorIs(t, err, arena.ErrStaleHandle)

	// Swap back so arena A serves allocations again; the reclaimed slot is reused.
	require.NoError(t, o.Collect(context.Background()))
	require.Equal(t, cell.ArenaA, o.Active())

	reused := false
	for range 5 {
		h := mustAlloc(t, o, cell.Int(0))
		require.Equal(t, cell.ArenaA, h.Arena())
		if h.Slot() == nine.Slot() {
			reused = true
			assert.Equal(t, nine.Gen()+1, h.Gen())
		}
	}
	assert.True(t, reused)

	c, err := o.Deref(p)
	require.NoError(t, err)
	v, err := o.Deref(c.Car())
	require.NoError(t, err)
	n, _ := v.Int()
	assert.Equal(t, int64(4), n)
}

func TestOrchestrator_SelfReferentialCycle(t *testing.T) {
	roots := &rootSet{}
	o := newManual(t, 4, roots, nil)

	nilH := mustAlloc(t, o, cell.Nil())
	q := mustAlloc(t, o, cell.Cons(nilH, nilH))
	require.NoError(t, o.SetCar(q, q))
	roots.set(q)

	require.NoError(t, o.Collect(context.Background()))

	last := o.Stats().LastCycle
	assert.Equal(t, 2, last.Marked)
	c, err := o.Deref(q)
	require.NoError(t, err)
	assert.Equal(t, q, c.Car())
}

func TestOrchestrator_HaltAndResume(t *testing.T) {
	rec := &recorder{}
	o := newManual(t, 4, &rootSet{}, rec)

	for range 4 {
		mustAlloc(t, o, cell.Int(1))
	}
	// Exhaustion of A swaps roles and arms a cycle on A.
	h := mustAlloc(t, o, cell.Int(2))
	assert.Equal(t, cell.ArenaB, h.Arena())
	assert.Equal(t, Tracing, o.State())

	for range 3 {
		mustAlloc(t, o, cell.Int(3))
	}

	type result struct {
		h   cell.Handle
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := o.Allocate(context.Background(), cell.Int(4))
		done <- result{h, err}
	}()

	require.Eventually(t, func() bool {
		return o.State() == HaltedForCollection
	}, 5*time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("allocation returned while the background cycle was running")
	case <-time.After(20 * time.Millisecond):
	}

	drain(t, o)

	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("allocation did not resume")
	}
	require.NoError(t, r.err)
	assert.Equal(t, cell.ArenaA, r.h.Arena(), "slot comes from the swapped-in arena")
	assert.Equal(t, cell.ArenaA, o.Active())

	s := o.Stats()
	assert.Equal(t, uint64(1), s.Halts)
	assert.Equal(t, uint64(2), s.Cycles)
	assert.Equal(t, Tracing, s.State, "a new cycle runs on arena B")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.halts)
	assert.Equal(t, []cell.ArenaID{cell.ArenaA, cell.ArenaB}, rec.started)
	require.Len(t, rec.finished, 1)
	assert.Equal(t, 4, rec.finished[0].Reclaimed)
}

func TestOrchestrator_HaltHonoursContext(t *testing.T) {
	o := newManual(t, 1, &rootSet{}, nil)

	mustAlloc(t, o, cell.Int(1))
	mustAlloc(t, o, cell.Int(2)) // swaps, cycle on A pending

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Allocate(ctx, cell.Int(3))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Tracing, o.State())

	drain(t, o)
	h := mustAlloc(t, o, cell.Int(3))
	assert.Equal(t, cell.ArenaA, h.Arena())
}

func TestOrchestrator_NoHaltWhenCycleKeepsUp(t *testing.T) {
	const n = 16
	o := newManual(t, n, &rootSet{}, nil)

	for range n {
		mustAlloc(t, o, cell.Int(1))
	}
	mustAlloc(t, o, cell.Int(2))
	drain(t, o)

	for range n - 1 {
		mustAlloc(t, o, cell.Int(3))
	}
	// Next exhaustion finds the background arena idle.
	h := mustAlloc(t, o, cell.Int(4))
	assert.Equal(t, cell.ArenaA, h.Arena())
	assert.Zero(t, o.Stats().Halts)
}

func TestOrchestrator_FatalExhaustion(t *testing.T) {
	roots := &rootSet{}
	o := newBackground(t, 2, roots)

	var live []cell.Handle
	for i := range 4 {
		h := mustAlloc(t, o, cell.Int(int64(i)))
		live = append(live, h)
		roots.set(live...)
	}

	_, err := o.Allocate(context.Background(), cell.Int(5))
	assert.ErrorIs(t, err, ErrPoolExhausted)

	for i, h := range live {
		c, err := o.Deref(h)
		require.NoError(t, err)
		v, _ := c.Int()
		assert.Equal(t, int64(i), v)
	}
}

func TestOrchestrator_BackgroundChurn(t *testing.T) {
	const capacity = 256
	roots := &rootSet{}
	o := newBackground(t, capacity, roots)

	// A rolling window of 8 rooted pairs, everything else is garbage.
	var window []cell.Handle
	for i := 0; i < 20*capacity; i++ {
		v := mustAlloc(t, o, cell.Int(int64(i)))
		head := mustAlloc(t, o, cell.Cons(v, v))
		window = append(window, head)
		if len(window) > 8 {
			window = window[len(window)-8:]
		}
		roots.set(window...)
	}

	for _, h := range window {
		c, err := o.Deref(h)
		require.NoError(t, err)
		_, err = o.Deref(c.Car())
		require.NoError(t, err)
	}
	assert.Greater(t, o.Stats().Cycles, uint64(10))
}

func TestOrchestrator_StaleHandleAfterCycle(t *testing.T) {
	o := newManual(t, 4, &rootSet{}, nil)

	h := mustAlloc(t, o, cell.Real(1.5))
	require.NoError(t, o.Collect(context.Background()))

	_, err := o.Deref(h)
	assert.ErrorIs(t, err, arena.ErrStaleHandle)
}

func TestOrchestrator_DeletionBarrier(t *testing.T) {
	roots := &rootSet{}
	o := newManual(t, 4, roots, nil)

	nilH := mustAlloc(t, o, cell.Nil())
	x := mustAlloc(t, o, cell.Int(42))
	p := mustAlloc(t, o, cell.Cons(x, nilH))
	filler := mustAlloc(t, o, cell.Int(0))
	roots.set(p)

	// Exhaustion starts a cycle on A with roots {p}.
	mustAlloc(t, o, cell.Int(1))
	require.Equal(t, Tracing, o.State())

	// Move x out of p into a fresh cell while A is being traced.
	require.NoError(t, o.SetCar(p, nilH))
	z := mustAlloc(t, o, cell.Cons(x, nilH))
	roots.set(p, z)

	drain(t, o)

	_, err := o.Deref(x)
	assert.NoError(t, err, "overwritten edge must survive the cycle")
	_, err = o.Deref(filler)
	assert.ErrorIs(t, err, arena.ErrStaleHandle)
}

func TestOrchestrator_PendingPayloadSurvives(t *testing.T) {
	o := newManual(t, 2, &rootSet{}, nil)

	car := mustAlloc(t, o, cell.Int(1))
	cdr := mustAlloc(t, o, cell.Nil())

	pair := mustAlloc(t, o, cell.Cons(car, cdr))
	assert.Equal(t, cell.ArenaB, pair.Arena())
	drain(t, o)

	_, err := o.Deref(car)
	assert.NoError(t, err)
	_, err = o.Deref(cdr)
	assert.NoError(t, err)
}

func TestOrchestrator_SetFieldErrors(t *testing.T) {
	o := newManual(t, 4, &rootSet{}, nil)

	leaf := mustAlloc(t, o, cell.Int(1))
	nilH := mustAlloc(t, o, cell.Nil())
	p := mustAlloc(t, o, cell.Cons(leaf, nilH))

	err := o.SetCar(leaf, nilH)
	assert.ErrorIs(t, err, ErrNotCons)

	err = o.SetCdr(p, cell.NewHandle(cell.ArenaA, 3, 9))
	assert.ErrorIs(t, err, arena.ErrStaleHandle)

	err = o.SetCdr(p, leaf)
	require.NoError(t, err)
	c, err := o.Deref(p)
	require.NoError(t, err)
	assert.Equal(t, leaf, c.Cdr())

	_, err = o.Deref(cell.NewHandle(cell.ArenaID(5), 0, 1))
	assert.ErrorIs(t, err, arena.ErrForeignHandle)
}

func TestOrchestrator_RejectsStaleEdges(t *testing.T) {
	o := newManual(t, 4, &rootSet{}, nil)

	stale := cell.NewHandle(cell.ArenaB, 0, 1)
	_, err := o.Allocate(context.Background(), cell.Cons(stale, stale))
	assert.ErrorIs(t, err, arena.ErrStaleHandle)
	assert.Equal(t, 4, o.Stats().Arenas[cell.ArenaA].Free, "no cell is created")
}

func TestOrchestrator_StaleRootsDropped(t *testing.T) {
	rec := &recorder{}
	roots := &rootSet{}
	o := newManual(t, 4, roots, rec)

	h := mustAlloc(t, o, cell.Int(1))
	require.NoError(t, o.Collect(context.Background()))

	roots.set(h, cell.Handle{})
	require.NoError(t, o.Collect(context.Background()))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.stale)
	require.Len(t, rec.finished, 2)
	assert.Equal(t, 0, rec.finished[1].Roots)
}

func TestOrchestrator_SharedBackgroundSlots(t *testing.T) {
	rc := resource.NewController(resource.Config{MaxBackgroundCollections: 1})
	o, err := New(Config{Capacity: 8, Resources: rc})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()

	require.NoError(t, o.Collect(context.Background()))
	require.Eventually(t, rc.TryAcquireBackground, 5*time.Second, time.Millisecond,
		"slot released after the cycle")
	rc.ReleaseBackground()

	o.Close()
	cancel()
	<-done
}

func TestOrchestrator_Close(t *testing.T) {
	o := newBackground(t, 4, &rootSet{})
	o.Close()

	_, err := o.Allocate(context.Background(), cell.Int(1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, o.Collect(context.Background()), ErrClosed)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "tracing", Tracing.String())
	assert.Equal(t, "sweeping", Sweeping.String())
	assert.Equal(t, "halted-for-collection", HaltedForCollection.String())
}

func TestOrchestrator_CountersWithoutLock(t *testing.T) {
	o := newManual(t, 2, &rootSet{}, nil)

	mustAlloc(t, o, cell.Int(1))
	mustAlloc(t, o, cell.Int(2))
	mustAlloc(t, o, cell.Int(3)) // swaps, cycle on A pending

	o.mu.Lock()
	c := o.Counters()
	o.mu.Unlock()

	assert.Equal(t, Counters{Cycles: 1, Swaps: 1}, c)
	assert.Equal(t, c, o.Stats().Counters)
}

// stateObserver reads the orchestrator from inside its callbacks.
type stateObserver struct {
	recorder
	o      *Orchestrator
	states []State
}

func (s *stateObserver) CycleStarted(seq uint64, target cell.ArenaID, roots int) {
	s.recorder.CycleStarted(seq, target, roots)
	s.note()
}

func (s *stateObserver) CycleFinished(stats CycleStats) {
	s.recorder.CycleFinished(stats)
	s.note()
}

func (s *stateObserver) note() {
	st := s.o.State()
	_ = s.o.Stats()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func TestOrchestrator_ObserverReadsState(t *testing.T) {
	obs := &stateObserver{}
	o := newManual(t, 4, &rootSet{}, obs)
	obs.o = o

	mustAlloc(t, o, cell.Int(1))

	done := make(chan error, 1)
	go func() { done <- o.Collect(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("observer callback deadlocked on the heap lock")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []cell.ArenaID{cell.ArenaA}, obs.started)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, []State{Idle, Idle}, obs.states, "events are delivered after the cycle ran inline")
}

func TestOrchestrator_HaltedSweepIsNotPaced(t *testing.T) {
	const capacity = 64
	rc := resource.NewController(resource.Config{SweepSlotsPerSec: 10})
	o, err := New(Config{Capacity: capacity, BatchSize: 8, Resources: rc})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	t.Cleanup(func() {
		o.Close()
		cancel()
		<-done
	})

	// Exhaust A to start a paced cycle, then exhaust B to halt on it. At ten
	// slots per second the paced sweep alone would take several seconds.
	for range 2 * capacity {
		mustAlloc(t, o, cell.Int(1))
	}

	start := time.Now()
	mustAlloc(t, o, cell.Int(2))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, uint64(1), o.Counters().Halts)
}
