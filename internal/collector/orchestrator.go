package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/hupe1980/cellgc/internal/arena"
	"github.com/hupe1980/cellgc/internal/cell"
	"github.com/hupe1980/cellgc/internal/mark"
	"github.com/hupe1980/cellgc/internal/sweep"
	"github.com/hupe1980/cellgc/resource"
)

var (
	// ErrPoolExhausted is returned when the active arena is still full after a role swap.
	ErrPoolExhausted = errors.New("collector: pool exhausted")
	// ErrClosed is returned by operations on a closed orchestrator.
	ErrClosed = errors.New("collector: closed")
	// ErrNotCons is returned when a pair operation targets a non-Cons cell.
	ErrNotCons = errors.New("collector: not a cons cell")
)

// DefaultBatchSize is the number of handles traced or slots swept per step.
const DefaultBatchSize = 256

// RootFunc returns the current root set.
type RootFunc func() []cell.Handle

// Config configures an Orchestrator.
type Config struct {
	// Capacity is the number of slots per arena.
	Capacity int
	// BatchSize bounds the work done per step. If 0, DefaultBatchSize is used.
	BatchSize int
	// Manual disables the expectation of a background driver: Collect drives
	// its cycle to completion itself.
	Manual bool
	// Roots supplies the root set at the start of every cycle.
	Roots RootFunc
	// Resources is optional shared governance.
	Resources *resource.Controller
	// Observer receives events. If nil, events are discarded.
	Observer Observer
}

// counters are written under o.mu but read without it, so they sit on their
// own cache lines.
type counters struct {
	_      cpu.CacheLinePad
	cycles atomic.Uint64
	halts  atomic.Uint64
	swaps  atomic.Uint64
	_      cpu.CacheLinePad
}

// event is an observer notification recorded under o.mu.
type event func(Observer)

type cycle struct {
	seq       uint64
	target    cell.ArenaID
	roots     int
	started   time.Time
	markDone  time.Time
	markStats mark.Result
}

// Orchestrator owns both arenas and the collection state machine.
type Orchestrator struct {
	// mutator serializes allocating callers so only one of them swaps roles.
	mutator sync.Mutex

	mu      sync.Mutex
	cond    *sync.Cond
	arenas  [cell.NumArenas]*arena.Arena
	active  cell.ArenaID
	phase   State // Idle, Tracing or Sweeping
	halted  bool
	closed  bool
	tracer  *mark.Tracer
	sweeper *sweep.Sweeper
	current cycle
	last    CycleStats

	batch  int
	manual bool
	roots  RootFunc
	rc     *resource.Controller
	obs    Observer

	// deliver orders observer notifications; queue is guarded by mu.
	deliver sync.Mutex
	queue   []event

	counters counters
}

// New creates an orchestrator with arena A active and arena B idle-clean.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Roots == nil {
		cfg.Roots = func() []cell.Handle { return nil }
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	o := &Orchestrator{
		active:  cell.ArenaA,
		phase:   Idle,
		sweeper: sweep.New(),
		batch:   cfg.BatchSize,
		manual:  cfg.Manual,
		roots:   cfg.Roots,
		rc:      cfg.Resources,
		obs:     cfg.Observer,
	}
	o.cond = sync.NewCond(&o.mu)

	for id := cell.ArenaA; id < cell.NumArenas; id++ {
		a, err := arena.New(id, cfg.Capacity)
		if err != nil {
			return nil, err
		}
		o.arenas[id] = a
	}
	o.tracer = mark.New(o.arenas)
	return o, nil
}

// Allocate stores c in a free slot of the active arena.
//
// On exhaustion the roles are swapped (after waiting for a running cycle) and
// the allocation is retried exactly once.
func (o *Orchestrator) Allocate(ctx context.Context, c cell.Cell) (cell.Handle, error) {
	o.mutator.Lock()
	defer o.mutator.Unlock()
	defer o.flush()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return cell.Handle{}, ErrClosed
	}
	if err := o.checkEdgesLocked(c); err != nil {
		o.mu.Unlock()
		return cell.Handle{}, err
	}
	h, err := o.arenas[o.active].Alloc(c)
	o.mu.Unlock()
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, arena.ErrArenaExhausted) {
		return cell.Handle{}, err
	}

	// The payload's handles are only held by this call; keep them alive.
	var pending []cell.Handle
	if p, ok := c.Pair(); ok {
		pending = []cell.Handle{p.Car, p.Cdr}
	}
	if err := o.handleExhaustion(ctx, pending); err != nil {
		return cell.Handle{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	h, err = o.arenas[o.active].Alloc(c)
	if errors.Is(err, arena.ErrArenaExhausted) {
		active := o.active
		o.emitLocked(func(obs Observer) { obs.Exhausted(active) })
		return cell.Handle{}, fmt.Errorf("%w: arenas %s and %s hold no free slot", ErrPoolExhausted, o.active, o.active.Other())
	}
	return h, err
}

// handleExhaustion waits for a running cycle, swaps roles and starts a new
// cycle on the arena that just became background. Caller holds o.mutator.
func (o *Orchestrator) handleExhaustion(ctx context.Context, pending []cell.Handle) error {
	o.mu.Lock()
	err := o.waitIdleLocked(ctx, true)
	o.mu.Unlock()
	if err != nil {
		return err
	}

	roots := o.collectRoots(pending)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.swapAndStartLocked(roots)
	return nil
}

// Collect runs a full cycle on the current active arena: it waits for a
// running cycle, swaps roles, and returns once the new cycle reached Idle.
func (o *Orchestrator) Collect(ctx context.Context) error {
	o.mutator.Lock()
	defer o.mutator.Unlock()
	defer o.flush()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	err := o.finishLocked(ctx)
	o.mu.Unlock()
	if err != nil {
		return err
	}

	roots := o.collectRoots(nil)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.swapAndStartLocked(roots)
	return o.finishLocked(ctx)
}

// finishLocked brings the background arena to Idle: manual orchestrators
// drive the cycle inline, background ones wait for the driver.
func (o *Orchestrator) finishLocked(ctx context.Context) error {
	if o.manual {
		for !o.stepLocked() {
		}
		return nil
	}
	return o.waitIdleLocked(ctx, false)
}

// waitIdleLocked blocks until the background cycle is Idle. With halt set the
// wait is reported as HaltedForCollection.
func (o *Orchestrator) waitIdleLocked(ctx context.Context, halt bool) error {
	if o.closed {
		return ErrClosed
	}
	if o.phase == Idle {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.cond.Broadcast()
	})
	defer stop()

	var start time.Time
	if halt {
		o.halted = true
		o.counters.halts.Add(1)
		start = time.Now()
	}

	var err error
	for o.phase != Idle {
		if err = ctx.Err(); err != nil {
			break
		}
		if o.closed {
			err = ErrClosed
			break
		}
		o.cond.Wait()
	}

	if halt {
		o.halted = false
		wait := time.Since(start)
		o.emitLocked(func(obs Observer) { obs.Halted(wait, err) })
	}
	return err
}

// collectRoots asks the host for its roots without holding the heap lock and
// drops handles that no longer refer to a cell.
func (o *Orchestrator) collectRoots(pending []cell.Handle) []cell.Handle {
	host := o.roots()

	o.mu.Lock()
	defer o.mu.Unlock()

	valid := make([]cell.Handle, 0, len(host)+len(pending))
	stale := 0
	for _, set := range [][]cell.Handle{host, pending} {
		for _, h := range set {
			if h.IsZero() {
				continue
			}
			if !h.Arena().Valid() || !o.arenas[h.Arena()].Valid(h) {
				stale++
				continue
			}
			valid = append(valid, h)
		}
	}
	if stale > 0 {
		o.emitLocked(func(obs Observer) { obs.StaleRoots(stale) })
	}
	return valid
}

func (o *Orchestrator) swapAndStartLocked(roots []cell.Handle) {
	o.active = o.active.Other()
	o.counters.swaps.Add(1)
	o.startCycleLocked(o.active.Other(), roots)
}

func (o *Orchestrator) startCycleLocked(target cell.ArenaID, roots []cell.Handle) {
	seq := o.counters.cycles.Add(1)
	o.current = cycle{
		seq:     seq,
		target:  target,
		roots:   len(roots),
		started: time.Now(),
	}
	o.phase = Tracing
	o.tracer.Start(target, roots)
	n := len(roots)
	o.emitLocked(func(obs Observer) { obs.CycleStarted(seq, target, n) })
	o.cond.Broadcast()
}

// Step performs one bounded unit of collection work and reports whether the
// background arena is Idle afterwards.
func (o *Orchestrator) Step() bool {
	defer o.flush()
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stepLocked()
}

func (o *Orchestrator) stepLocked() bool {
	switch o.phase {
	case Tracing:
		if o.tracer.Step(o.batch) {
			o.current.markDone = time.Now()
			o.current.markStats = o.tracer.Result()
			o.phase = Sweeping
			o.sweeper.Start(o.arenas[o.current.target])
		}
		return false
	case Sweeping:
		if o.sweeper.Step(o.batch) {
			o.finishCycleLocked()
			return true
		}
		return false
	default:
		return true
	}
}

func (o *Orchestrator) finishCycleLocked() {
	now := time.Now()
	m := o.current.markStats
	s := o.sweeper.Result()
	o.last = CycleStats{
		Seq:           o.current.seq,
		Target:        o.current.target,
		Roots:         o.current.roots,
		Marked:        m.Marked,
		Foreign:       m.Foreign,
		Dangling:      m.Dangling,
		Reclaimed:     s.Reclaimed,
		Survivors:     s.Survivors,
		MarkDuration:  o.current.markDone.Sub(o.current.started),
		SweepDuration: now.Sub(o.current.markDone),
	}
	o.phase = Idle
	last := o.last
	o.emitLocked(func(obs Observer) { obs.CycleFinished(last) })
	o.cond.Broadcast()
}

// Run drives cycles in the background until Close. Each cycle holds a
// background slot of the resource controller and sweeps at its pace unless
// a mutator is halted.
func (o *Orchestrator) Run(ctx context.Context) error {
	for o.awaitCycle() {
		acquired := o.rc.TryAcquireBackground() || o.rc.AcquireBackground(ctx) == nil
		o.drive(ctx)
		if acquired {
			o.rc.ReleaseBackground()
		}
	}
	return nil
}

// awaitCycle blocks until a cycle is pending. It returns false once the
// orchestrator is closed and idle.
func (o *Orchestrator) awaitCycle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.phase == Idle && !o.closed {
		o.cond.Wait()
	}
	return o.phase != Idle
}

// drive runs the current cycle to completion. Cycles are never abandoned;
// a cancelled ctx only disables pacing. While a mutator is halted the sweep
// runs unthrottled but is still charged against the budget.
func (o *Orchestrator) drive(ctx context.Context) {
	for {
		o.mu.Lock()
		done := o.stepLocked()
		sweeping := o.phase == Sweeping
		halted := o.halted
		o.mu.Unlock()
		o.flush()
		if done {
			return
		}
		switch {
		case !sweeping:
		case halted:
			o.rc.TryPaceSweep(o.batch)
		case ctx.Err() == nil:
			_ = o.rc.PaceSweep(ctx, o.batch)
		}
	}
}

// Close stops accepting allocations and wakes every waiter. A running cycle
// is still completed by Run.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.cond.Broadcast()
}

// emitLocked queues ev for delivery once o.mu is released.
func (o *Orchestrator) emitLocked(ev event) {
	o.queue = append(o.queue, ev)
}

// flush delivers queued events in the order they were recorded. It must be
// called without o.mu held.
func (o *Orchestrator) flush() {
	o.deliver.Lock()
	defer o.deliver.Unlock()

	o.mu.Lock()
	evs := o.queue
	o.queue = nil
	o.mu.Unlock()

	for _, ev := range evs {
		ev(o.obs)
	}
}

// Deref returns the cell h refers to.
func (o *Orchestrator) Deref(h cell.Handle) (cell.Cell, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolveLocked(h)
}

// SetCar replaces the car of the Cons cell h.
func (o *Orchestrator) SetCar(h, v cell.Handle) error {
	return o.setField(h, v, true)
}

// SetCdr replaces the cdr of the Cons cell h.
func (o *Orchestrator) SetCdr(h, v cell.Handle) error {
	return o.setField(h, v, false)
}

func (o *Orchestrator) setField(h, v cell.Handle, car bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, err := o.resolveLocked(h)
	if err != nil {
		return err
	}
	if !c.IsCons() {
		return fmt.Errorf("%w: %s is %s", ErrNotCons, h, c.Kind())
	}
	if _, err := o.resolveLocked(v); err != nil {
		return err
	}

	old := c.Cdr()
	if car {
		old = c.Car()
		c = c.WithCar(v)
	} else {
		c = c.WithCdr(v)
	}
	// Deletion barrier: the overwritten edge was part of the snapshot.
	if o.phase == Tracing {
		o.tracer.Shade(old)
	}
	return o.arenas[h.Arena()].Store(h, c)
}

func (o *Orchestrator) resolveLocked(h cell.Handle) (cell.Cell, error) {
	if !h.Arena().Valid() {
		return cell.Cell{}, fmt.Errorf("%w: %s", arena.ErrForeignHandle, h)
	}
	return o.arenas[h.Arena()].Resolve(h)
}

func (o *Orchestrator) checkEdgesLocked(c cell.Cell) error {
	p, ok := c.Pair()
	if !ok {
		return nil
	}
	if _, err := o.resolveLocked(p.Car); err != nil {
		return err
	}
	_, err := o.resolveLocked(p.Cdr)
	return err
}

// State returns the current collector state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.halted {
		return HaltedForCollection
	}
	return o.phase
}

// Active returns the arena currently serving allocations.
func (o *Orchestrator) Active() cell.ArenaID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Capacity returns the number of slots per arena.
func (o *Orchestrator) Capacity() int {
	return o.arenas[cell.ArenaA].Capacity()
}

// Counters returns the event totals. It never takes the heap lock, so it is
// safe to poll while a cycle or a halted mutator holds it.
func (o *Orchestrator) Counters() Counters {
	return Counters{
		Cycles: o.counters.cycles.Load(),
		Halts:  o.counters.halts.Load(),
		Swaps:  o.counters.swaps.Load(),
	}
}

// Stats returns a snapshot of both arenas and the cycle counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Stats{
		Active:    o.active,
		State:     o.phase,
		Counters:  o.Counters(),
		LastCycle: o.last,
	}
	if o.halted {
		s.State = HaltedForCollection
	}
	for id, a := range o.arenas {
		s.Arenas[id] = a.Stats()
	}
	return s
}
