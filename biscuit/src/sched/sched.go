// Package sched implements the preemptive round-robin thread scheduler,
// the timer-driven sleep queue, and the blocking synchronization
// primitives built on top of them (spec.md 4.F, 4.G, 4.H). It is
// translated from original_source/kern/sched/sched.c's raw_block/
// sched_spin_unlock_and_block/raw_unblock/schedule, in the naming and
// locking-discipline idiom biscuit/src/mem and biscuit/src/vm already
// establish for this repo.
//
// Mutex_t/Cvar_t/Sema_t (spec.md 4.G) live here rather than in lock
// because they are built directly on Block/Unblock: putting them in
// lock, which sched already depends on for the lock.Ticket_t spin
// guards inside Mutex_t and Sema_t, would create an import cycle.
package sched

import (
	"context"
	"runtime"
	"sync"

	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/list"
)

/// Runnable is anything the scheduler can run: proc.Tcb_t implements
/// this so sched never needs to import proc (which itself imports
/// sched to block/unblock its threads).
type Runnable interface {
	Tid() defs.Tid_t
}

type state_t int

const (
	runnable state_t = iota
	running
	blocked
	sleeping
)

type entry_t struct {
	tid    defs.Tid_t
	r      Runnable
	state  state_t
	wake   chan struct{}
	wakeAt uint64
	node   *list.Node[*entry_t]

	// descheduled and pendingRunnable implement Deschedule/MakeRunnable's
	// atomic handshake (spec.md 6, deschedule/make_runnable): a
	// MakeRunnable that arrives before the matching Deschedule must not
	// be lost, so it latches into pendingRunnable instead.
	descheduled    bool
	pendingRunnable bool
}

/// Sched_t is the global scheduler: a FIFO run queue plus a tick-ordered
/// sleep queue, guarded by the sync.Mutex mu (spec.md 5's "scheduler
/// interrupt-off region", modeled here as the innermost lock in the
/// hierarchy since this kernel has no real interrupt-disable primitive
/// to model alongside it).
type Sched_t struct {
	mu sync.Mutex

	runq    *list.List[*entry_t]
	entries map[defs.Tid_t]*entry_t
	sleepq  *list.List[*entry_t]

	ticks uint64
}

/// globalSched is the single scheduler instance; spec.md's kernel is
/// single-CPU, so one scheduler suffices (spec.md 1, "Non-goals:
/// SMP/multi-core").
var globalSched = newSched()

func newSched() *Sched_t {
	return &Sched_t{
		runq:    list.New[*entry_t](),
		entries: make(map[defs.Tid_t]*entry_t),
		sleepq:  list.New[*entry_t](),
	}
}

/// Default returns the kernel's single scheduler instance.
func Default() *Sched_t { return globalSched }

/// Register adds r to the run queue as newly runnable. It must be
/// called once per thread before Block/Unblock/Sleep is ever called
/// for that thread's tid (spec.md 4.F, thread creation).
func (s *Sched_t) Register(r Runnable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry_t{tid: r.Tid(), r: r, state: runnable, wake: make(chan struct{}, 1)}
	e.node = s.runq.PushBack(e)
	s.entries[e.tid] = e
}

/// Deregister removes tid from the scheduler entirely, for thread exit
/// (spec.md 4.I, vanish). It is a no-op if tid is unknown.
func (s *Sched_t) Deregister(tid defs.Tid_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tid]
	if !ok {
		return
	}
	if e.node != nil {
		e.node.Extract()
	}
	delete(s.entries, tid)
}

// raw_block is original_source/kern/sched/sched.c's raw_block: remove
// tid from the runnable queue and mark it blocked. Caller holds s.mu.
func (s *Sched_t) rawBlock(tid defs.Tid_t) *entry_t {
	e, ok := s.entries[tid]
	if !ok {
		panic("sched: block of unregistered thread")
	}
	if e.state != runnable && e.state != running {
		panic("sched: block of already-blocked thread")
	}
	if e.node != nil {
		e.node.Extract()
		e.node = nil
	}
	e.state = blocked
	return e
}

// raw_unblock is sched.c's raw_unblock: re-enqueue tid at the back of
// the run queue. Caller holds s.mu.
func (s *Sched_t) rawUnblock(e *entry_t) {
	if e.state == runnable {
		return
	}
	e.state = runnable
	e.node = s.runq.PushBack(e)
}

/// Block removes the calling thread (identified by tid) from the run
/// queue and parks it until a matching Unblock, the Go-channel
/// translation of sched.c's sched_block (spec.md 4.F). It returns once
/// woken.
func (s *Sched_t) Block(tid defs.Tid_t) {
	s.DoAndBlock(tid, nil)
}

/// DoAndBlock atomically runs unlock (if non-nil) and blocks the
/// calling thread, the Go translation of sched_spin_unlock_and_block /
/// sched_mutex_unlock_and_block: "enqueue on a wait list, release the
/// guarding lock, then block" must be atomic with respect to a
/// concurrent Unblock (spec.md 5, "Locking discipline"). Because this
/// kernel models block/wake with a buffered channel rather than a
/// raw context switch, the atomicity is provided by taking the
/// scheduler's own lock before running unlock, not by disabling
/// interrupts.
func (s *Sched_t) DoAndBlock(tid defs.Tid_t, unlock func()) {
	s.mu.Lock()
	if unlock != nil {
		unlock()
	}
	e := s.rawBlock(tid)
	s.mu.Unlock()
	<-e.wake
}

/// Unblock makes tid eligible for CPU time again, the Go translation of
/// sched_unblock (spec.md 4.F). It is safe to call from any thread,
/// including before the target has called Block (the wake is latched
/// in a buffered channel, so Unblock never itself blocks).
func (s *Sched_t) Unblock(tid defs.Tid_t) {
	s.mu.Lock()
	e, ok := s.entries[tid]
	if !ok {
		s.mu.Unlock()
		return
	}
	wasBlocked := e.state == blocked || e.state == sleeping
	s.rawUnblock(e)
	s.mu.Unlock()
	if wasBlocked {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
}

/// Tick advances the scheduler's logical clock by one and wakes every
/// thread whose sleep deadline has passed, the Go translation of the
/// timer-interrupt handler's sleep-queue drain (spec.md 4.H). It is
/// called once per timer interrupt.
func (s *Sched_t) Tick() {
	s.mu.Lock()
	s.ticks++
	now := s.ticks
	var wake []*entry_t
	for n := s.sleepq.Front(); n != nil; {
		next := n.Next()
		e := n.Value
		if e.wakeAt <= now {
			n.Extract()
			s.rawUnblock(e)
			wake = append(wake, e)
		}
		n = next
	}
	s.mu.Unlock()
	for _, e := range wake {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
}

/// Deschedule makes the calling thread tid ineligible for scheduling
/// until a matching MakeRunnable, the Go translation of the
/// deschedule/make_runnable syscall pair (spec.md 6). If a MakeRunnable
/// for tid already arrived (latched in pendingRunnable), Deschedule
/// consumes it and returns immediately without blocking -- the atomic
/// handshake the pair's doc comment requires, since the caller reads
/// its reject flag and may lose the race against a concurrent
/// MakeRunnable otherwise.
func (s *Sched_t) Deschedule(tid defs.Tid_t) {
	s.mu.Lock()
	e, ok := s.entries[tid]
	if !ok {
		s.mu.Unlock()
		return
	}
	if e.pendingRunnable {
		e.pendingRunnable = false
		s.mu.Unlock()
		return
	}
	e.descheduled = true
	e2 := s.rawBlock(tid)
	s.mu.Unlock()
	<-e2.wake
}

/// MakeRunnable ends a deschedule for tid, waking it if it is currently
/// descheduled, or latching the request if Deschedule has not been
/// called yet. It reports whether tid is a known thread.
func (s *Sched_t) MakeRunnable(tid defs.Tid_t) bool {
	s.mu.Lock()
	e, ok := s.entries[tid]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if e.descheduled {
		e.descheduled = false
		s.rawUnblock(e)
		s.mu.Unlock()
		select {
		case e.wake <- struct{}{}:
		default:
		}
		return true
	}
	e.pendingRunnable = true
	s.mu.Unlock()
	return true
}

/// Now reports the scheduler's logical tick count.
func (s *Sched_t) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

/// Sleep blocks the calling thread until at least ticks timer ticks
/// have elapsed (spec.md 4.H). It returns once woken, either by the
/// deadline or (per spec.md's "a sleeping thread remains interruptible
/// by other wake sources") by an explicit Unblock.
func (s *Sched_t) Sleep(tid defs.Tid_t, ticks uint64) {
	s.mu.Lock()
	e := s.rawBlock(tid)
	e.state = sleeping
	e.wakeAt = s.ticks + ticks
	e.node = s.sleepq.PushBack(e)
	s.mu.Unlock()
	<-e.wake
}

/// Schedule is the translation of sched.c's schedule(): pick the thread
/// at the front of the run queue and report it as the next thread to
/// run, rotating it to the back (round robin, spec.md 4.F). In this
/// kernel each thread is already its own goroutine blocked on its own
/// wake channel, so Schedule's role is reduced to bookkeeping (fairness
/// accounting, "what would run next" queries from tests and
/// diagnostics) rather than an actual stack switch -- the Go runtime
/// does the real dispatch, the same abstraction boundary the teacher's
/// patched-runtime context switch sits behind (see DESIGN.md's "Context
/// switch without inline assembly").
func (s *Sched_t) Schedule() (defs.Tid_t, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.runq.Front()
	if n == nil {
		return 0, false
	}
	n.Extract()
	n.Value.node = s.runq.PushBack(n.Value)
	return n.Value.tid, true
}

/// RunnableCount reports how many threads are currently runnable, for
/// idle-loop / panic-on-deadlock diagnostics.
func (s *Sched_t) RunnableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runq.Len()
}

/// Known reports whether tid is a registered thread, for validating a
/// yield/make_runnable target before acting on it.
func (s *Sched_t) Known(tid defs.Tid_t) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[tid]
	return ok
}

/// Yield gives up the calling thread's remaining quantum, the Go
/// translation of the yield syscall (spec.md 6). This kernel's actual
/// dispatch is the Go runtime's own goroutine scheduler (see sched.go's
/// Schedule doc comment), so there is no kernel-level quantum to hand
/// to a specific target; runtime.Gosched offers the same "let someone
/// else run" cooperative point the syscall promises.
func (s *Sched_t) Yield() {
	runtime.Gosched()
}

type ctxkey struct{}

/// WithTid returns a context carrying tid as the current thread's
/// identity, the idiomatic-Go substitute for the teacher's
/// runtime.Setgptr (see DESIGN.md's "Current-thread lookup without a
/// patched runtime"). Nothing in this repository calls it: trap's
/// syscall and fault methods take the calling thread as an explicit
/// argument instead.
func WithTid(ctx context.Context, tid defs.Tid_t) context.Context {
	return context.WithValue(ctx, ctxkey{}, tid)
}

/// CurrentTid extracts the current thread's tid from ctx, panicking if
/// none was installed -- every code path that can reach here must have
/// gone through a trap entry point that called WithTid.
func CurrentTid(ctx context.Context) defs.Tid_t {
	tid, ok := ctx.Value(ctxkey{}).(defs.Tid_t)
	if !ok {
		panic("sched: no current thread in context")
	}
	return tid
}
