// Package proc implements the thread/task model and the fork, exec,
// vanish, wait and thread_fork life-cycle calls (spec.md 4.I, 4.J). It
// is grounded on original_source/kern/sched/process.c and
// kern/sched/thread.c for the shape of task_t/thread_t and their
// global-list/zombie-reaping protocol, and on biscuit/src/tinfo/tinfo.go
// for the per-thread killed/doomed bookkeeping -- with tinfo's
// runtime.Gptr/runtime.Setgptr current-thread lookup replaced by
// sched.WithTid/sched.CurrentTid, since that runtime hook belongs to the
// patched Go runtime this exercise's non-goals put out of scope.
package proc

import (
	"sync"

	"pebble/biscuit/src/accnt"
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/sched"
)

// Tcb_t is a thread control block: the per-thread state thread_t and
// tinfo.Tnote_t together describe. It implements sched.Runnable so the
// scheduler can run it without importing proc.
type Tcb_t struct {
	tid  defs.Tid_t
	Task *Task_t

	mu     sync.Mutex
	Alive  bool
	Killed bool
	doomed bool

	// Kerr is the error a killer wants this thread's next blocking
	// call to wake up and return, tinfo.Tnote_t.Killnaps.Kerr's
	// translation.
	Kerr defs.Err_t

	exn *ExnHandler_t

	Accnt accnt.Accnt_t
}

// ExnHandler_t is a registered user exception handler triple (spec.md
// 4.K, "A thread may register a triple (exn_stack_top, entry,
// opaque)").
type ExnHandler_t struct {
	EspTop uintptr
	Entry  uintptr
	Opaque uintptr
}

// SetExnHandler installs h as t's exception handler, replacing any
// handler already registered (the swexn syscall's register path).
func (t *Tcb_t) SetExnHandler(h *ExnHandler_t) {
	t.mu.Lock()
	t.exn = h
	t.mu.Unlock()
}

// ClearExnHandler deregisters t's exception handler (the swexn
// syscall's deregister path: called when eip is 0).
func (t *Tcb_t) ClearExnHandler() {
	t.mu.Lock()
	t.exn = nil
	t.mu.Unlock()
}

// TakeExnHandler atomically removes and returns t's registered
// exception handler, or (nil, false) if none is registered. A fault
// handler calls this rather than peeking, since the protocol is
// one-shot: delivering a fault to the handler deregisters it, and the
// handler must explicitly re-register itself if it wants another
// delivery (spec.md 4.K).
func (t *Tcb_t) TakeExnHandler() (*ExnHandler_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.exn
	t.exn = nil
	return h, h != nil
}

// Tid reports the thread's id, satisfying sched.Runnable.
func (t *Tcb_t) Tid() defs.Tid_t { return t.tid }

// Doomed reports whether the thread has been marked for forced exit,
// tinfo.Tnote_t.Doomed's translation. A doomed thread must unwind to
// vanish at its next chance rather than resume user mode.
func (t *Tcb_t) Doomed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doomed
}

// MarkDoomed flags the thread as doomed and records the error its next
// blocking wait should observe, then wakes it if it is currently
// blocked so it notices promptly (spec.md 4.F, "Cancellation").
func (t *Tcb_t) MarkDoomed(err defs.Err_t) {
	t.mu.Lock()
	t.Killed = true
	t.doomed = true
	t.Kerr = err
	t.mu.Unlock()
	sched.Default().Unblock(t.tid)
}
