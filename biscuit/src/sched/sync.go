package sched

import (
	"sync"

	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/lock"
)

/// Mutex_t is a blocking mutual-exclusion lock: contended acquirers
/// block rather than spin (spec.md 4.G). Translated from
/// original_source/kern/lib/mutex.c's mutex_lock/mutex_unlock: the wait
/// list is itself guarded by a ticket spinlock (component A), and
/// release hands ownership directly to the next waiter rather than
/// reopening the lock to all comers, preserving that FIFO order.
type Mutex_t struct {
	spin   lock.Ticket_t
	owner  defs.Tid_t
	locked bool
	waitq  []defs.Tid_t
	s      *Sched_t
}

/// NewMutex returns an unlocked mutex bound to the default scheduler.
func NewMutex() *Mutex_t {
	return &Mutex_t{s: Default()}
}

/// Lock acquires the mutex, blocking the calling thread tid if it is
/// already held.
func (m *Mutex_t) Lock(tid defs.Tid_t) {
	m.spin.Acquire(tid)
	if !m.locked {
		m.locked = true
		m.owner = tid
		m.spin.Release(tid)
		return
	}
	m.waitq = append(m.waitq, tid)
	m.s.DoAndBlock(tid, func() { m.spin.Release(tid) })
}

/// Unlock releases the mutex, handing it directly to the next waiter
/// if one exists (mutex_unlock_internal's "set the new owner, then
/// wake them" sequencing) or marking it free otherwise. It panics if
/// called by a thread other than the current owner.
func (m *Mutex_t) Unlock(tid defs.Tid_t) {
	m.spin.Acquire(tid)
	if !m.locked || m.owner != tid {
		m.spin.Release(tid)
		panic("sched: mutex unlock by non-owner")
	}
	if len(m.waitq) > 0 {
		next := m.waitq[0]
		m.waitq = m.waitq[1:]
		m.owner = next
		m.spin.Release(tid)
		m.s.Unblock(next)
		return
	}
	m.locked = false
	m.owner = 0
	m.spin.Release(tid)
}

/// Cvar_t is a condition variable used together with a Mutex_t (spec.md
/// 4.G). Translated from original_source/kern/lib/cvar.c's
/// cvar_wait/cvar_signal/cvar_broadcast.
type Cvar_t struct {
	mu    sync.Mutex
	waitq []defs.Tid_t
	s     *Sched_t
}

/// NewCvar returns a condition variable bound to the default scheduler.
func NewCvar() *Cvar_t {
	return &Cvar_t{s: Default()}
}

/// Wait atomically unlocks m, blocks tid until Signal/Broadcast wakes
/// it, then reacquires m before returning -- cvar_wait's contract
/// exactly.
func (cv *Cvar_t) Wait(tid defs.Tid_t, m *Mutex_t) {
	cv.mu.Lock()
	cv.waitq = append(cv.waitq, tid)
	cv.mu.Unlock()

	cv.s.DoAndBlock(tid, func() { m.Unlock(tid) })

	m.Lock(tid)
}

/// Signal wakes one thread waiting on cv, if any (cvar_signal).
func (cv *Cvar_t) Signal() {
	cv.mu.Lock()
	if len(cv.waitq) == 0 {
		cv.mu.Unlock()
		return
	}
	tid := cv.waitq[0]
	cv.waitq = cv.waitq[1:]
	cv.mu.Unlock()
	cv.s.Unblock(tid)
}

/// Broadcast wakes every thread waiting on cv (cvar_broadcast).
func (cv *Cvar_t) Broadcast() {
	cv.mu.Lock()
	waiters := cv.waitq
	cv.waitq = nil
	cv.mu.Unlock()
	for _, tid := range waiters {
		cv.s.Unblock(tid)
	}
}

/// Sema_t is a counting semaphore (spec.md 4.G), built the same way as
/// Mutex_t: a spinlock-guarded counter and FIFO wait list.
type Sema_t struct {
	spin  lock.Ticket_t
	count int
	waitq []defs.Tid_t
	s     *Sched_t
}

/// NewSema returns a semaphore initialized to count.
func NewSema(count int) *Sema_t {
	return &Sema_t{count: count, s: Default()}
}

/// P decrements the semaphore, blocking tid if the count would go
/// negative.
func (sm *Sema_t) P(tid defs.Tid_t) {
	sm.spin.Acquire(tid)
	if sm.count > 0 {
		sm.count--
		sm.spin.Release(tid)
		return
	}
	sm.waitq = append(sm.waitq, tid)
	sm.s.DoAndBlock(tid, func() { sm.spin.Release(tid) })
}

/// V increments the semaphore, waking one blocked waiter if any.
func (sm *Sema_t) V(tid defs.Tid_t) {
	sm.spin.Acquire(tid)
	if len(sm.waitq) > 0 {
		next := sm.waitq[0]
		sm.waitq = sm.waitq[1:]
		sm.spin.Release(tid)
		sm.s.Unblock(next)
		return
	}
	sm.count++
	sm.spin.Release(tid)
}
