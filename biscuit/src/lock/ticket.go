package lock

import "pebble/biscuit/src/defs"

// Ticket_t is a Lamport ticket lock: FIFO, spin-only, never blocks.
// Used around short critical sections with preemption disabled (spec.md
// 4.A). The owner field is debug-only bookkeeping, mirroring the
// teacher's habit of stashing an owning id next to every lock
// (biscuit/src/accnt's embedded sync.Mutex, biscuit/src/vm's Vm_t.Lock)
// for assert-on-release checks.
type Ticket_t struct {
	ticket  uint32
	serving uint32
	owner   defs.Tid_t
}

// Acquire spins until this caller's ticket is being served.
func (t *Ticket_t) Acquire(self defs.Tid_t) {
	my := FetchAdd32(&t.ticket, 1)
	for Load32(&t.serving) != my {
	}
	t.owner = self
}

// Release advances the serving counter, handing the lock to the next
// ticket holder in FIFO order. It panics if called by a thread other
// than the current owner (spec.md 4.A, "assert(owner == self)").
func (t *Ticket_t) Release(self defs.Tid_t) {
	if t.owner != self {
		panic("ticket lock: release by non-owner")
	}
	t.owner = 0
	FetchAdd32(&t.serving, 1)
}

// Owner reports the thread currently holding the lock, for debugging.
func (t *Ticket_t) Owner() defs.Tid_t {
	return t.owner
}
