// Package lock implements the kernel's low-level synchronization
// primitives: the atomics and ticket spinlock of spec.md 4.A. It is a
// dependency-free leaf package; the blocking mutex/condition
// variable/semaphore of spec.md 4.G live in sched instead, since they
// are built on top of sched's block/unblock machinery (spec.md's own
// component table describes G as "built on F and A") and putting them
// here would make lock depend on sched while sched already depends on
// lock for the Ticket_t spin guards inside Mutex_t and Sema_t.
package lock

import "sync/atomic"

// FetchAdd32 atomically adds delta to *p and returns the prior value,
// with full fence semantics (spec.md 4.A).
func FetchAdd32(p *uint32, delta uint32) uint32 {
	return atomic.AddUint32(p, delta) - delta
}

// CompareAndSwap32 atomically sets *p to new if *p == old, returning
// whether the swap took place.
func CompareAndSwap32(p *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(p, old, new)
}

// Load32 atomically reads *p.
func Load32(p *uint32) uint32 {
	return atomic.LoadUint32(p)
}
