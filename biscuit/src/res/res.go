// Package res provides non-blocking admission control against a global
// kernel-heap ceiling. Bounded loops in vm and trap call
// Resadd_noblock before each chunk of work; when the ceiling is
// exhausted the caller gets back a failure it can surface as ENOHEAP
// rather than spinning or blocking with interrupts disabled (spec.md 5).
package res

import "sync/atomic"

// ceiling is the total admission units available. It is sized generously
// relative to the frame pool so that well-behaved callers practically
// never see exhaustion; it exists to give ENOHEAP a real, testable
// trigger rather than to model a precise heap budget.
var ceiling int64 = 1 << 28

var inUse int64

// Resadd_noblock admits n units against the ceiling without blocking.
// It returns false, admitting nothing, if the ceiling would be
// exceeded.
func Resadd_noblock(n uint) bool {
	want := int64(n)
	for {
		cur := atomic.LoadInt64(&inUse)
		if cur+want > atomic.LoadInt64(&ceiling) {
			return false
		}
		if atomic.CompareAndSwapInt64(&inUse, cur, cur+want) {
			return true
		}
	}
}

// Resdel returns n previously admitted units to the pool.
func Resdel(n uint) {
	atomic.AddInt64(&inUse, -int64(n))
}

// SetCeiling reconfigures the admission ceiling; used by tests to
// exercise the ENOHEAP path deterministically.
func SetCeiling(n int64) {
	atomic.StoreInt64(&ceiling, n)
}

// InUse reports current admitted units, for diagnostics.
func InUse() int64 {
	return atomic.LoadInt64(&inUse)
}
