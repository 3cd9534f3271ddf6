// Package accnt tracks per-task CPU usage (spec.md 3, "Task" -- the
// accounting a wait4-style reap hands back to the parent). Grounded on
// biscuit/src/accnt/accnt.go, trimmed to the two counters proc.Task_t
// actually needs: user and system nanoseconds.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"pebble/biscuit/src/util"
)

// Accnt_t accumulates one task's CPU usage. Userns and Sysns are
// nanoseconds; the embedded mutex lets Add/Snapshot take a consistent
// view while Utadd/Systadd stay lock-free on the hot path (every
// syscall entry/exit).
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds of user time.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

// Systadd adds delta nanoseconds of system time. delta may be negative
// (Io_time/Sleep_time use this to back out wait time that would
// otherwise be charged as system time).
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

// Now is the accounting clock: wall-clock nanoseconds since the Unix
// epoch. A single-CPU kernel has no need of a cheaper monotonic source.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

// Io_time backs out time spent blocked on I/O, measured from since
// (an Accnt_t.Now() timestamp taken before the wait), from system time.
func (a *Accnt_t) Io_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Sleep_time backs out time spent in sched.Sched_t.Sleep from system
// time, the same adjustment Io_time makes for blocking I/O.
func (a *Accnt_t) Sleep_time(since int) {
	a.Systadd(-(a.Now() - since))
}

// Finish charges the time since inttime (an Now() timestamp taken at
// syscall/fault entry) to system time. Called once per trap exit.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

// Add merges a dying thread's counters into its task's running total,
// for proc.Task_t.reapDeadThread.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}

// Snapshot returns a consistent (user, sys) pair in nanoseconds, for
// cmd/kernel's shutdown summary.
func (a *Accnt_t) Snapshot() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}

// Fetch returns the same data as Snapshot encoded as a wire-format
// rusage record (two {sec,usec} timeval pairs), for the getrusage-style
// syscall response.
func (a *Accnt_t) Fetch() []uint8 {
	u, s := a.Snapshot()
	words := 4
	ret := make([]uint8, words*8)
	totv := func(nano int64) (int, int) {
		secs := int(nano / 1e9)
		usecs := int((nano % 1e9) / 1000)
		return secs, usecs
	}
	off := 0
	sec, usec := totv(u)
	util.Writen(ret, 8, off, sec)
	off += 8
	util.Writen(ret, 8, off, usec)
	off += 8
	sec, usec = totv(s)
	util.Writen(ret, 8, off, sec)
	off += 8
	util.Writen(ret, 8, off, usec)
	return ret
}
