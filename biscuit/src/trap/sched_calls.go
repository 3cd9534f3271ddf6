package trap

import (
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/proc"
	"pebble/biscuit/src/sched"
)

/// Gettid reports the calling thread's id (spec.md 6, gettid).
func (s *Sys_t) Gettid(self *proc.Tcb_t) defs.Tid_t {
	return self.Tid()
}

/// Yield gives up the remainder of the calling thread's quantum
/// (spec.md 6, yield). target == -1 means "yield to anyone"; any other
/// target must be a thread the scheduler knows, else Yield returns -1.
/// The yield itself is not directed at target: it is the scheduler's
/// undirected Yield either way.
func (s *Sys_t) Yield(self *proc.Tcb_t, target defs.Tid_t) defs.Err_t {
	if target != -1 && !sched.Default().Known(target) {
		return -1
	}
	sched.Default().Yield()
	return 0
}

/// Deschedule reads the reject flag at rejectVA; if it is non-zero it
/// returns immediately, otherwise it blocks the calling thread until a
/// matching MakeRunnable (spec.md 6, deschedule).
func (s *Sys_t) Deschedule(self *proc.Tcb_t, rejectVA uintptr) defs.Err_t {
	val, err := self.Task.Vm.Userreadn(rejectVA, 4)
	if err != 0 {
		return abi1(err)
	}
	if val != 0 {
		return 0
	}
	sched.Default().Deschedule(self.Tid())
	return 0
}

/// MakeRunnable ends a deschedule for target (spec.md 6,
/// make_runnable).
func (s *Sys_t) MakeRunnable(self *proc.Tcb_t, target defs.Tid_t) defs.Err_t {
	if !sched.Default().MakeRunnable(target) {
		return -1
	}
	return 0
}

/// GetTicks reports the scheduler's logical tick count (spec.md 6,
/// get_ticks).
func (s *Sys_t) GetTicks(self *proc.Tcb_t) uint32 {
	return uint32(sched.Default().Now())
}

/// Sleep blocks the calling thread for at least ticks timer ticks
/// (spec.md 6, sleep). A sleep of zero ticks returns immediately.
func (s *Sys_t) Sleep(self *proc.Tcb_t, ticks uint32) defs.Err_t {
	if ticks == 0 {
		return 0
	}
	sched.Default().Sleep(self.Tid(), uint64(ticks))
	return 0
}
