package trap

import (
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/proc"
)

/// Fork creates a child task duplicating self's address space (spec.md
/// 6, fork). Only EAGAIN_THREADED (-2) passes through unmapped; every
/// other failure collapses to the ABI's -1.
func (s *Sys_t) Fork(self *proc.Tcb_t) (defs.Pid_t, defs.Err_t) {
	pid, err := proc.Fork(self)
	if err != 0 {
		return 0, abi1(err)
	}
	return pid, 0
}

/// ThreadFork allocates a peer thread in self's task (spec.md 6,
/// thread_fork).
func (s *Sys_t) ThreadFork(self *proc.Tcb_t) (defs.Tid_t, defs.Err_t) {
	return proc.ThreadFork(self), 0
}

/// SetStatus stores status as self's task's exit status (spec.md 6,
/// set_status).
func (s *Sys_t) SetStatus(self *proc.Tcb_t, status int) {
	proc.SetStatus(self, status)
}

/// Vanish retires the calling thread (spec.md 6, vanish). It never
/// returns to a live caller.
func (s *Sys_t) Vanish(self *proc.Tcb_t) {
	proc.Vanish(self, false)
}

/// TaskVanish stores status as self's task's exit status and marks
/// every thread in the task doomed (spec.md 6, task_vanish). The threads
/// are not terminated here; each vanishes only when it calls Vanish.
func (s *Sys_t) TaskVanish(self *proc.Tcb_t, status int) {
	proc.SetStatus(self, status)
	proc.TaskVanish(self.Task, self.Tid(), defs.Err_t(status))
}

/// Wait reaps one dead child of self's task (spec.md 6, wait).
func (s *Sys_t) Wait(self *proc.Tcb_t) (defs.Pid_t, int, defs.Err_t) {
	pid, status, err := proc.Wait(self)
	if err != 0 {
		return 0, 0, abi1(err)
	}
	return pid, status, 0
}
