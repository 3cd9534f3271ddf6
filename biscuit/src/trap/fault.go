package trap

import (
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/proc"
)

/// FaultAction is what a thread's entry point must do after Fault
/// returns, the Go translation of faults.c's dispatch outcome (spec.md
/// 4.K, "Fault handlers route page faults to vm.page_fault and all
/// other faults to the user exception handler if installed, else
/// terminate the task").
type FaultAction int

const (
	// Resume means the fault was resolved (a ZFOD page fault) and the
	// faulting instruction should simply be retried.
	Resume FaultAction = iota
	// Deliver means a handler was registered and deregistered
	// one-shot; the caller must switch to Handler.Entry with Ureg on
	// top of the stack at Handler.EspTop, per spec.md 4.K's protocol.
	Deliver
	// Terminate means no handler was registered; every thread of the
	// task has been marked doomed with -2. Fault itself does not vanish
	// any thread.
	Terminate
)

/// FaultResult_t is Fault's verdict.
type FaultResult_t struct {
	Action  FaultAction
	Handler *proc.ExnHandler_t
	Ureg    *defs.Ureg_t
}

/// Fault routes a processor fault for the calling thread self (spec.md
/// 4.K). Page faults first try vm.Vm_t.PageFault (the ZFOD path);
/// every other cause, and any page fault PageFault can't resolve,
/// falls through to the one-shot user handler if one is registered,
/// else dooms the whole task.
func (s *Sys_t) Fault(self *proc.Tcb_t, ureg *defs.Ureg_t) FaultResult_t {
	if ureg.Cause == defs.TrapPageFault {
		if err := self.Task.Vm.PageFault(uintptr(ureg.Cr2), ureg.ErrorCode); err == 0 {
			return FaultResult_t{Action: Resume}
		}
	}
	if h, ok := self.TakeExnHandler(); ok {
		return FaultResult_t{Action: Deliver, Handler: h, Ureg: ureg}
	}
	proc.TaskVanish(self.Task, self.Tid(), -2)
	return FaultResult_t{Action: Terminate}
}
