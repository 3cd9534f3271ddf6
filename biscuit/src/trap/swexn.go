package trap

import (
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/proc"
	"pebble/biscuit/src/vm"
)

const (
	eflagsReservedOn = 1 << 1 // bit 1 of eflags is architecturally always set
	eflagsIOPL       = 0x3000
	eflagsRF         = 1 << 16
)

// validateUreg rejects a register frame a thread hands back through
// swexn if it would grant it privilege it shouldn't have (spec.md 4.K:
// "the kernel validates segment selectors, EFLAGS (IOPL/RF/reserved
// bits)").
func validateUreg(u *defs.Ureg_t) defs.Err_t {
	if u.Eflags&eflagsIOPL != 0 {
		return -defs.EINVAL
	}
	if u.Eflags&eflagsRF != 0 {
		return -defs.EINVAL
	}
	if u.Eflags&eflagsReservedOn == 0 {
		return -defs.EINVAL
	}
	if u.Cs == 0 || u.Ss == 0 || u.Ds == 0 || u.Es == 0 {
		return -defs.EINVAL
	}
	return 0
}

// userExecutable reports whether va lies in a user-accessible region
// of self's address space -- this kernel tracks no separate
// no-execute bit (spec.md 4.D's PTE vocabulary is P/W/U only), so
// "executable" here means "mapped and user readable".
func userExecutable(self *proc.Tcb_t, va uintptr) bool {
	vmi, ok := self.Task.Vm.GetAttrs(va)
	return ok && vmi.Perms&vm.PTE_U != 0
}

// userWritable reports whether va lies in a writable user region.
func userWritable(self *proc.Tcb_t, va uintptr) bool {
	vmi, ok := self.Task.Vm.GetAttrs(va)
	return ok && vmi.Perms&vm.PTE_W != 0
}

/// Swexn registers, deregisters, or replaces self's user exception
/// handler, and optionally adopts a caller-supplied register frame
/// (spec.md 6, swexn; 4.K's handler protocol). eip == 0 deregisters;
/// otherwise (espTop, eip, arg) becomes the new one-shot handler
/// triple, replacing any previously registered. If newureg is non-nil
/// it is validated and, on success, returned for the caller's trap
/// entry point to actually adopt -- this module computes the decision,
/// the real mode-switch belongs to whatever is driving the simulated
/// user thread (see DESIGN.md's context-switch note).
func (s *Sys_t) Swexn(self *proc.Tcb_t, espTop, eip, arg uintptr, newureg *defs.Ureg_t) (*defs.Ureg_t, defs.Err_t) {
	if eip == 0 {
		self.ClearExnHandler()
	} else {
		if !userExecutable(self, eip) || !userWritable(self, espTop) {
			return nil, -1
		}
		self.SetExnHandler(&proc.ExnHandler_t{EspTop: espTop, Entry: eip, Opaque: arg})
	}
	if newureg == nil {
		return nil, 0
	}
	if err := validateUreg(newureg); err != 0 {
		return nil, abi1(err)
	}
	if !userExecutable(self, uintptr(newureg.Eip)) || !userWritable(self, uintptr(newureg.Esp)) {
		return nil, -1
	}
	return newureg, 0
}

/// Misbehave is a no-op in this kernel: the original syscall toggled a
/// page-replacement stress-testing mode (spec.md's non-goals exclude
/// a pageable/swapped VM, so there is no policy left to toggle).
func (s *Sys_t) Misbehave(self *proc.Tcb_t, mode int) defs.Err_t {
	return 0
}
