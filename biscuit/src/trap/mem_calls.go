package trap

import (
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/mem"
	"pebble/biscuit/src/proc"
	"pebble/biscuit/src/vm"
)

/// NewPages maps length bytes of fresh, demand-zero memory at the
/// user-chosen address addr (spec.md 6, new_pages). addr and length
/// must be page aligned and must not overlap any region the task
/// already has mapped.
func (s *Sys_t) NewPages(self *proc.Tcb_t, addr uintptr, length int) defs.Err_t {
	pgsize := uintptr(mem.PGSIZE)
	if length <= 0 || addr == 0 || addr%pgsize != 0 || uintptr(length)%pgsize != 0 {
		return -1
	}
	as := self.Task.Vm
	for va := addr; va < addr+uintptr(length); va += pgsize {
		if _, ok := as.GetAttrs(va); ok {
			return -1
		}
	}
	as.AddAnon(addr, uintptr(length), vm.PTE_W)
	return 0
}

/// RemovePages unmaps the region starting exactly at addr (spec.md 6,
/// remove_pages).
func (s *Sys_t) RemovePages(self *proc.Tcb_t, addr uintptr) defs.Err_t {
	return abi1(self.Task.Vm.RemovePages(addr))
}
