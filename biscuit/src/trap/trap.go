// Package trap is the system-call and fault entry plane (spec.md 4.K):
// it is where a thread's request to fork, exec, wait, touch its
// address space, or talk to the console turns into calls against proc,
// vm and sched, and where a processor fault turns into either a
// resolved page fault, a delivery to a registered user exception
// handler, or a terminated task.
//
// The real kernel's entry stubs save a register frame, copy a packed
// argument block off the user stack through the validated-copy path
// (4.L), and invoke a C handler; this module has no assembly entry
// stubs to write (spec.md 1's non-goals exclude real-mode boot and
// inline assembly), so Sys_t's methods take already-decoded Go
// arguments and do their own pointer validation via vm.Vm_t's
// Userstr/Userreadn/K2user/User2k family. A harness driving simulated
// user threads calls those methods directly, and each method applies
// the ABI error convention of spec.md 6 itself (through abi1 or a
// literal -1) -- -2 for fork/exec's EAGAIN_THREADED, -1 for every
// other failure -- collapsing the richer defs.Err_t codes the proc/vm
// layers return.
//
// Grounded on original_source/kern/entry/syscall/syscalls.c (the
// syscall surface and argument signatures) and
// original_source/kern/entry/faults/faults.c (fault routing).
package trap

import (
	"pebble/biscuit/src/boundary"
	"pebble/biscuit/src/defs"
)

/// Sys_t bundles the collaborators the syscall/fault plane consumes
/// (spec.md 6, "Collaborator interfaces the core consumes"). trap
/// depends only on the boundary interfaces, never a concrete driver.
type Sys_t struct {
	Console boundary.Console
	Images  boundary.ImageTable

	// OnHalt, if set, is called instead of parking forever when a
	// thread calls Halt -- tests hook this to observe the call without
	// actually wedging the test goroutine.
	OnHalt func()
}

/// New returns a Sys_t wired to the given console and image table.
func New(console boundary.Console, images boundary.ImageTable) *Sys_t {
	return &Sys_t{Console: console, Images: images}
}

/// abi1 collapses any failure other than EAGAIN_THREADED to the
/// syscall ABI's -1 (spec.md 6, "Error conventions"). Success (0) and
/// EAGAIN_THREADED's own -2 pass through unchanged.
func abi1(err defs.Err_t) defs.Err_t {
	if err == 0 || err == defs.EAGAIN_THREADED {
		return err
	}
	return -1
}
