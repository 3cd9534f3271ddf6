package trap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pebble/biscuit/src/boundary"
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/mem"
	"pebble/biscuit/src/proc"
	"pebble/biscuit/src/vm"
)

// TestAbi1 is a table-driven check of the syscall ABI error collapse
// (spec.md 6, "Error conventions"): fork/exec's EAGAIN_THREADED passes
// through untouched, success passes through untouched, and every other
// internal Err_t collapses to -1.
func TestAbi1(t *testing.T) {
	cases := []struct {
		name string
		in   defs.Err_t
		want defs.Err_t
	}{
		{"success", 0, 0},
		{"eagain_threaded passes through", defs.EAGAIN_THREADED, defs.EAGAIN_THREADED},
		{"efault collapses", -defs.EFAULT, -1},
		{"enomem collapses", -defs.ENOMEM, -1},
		{"echild collapses", -defs.ECHILD, -1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, abi1(c.in))
		})
	}
}

func newTestSys() (*Sys_t, *proc.Tcb_t) {
	mem.Phys_init(256)
	self := proc.Bootstrap()
	return New(&boundary.MemConsole{}, boundary.NewMemImageTable(nil)), self
}

// TestSwexnOneShotDelivery is spec.md 8's literal swexn scenario: a
// registered handler is delivered exactly once per fault, and a second
// fault after the handler fires (without re-registering) terminates the
// task instead of delivering again.
func TestSwexnOneShotDelivery(t *testing.T) {
	sys, self := newTestSys()
	as := self.Task.Vm

	handlerVA := uintptr(0x08048000)
	stackVA := uintptr(0x08049000)
	as.AddAnon(handlerVA, uintptr(mem.PGSIZE), vm.PTE_U)
	as.AddAnon(stackVA, uintptr(mem.PGSIZE), vm.PTE_U|vm.PTE_W)

	_, err := sys.Swexn(self, stackVA, handlerVA, 0, nil)
	require.Zero(t, err)

	ureg := &defs.Ureg_t{Cause: defs.TrapDivide}
	result := sys.Fault(self, ureg)
	require.Equal(t, Deliver, result.Action)
	require.NotNil(t, result.Handler)
	require.Equal(t, handlerVA, result.Handler.Entry)
	require.Equal(t, stackVA, result.Handler.EspTop)

	second := sys.Fault(self, &defs.Ureg_t{Cause: defs.TrapDivide})
	require.Equal(t, Terminate, second.Action)
}

// TestFaultResolvesZFODPageFault is spec.md 8's boundary behavior: a
// page fault on a ZFOD mapping converts it in place and the caller is
// simply told to resume, never routed to a user handler.
func TestFaultResolvesZFODPageFault(t *testing.T) {
	sys, self := newTestSys()
	as := self.Task.Vm
	base := uintptr(0x50000000)
	as.AddAnon(base, uintptr(mem.PGSIZE), vm.PTE_U|vm.PTE_W)

	ureg := &defs.Ureg_t{Cause: defs.TrapPageFault, Cr2: uint32(base), ErrorCode: vm.PTE_U | vm.PTE_W}
	result := sys.Fault(self, ureg)
	require.Equal(t, Resume, result.Action)
}

// TestFaultTerminatesWithoutHandler is spec.md 4.K's fallback: a fault
// with no registered handler dooms the task instead of delivering
// anywhere.
func TestFaultTerminatesWithoutHandler(t *testing.T) {
	sys, self := newTestSys()
	result := sys.Fault(self, &defs.Ureg_t{Cause: defs.TrapInvalidOpcode})
	require.Equal(t, Terminate, result.Action)
}
