// Package bounds supplies the fixed per-call-site iteration budgets
// consumed by res.Resadd_noblock. Every loop that can run with
// interrupts disabled or that touches kernel heap must be bounded
// (spec.md 5, "Interrupt-off regions are bounded; no unbounded loops nor
// malloc with interrupts off") -- this package is the lookup table of
// "how much is this call site allowed to take at once", the same role
// the teacher's vm package gives it at each of its own bounded loops
// (biscuit/src/vm/as.go's K2user_inner/User2k_inner,
// biscuit/src/vm/userbuf.go's Userbuf_t._tx/Useriovec_t._tx/Iov_init).
package bounds

// Bound identifies a call site requesting an iteration budget.
type Bound int

// Call sites that must check a budget before doing unbounded-looking
// work. Named after the type and method they guard, matching the
// teacher's B_ASPACE_T_K2USER_INNER / B_USERBUF_T__TX naming.
const (
	B_VM_T_K2USER_INNER Bound = iota
	B_VM_T_USER2K_INNER
	B_VM_T_COPY
	B_USERBUF_T__TX
	B_USERIOVEC_T__TX
	B_USERIOVEC_T_IOV_INIT
	B_TRAP_T_COPYARGV
)

// perCallBudget is how many units (bytes, pages, or iovecs, depending on
// the call site) a single Resadd_noblock request may ask for at once.
var perCallBudget = map[Bound]uint{
	B_VM_T_K2USER_INNER:    4096,
	B_VM_T_USER2K_INNER:    4096,
	B_VM_T_COPY:            1,
	B_USERBUF_T__TX:        4096,
	B_USERIOVEC_T__TX:      4096,
	B_USERIOVEC_T_IOV_INIT: 1,
	B_TRAP_T_COPYARGV:      256,
}

// Bounds returns the admission request a caller at site b should make
// of res.Resadd_noblock for one iteration of its loop.
func Bounds(b Bound) uint {
	n, ok := perCallBudget[b]
	if !ok {
		panic("bounds: unregistered call site")
	}
	return n
}
