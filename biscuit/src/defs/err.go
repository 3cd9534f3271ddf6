package defs

/// Err_t is a kernel error code: zero on success, a small negative
/// integer on failure. Never panics across a syscall boundary -- see
/// trap for the kernel-invariant/panic split.
type Err_t int

// Error codes returned to user space, in the teacher's convention:
// positive magnitudes here, negated at the syscall return site (e.g.
// "return -defs.EFAULT"), so a caller-visible error is always a
// negative Err_t and success is always zero (spec.md 6, "Error
// conventions"). EAGAIN_THREADED is the one negative-valued constant in
// this block: fork/exec use it directly, unnegated, when the caller's
// task has more than one live thread.
const (
	EPERM           Err_t = 1
	ENOENT          Err_t = 2
	ESRCH           Err_t = 3
	EINTR           Err_t = 4
	EFAULT          Err_t = 14
	ECHILD          Err_t = 10
	EAGAIN_THREADED Err_t = -2
	ENOMEM          Err_t = 12
	EINVAL          Err_t = 22
	ENAMETOOLONG    Err_t = 36
	ENOHEAP         Err_t = 100
	ENOVMA          Err_t = 101
)

/// Tid_t identifies a thread. Globally unique and monotonically
/// increasing (spec.md 3, "TCB (thread)").
type Tid_t int

/// Pid_t identifies a task. Equal to the id of its original thread
/// (spec.md 3, "Task").
type Pid_t int

/// KilledByKernel is the sticky exit status latched onto a task whose
/// last thread was killed rather than having vanished voluntarily
/// (spec.md 9, "status of killed last thread").
const KilledByKernel = -2

/// InitPid is the distinguished init task that inherits orphaned
/// children (spec.md 3, "Task").
const InitPid Pid_t = 1
