package defs

/// Syscall numbers for the trap plane's dispatch table (spec.md 6).
const (
	SYS_FORK Syscall_t = iota
	SYS_THREAD_FORK
	SYS_EXEC
	SYS_SET_STATUS
	SYS_VANISH
	SYS_TASK_VANISH
	SYS_WAIT
	SYS_GETTID
	SYS_YIELD
	SYS_DESCHEDULE
	SYS_MAKE_RUNNABLE
	SYS_GET_TICKS
	SYS_SLEEP
	SYS_NEW_PAGES
	SYS_REMOVE_PAGES
	SYS_GETCHAR
	SYS_READLINE
	SYS_PRINT
	SYS_SET_TERM_COLOR
	SYS_SET_CURSOR_POS
	SYS_GET_CURSOR_POS
	SYS_HALT
	SYS_READFILE
	SYS_SWEXN
	SYS_MISBEHAVE
)

/// Syscall_t is the trap-gate selector numbering the syscalls above.
type Syscall_t int

/// Ureg_t is the register frame delivered to a registered user
/// exception handler (spec.md 6, "ureg layout").
type Ureg_t struct {
	Cause Cause_t
	Cr2   uint32

	Ds, Es, Fs, Gs uint32

	Edi, Esi, Ebp, Zero uint32
	Ebx, Edx, Ecx, Eax  uint32

	ErrorCode uint32

	Eip    uint32
	Cs     uint32
	Eflags uint32
	Esp    uint32
	Ss     uint32
}

/// Cause_t identifies which IDT vector raised a fault.
type Cause_t uint32

/// Cause codes carried in Ureg_t.Cause, matching the IDT vector the
/// fault was raised through (spec.md 4.K).
const (
	TrapDivide            Cause_t = 0
	TrapPageFault         Cause_t = 14
	TrapInvalidOpcode     Cause_t = 6
	TrapGeneralProtection Cause_t = 13
	TrapBreakpoint        Cause_t = 3
)
