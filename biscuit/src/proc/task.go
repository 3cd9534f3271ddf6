package proc

import (
	"pebble/biscuit/src/accnt"
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/sched"
	"pebble/biscuit/src/vm"
)

// deadChild_t is a zombie record: just enough for a waiting parent to
// report a status, mirroring process.c's mini_pcb_s (a small struct
// kept separate from the full task_t so a zombie's heavier state can be
// dropped immediately at vanish rather than lingering until reaped).
type deadChild_t struct {
	Pid    defs.Pid_t
	Status int
}

// Task_t is a task: one or more threads sharing an address space
// (spec.md 3, "Task"). Grounded on process.c's task_t, with task_list's
// intrusive node folded into the package-level task table instead.
type Task_t struct {
	Pid       defs.Pid_t
	ParentPid defs.Pid_t

	// lock is the per-task lock of spec.md 4.I/5: guards NumThreads,
	// Threads, LiveChildren, DeadChildren and Status. It is a
	// sched.Mutex_t (spec.md 4.G) rather than a plain spinlock because
	// Wait blocks on Cv while holding it, exactly as cvar_wait expects
	// to release and reacquire a sleep-capable lock.
	lock *sched.Mutex_t
	Cv   *sched.Cvar_t

	Vm *vm.Vm_t

	Threads    map[defs.Tid_t]*Tcb_t
	NumThreads int

	LiveChildren int
	DeadChildren []deadChild_t
	deadThread   *Tcb_t // process.c's task->dead_thr: last thread to vanish, freed when the next one does

	Status int
	Killed bool

	Accnt accnt.Accnt_t
}

func newTask(pid, parentPid defs.Pid_t) *Task_t {
	return &Task_t{
		Pid:       pid,
		ParentPid: parentPid,
		lock:      sched.NewMutex(),
		Cv:        sched.NewCvar(),
		Threads:   make(map[defs.Tid_t]*Tcb_t),
	}
}

// newThread allocates a peer thread in tk, registers it with the
// scheduler, and returns it. Caller must hold tk.lock.
func (tk *Task_t) newThread(tid defs.Tid_t) *Tcb_t {
	t := &Tcb_t{tid: tid, Task: tk, Alive: true}
	tk.Threads[tid] = t
	tk.NumThreads++
	sched.Default().Register(t)
	return t
}

// reapDeadThread folds a just-vanished thread's accounting into the
// task total and retires the previous dead_thr slot, process.c's
// task_del_thread. Caller holds tk.lock.
func (tk *Task_t) reapDeadThread(t *Tcb_t) {
	if tk.deadThread != nil {
		tk.Accnt.Add(&tk.deadThread.Accnt)
	}
	tk.deadThread = t
}
