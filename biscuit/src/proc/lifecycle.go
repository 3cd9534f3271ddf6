package proc

import (
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/sched"
	"pebble/biscuit/src/vm"
)

// Fork creates a new task with a single root thread that duplicates
// self's address space, process.c's task_init plus vm_init's fork
// path (spec.md 4.J). It fails with EAGAIN_THREADED if self's task has
// more than one live thread -- fork is undefined in a multi-threaded
// task per spec.md, so the caller must fail rather than guess which
// thread's stack to clone.
func Fork(self *Tcb_t) (defs.Pid_t, defs.Err_t) {
	parent := self.Task
	parent.lock.Lock(self.tid)
	if parent.NumThreads != 1 {
		parent.lock.Unlock(self.tid)
		return 0, defs.EAGAIN_THREADED
	}
	newVm, err := parent.Vm.Copy()
	if err != 0 {
		parent.lock.Unlock(self.tid)
		return 0, err
	}
	parent.LiveChildren++
	parent.lock.Unlock(self.tid)

	childTid := newTid()
	child := newTask(defs.Pid_t(childTid), parent.Pid)
	child.Vm = newVm
	child.lock.Lock(childTid)
	child.newThread(childTid)
	child.lock.Unlock(childTid)
	addTask(self.tid, child)

	return child.Pid, 0
}

// ThreadFork allocates a peer thread in self's task, sharing its
// address space, thread.c's thread_init called from a running task
// rather than task_init (spec.md 4.J).
func ThreadFork(self *Tcb_t) defs.Tid_t {
	task := self.Task
	tid := newTid()
	task.lock.Lock(self.tid)
	task.newThread(tid)
	task.lock.Unlock(self.tid)
	return tid
}

// ReplaceVm swaps self's task's address space for newVm, exec's
// kernel-side commit point (spec.md 4.J): it fails with
// EAGAIN_THREADED under the same one-live-thread restriction as Fork,
// and otherwise installs newVm, clears the stored exit status, and
// frees the address space exec is replacing.
func ReplaceVm(self *Tcb_t, newVm *vm.Vm_t) defs.Err_t {
	task := self.Task
	task.lock.Lock(self.tid)
	if task.NumThreads != 1 {
		task.lock.Unlock(self.tid)
		return defs.EAGAIN_THREADED
	}
	old := task.Vm
	task.Vm = newVm
	task.Status = 0
	task.lock.Unlock(self.tid)
	old.Free()
	return 0
}

// SetStatus stores s as self's task's exit status under the task lock
// (spec.md 4.J, set_status).
func SetStatus(self *Tcb_t, s int) {
	task := self.Task
	task.lock.Lock(self.tid)
	task.Status = s
	task.lock.Unlock(self.tid)
}

// Vanish retires self. If other threads remain in its task it removes
// self from the thread list and parks forever (spec.md 4.J: "blocks
// forever releasing only the task lock"); if self is the last thread it
// tears down the address space, reparents live children to init, and
// appends a zombie record to the parent's dead-children list,
// broadcasting its wait cvar. Killed overrides the stored status with
// defs.KilledByKernel, the sentinel a thread killed out from under
// itself (rather than vanishing voluntarily) leaves behind.
func Vanish(self *Tcb_t, killed bool) {
	task := self.Task
	task.lock.Lock(self.tid)

	delete(task.Threads, self.tid)
	task.NumThreads--
	self.Alive = false
	task.reapDeadThread(self)

	if task.NumThreads > 0 {
		if killed {
			task.Killed = true
		}
		sched.Default().DoAndBlock(self.tid, func() { task.lock.Unlock(self.tid) })
		return
	}

	if killed {
		task.Killed = true
	}
	status := task.Status
	if task.Killed {
		status = defs.KilledByKernel
	}
	task.lock.Unlock(self.tid)

	task.Vm.Free()
	reparentChildren(self.tid, task.Pid)
	delTask(self.tid, task.Pid)

	parent := findParentOrInit(self.tid, task.ParentPid)
	parent.lock.Lock(self.tid)
	if parent.Pid == task.ParentPid {
		parent.LiveChildren--
	}
	parent.DeadChildren = append(parent.DeadChildren, deadChild_t{Pid: task.Pid, Status: status})
	parent.lock.Unlock(self.tid)
	parent.Cv.Broadcast()

	sched.Default().Deregister(self.tid)
}

// Wait reaps one dead child of self's task, process.c's
// task_find_zombie: if a zombie is already queued it is dequeued and
// returned; if live children remain it blocks on the task cvar until
// one appears; with no children at all it fails with ECHILD
// (spec.md 4.J, wait).
func Wait(self *Tcb_t) (defs.Pid_t, int, defs.Err_t) {
	task := self.Task
	task.lock.Lock(self.tid)
	for len(task.DeadChildren) == 0 {
		if task.LiveChildren == 0 {
			task.lock.Unlock(self.tid)
			return 0, 0, -defs.ECHILD
		}
		task.Cv.Wait(self.tid, task.lock)
	}
	dead := task.DeadChildren[0]
	task.DeadChildren = task.DeadChildren[1:]
	task.lock.Unlock(self.tid)
	return dead.Pid, dead.Status, 0
}

// TaskVanish marks every thread in task as doomed with err and wakes
// any that is blocked -- the kernel never reaches into another thread's
// stack to force an exit (spec.md 4.F, "Cancellation"). Nothing in the
// kernel reads the doomed flag, so a doomed thread keeps running until
// it calls Vanish itself.
func TaskVanish(task *Task_t, holder defs.Tid_t, err defs.Err_t) {
	task.lock.Lock(holder)
	threads := make([]*Tcb_t, 0, len(task.Threads))
	for _, t := range task.Threads {
		threads = append(threads, t)
	}
	task.lock.Unlock(holder)
	for _, t := range threads {
		t.MarkDoomed(err)
	}
}
