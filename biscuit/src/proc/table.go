package proc

import (
	"sync/atomic"

	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/lock"
	"pebble/biscuit/src/vm"
)

// tasklist is the global task table (process.c's task_list): a map
// instead of an intrusive cll_list, since nothing here needs
// constant-time removal from the middle of a traversal order. listLock
// is the global task-list lock of spec.md 4.I/5, strictly above every
// per-task lock in the locking hierarchy -- a lock.Ticket_t (spec.md
// 4.A), since nothing ever blocks while holding it.
var (
	listLock lock.Ticket_t
	tasklist = make(map[defs.Pid_t]*Task_t)

	nextPid int64
	nextTid int64
)

func newPid() defs.Pid_t { return defs.Pid_t(atomic.AddInt64(&nextPid, 1)) }

func newTid() defs.Tid_t { return defs.Tid_t(atomic.AddInt64(&nextTid, 1)) }

// addTask inserts t into the global task table (tasklist_add).
func addTask(holder defs.Tid_t, t *Task_t) {
	listLock.Acquire(holder)
	tasklist[t.Pid] = t
	listLock.Release(holder)
}

// delTask removes pid from the global task table (tasklist_del).
func delTask(holder defs.Tid_t, pid defs.Pid_t) {
	listLock.Acquire(holder)
	delete(tasklist, pid)
	listLock.Release(holder)
}

// findTask looks up a task by pid without locking it.
func findTask(holder defs.Tid_t, pid defs.Pid_t) (*Task_t, bool) {
	listLock.Acquire(holder)
	t, ok := tasklist[pid]
	listLock.Release(holder)
	return t, ok
}

// findParentOrInit is task_find_and_lock_parent minus the locking (the
// caller takes the returned task's lock itself): the parent task if
// still alive, else the distinguished init task.
func findParentOrInit(holder defs.Tid_t, parentPid defs.Pid_t) *Task_t {
	if t, ok := findTask(holder, parentPid); ok {
		return t
	}
	t, ok := findTask(holder, defs.InitPid)
	if !ok {
		panic("proc: init task missing from task table")
	}
	return t
}

// reparentChildren walks the task table reassigning every live child
// of deadPid to init, process.c's implicit orphan handling (vanish's
// "reparent live children to init").
func reparentChildren(holder defs.Tid_t, deadPid defs.Pid_t) {
	listLock.Acquire(holder)
	for _, t := range tasklist {
		if t.ParentPid == deadPid {
			t.ParentPid = defs.InitPid
		}
	}
	listLock.Release(holder)
}

// Bootstrap creates the distinguished init task (defs.InitPid) and its
// single root thread, and must be called exactly once during kernel
// startup before any Fork/Exec. It returns the root thread so the boot
// path can install it as the running context.
func Bootstrap() *Tcb_t {
	tk := newTask(defs.InitPid, defs.InitPid)
	tid := newTid()
	tk.lock.Lock(tid)
	root := tk.newThread(tid)
	tk.lock.Unlock(tid)
	tk.Vm = vm.NewVm()
	addTask(tid, tk)
	return root
}
