package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/mem"
)

// TestForkWaitStatus is spec.md 8's literal fork/wait/status scenario:
// a child sets its exit status and vanishes; the parent's wait reports
// exactly that status and the child's pid.
func TestForkWaitStatus(t *testing.T) {
	mem.Phys_init(256)
	parent := Bootstrap()

	pid, err := Fork(parent)
	require.Zero(t, err)

	task, ok := findTask(parent.Tid(), pid)
	require.True(t, ok)
	var child *Tcb_t
	for _, th := range task.Threads {
		child = th
	}
	require.NotNil(t, child)

	SetStatus(child, 23)
	Vanish(child, false)

	gotPid, status, werr := Wait(parent)
	require.Zero(t, werr)
	require.Equal(t, pid, gotPid)
	require.Equal(t, 23, status)
}

// TestForkEagainThreaded is spec.md 8's boundary behavior: fork from a
// multi-threaded task fails with EAGAIN_THREADED and leaves no new task
// behind.
func TestForkEagainThreaded(t *testing.T) {
	mem.Phys_init(256)
	root := Bootstrap()
	ThreadFork(root)

	_, err := Fork(root)
	require.Equal(t, defs.EAGAIN_THREADED, err)
}

// TestReplaceVmEagainThreaded holds exec's commit point to the same
// one-live-thread restriction as fork.
func TestReplaceVmEagainThreaded(t *testing.T) {
	mem.Phys_init(256)
	root := Bootstrap()
	ThreadFork(root)

	err := ReplaceVm(root, nil)
	require.Equal(t, defs.EAGAIN_THREADED, err)
}

// TestWaitNoChildrenFails is spec.md 8's boundary behavior: wait with no
// live and no zombie children returns ECHILD.
func TestWaitNoChildrenFails(t *testing.T) {
	mem.Phys_init(256)
	root := Bootstrap()

	_, _, err := Wait(root)
	require.Equal(t, -defs.ECHILD, err)
}
