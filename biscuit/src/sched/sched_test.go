package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"pebble/biscuit/src/defs"
)

type fakeRunnable struct{ tid defs.Tid_t }

func (f fakeRunnable) Tid() defs.Tid_t { return f.tid }

var nextFakeTid int64 = 1 << 20

func freshTid() defs.Tid_t {
	nextFakeTid++
	return defs.Tid_t(nextFakeTid)
}

// TestDescheduleMakeRunnableRace is spec.md 8's deschedule/make_runnable
// atomicity scenario: a make_runnable that arrives before the matching
// deschedule must latch, so the deschedule that follows returns at once
// instead of blocking forever.
func TestDescheduleMakeRunnableRace(t *testing.T) {
	tid := freshTid()
	Default().Register(fakeRunnable{tid})
	defer Default().Deregister(tid)

	ok := Default().MakeRunnable(tid)
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		Default().Deschedule(tid)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deschedule blocked despite an already-latched make_runnable")
	}
}

// TestDescheduleBlocksUntilMakeRunnable is the ordinary case of the same
// pair: with no pending make_runnable, deschedule blocks until one
// arrives.
func TestDescheduleBlocksUntilMakeRunnable(t *testing.T) {
	tid := freshTid()
	Default().Register(fakeRunnable{tid})
	defer Default().Deregister(tid)

	done := make(chan struct{})
	go func() {
		Default().Deschedule(tid)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("deschedule returned before any make_runnable arrived")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, Default().MakeRunnable(tid))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deschedule never woke after make_runnable")
	}
}

// TestSleepMonotonic is spec.md 8's sleep-monotonic scenario: Now()
// never runs backwards, and a sleeping thread wakes only once its
// deadline's tick count has actually elapsed.
func TestSleepMonotonic(t *testing.T) {
	tid := freshTid()
	Default().Register(fakeRunnable{tid})
	defer Default().Deregister(tid)

	start := Default().Now()
	done := make(chan struct{})
	go func() {
		Default().Sleep(tid, 5)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond) // let Sleep enqueue before ticking
	for i := 0; i < 4; i++ {
		Default().Tick()
	}
	select {
	case <-done:
		t.Fatal("sleep woke before its deadline tick")
	case <-time.After(10 * time.Millisecond):
	}

	Default().Tick()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sleep did not wake once its deadline tick passed")
	}
	require.GreaterOrEqual(t, Default().Now(), start+5)
}

// TestMutexFIFOHandoff checks component G's FIFO ordering guarantee:
// Mutex_t hands off directly to waiters in the order they queued, not
// in whatever order the Go scheduler happens to wake goroutines.
// errgroup drives the contending goroutines concurrently, each staggered
// just enough to make its enqueue order deterministic.
func TestMutexFIFOHandoff(t *testing.T) {
	const n = 5
	m := NewMutex()
	tids := make([]defs.Tid_t, n)
	for i := range tids {
		tids[i] = freshTid()
		Default().Register(fakeRunnable{tids[i]})
	}
	defer func() {
		for _, tid := range tids {
			Default().Deregister(tid)
		}
	}()

	m.Lock(tids[0])

	order := make(chan defs.Tid_t, n-1)
	var g errgroup.Group
	for i := 1; i < n; i++ {
		i := i
		g.Go(func() error {
			time.Sleep(time.Duration(i) * 15 * time.Millisecond)
			m.Lock(tids[i])
			order <- tids[i]
			m.Unlock(tids[i])
			return nil
		})
	}

	time.Sleep(time.Duration(n) * 15 * time.Millisecond)
	m.Unlock(tids[0])
	require.NoError(t, g.Wait())
	close(order)

	var got []defs.Tid_t
	for tid := range order {
		got = append(got, tid)
	}
	require.Equal(t, tids[1:], got)
}
