// Command kernel assembles the boot sequence this repo's packages
// implement: physical memory init, the distinguished init task and its
// root thread, the syscall/fault entry plane, and a timer-tick loop
// that drives the scheduler -- the Go-native equivalent of the sequence
// a real bootloader's protected-mode hand-off would jump into (spec.md
// 1's non-goals place the hand-off itself, and any real hardware driver
// beneath boundary's interfaces, out of scope). It runs until
// interrupted, then prints a final accounting and profile summary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"pebble/biscuit/src/boundary"
	"pebble/biscuit/src/kprof"
	"pebble/biscuit/src/mem"
	"pebble/biscuit/src/proc"
	"pebble/biscuit/src/sched"
	"pebble/biscuit/src/trap"
)

// nframes sizes the physical frame pool Phys_init reserves; a real boot
// path would size this from a multiboot memory map this kernel has no
// bootloader to parse (spec.md 1).
const nframes = 8192

// tickPeriod stands in for the timer interrupt period a real PIT/APIC
// driver would deliver (spec.md 4.H).
const tickPeriod = 5 * time.Millisecond

func main() {
	mem.Phys_init(nframes)
	root := proc.Bootstrap()

	console := &boundary.MemConsole{}
	images := boundary.NewMemImageTable(nil)
	sys := trap.New(console, images)
	prof := kprof.New()
	timer := &boundary.MemTimerDriver{Period: tickPeriod}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sys.OnHalt = stop

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		timer.Start(gctx, func() {
			sched.Default().Tick()
			prof.Sample(root.Tid())
		})
		return nil
	})

	console.Putbytes([]byte(fmt.Sprintf("kernel: booted init task pid=%d tid=%d, %d frames free\n",
		root.Task.Pid, root.Tid(), mem.Physmem.Pgcount())))

	<-gctx.Done()

	sys.SetStatus(root, 0)
	u, s := root.Accnt.Snapshot()
	ticks := prof.Snapshot()[root.Tid()]
	console.Putbytes([]byte(fmt.Sprintf(
		"kernel: halting, init task charged user=%dns sys=%dns, %d ticks sampled\n", u, s, ticks)))

	fmt.Print(console.Out.String())

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
