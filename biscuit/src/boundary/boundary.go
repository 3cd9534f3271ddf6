// Package boundary defines the external collaborator interfaces the
// kernel core consumes (spec.md 6): the console driver, the timer
// driver, and the read-only image table exec loads binaries from.
// trap depends on these interfaces, never on a concrete driver, so the
// same dispatch code runs against real hardware or the in-memory test
// doubles this package also provides.
package boundary

import "context"

// Console is the terminal driver's contract: output is serialized by
// the driver's own mutex; ReadChar/ReadLine are non-blocking at the
// driver layer (spec.md 6) -- a syscall that needs to block on input
// does so itself, in the thread's own blocking call, not inside the
// driver.
type Console interface {
	Putbytes(s []byte)
	SetTermColor(color int) bool
	SetCursor(row, col int) bool
	GetCursor() (row, col int)
	// ReadChar returns a buffered character and true, or false if none
	// is available yet.
	ReadChar() (byte, bool)
	// ReadLine copies at most len(buf) bytes of the next complete
	// buffered line into buf, returning the byte count and whether a
	// full line was available.
	ReadLine(buf []byte) (int, bool)
}

// TimerDriver delivers timer interrupts: Start calls tick once per
// interrupt until ctx is canceled (spec.md 6, "calls wake_up(ticks) and
// schedule() from its interrupt on each tick" -- tick is that callback,
// normally sched.Sched_t.Tick).
type TimerDriver interface {
	Start(ctx context.Context, tick func())
}

// ImageTable is the read-only, in-memory set of loadable executables
// (spec.md 6, "an enumerable set of (name, bytes) records"). Getbytes
// reads directly from the named image's backing bytes since this
// kernel has no on-disk file layer to route through.
type ImageTable interface {
	Lookup(name string) ([]byte, bool)
	Names() []string
	Getbytes(name string, offset, size int) ([]byte, bool)
}
