package trap

import (
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/proc"
	"pebble/biscuit/src/sched"
)

/// Getchar returns the next buffered input byte, blocking by polling
/// the console's non-blocking driver between scheduler ticks until one
/// arrives (spec.md 6, getchar; 6's Console driver note that
/// readchar/readline are non-blocking "at the driver layer" -- the
/// blocking belongs to the syscall, not the driver).
func (s *Sys_t) Getchar(self *proc.Tcb_t) (byte, defs.Err_t) {
	for {
		if b, ok := s.Console.ReadChar(); ok {
			return b, 0
		}
		sched.Default().Sleep(self.Tid(), 1)
	}
}

/// Readline copies at most size bytes of the next complete input line
/// into the user buffer at bufVA, blocking until a full line is
/// buffered (spec.md 6, readline).
func (s *Sys_t) Readline(self *proc.Tcb_t, size int, bufVA uintptr) (int, defs.Err_t) {
	if size < 0 {
		return 0, -1
	}
	local := make([]byte, size)
	for {
		if n, ok := s.Console.ReadLine(local); ok {
			if err := self.Task.Vm.K2user(local[:n], bufVA); err != 0 {
				return 0, abi1(err)
			}
			return n, 0
		}
		sched.Default().Sleep(self.Tid(), 1)
	}
}

/// Print copies size bytes from the user buffer at bufVA and writes
/// them to the console (spec.md 6, print).
func (s *Sys_t) Print(self *proc.Tcb_t, size int, bufVA uintptr) defs.Err_t {
	if size < 0 {
		return -1
	}
	local := make([]byte, size)
	if err := self.Task.Vm.User2k(local, bufVA); err != 0 {
		return abi1(err)
	}
	s.Console.Putbytes(local)
	return 0
}

/// SetTermColor sets the console's text color (spec.md 6,
/// set_term_color).
func (s *Sys_t) SetTermColor(self *proc.Tcb_t, color int) defs.Err_t {
	if !s.Console.SetTermColor(color) {
		return -1
	}
	return 0
}

/// SetCursorPos positions the console cursor (spec.md 6,
/// set_cursor_pos).
func (s *Sys_t) SetCursorPos(self *proc.Tcb_t, row, col int) defs.Err_t {
	if !s.Console.SetCursor(row, col) {
		return -1
	}
	return 0
}

/// GetCursorPos writes the console's current cursor position to the
/// user addresses rowVA/colVA (spec.md 6, get_cursor_pos).
func (s *Sys_t) GetCursorPos(self *proc.Tcb_t, rowVA, colVA uintptr) defs.Err_t {
	row, col := s.Console.GetCursor()
	as := self.Task.Vm
	if err := as.Userwriten(rowVA, 4, row); err != 0 {
		return abi1(err)
	}
	if err := as.Userwriten(colVA, 4, col); err != 0 {
		return abi1(err)
	}
	return 0
}

/// Halt stops the calling thread's task permanently, the Go
/// translation of halting the (single-CPU) machine (spec.md 6, halt):
/// there is no hardware `hlt` loop to drop into, so by default this
/// just parks forever; OnHalt lets a harness or test intercept the
/// call instead.
func (s *Sys_t) Halt(self *proc.Tcb_t) {
	if s.OnHalt != nil {
		s.OnHalt()
		return
	}
	select {}
}

/// Readfile copies up to count bytes of the named image's contents,
/// starting at offset, into the user buffer at bufVA (spec.md 6,
/// readfile). There is no filesystem in this kernel (spec.md's
/// non-goals); the image table stands in as the sole byte source.
func (s *Sys_t) Readfile(self *proc.Tcb_t, name string, bufVA uintptr, count, offset int) (int, defs.Err_t) {
	data, ok := s.Images.Getbytes(name, offset, count)
	if !ok {
		return 0, -1
	}
	if err := self.Task.Vm.K2user(data, bufVA); err != 0 {
		return 0, abi1(err)
	}
	return len(data), 0
}
