package trap

import (
	"bytes"
	"debug/elf"

	"pebble/biscuit/src/bounds"
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/mem"
	"pebble/biscuit/src/proc"
	"pebble/biscuit/src/res"
	"pebble/biscuit/src/util"
	"pebble/biscuit/src/vm"
)

// ustackTop and ustackSize bound the fresh stack exec carves out for a
// newly loaded image; there is no memory-layout negotiation with a
// loader here (spec.md's non-goals exclude a real boot/link
// pipeline), so a single fixed, generously sized window at the top of
// the 32-bit address space is reserved for every exec, mirroring the
// teacher's own fixed USTACK convention.
const (
	ustackTop  = uintptr(0xc0000000)
	ustackSize = uintptr(64 * 1024)
)

/// Exec replaces self's task's address space with the named image
/// (spec.md 6, exec; 4.J). It copies the image name and argv out of
/// user memory through the validated-copy path (4.L), parses and
/// loads the ELF (grounded on
/// original_source/kern/loader/loader.c's segment semantics and on the
/// teacher's own biscuit/src/kernel/chentry.go, which already uses
/// debug/elf against this same kind of image), and on success returns
/// the new entry point and initial stack pointer for the caller's trap
/// entry point to mode-switch into -- exec never returns to the old
/// context, so there is no ABI error to report on success.
func (s *Sys_t) Exec(self *proc.Tcb_t, nameVA, argvVA uintptr) (entry, esp uintptr, err defs.Err_t) {
	as := self.Task.Vm
	nameb, verr := as.Userstr(nameVA, 128)
	if verr != 0 {
		return 0, 0, abi1(verr)
	}
	argv, verr := s.copyArgv(self, argvVA)
	if verr != 0 {
		return 0, 0, abi1(verr)
	}
	data, ok := s.Images.Lookup(string(nameb))
	if !ok {
		return 0, 0, -1
	}
	newVm, newEntry, newEsp, lerr := loadELF(data, argv)
	if lerr != 0 {
		return 0, 0, abi1(lerr)
	}
	if rerr := proc.ReplaceVm(self, newVm); rerr != 0 {
		return 0, 0, abi1(rerr)
	}
	return newEntry, newEsp, 0
}

// copyArgv validates and copies argv's NUL-terminated pointer table
// and each string it points at (spec.md 4.L, copy_argv_from_user),
// bounded so a malicious or buggy argv table can't pin the kernel in
// an unbounded loop.
func (s *Sys_t) copyArgv(self *proc.Tcb_t, argvVA uintptr) ([]string, defs.Err_t) {
	if argvVA == 0 {
		return nil, 0
	}
	as := self.Task.Vm
	var argv []string
	for i := 0; ; i++ {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_TRAP_T_COPYARGV)) {
			return nil, -defs.ENOHEAP
		}
		word, err := as.Userreadn(argvVA+uintptr(i*4), 4)
		if err != 0 {
			return nil, err
		}
		if word == 0 {
			break
		}
		str, err := as.Userstr(uintptr(word), 4096)
		if err != 0 {
			return nil, err
		}
		argv = append(argv, string(str))
	}
	return argv, 0
}

// loadELF parses a 32-bit x86 executable and builds a fresh address
// space for it: every PT_LOAD segment becomes a VANON region sized to
// its page-rounded memsz (so bss past filesz reads as demand-zero),
// populated with its file bytes via K2user.
func loadELF(data []byte, argv []string) (*vm.Vm_t, uintptr, uintptr, defs.Err_t) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, -defs.EINVAL
	}
	if ef.Class != elf.ELFCLASS32 || ef.Machine != elf.EM_386 || ef.Type != elf.ET_EXEC {
		return nil, 0, 0, -defs.EINVAL
	}

	as := vm.NewVm()
	pgsize := uintptr(mem.PGSIZE)
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		perms := uint32(vm.PTE_U)
		if prog.Flags&elf.PF_W != 0 {
			perms |= vm.PTE_W
		}
		start := util.Rounddown(uintptr(prog.Vaddr), pgsize)
		end := util.Roundup(uintptr(prog.Vaddr+prog.Memsz), pgsize)
		if end <= start {
			continue
		}
		as.AddAnon(start, end-start, perms)
		if prog.Filesz == 0 {
			continue
		}
		buf := make([]byte, prog.Filesz)
		if _, rerr := prog.ReadAt(buf, 0); rerr != nil {
			return nil, 0, 0, -defs.EINVAL
		}
		if verr := as.K2user(buf, uintptr(prog.Vaddr)); verr != 0 {
			return nil, 0, 0, verr
		}
	}

	stackStart := ustackTop - ustackSize
	as.AddAnon(stackStart, ustackSize, vm.PTE_W)
	sp, verr := layoutArgv(as, argv)
	if verr != 0 {
		return nil, 0, 0, verr
	}
	return as, uintptr(ef.Entry), sp, 0
}

// layoutArgv writes argv's strings, then its NUL-terminated pointer
// table, then envp (always empty) and argc, onto the fresh user
// stack, in the conventional C-runtime _start layout: [esp]=argc,
// [esp+4]=argv, [esp+8]=envp.
func layoutArgv(as *vm.Vm_t, argv []string) (uintptr, defs.Err_t) {
	sp := ustackTop
	ptrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		b := append([]byte(argv[i]), 0)
		sp -= uintptr(len(b))
		if err := as.K2user(b, sp); err != 0 {
			return 0, err
		}
		ptrs[i] = sp
	}
	sp = util.Rounddown(sp, 4)

	argvAt := sp - uintptr((len(ptrs)+1)*4)
	for i, p := range ptrs {
		if err := as.Userwriten(argvAt+uintptr(i*4), 4, int(p)); err != 0 {
			return 0, err
		}
	}
	if err := as.Userwriten(argvAt+uintptr(len(ptrs)*4), 4, 0); err != 0 {
		return 0, err
	}

	sp = argvAt
	sp -= 4
	if err := as.Userwriten(sp, 4, 0); err != 0 { // envp
		return 0, err
	}
	sp -= 4
	if err := as.Userwriten(sp, 4, int(argvAt)); err != 0 { // argv
		return 0, err
	}
	sp -= 4
	if err := as.Userwriten(sp, 4, len(argv)); err != 0 { // argc
		return 0, err
	}
	return sp, 0
}
