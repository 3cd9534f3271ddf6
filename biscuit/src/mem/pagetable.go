package mem

import "fmt"

// This file is the two-level x86 analogue of
// biscuit/src/mem/dmap.go: the teacher walks a four-level,
// hardware-resident PML4/PDPT/PD/PT radix tree reached through a
// recursive self-mapped slot (VREC) and a direct-map window (VDIRECT)
// installed by Dmap_init, using runtime.Cpuid/runtime.Rcr4 hooks that
// only exist in biscuit's patched Go runtime (out of scope, spec.md 1).
// Without real hardware or that runtime there is nothing to walk with
// raw pointer arithmetic, so the tree is represented directly as Go
// structs: a Pagedir_t holds 1024 Pde_t entries, and a present,
// page-table-backed Pde_t points at a Pagetbl_t of 1024 Pte_t entries
// -- exactly the two-level x86 (non-PAE) layout spec.md 4.D calls for,
// with the same present/writable/user bit vocabulary the teacher uses.

/// Entry bit flags, matching the x86 PDE/PTE format.
const (
	PTE_P   uint32 = 1 << 0 // present
	PTE_W   uint32 = 1 << 1 // writable
	PTE_U   uint32 = 1 << 2 // user-accessible
	PTE_PCD uint32 = 1 << 4 // cache-disable, unused here but kept for bit-compat
)

/// VPTEs per table, matching the x86 4KiB-page, 4-byte-PTE layout.
const PTESPERTBL = 1024

/// Pte_t is one page-table entry: physical frame address with the low
/// 12 bits repurposed for flags, exactly like real x86 hardware.
type Pte_t uint32

func mkpte(pa Pa_t, flags uint32) Pte_t {
	return Pte_t(uint32(pa&PGMASK) | flags)
}

// Present, Writable, User, and Addr expose the hardware-format bits of
// a PTE to callers outside this package (vm's fault handler and fork
// copy path).
func (e Pte_t) Present() bool  { return uint32(e)&PTE_P != 0 }
func (e Pte_t) Writable() bool { return uint32(e)&PTE_W != 0 }
func (e Pte_t) User() bool     { return uint32(e)&PTE_U != 0 }
func (e Pte_t) Addr() Pa_t     { return Pa_t(uint32(e)) & PGMASK }

func (e Pte_t) present() bool { return e.Present() }
func (e Pte_t) addr() Pa_t    { return e.Addr() }

/// Pagetbl_t is a leaf page table: 1024 PTEs, one physical frame.
type Pagetbl_t struct {
	entries [PTESPERTBL]Pte_t
}

/// Pde_t is one page-directory entry. When Tbl is non-nil the slot is
/// present and backed by a Pagetbl_t (the one exception to "entries are
/// hardware-shaped": since there is no MMU to walk a raw physical
/// address for us, the directory keeps a live pointer to its child
/// table alongside the hardware-format bits, so Go code can walk it
/// directly while still exposing addr()/flags() as real x86 would).
type Pde_t struct {
	raw uint32
	Tbl *Pagetbl_t
}

func (d Pde_t) present() bool { return d.raw&PTE_P != 0 && d.Tbl != nil }

/// Pagedir_t is a top-level page directory: 1024 PDEs, each either
/// empty or pointing at a Pagetbl_t. It is the per-address-space root
/// spec.md 4.D's "Pagetable" type requires: one per task, held in the
/// task's address space (proc.Task_t.Vm, field vm.Vm_t.Pgdir).
type Pagedir_t struct {
	dir [PTESPERTBL]Pde_t
}

/// NewPagedir allocates an empty page directory.
func NewPagedir() *Pagedir_t {
	return &Pagedir_t{}
}

func pdpx(va uintptr) uint32 { return uint32(va>>22) & 0x3ff }
func ptx(va uintptr) uint32  { return uint32(va>>12) & 0x3ff }

/// Lookup walks the directory for va, returning the mapped PTE and
/// whether a mapping exists at all (present or not -- callers that need
/// to distinguish "unmapped" from "mapped but not present/writable"
/// check the returned Pte_t's own flags).
func (pd *Pagedir_t) Lookup(va uintptr) (Pte_t, bool) {
	d := &pd.dir[pdpx(va)]
	if !d.present() {
		return 0, false
	}
	return d.Tbl.entries[ptx(va)], true
}

/// Map installs a mapping from va to the frame pa with the given
/// flags, creating the intermediate Pagetbl_t if this directory slot
/// has none. Page tables are Go structs and draw no frame from phys, so
/// Map always returns true.
func (pd *Pagedir_t) Map(phys *Physmem_t, va uintptr, pa Pa_t, flags uint32) bool {
	d := &pd.dir[pdpx(va)]
	if d.Tbl == nil {
		d.Tbl = &Pagetbl_t{}
		d.raw = PTE_P | PTE_W | PTE_U
	}
	d.Tbl.entries[ptx(va)] = mkpte(pa, flags)
	return true
}

/// Unmap clears any mapping at va. It is a no-op if nothing is mapped
/// there. The intermediate page table, if now empty, is left in place
/// rather than freed: spec.md 4.D does not require directory
/// compaction, and freeing it would require a reference count this
/// kernel otherwise has no use for.
func (pd *Pagedir_t) Unmap(va uintptr) {
	d := &pd.dir[pdpx(va)]
	if d.Tbl == nil {
		return
	}
	d.Tbl.entries[ptx(va)] = 0
}

/// SetFlags updates the flags of an existing mapping in place (used by
/// vm's write-protect/un-protect paths, e.g. ZFOD promotion and
/// region-attribute changes). It panics if va is unmapped.
func (pd *Pagedir_t) SetFlags(va uintptr, flags uint32) {
	d := &pd.dir[pdpx(va)]
	if d.Tbl == nil {
		panic("pagedir: setflags on unmapped va")
	}
	e := &d.Tbl.entries[ptx(va)]
	*e = mkpte(e.addr(), flags)
}

/// Mincore reports whether va is currently mapped present, for the
/// page-fault classification path in vm (spec.md 4.D/4.E).
func (pd *Pagedir_t) Mincore(va uintptr) bool {
	e, ok := pd.Lookup(va)
	return ok && e.present()
}

/// Free drops every intermediate page table and, if freeData is true,
/// returns to phys every mapped data frame whose address is not the
/// ZFOD sentinel. Called when a task's address space is
/// torn down (spec.md 4.I, vanish).
func (pd *Pagedir_t) Free(phys *Physmem_t, freeData bool) {
	for i := range pd.dir {
		d := &pd.dir[i]
		if d.Tbl == nil {
			continue
		}
		if freeData {
			for _, e := range d.Tbl.entries {
				if e.present() && e.addr() != P_zeropg {
					phys.Free(e.addr())
				}
			}
		}
		d.Tbl = nil
		d.raw = 0
	}
}

// Flush_tlb would invalidate cached translations on real hardware; here
// it is a documented no-op kept so call sites read the way the
// teacher's do (biscuit/src/vm/as.go calls Tlbshoot after every mapping
// change), since this kernel models all CPUs as a single Go process
// with no TLB to desynchronize.
func Flush_tlb(va uintptr) {}

func (pd *Pagedir_t) String() string {
	n := 0
	for _, d := range pd.dir {
		if d.Tbl != nil {
			n++
		}
	}
	return fmt.Sprintf("pagedir{%d live directory slots}", n)
}
