// Package vm implements the per-task virtual memory manager: region
// bookkeeping, demand-zero and copy-on-fork pages, and the user-pointer
// copy helpers the syscall plane uses to cross the kernel/user boundary
// (spec.md 4.E and 4.L). It is grounded on
// biscuit/src/vm/as.go and biscuit/src/vm/userbuf.go, with the
// file-backed mapping machinery (VFILE, Mfile_t, fdops.Fdops_i) dropped
// -- this kernel has no filesystem (spec.md's non-goals exclude a VFS;
// see DESIGN.md) -- and with fork's copy path de-optimized from the
// teacher's refcounted copy-on-write into a real per-page copy, per
// spec.md 4.E: "vm.copy performs a real per-page copy except ZFOD pages,
// which stay shared-ZFOD".
package vm

import (
	"sort"
	"sync"

	"pebble/biscuit/src/mem"
)

/// mtype_t distinguishes the two kinds of anonymous region this kernel
/// supports: VANON is private (and demand-zero, and copied on fork);
/// VSANON is shared across a fork (spec.md 3, "Region").
type mtype_t uint8

const (
	VANON mtype_t = iota
	VSANON
)

/// Vminfo_t describes one mapped region of a task's address space: a
/// page-aligned range [Pgn*PGSIZE, (Pgn+Pglen)*PGSIZE) with uniform
/// permissions and backing type. Perms == 0 marks a guard region: any
/// access, read or write, faults (spec.md 4.E, "guard page").
type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr
	Pglen uintptr
	Perms uint32
}

func (vmi *Vminfo_t) end() uintptr { return vmi.Pgn + uintptr(vmi.Pglen) }

func (vmi *Vminfo_t) contains(pgn uintptr) bool {
	return pgn >= vmi.Pgn && pgn < vmi.end()
}

/// Vmregion_t is the sorted region map for one address space: an
/// ordered slice of non-overlapping Vminfo_t, searched by binary search
/// on page number. The teacher threads regions through its own
/// cllist-backed Vmregion_t (original_source/kern/inc/vm.h's
/// vmregion); since lookups here are purely by page-number range with
/// no LRU/eviction order, a sorted slice gives the same O(log n) lookup
/// with less bookkeeping than an intrusive list would.
type Vmregion_t struct {
	sync.Mutex
	regions []*Vminfo_t
}

/// Init prepares an empty region map.
func (vr *Vmregion_t) Init() {
	vr.regions = nil
}

/// insert adds vmi to the map. It panics if vmi overlaps an existing
/// region, matching the teacher's assumption that callers only ever
/// add to genuinely free ranges (found via Unusedva first).
func (vr *Vmregion_t) insert(vmi *Vminfo_t) {
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].Pgn >= vmi.Pgn
	})
	if i > 0 && vr.regions[i-1].end() > vmi.Pgn {
		panic("vmregion: overlapping insert")
	}
	if i < len(vr.regions) && vr.regions[i].Pgn < vmi.end() {
		panic("vmregion: overlapping insert")
	}
	vr.regions = append(vr.regions, nil)
	copy(vr.regions[i+1:], vr.regions[i:])
	vr.regions[i] = vmi
}

/// Lookup returns the region containing virtual address va, if any.
func (vr *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	pgn := va >> mem.PGSHIFT
	i := sort.Search(len(vr.regions), func(i int) bool {
		return vr.regions[i].end() > pgn
	})
	if i < len(vr.regions) && vr.regions[i].contains(pgn) {
		return vr.regions[i], true
	}
	return nil, false
}

/// remove deletes the region starting at page pgn, if present.
func (vr *Vmregion_t) remove(pgn uintptr) {
	for i, r := range vr.regions {
		if r.Pgn == pgn {
			vr.regions = append(vr.regions[:i], vr.regions[i+1:]...)
			return
		}
	}
}

/// empty finds an unused virtual address range of at least l bytes at
/// or after startva, for Vm_t.Unusedva (spec.md 4.E's "the vm layer
/// finds free ranges for new regions").
func (vr *Vmregion_t) empty(startva uintptr, l uintptr) (uintptr, uintptr) {
	want := (l + uintptr(mem.PGSIZE) - 1) / uintptr(mem.PGSIZE)
	cur := startva >> mem.PGSHIFT
	for _, r := range vr.regions {
		if r.Pgn >= cur+want {
			break
		}
		if r.end() > cur {
			cur = r.end()
		}
	}
	return cur << mem.PGSHIFT, want << mem.PGSHIFT
}

/// Clear empties the region map, releasing every Vminfo_t. The
/// teacher's Clear also closes open file descriptors held by file
/// mappings; with VFILE dropped there is nothing left to close.
func (vr *Vmregion_t) Clear() {
	vr.regions = nil
}

/// Iter calls f for every region, in address order, for diagnostics and
/// for vm.Copy's full address-space walk.
func (vr *Vmregion_t) Iter(f func(*Vminfo_t)) {
	for _, r := range vr.regions {
		f(r)
	}
}
