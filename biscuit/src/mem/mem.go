// Package mem implements the physical frame allocator (spec.md 4.C) and
// the two-level x86 page-table layer (spec.md 4.D). It is the Go
// translation, for a single-CPU 32-bit protected-mode target, of
// biscuit/src/mem/mem.go and biscuit/src/mem/dmap.go: the teacher's
// four-level, per-CPU-sharded, refcounted page pool is collapsed to the
// simpler model spec.md actually calls for -- one free list threaded
// through the frames themselves, no refcounting (this kernel's
// copy-on-fork is a real per-page copy, not shared COW; see the vm
// package), and a single CPU so there is no per-CPU free-list sharding
// and no TLB-shootdown IPI fan-out.
package mem

import (
	"sync"
	"unsafe"

	"golang.org/x/text/message"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t represents a physical address.
type Pa_t uintptr

/// Pg_t is one physical page, addressable as a slice of bytes through
/// Dmap/Dmap8.
type Pg_t [PGSIZE]uint8

// physArena stands in for physical RAM. There is no real hardware
// backing this build (spec.md 1 places the boot-sequence glue that
// would hand us a real physical memory map out of scope), so frames are
// offsets into a single Go-allocated arena instead of the teacher's
// direct hardware mapping -- the Dmap/Dmap8 accessor shape is otherwise
// identical to biscuit/src/mem/dmap.go's Dmaplen.
var physArena []byte

// ZFOD sentinel frame: shared read-only by all ZFOD mappings until
// first write, never freed (spec.md 3, "Frame").
var (
	P_zeropg Pa_t
	zeropg   *Pg_t
)

/// Physmem_t manages the free pool of physical frames. A free frame
/// stores, in its first machine word, the physical address of the next
/// free frame; the pool head is a single pointer (spec.md 4.C).
type Physmem_t struct {
	sync.Mutex
	nframes int
	base    Pa_t
	headSet bool
	head    Pa_t
	free    int
}

/// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

/// Phys_init reserves nframes page frames of backing arena and threads
/// them onto the free list. It must run exactly once at boot.
func Phys_init(nframes int) *Physmem_t {
	if nframes <= 1 {
		panic("need at least 2 frames (zfod sentinel + 1 free)")
	}
	physArena = make([]byte, nframes*PGSIZE)
	phys := Physmem
	phys.nframes = nframes
	phys.base = 0
	phys.free = 0
	phys.headSet = false

	// the first frame is reserved for the never-freed ZFOD sentinel.
	P_zeropg = phys.base
	zeropg = phys.dmapUnlocked(P_zeropg)
	for i := range zeropg {
		zeropg[i] = 0
	}

	for i := 1; i < nframes; i++ {
		p := phys.base + Pa_t(i*PGSIZE)
		phys.freeUnlocked(p)
	}

	p := message.NewPrinter(message.MatchLanguage("en"))
	p.Printf("mem: reserved %d pages (%d KiB), zfod sentinel at %#x\n",
		nframes, nframes*PGSIZE/1024, uintptr(P_zeropg))
	return phys
}

func (phys *Physmem_t) dmapUnlocked(p Pa_t) *Pg_t {
	off := int(p - phys.base)
	if off < 0 || off+PGSIZE > len(physArena) {
		panic("frame address out of arena")
	}
	return sliceToPage(physArena[off : off+PGSIZE])
}

/// Dmap converts a physical frame address into its mapped page view.
/// On real hardware this is the direct-map virtual window
/// (biscuit/src/mem/dmap.go's Dmap); here it is an index into
/// physArena, but callers see the same *Pg_t-valued contract.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	return phys.dmapUnlocked(p)
}

/// Dmap8 returns a byte slice view of the frame at p, offset by p's
/// own page offset (mirrors biscuit/src/mem/dmap.go's Dmap8).
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(Pa_t(p) &^ Pa_t(PGOFFSET))
	off := p & PGOFFSET
	return pg[off:]
}

/// Alloc pops the head of the free list. It is O(1) and never blocks;
/// it fails only when the pool is empty (spec.md 4.C).
func (phys *Physmem_t) Alloc() (Pa_t, bool) {
	phys.Lock()
	defer phys.Unlock()
	if !phys.headSet {
		return 0, false
	}
	p := phys.head
	nextp := phys.readNext(p)
	phys.head = nextp.addr
	phys.headSet = nextp.ok
	phys.free--
	if phys.free < 0 {
		panic("negative free count")
	}
	return p, true
}

/// AllocZeroed is like Alloc but also zeroes the returned frame, for
/// callers (e.g. vm's private-page fault path) that require demand-zero
/// semantics without going through the ZFOD sentinel.
func (phys *Physmem_t) AllocZeroed() (Pa_t, bool) {
	p, ok := phys.Alloc()
	if !ok {
		return 0, false
	}
	pg := phys.Dmap(p)
	for i := range pg {
		pg[i] = 0
	}
	return p, true
}

type nextFrame struct {
	addr Pa_t
	ok   bool
}

// readNext reads the next-free-frame pointer stored in frame p's first
// machine word. A zero-valued stored pointer at the base address is
// ambiguous with "no next frame", so the free list is terminated with a
// dedicated end-of-list sentinel value, not zero.
const noNext Pa_t = ^Pa_t(0)

func (phys *Physmem_t) readNext(p Pa_t) nextFrame {
	pg := phys.dmapUnlocked(p)
	v := Pa_t(0)
	for i := 0; i < 8 && i < len(pg); i++ {
		v |= Pa_t(pg[i]) << (8 * uint(i))
	}
	if v == noNext {
		return nextFrame{0, false}
	}
	return nextFrame{v, true}
}

func (phys *Physmem_t) writeNext(p Pa_t, next nextFrame) {
	pg := phys.dmapUnlocked(p)
	v := noNext
	if next.ok {
		v = next.addr
	}
	for i := 0; i < 8 && i < len(pg); i++ {
		pg[i] = uint8(v >> (8 * uint(i)))
	}
}

/// Free pushes p onto the head of the free list, writing the current
/// head into the frame's first word (spec.md 4.C). It panics if p is
/// the ZFOD sentinel, which is pool-external and never freed.
func (phys *Physmem_t) Free(p Pa_t) {
	if p == P_zeropg {
		panic("freeing the zfod sentinel frame")
	}
	phys.Lock()
	defer phys.Unlock()
	phys.freeUnlocked(p)
}

func (phys *Physmem_t) freeUnlocked(p Pa_t) {
	cur := nextFrame{0, false}
	if phys.headSet {
		cur = nextFrame{phys.head, true}
	}
	phys.writeNext(p, cur)
	phys.head = p
	phys.headSet = true
	phys.free++
}

/// Pgcount reports the number of free frames remaining in the pool, for
/// diagnostics and the round-trip invariants in spec.md 8.
func (phys *Physmem_t) Pgcount() int {
	phys.Lock()
	defer phys.Unlock()
	return phys.free
}

/// Nframes reports the total pool size configured at boot.
func (phys *Physmem_t) Nframes() int {
	return phys.nframes
}

// sliceToPage is a thin, isolated unsafe cast from a byte slice backing
// array to *Pg_t. Kept in its own function so every place mem touches
// unsafe is grep-able, matching the teacher's habit of concentrating
// unsafe.Pointer casts in a handful of named helper functions
// (biscuit/src/mem/mem.go's pg2pmap, Pg2bytes, Bytepg2pg).
func sliceToPage(b []byte) *Pg_t {
	if len(b) != PGSIZE {
		panic("bad page slice length")
	}
	return (*Pg_t)(unsafe.Pointer(&b[0]))
}
