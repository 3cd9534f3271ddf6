package vm

import (
	"fmt"

	"pebble/biscuit/src/bounds"
	"pebble/biscuit/src/defs"
	"pebble/biscuit/src/res"
	"pebble/biscuit/src/util"
)

/// Userbuf_t assists reading and writing a contiguous user memory
/// range, faulting pages in one at a time as needed. Grounded on
/// biscuit/src/vm/userbuf.go's identically-named type, stripped of the
/// sync.Pool reuse pool (Ubpool) -- that pool amortized allocation
/// pressure from a multi-core kernel handling many concurrent I/O
/// requests per second; this single-CPU kernel allocates Userbuf_t
/// values rarely enough that the pool would only add bookkeeping.
type Userbuf_t struct {
	userva uintptr
	len    int
	off    int
	as     *Vm_t
}

/// MkUserbuf initializes and returns a Userbuf_t over [uva, uva+length).
func MkUserbuf(as *Vm_t, uva uintptr, length int) *Userbuf_t {
	ub := &Userbuf_t{}
	ub.init(as, uva, length)
	return ub
}

func (ub *Userbuf_t) init(as *Vm_t, uva uintptr, length int) {
	if length < 0 {
		panic("vm: negative userbuf length")
	}
	ub.userva = uva
	ub.len = length
	ub.off = 0
	ub.as = as
}

/// Remain reports the number of bytes left unread/unwritten.
func (ub *Userbuf_t) Remain() int { return ub.len - ub.off }

/// Totalsz reports the buffer's total size.
func (ub *Userbuf_t) Totalsz() int { return ub.len }

/// Uioread copies from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	ub.as.Lock_pmap()
	defer ub.as.Unlock_pmap()
	return ub.tx(dst, false)
}

/// Uiowrite copies src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	ub.as.Lock_pmap()
	defer ub.as.Unlock_pmap()
	return ub.tx(src, true)
}

// tx copies min(len(buf), ub.Remain()) bytes, one faulted-in page at a
// time, advancing ub.off so a partial transfer (ENOHEAP) can resume
// where it left off.
func (ub *Userbuf_t) tx(buf []uint8, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_USERBUF_T__TX)) {
			return ret, -defs.ENOHEAP
		}
		va := ub.userva + uintptr(ub.off)
		chunk, err := ub.as.Userdmap8_inner(va, write)
		if err != 0 {
			return ret, err
		}
		if left := ub.len - ub.off; len(chunk) > left {
			chunk = chunk[:left]
		}
		var c int
		if write {
			c = copy(chunk, buf)
		} else {
			c = copy(buf, chunk)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

type iove_t struct {
	uva uintptr
	sz  int
}

/// Useriovec_t is a sequence of user buffers described by an iovec
/// array, for scatter/gather syscalls (spec.md 4.L).
type Useriovec_t struct {
	iovs []iove_t
	tsz  int
	as   *Vm_t
}

/// Iov_init reads niovs {uva, len} pairs from user memory at iovarn.
func (iov *Useriovec_t) Iov_init(as *Vm_t, iovarn uintptr, niovs int) defs.Err_t {
	if niovs > 10 {
		fmt.Printf("vm: suspiciously many iovecs (%d)\n", niovs)
		return -defs.EINVAL
	}
	iov.tsz = 0
	iov.iovs = make([]iove_t, niovs)
	iov.as = as

	as.Lock_pmap()
	defer as.Unlock_pmap()
	const elmsz = uintptr(16)
	for i := range iov.iovs {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_USERIOVEC_T_IOV_INIT)) {
			return -defs.ENOHEAP
		}
		va := iovarn + uintptr(i)*elmsz
		dstva, err := as.userreadnLocked(va, 8)
		if err != 0 {
			return err
		}
		sz, err := as.userreadnLocked(va+8, 8)
		if err != 0 {
			return err
		}
		iov.iovs[i].uva = uintptr(dstva)
		iov.iovs[i].sz = sz
		iov.tsz += sz
	}
	return 0
}

/// Remain reports bytes left across all iovecs.
func (iov *Useriovec_t) Remain() int {
	ret := 0
	for i := range iov.iovs {
		ret += iov.iovs[i].sz
	}
	return ret
}

/// Totalsz reports the total length described by the iovec array.
func (iov *Useriovec_t) Totalsz() int { return iov.tsz }

func (iov *Useriovec_t) tx(buf []uint8, touser bool) (int, defs.Err_t) {
	did := 0
	for len(buf) > 0 && len(iov.iovs) > 0 {
		if !res.Resadd_noblock(bounds.Bounds(bounds.B_USERIOVEC_T__TX)) {
			return did, -defs.ENOHEAP
		}
		cur := &iov.iovs[0]
		ub := MkUserbuf(iov.as, cur.uva, cur.sz)
		c, err := ub.tx(buf, touser)
		cur.uva += uintptr(c)
		cur.sz -= c
		if cur.sz == 0 {
			iov.iovs = iov.iovs[1:]
		}
		buf = buf[c:]
		did += c
		if err != 0 {
			return did, err
		}
	}
	return did, 0
}

/// Uioread reads from the iovec-described user buffers into dst.
func (iov *Useriovec_t) Uioread(dst []uint8) (int, defs.Err_t) {
	iov.as.Lock_pmap()
	defer iov.as.Unlock_pmap()
	return iov.tx(dst, false)
}

/// Uiowrite writes src to the iovec-described user buffers.
func (iov *Useriovec_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	iov.as.Lock_pmap()
	defer iov.as.Unlock_pmap()
	return iov.tx(src, true)
}

// userreadnLocked is Userreadn's body for callers that already hold
// the pmap lock (Iov_init walks the iovec array under one lock
// acquisition rather than one per field).
func (as *Vm_t) userreadnLocked(va uintptr, n int) (int, defs.Err_t) {
	as.Lockassert_pmap()
	if n > 8 {
		panic("vm: userreadnLocked: n too large")
	}
	var ret int
	for i := 0; i < n; {
		src, err := as.Userdmap8_inner(va+uintptr(i), false)
		if err != 0 {
			return 0, err
		}
		l := util.Min(n-i, len(src))
		ret |= util.Readn(src, l, 0) << (8 * uint(i))
		i += l
	}
	return ret, 0
}

/// Fakeubuf_t adapts a plain kernel byte slice to the same interface as
/// Userbuf_t, for kernel code paths that treat an in-kernel buffer as
/// if it were a user buffer (spec.md 4.L).
type Fakeubuf_t struct {
	buf []uint8
	len int
}

/// Fake_init sets up the fake buffer over buf.
func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.buf = buf
	fb.len = len(buf)
}

/// Remain reports bytes left in the fake buffer.
func (fb *Fakeubuf_t) Remain() int { return len(fb.buf) }

/// Totalsz reports the fake buffer's total length.
func (fb *Fakeubuf_t) Totalsz() int { return fb.len }

/// Uioread copies from the fake buffer into dst.
func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	c := copy(dst, fb.buf)
	fb.buf = fb.buf[c:]
	return c, 0
}

/// Uiowrite copies src into the fake buffer.
func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	c := copy(fb.buf, src)
	fb.buf = fb.buf[c:]
	return c, 0
}
