package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pebble/biscuit/src/mem"
)

// TestZFODConvertInPlace is spec.md 8's literal ZFOD-convert scenario:
// a fresh anonymous mapping's pages start out sharing the ZFOD
// sentinel; writing one page converts it to a private frame in place,
// while an untouched page in the same region still reads as zero and
// costs nothing.
func TestZFODConvertInPlace(t *testing.T) {
	mem.Phys_init(64)
	as := NewVm()
	base := uintptr(0x10000000)
	as.AddAnon(base, uintptr(mem.PGSIZE*3), PTE_W|PTE_U)

	before := mem.Physmem.Pgcount()

	err := as.Userwriten(base+uintptr(mem.PGSIZE), 1, 0x42)
	require.Zero(t, err)
	afterWrite := mem.Physmem.Pgcount()
	require.Equal(t, before-1, afterWrite)

	val, rerr := as.Userreadn(base+2*uintptr(mem.PGSIZE), 1)
	require.Zero(t, rerr)
	require.Zero(t, val)
	afterRead := mem.Physmem.Pgcount()
	require.Equal(t, afterWrite, afterRead, "reading an untouched ZFOD page must not consume a frame")

	got, rerr := as.Userreadn(base+uintptr(mem.PGSIZE), 1)
	require.Zero(t, rerr)
	require.Equal(t, 0x42, got)
}

// TestCopyRealPerPageCopy is spec.md 8's fork round-trip law:
// vm.Copy duplicates already-faulted-in VANON pages so that subsequent
// writes in the parent never perturb the child.
func TestCopyRealPerPageCopy(t *testing.T) {
	mem.Phys_init(64)
	as := NewVm()
	base := uintptr(0x20000000)
	as.AddAnon(base, uintptr(mem.PGSIZE), PTE_W|PTE_U)
	require.Zero(t, as.Userwriten(base, 1, 0xaa))

	child, err := as.Copy()
	require.Zero(t, err)

	require.Zero(t, as.Userwriten(base, 1, 0xbb))

	parentVal, _ := as.Userreadn(base, 1)
	childVal, _ := child.Userreadn(base, 1)
	require.Equal(t, 0xbb, parentVal)
	require.Equal(t, 0xaa, childVal, "child's copy must not see the parent's post-fork write")
}

// TestCopySharedAnonStaysShared is spec.md 4.E's VSANON contract: a
// shared-anonymous mapping is not copied at fork, so writes on either
// side are visible to the other through the same frame.
func TestCopySharedAnonStaysShared(t *testing.T) {
	mem.Phys_init(64)
	as := NewVm()
	base := uintptr(0x30000000)
	as.AddShareAnon(base, uintptr(mem.PGSIZE), PTE_W|PTE_U)
	require.Zero(t, as.Userwriten(base, 1, 0x11))

	child, err := as.Copy()
	require.Zero(t, err)

	require.Zero(t, as.Userwriten(base, 1, 0x22))
	childVal, _ := child.Userreadn(base, 1)
	require.Equal(t, 0x22, childVal, "shared-anon writes must be visible across the fork")
}

// TestNewPagesRemovePagesIsNoop is spec.md 8's round-trip law:
// new_pages(a,n); remove_pages(a) must leave frame accounting exactly
// where it started.
func TestNewPagesRemovePagesIsNoop(t *testing.T) {
	mem.Phys_init(64)
	as := NewVm()
	base := uintptr(0x40000000)
	before := mem.Physmem.Pgcount()

	as.AddAnon(base, uintptr(mem.PGSIZE*2), PTE_W|PTE_U)
	require.Zero(t, as.Userwriten(base, 1, 1))
	require.Zero(t, as.Userwriten(base+uintptr(mem.PGSIZE), 1, 1))
	require.Less(t, mem.Physmem.Pgcount(), before)

	require.Zero(t, as.RemovePages(base))
	require.Equal(t, before, mem.Physmem.Pgcount())
}
