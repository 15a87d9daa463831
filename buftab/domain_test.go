package buftab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/buftab"
)

func TestAllocEncodesOwnerAndOrder(t *testing.T) {
	d := buftab.NewDomain()

	b, err := d.Alloc(5, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, b.Owner())
	assert.Equal(t, 3, b.Order())
	assert.Equal(t, int64(8), b.Pages())
	assert.Zero(t, b.Base)
	assert.Equal(t, int64(8), d.PageCount())
}

func TestAllocBaseIsPriorPageCount(t *testing.T) {
	d := buftab.NewDomain()

	b0, err := d.Alloc(1, 2)
	require.NoError(t, err)
	b1, err := d.Alloc(1, 0)
	require.NoError(t, err)

	assert.Zero(t, b0.Base)
	assert.Equal(t, int64(4)<<xsknic.PageShift, b1.Base)
	assert.Equal(t, int64(5), d.PageCount())
}

func TestAllocRejectsOutOfRangeOwner(t *testing.T) {
	d := buftab.NewDomain()

	_, err := d.Alloc(1<<24, 0)
	assert.ErrorIs(t, err, xsknic.ErrOwnerSpace)

	_, err = d.Alloc(-1, 0)
	assert.ErrorIs(t, err, xsknic.ErrOwnerSpace)

	_, err = d.Alloc(1<<24-1, 0)
	assert.NoError(t, err, "largest encodable owner")
}

func TestAllocRejectsOutOfRangeOrder(t *testing.T) {
	d := buftab.NewDomain()

	var re xsknic.RangeError
	_, err := d.Alloc(0, buftab.MaxOrder+1)
	require.ErrorAs(t, err, &re)

	_, err = d.Alloc(0, buftab.MaxOrder)
	assert.NoError(t, err)
}

func TestFreeLastBlockResetsDomain(t *testing.T) {
	d := buftab.NewDomain()

	b, err := d.Alloc(7, 0)
	require.NoError(t, err)
	require.NoError(t, d.SetAddrs(b, 0, 1, []uint64{0x1000}))
	require.Equal(t, int64(1), d.UsedPageCount())

	d.Free(b)

	allocated, freed := d.BlockCounts()
	assert.Zero(t, allocated)
	assert.Zero(t, freed)
	assert.Zero(t, d.PageCount(), "page directory released")
	assert.Zero(t, d.UsedPageCount())
}

func TestAccountingLawAcrossOrders(t *testing.T) {
	// The domain resets exactly when freed == allocated, for any
	// interleaving of allocs and frees.
	d := buftab.NewDomain()

	a, err := d.Alloc(3, 1)
	require.NoError(t, err)
	b, err := d.Alloc(3, 2)
	require.NoError(t, err)

	d.Free(a)
	allocated, freed := d.BlockCounts()
	assert.Equal(t, int64(2), allocated)
	assert.Equal(t, int64(1), freed)
	assert.Equal(t, int64(6), d.PageCount(), "no reset while a block is live")

	c, err := d.Alloc(3, 0)
	require.NoError(t, err)

	d.Free(b)
	d.Free(c)
	allocated, freed = d.BlockCounts()
	assert.Zero(t, allocated)
	assert.Zero(t, freed)
	assert.Zero(t, d.PageCount())
}

func TestOrderTwoTwiceScenario(t *testing.T) {
	// Two order-2 blocks (4 pages each) for one owner, then free both.
	d := buftab.NewDomain()

	b0, err := d.Alloc(5, 2)
	require.NoError(t, err)
	b1, err := d.Alloc(5, 2)
	require.NoError(t, err)

	allocated, freed := d.BlockCounts()
	require.Equal(t, int64(2), allocated)
	require.Zero(t, freed)
	require.Equal(t, int64(8), d.PageCount())

	d.Free(b0)
	d.Free(b1)

	allocated, freed = d.BlockCounts()
	assert.Zero(t, allocated)
	assert.Zero(t, freed)
	assert.Zero(t, d.PageCount())
}

func TestDoubleFreePanics(t *testing.T) {
	d := buftab.NewDomain()
	b, err := d.Alloc(0, 0)
	require.NoError(t, err)

	d.Free(b)
	assert.Panics(t, func() { d.Free(b) })
}

func TestSetAddrsExpandsCompoundPages(t *testing.T) {
	d := buftab.NewDomain()
	b, err := d.Alloc(2, 2)
	require.NoError(t, err)

	// Two entries of 4 pages each.
	_, err = d.Alloc(2, 0) // unrelated trailing block, must not be touched
	require.NoError(t, err)
	require.NoError(t, d.SetAddrs(b, 0, 1, []uint64{0x10000}))

	src := d.Pages()
	for page := int64(0); page < 4; page++ {
		got, err := src.Resolve(page << xsknic.PageShift)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x10000)+uint64(page)*xsknic.PageSize, got)
	}
}

func TestSetAddrsEntryOffsets(t *testing.T) {
	d := buftab.NewDomain()
	b, err := d.Alloc(0, 1) // order 1: each entry covers 2 pages
	require.NoError(t, err)

	// first=0 writes pages 0..1 of the block.
	require.NoError(t, d.SetAddrs(b, 0, 1, []uint64{0x20000}))
	got, err := d.Pages().Resolve(1 << xsknic.PageShift)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x20000+xsknic.PageSize), got)
}

func TestSetAddrsBoundsChecked(t *testing.T) {
	d := buftab.NewDomain()
	b, err := d.Alloc(0, 0)
	require.NoError(t, err)

	var re xsknic.RangeError
	err = d.SetAddrs(b, 0, 2, []uint64{1, 2})
	require.ErrorAs(t, err, &re)

	err = d.SetAddrs(b, 1, 1, []uint64{1})
	require.ErrorAs(t, err, &re)

	err = d.SetAddrs(b, 0, 1, nil)
	assert.Error(t, err)
}

func TestClearAddrsIsRecordedNoOp(t *testing.T) {
	// Address invalidation is unimplemented by design; entries keep
	// their last written value. Unverified whether every caller really
	// overwrites before reuse.
	d := buftab.NewDomain()
	b, err := d.Alloc(0, 0)
	require.NoError(t, err)
	require.NoError(t, d.SetAddrs(b, 0, 1, []uint64{0x3000}))

	d.ClearAddrs(b, 0, 1)

	got, err := d.Pages().Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x3000), got)
}

func TestOrders(t *testing.T) {
	orders := buftab.Orders()
	require.Len(t, orders, 11)
	assert.Equal(t, 0, orders[0])
	assert.Equal(t, 10, orders[10])
}
