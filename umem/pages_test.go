package umem_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/umem"
)

func TestGrowAccumulatesPageCount(t *testing.T) {
	p := umem.New()

	var want int64
	for _, n := range []int64{1, umem.BlockSlots - 1, umem.BlockSlots, 3, 0, 1000} {
		require.NoError(t, p.Grow(n))
		want += n
		assert.Equal(t, want, p.PageCount())
	}
}

func TestSetGetReadAfterWrite(t *testing.T) {
	p := umem.New()
	require.NoError(t, p.Grow(2 * umem.BlockSlots))

	// Straddle a block boundary and overwrite one entry.
	pages := []int64{0, 1, umem.BlockSlots - 1, umem.BlockSlots, umem.BlockSlots + 7}
	for _, page := range pages {
		p.Set(page, uint64(0x1000*page)+1)
	}
	p.Set(1, 0xdead)

	for _, page := range pages {
		got, err := p.Resolve(page << xsknic.PageShift)
		require.NoError(t, err)
		if page == 1 {
			assert.Equal(t, uint64(0xdead), got)
		} else {
			assert.Equal(t, uint64(0x1000*page)+1, got)
		}
	}
}

func TestGrowPreservesExistingEntries(t *testing.T) {
	p := umem.New()
	require.NoError(t, p.Grow(4))
	p.Set(3, 0xabc)

	require.NoError(t, p.Grow(10 * umem.BlockSlots))

	got, err := p.Resolve(3 << xsknic.PageShift)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xabc), got)
}

func TestUsedPageCountHighWaterMark(t *testing.T) {
	p := umem.New()
	require.NoError(t, p.Grow(16))

	assert.Zero(t, p.UsedPageCount())
	p.Set(0, 1)
	assert.Equal(t, int64(1), p.UsedPageCount())
	p.Set(9, 1)
	assert.Equal(t, int64(10), p.UsedPageCount())
	p.Set(4, 1)
	assert.Equal(t, int64(10), p.UsedPageCount(), "mark never regresses")
}

func TestResolveBeyondUsedFaults(t *testing.T) {
	p := umem.New()
	require.NoError(t, p.Grow(8))
	p.Set(2, 0x42)

	// Pages 0..2 resolve, page 3 and beyond fault even though capacity
	// extends to page 7.
	_, err := p.Resolve(2 << xsknic.PageShift)
	require.NoError(t, err)

	for _, off := range []int64{3 << xsknic.PageShift, 7 << xsknic.PageShift, (3 << xsknic.PageShift) + 100} {
		_, err := p.Resolve(off)
		var av xsknic.AccessViolationError
		require.ErrorAs(t, err, &av, "offset %#x", off)
		assert.Equal(t, off, av.Offset)
	}
}

func TestResolveEmptyDirectoryFaults(t *testing.T) {
	p := umem.New()
	_, err := p.Resolve(0)
	var av xsknic.AccessViolationError
	assert.ErrorAs(t, err, &av)
}

func TestGrowPartialFailureIsCrashConsistent(t *testing.T) {
	boom := errors.New("out of memory")
	calls := 0
	failAfter := 2
	p := umem.NewWithAllocator(func(n int) ([]uint64, error) {
		calls++
		if calls > failAfter {
			return nil, boom
		}
		return make([]uint64, n), nil
	})

	// First grow succeeds within the allocation budget.
	require.NoError(t, p.Grow(2*umem.BlockSlots))
	p.Set(0, 0x77)

	// Second grow needs two more blocks; the allocator refuses.
	err := p.Grow(2 * umem.BlockSlots)
	require.ErrorIs(t, err, boom)

	// PageCount is unchanged and previously set entries survive, so a
	// subsequent Free cannot leak or double-free.
	assert.Equal(t, int64(2*umem.BlockSlots), p.PageCount())
	got, rerr := p.Resolve(0)
	require.NoError(t, rerr)
	assert.Equal(t, uint64(0x77), got)

	p.Free()
	assert.Zero(t, p.PageCount())
	assert.Zero(t, p.UsedPageCount())
}

func TestSetBeyondCapacityPanics(t *testing.T) {
	p := umem.New()
	require.NoError(t, p.Grow(1))
	assert.Panics(t, func() { p.Set(1, 0x1) })
}

func TestFreeResetsDirectory(t *testing.T) {
	p := umem.New()
	require.NoError(t, p.Grow(umem.BlockSlots))
	p.Set(5, 1)

	p.Free()

	assert.Zero(t, p.PageCount())
	assert.Zero(t, p.UsedPageCount())
	_, err := p.Resolve(5 << xsknic.PageShift)
	assert.Error(t, err)

	// The directory is reusable after a reset.
	require.NoError(t, p.Grow(4))
	p.Set(0, 9)
	got, err := p.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got)
}
