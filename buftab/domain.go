// Package buftab implements the protection-domain resource model behind
// the NIC buffer table.
//
// A protection domain groups the buffer-table blocks allocated by one
// owner id and is shared by every virtual interface configured with that
// owner. The domain owns a single page directory; buffer-table allocation
// grows it, buffer-table set populates it, and the domain resets when the
// last outstanding block is freed.
package buftab

import (
	"fmt"
	"sync"

	"github.com/virthw/xsknic"
	"github.com/virthw/xsknic/umem"
)

const (
	// MaxDomains is the size of the per-NIC protection-domain arena.
	MaxDomains = 256

	// MaxOrder is the largest supported block order: 1<<10 pages.
	MaxOrder = 10

	// ownerBits is the room left for the owner id in a block handle once
	// the low byte is taken by the order.
	ownerBits = 24
)

// Orders lists the buffer-table block orders the backend supports, for
// the generic NIC capability query.
func Orders() []int {
	orders := make([]int, MaxOrder+1)
	for i := range orders {
		orders[i] = i
	}
	return orders
}

// Block is an opaque handle for a contiguous power-of-two run of pages
// within a protection domain. The handle packs the order in the low byte
// and the owner id above it, which caps owners at 1<<24.
type Block struct {
	handle uint32
	// Base is the block's byte offset within the domain's zero-copy
	// region: the descriptor addresses posted for these pages are
	// relative to it.
	Base int64

	freed bool
}

// Owner returns the owner id encoded in the handle.
func (b *Block) Owner() int { return int(b.handle >> 8) }

// Order returns the page-count order encoded in the handle.
func (b *Block) Order() int { return int(b.handle & 0xff) }

// Pages returns the number of pages the block spans.
func (b *Block) Pages() int64 { return 1 << b.Order() }

// Domain is one protection domain. The mutex serializes growth and the
// allocation counters: several VIs may share a domain and the generic NIC
// layer gives no ordering guarantee between their control-plane calls.
type Domain struct {
	mu    sync.Mutex
	pages *umem.Pages

	bufferTableCount      int64
	freedBufferTableCount int64
}

// NewDomain returns an empty protection domain.
func NewDomain() *Domain {
	return &Domain{pages: umem.New()}
}

// Pages exposes the domain's page directory as a read-only page source
// for memory registration.
func (d *Domain) Pages() xsknic.PageSource { return d.pages }

// UsedPageCount reports the populated high-water mark of the domain's
// page directory.
func (d *Domain) UsedPageCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages.UsedPageCount()
}

// PageCount reports the allocated capacity of the domain's page
// directory.
func (d *Domain) PageCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages.PageCount()
}

// BlockCounts reports (allocated, freed) buffer-table block counts.
func (d *Domain) BlockCounts() (int64, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferTableCount, d.freedBufferTableCount
}

// Alloc allocates a buffer-table block of 1<<order pages for owner.
//
// The block's base offset is the domain's page count before growth, in
// bytes. The allocation counter only moves once the block is certain to
// be returned, so a growth failure leaves the accounting untouched.
func (d *Domain) Alloc(owner, order int) (*Block, error) {
	if owner < 0 || owner >= 1<<ownerBits {
		return nil, fmt.Errorf("owner %d: %w", owner, xsknic.ErrOwnerSpace)
	}
	if order < 0 || order > MaxOrder {
		return nil, xsknic.RangeError{What: "block order", Value: int64(order), Limit: MaxOrder + 1}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	block := &Block{
		handle: uint32(order) | uint32(owner)<<8,
		Base:   d.pages.PageCount() << xsknic.PageShift,
	}
	if err := d.pages.Grow(1 << order); err != nil {
		return nil, fmt.Errorf("grow page directory by %d pages: %w", 1<<order, err)
	}
	d.bufferTableCount++
	return block, nil
}

// Free releases a buffer-table block. When the freed count catches up
// with the allocation count the domain resets: the page directory is
// released and both counters return to zero.
//
// Freeing a block twice, or freeing against a domain with no outstanding
// blocks, indicates caller misuse and is fatal.
func (d *Domain) Free(block *Block) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if block.freed {
		panic(fmt.Sprintf("buftab: double free of block owner %d base %#x", block.Owner(), block.Base))
	}
	block.freed = true

	if d.freedBufferTableCount >= d.bufferTableCount {
		panic(fmt.Sprintf("buftab: free without outstanding blocks (freed %d, allocated %d)",
			d.freedBufferTableCount, d.bufferTableCount))
	}

	d.freedBufferTableCount++
	if d.freedBufferTableCount != d.bufferTableCount {
		return
	}

	d.pages.Free()
	d.bufferTableCount = 0
	d.freedBufferTableCount = 0
}

// SetAddrs writes physical addresses into the buffer table. Each of the n
// entries starting at first expands into 1<<order consecutive page
// handles, one per page, beginning at the page implied by the block base
// and first<<order.
func (d *Domain) SetAddrs(block *Block, first, n int, addrs []uint64) error {
	if len(addrs) < n {
		return xsknic.RangeError{What: "address count", Value: int64(len(addrs)), Limit: int64(n)}
	}
	order := block.Order()

	d.mu.Lock()
	defer d.mu.Unlock()

	page := (block.Base >> xsknic.PageShift) + int64(first)<<order
	if first < 0 || n < 0 || page+int64(n)<<order > d.pages.PageCount() {
		return xsknic.RangeError{
			What:  "buffer table entry range end",
			Value: page + int64(n)<<order,
			Limit: d.pages.PageCount(),
		}
	}

	for i := 0; i < n; i++ {
		addr := addrs[i]
		for j := int64(0); j < 1<<order; j++ {
			d.pages.Set(page, addr)
			page++
			addr += xsknic.PageSize
		}
	}
	return nil
}

// ClearAddrs invalidates buffer-table entries. The hardware this shim
// imitates overwrites entries before reuse and never clears them, so this
// is a no-op; kept as a distinct operation because the generic NIC table
// calls it.
func (d *Domain) ClearAddrs(block *Block, first, n int) {
}
