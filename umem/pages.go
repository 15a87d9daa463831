// Package umem tracks the physical pages backing a zero-copy memory
// region.
//
// The page directory is a growable, block-indexed table mapping a linear
// page index to a physical-page handle. Growth allocates whole blocks and
// never shrinks; entries are populated later by buffer-table set
// operations; lookups beyond the populated high-water mark fault. The
// table is the allocation unit for a protection domain's zero-copy memory.
package umem

import (
	"fmt"

	"github.com/virthw/xsknic"
)

// BlockSlots is the number of page handles per directory block: one page
// worth of 8-byte handles.
const BlockSlots = xsknic.PageSize / 8

// BlockAllocator allocates one directory block of n handle slots. It
// exists so growth failure paths stay testable; the default allocator
// never fails.
type BlockAllocator func(n int) ([]uint64, error)

func defaultAllocator(n int) ([]uint64, error) {
	return make([]uint64, n), nil
}

// Pages is the page directory for one protection domain.
//
// The slot table is only ever mutated by the control-plane caller growing
// or setting entries; Resolve runs in arbitrary faulting contexts and must
// treat it as read-only.
type Pages struct {
	pageCount     int64
	usedPageCount int64
	blocks        [][]uint64

	alloc BlockAllocator
}

// New returns an empty page directory.
func New() *Pages {
	return &Pages{alloc: defaultAllocator}
}

// NewWithAllocator returns an empty page directory using alloc for block
// storage.
func NewWithAllocator(alloc BlockAllocator) *Pages {
	if alloc == nil {
		alloc = defaultAllocator
	}
	return &Pages{alloc: alloc}
}

// PageCount is the number of allocated page slots.
func (p *Pages) PageCount() int64 { return p.pageCount }

// UsedPageCount is the high-water mark of populated slots.
func (p *Pages) UsedPageCount() int64 { return p.usedPageCount }

// Grow extends the directory by newPages slots, allocating blocks as
// needed.
//
// Each block is recorded as soon as it is allocated, so a failure partway
// through leaves every earlier block tracked and freeable; PageCount is
// only advanced once all blocks are in place.
func (p *Pages) Grow(newPages int64) error {
	if newPages < 0 {
		return xsknic.RangeError{What: "page count", Value: newPages, Limit: 1 << 62}
	}
	need := (p.pageCount + newPages + BlockSlots - 1) / BlockSlots
	for int64(len(p.blocks)) < need {
		block, err := p.alloc(BlockSlots)
		if err != nil {
			return fmt.Errorf("allocate page directory block %d: %w", len(p.blocks), err)
		}
		p.blocks = append(p.blocks, block)
	}
	p.pageCount += newPages
	return nil
}

// Set stores the physical handle for page, advancing the used high-water
// mark past it. The caller must have grown the directory so that page is
// within PageCount.
func (p *Pages) Set(page int64, addr uint64) {
	if page >= p.pageCount {
		panic(fmt.Sprintf("umem: set page %d beyond capacity %d", page, p.pageCount))
	}
	p.blocks[page/BlockSlots][page%BlockSlots] = addr
	if page >= p.usedPageCount {
		p.usedPageCount = page + 1
	}
}

// Get returns the stored handle for page. The result is undefined for
// pages at or beyond UsedPageCount; use Resolve for checked access.
func (p *Pages) Get(page int64) uint64 {
	return p.blocks[page/BlockSlots][page%BlockSlots]
}

// Resolve implements the fault path for a mapped region backed by this
// directory: offsets within the populated range return the page handle
// written by the last Set, anything beyond signals an access violation.
func (p *Pages) Resolve(byteOffset int64) (uint64, error) {
	page := byteOffset >> xsknic.PageShift
	if page < 0 || page >= p.usedPageCount {
		return 0, xsknic.AccessViolationError{Offset: byteOffset, Page: page, Used: p.usedPageCount}
	}
	return p.Get(page), nil
}

// Free releases the directory's block storage. The referenced physical
// pages belong to whoever supplied them via Set and are untouched.
func (p *Pages) Free() {
	p.blocks = nil
	p.pageCount = 0
	p.usedPageCount = 0
}
