// Package pagemap assembles the memory a virtual interface exposes to
// user space: the dedicated ring-offsets page followed by one contiguous
// run of pages per descriptor ring, in provisioning order.
//
// The map records where each lump begins, so offsets republished to user
// space can be expressed relative to the running total of bytes mapped
// before the lump was appended.
package pagemap

import (
	"fmt"

	"github.com/virthw/xsknic"
)

// Run is one contiguous run of kernel pages backing a ring.
type Run struct {
	// Base is the kernel-visible address of the first page.
	Base uintptr
	// NPages is the run length in whole pages.
	NPages int
}

// Page is a dedicated, zero-filled page owned by the map's client, used
// for the user-visible ring-offsets block.
type Page struct {
	buf []byte
}

// NewPage allocates a zeroed page.
func NewPage() *Page {
	return &Page{buf: make([]byte, xsknic.PageSize)}
}

// Bytes exposes the page contents.
func (p *Page) Bytes() []byte { return p.buf }

type lump struct {
	page  *Page
	run   Run
	bytes int64
}

// Map is an ordered collection of pages and runs destined for one
// contiguous user-space mapping.
type Map struct {
	lumps  []lump
	nPages int64
}

// New returns an empty page map.
func New() *Map {
	return &Map{}
}

// AddPage appends a dedicated page and returns its byte offset within the
// map.
func (m *Map) AddPage(p *Page) int64 {
	base := m.Bytes()
	m.lumps = append(m.lumps, lump{page: p, bytes: xsknic.PageSize})
	m.nPages++
	return base
}

// AddLump appends a ring page run and returns its byte offset within the
// map: the number of bytes already mapped before the append.
func (m *Map) AddLump(r Run) (int64, error) {
	if r.NPages <= 0 {
		return 0, fmt.Errorf("page run of %d pages: %w", r.NPages, xsknic.RangeError{
			What: "run length", Value: int64(r.NPages), Limit: 1 << 31,
		})
	}
	base := m.Bytes()
	m.lumps = append(m.lumps, lump{run: r, bytes: int64(r.NPages) << xsknic.PageShift})
	m.nPages += int64(r.NPages)
	return base, nil
}

// Page returns the dedicated page of lump i, or nil when lump i is a
// ring run or out of range. Consumers assembling the user mapping use it
// to reach the offsets page, which is by protocol the map's first lump.
func (m *Map) Page(i int) *Page {
	if i < 0 || i >= len(m.lumps) {
		return nil
	}
	return m.lumps[i].page
}

// NPages is the total number of pages in the map.
func (m *Map) NPages() int64 { return m.nPages }

// Bytes is the total byte size of the map.
func (m *Map) Bytes() int64 { return m.nPages << xsknic.PageShift }
