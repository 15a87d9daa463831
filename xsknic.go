// Package xsknic makes the Linux AF_XDP facility look like a vendor NIC
// virtual interface with a buffer table and zero-copy descriptor rings.
//
// A kernel-bypass stack drives real NICs through a generic operations table:
// queue init, buffer-table CRUD, memory registration, ring mapping. This
// package and its subpackages implement that table over AF_XDP sockets, an
// XSK redirect map and an XDP classifier program, so the stack can treat a
// commodity interface as if it were silicon with hardware buffer tables.
//
// The root package holds the shared domain types and the capability
// interfaces through which the backend reaches the kernel facility. The
// real implementation lives in package xsk; tests substitute fakes.
package xsknic

import "net"

// Page geometry assumed throughout. AF_XDP chunk sizing and the buffer
// table both work in units of 4KiB pages.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// RingKind identifies one of the four descriptor rings shared between the
// kernel and user space.
type RingKind int

const (
	RXRing RingKind = iota
	TXRing
	FillRing
	CompletionRing
)

// String returns the ring name as used in logs.
func (k RingKind) String() string {
	switch k {
	case RXRing:
		return "rx"
	case TXRing:
		return "tx"
	case FillRing:
		return "fill"
	case CompletionRing:
		return "completion"
	default:
		return "unknown"
	}
}

// DescSize returns the descriptor byte size for the ring. RX and TX rings
// carry full xdp_desc entries; fill and completion rings carry bare frame
// addresses.
func (k RingKind) DescSize() int {
	switch k {
	case RXRing, TXRing:
		return 16
	default:
		return 8
	}
}

// RingLayout is the facility-reported memory layout of one ring: byte
// offsets of the producer index, consumer index and descriptor array within
// the ring's mapped region.
type RingLayout struct {
	Producer uint64
	Consumer uint64
	Desc     uint64
	Flags    uint64
}

// MmapOffsets is the facility-reported layout of all four rings, queried
// once per socket.
type MmapOffsets struct {
	RX         RingLayout
	TX         RingLayout
	Fill       RingLayout
	Completion RingLayout
}

// Layout returns the layout for the given ring kind.
func (o MmapOffsets) Layout(kind RingKind) RingLayout {
	switch kind {
	case RXRing:
		return o.RX
	case TXRing:
		return o.TX
	case FillRing:
		return o.Fill
	default:
		return o.Completion
	}
}

// RingOffsets is one republished offset triple for a ring, relative to
// either the kernel-visible base or the user-visible page map.
type RingOffsets struct {
	Producer int64
	Consumer int64
	Desc     int64
}

// RingSetOffsets holds the offset triples for all four rings.
type RingSetOffsets struct {
	RX         RingOffsets
	TX         RingOffsets
	Fill       RingOffsets
	Completion RingOffsets
}

// OffsetsBlock is the ring-offset block a VI shares with its consumer. Two
// copies exist per active VI: one kernel-visible, one republished into a
// dedicated page of the user-visible page map. MmapBytes is the total byte
// size of the page map once activation completes.
type OffsetsBlock struct {
	Rings     RingSetOffsets
	MmapBytes int64
}

// QueueFlags qualify an RX queue at init time.
type QueueFlags uint32

// QueueRXZeroCopy requests a zero-copy binding for the queue; without it
// the socket binds in copy mode.
const QueueRXZeroCopy QueueFlags = 1 << 0

// BindFlags are passed through to the facility when binding a socket to a
// device queue. Values match the sockaddr_xdp flag bits.
type BindFlags uint16

const (
	BindSharedUmem BindFlags = 1 << 0
	BindCopy       BindFlags = 1 << 1
	BindZeroCopy   BindFlags = 1 << 2
	BindNeedWakeup BindFlags = 1 << 3
)

// PageSource resolves pages of a registered memory region on demand. It is
// the capability handed to the facility when zero-copy memory is
// registered: the facility may only read the page table, never mutate it.
// umem.Pages is the canonical implementation.
type PageSource interface {
	// PageCount is the number of page slots allocated so far.
	PageCount() int64
	// UsedPageCount is the high-water mark of pages holding a valid
	// physical handle. Offsets at or beyond it must fault.
	UsedPageCount() int64
	// Resolve maps a byte offset within the region to the physical page
	// handle backing it, or returns an AccessViolationError.
	Resolve(byteOffset int64) (uint64, error)
}

// RingMapping is a temporary process-local view of one ring's memory,
// established only long enough to locate the ring's backing pages.
type RingMapping interface {
	// Base is the kernel-visible base address of the ring memory.
	Base() uintptr
	// Pages is the number of whole pages backing the mapping.
	Pages() int
	// Unmap releases the temporary view. The backing pages stay alive
	// for the socket's lifetime.
	Unmap() error
}

// Socket is the control handle over one AF_XDP socket: the per-queue
// capability the backend drives during VI activation.
type Socket interface {
	// FD exposes the raw descriptor for redirect-map installation.
	FD() int
	// RegisterUmem registers sizeBytes of zero-copy memory, resolved
	// lazily through src.
	RegisterUmem(sizeBytes int64, chunkSize, headroom uint32, src PageSource) error
	// SetRingSize negotiates the capacity of one ring.
	SetRingSize(kind RingKind, capacity int) error
	// MmapOffsets queries the ring memory layout, shared by all rings.
	MmapOffsets() (MmapOffsets, error)
	// MapRing maps sizeBytes of the ring's kernel memory into the
	// calling process.
	MapRing(kind RingKind, sizeBytes int64) (RingMapping, error)
	// Bind attaches the socket to the device queue with the given flags.
	Bind(queue int, flags BindFlags) error
	Close() error
}

// Attachment is the per-NIC redirect map plus its attached classifier
// program, created once at hardware init and held for the NIC's lifetime.
type Attachment interface {
	// Update installs sock at the instance-index slot of the redirect map.
	Update(instance int, sock Socket) error
	// Remove clears the slot.
	Remove(instance int) error
	// Close detaches the classifier and drops the map reference.
	Close() error
}

// Facility is the capability bundle for one underlying network device.
type Facility interface {
	// HardwareAddr reports the device MAC.
	HardwareAddr() net.HardwareAddr
	// Ifindex reports the device interface index.
	Ifindex() int
	// OpenSocket creates a fresh control handle scoped to the device's
	// network namespace.
	OpenSocket() (Socket, error)
	// AttachRedirect creates the redirect map sized to maxEntries and
	// attaches the classifier to the device ingress hook.
	AttachRedirect(maxEntries int) (Attachment, error)
}
